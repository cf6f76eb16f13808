package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	e "nuclight.org/feedback-tg-bot/pkg/entities"
	"nuclight.org/feedback-tg-bot/pkg/logger"
)

// persistTimeout bounds the link insert that follows a confirmed copy. The
// insert runs detached from the event context so a dropped connection can't
// cancel it halfway.
const persistTimeout = 10 * time.Second

var (
	// ErrCopyFailed means the platform rejected the copy, nothing was persisted
	ErrCopyFailed = errors.New("copy failed")

	// ErrLinkNotSaved means the copy exists in the partner chat but its link
	// could not be stored
	ErrLinkNotSaved = errors.New("message copied but link not saved")
)

// Outcome tells how a message was handled.
type Outcome string

const (
	// OutcomeNoReply means the message does not reply to anything
	OutcomeNoReply Outcome = "no_reply"

	// OutcomeNoLink means the replied message is not a relay artifact
	OutcomeNoLink Outcome = "no_link"

	// OutcomeDuplicate means the message already has a link, i.e. it was relayed before
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeRelayed means a reply was copied to the partner chat and linked
	OutcomeRelayed Outcome = "relayed"

	// OutcomeForwarded means a new subscriber message was copied to the admin chat and linked
	OutcomeForwarded Outcome = "forwarded"
)

// Message is an inbound message, already attributed to a side by the router.
type Message struct {
	// Side is the side the message arrived on
	Side e.Direction

	ChatID    int64
	MessageID int

	// SenderID is the subscriber user id for subscriber side messages
	SenderID int64

	// ReplyTo is the replied message, nil when the message is not a reply
	ReplyTo *e.Anchor
}

// Relay copies messages between the subscriber chats and the admin chat and
// records a link for every copy.
//
// A reply is resolved through the link of the replied message: the message is
// copied into the partner chat as a reply to the partner message of that link,
// then the new pair is stored as a link of its own. The link is stored only
// after the platform confirmed the copy, and a failed insert after a
// successful copy is reported and never retried, since a retry could only
// produce a second copy.
type Relay struct {
	Log logger.Logger

	// AdminChatID is where new subscriber messages are forwarded to
	AdminChatID int64

	Links    LinkService
	Platform Copier
	Reporter Reporter
	Metrics  *Metrics
}

// HandleReply relays msg if it replies to a linked message. Messages without
// a reply and replies to unlinked messages are skipped without any platform
// call or store write.
func (r *Relay) HandleReply(ctx context.Context, msg Message) (Outcome, error) {
	outcome, err := r.handleReply(ctx, msg)
	r.Metrics.observe(msg.Side, outcome, err)
	return outcome, err
}

func (r *Relay) handleReply(ctx context.Context, msg Message) (Outcome, error) {
	if msg.ReplyTo == nil {
		return OutcomeNoReply, nil
	}

	link, found, err := r.Links.Find(ctx, msg.ReplyTo.ChatID, msg.ReplyTo.MessageID, msg.Side)
	if err != nil {
		return "", fmt.Errorf("resolving reply to %s: %w", msg.ReplyTo, err)
	}

	if !found {
		return OutcomeNoLink, nil
	}

	duplicate, err := r.isRelayed(ctx, msg)
	if err != nil {
		return "", err
	}
	if duplicate {
		return OutcomeDuplicate, nil
	}

	partner := link.Anchor(msg.Side.Opposite())

	copyID, err := r.copyMessage(ctx, msg, partner.ChatID, partner.MessageID)
	if err != nil {
		return "", err
	}

	err = r.persist(ctx, msg, link.NextLeg(msg.Side, msg.MessageID, copyID))
	if err != nil {
		return "", err
	}

	return OutcomeRelayed, nil
}

// HandleSubscriberMessage relays a subscriber reply to its admin thread, any
// other subscriber message is forwarded to the admin chat as a new thread.
func (r *Relay) HandleSubscriberMessage(ctx context.Context, msg Message) (Outcome, error) {
	msg.Side = e.DirectionSubscriber

	outcome, err := r.handleReply(ctx, msg)
	if err == nil && (outcome == OutcomeNoReply || outcome == OutcomeNoLink) {
		outcome, err = r.forward(ctx, msg)
	}

	r.Metrics.observe(msg.Side, outcome, err)
	return outcome, err
}

func (r *Relay) forward(ctx context.Context, msg Message) (Outcome, error) {
	duplicate, err := r.isRelayed(ctx, msg)
	if err != nil {
		return "", err
	}
	if duplicate {
		return OutcomeDuplicate, nil
	}

	copyID, err := r.copyMessage(ctx, msg, r.AdminChatID, 0)
	if err != nil {
		return "", err
	}

	err = r.persist(ctx, msg, e.MessageLink{
		SubscriberUserID:    msg.SenderID,
		SubscriberChatID:    msg.ChatID,
		SubscriberMessageID: msg.MessageID,
		AdminChatID:         r.AdminChatID,
		AdminMessageID:      copyID,
	})
	if err != nil {
		return "", err
	}

	return OutcomeForwarded, nil
}

// isRelayed reports whether msg itself is already linked, which happens when
// the platform delivers an update twice.
func (r *Relay) isRelayed(ctx context.Context, msg Message) (bool, error) {
	_, found, err := r.Links.Find(ctx, msg.ChatID, msg.MessageID, msg.Side)
	if err != nil {
		return false, fmt.Errorf("checking message %d/%d: %w", msg.ChatID, msg.MessageID, err)
	}
	return found, nil
}

func (r *Relay) copyMessage(ctx context.Context, msg Message, toChatID int64, replyTo int) (int, error) {
	copyID, err := r.Platform.CopyMessage(ctx, msg.ChatID, toChatID, msg.MessageID, replyTo)
	if err != nil {
		return 0, fmt.Errorf("copying message %d/%d to chat %d: %w: %w", msg.ChatID, msg.MessageID, toChatID, ErrCopyFailed, err)
	}
	return copyID, nil
}

func (r *Relay) persist(ctx context.Context, msg Message, link e.MessageLink) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := r.Links.Create(ctx, link)
	if err == nil {
		return nil
	}

	admin, subscriber := link.Anchor(e.DirectionAdmin), link.Anchor(e.DirectionSubscriber)

	r.Log.Error(
		"message copied but link not saved",
		"direction", msg.Side,
		"admin_anchor", admin.String(),
		"subscriber_anchor", subscriber.String(),
		"error", err,
	)
	if r.Reporter != nil {
		r.Reporter.Report(ctx, err, map[string]string{
			"direction":          string(msg.Side),
			"admin_anchor":       admin.String(),
			"subscriber_anchor":  subscriber.String(),
			"subscriber_user_id": strconv.FormatInt(link.SubscriberUserID, 10),
		})
	}

	return fmt.Errorf("%w: %w", ErrLinkNotSaved, err)
}

type LinkService interface {
	Find(ctx context.Context, chatID int64, messageID int, d e.Direction) (e.MessageLink, bool, error)
	Create(ctx context.Context, link e.MessageLink) error
}

// Copier copies a message between chats and returns the id of the copy.
// replyTo is the message id in the destination chat to reply to, 0 for none.
type Copier interface {
	CopyMessage(ctx context.Context, fromChatID, toChatID int64, messageID, replyTo int) (int, error)
}

type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}
