package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"nuclight.org/feedback-tg-bot/app/admin"
	"nuclight.org/feedback-tg-bot/app/relay"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
	"nuclight.org/feedback-tg-bot/pkg/logger"
)

const greeting = "Hi! Send me a message and it will be delivered to the team. " +
	"Answers will come here as replies."

// Client routes updates to the admin or the subscriber handler chain. Updates
// from the admin chat go to the admin chain, everything else goes through the
// subscriber access policy. Each update is handled on its own by one of the
// workers.
type Client struct {
	Log        logger.Logger
	WorkersNum int

	AdminPolicy      AdminPolicy
	SubscriberPolicy SubscriberPolicy

	Relay    RelayHandler
	Commands CommandHandler
	Users    UserRecorder
	Sender   TextSender
	Reporter Reporter
	Metrics  DeniedCounter

	wg sync.WaitGroup
}

func (c *Client) Start(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) error {
	if c.WorkersNum <= 0 {
		return fmt.Errorf("workers number must be greater than 0")
	}

	for i := 0; i < c.WorkersNum; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleUpdatesFromChan(ctx, updatesChan)
		}()
	}

	return nil
}

func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) handleUpdatesFromChan(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updatesChan:
			if !ok {
				return
			}
			err := c.handleUpdate(ctx, update)
			if err != nil {
				c.Log.Error("handling update", "tg_update_id", update.UpdateID, "error", err)
			}
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) (err error) {
	log := c.Log.With("tg_update_id", update.UpdateID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic", "error", r)
			c.Reporter.Report(ctx, fmt.Errorf("panic: %v", r), map[string]string{
				"tg_update_id": strconv.Itoa(update.UpdateID),
			})
			err = nil
		}
	}()

	msg := update.Message
	if msg == nil {
		log.Debug("update without message")
		return nil
	}

	if msg.Chat == nil {
		log.Warn("message chat is nil")
		return nil
	}

	log = log.With("tg_chat_id", msg.Chat.ID, "tg_message_id", msg.MessageID)

	if c.AdminPolicy.IsAllowed(msg.Chat.ID) {
		return c.handleAdminMessage(ctx, log, msg)
	}

	allowed, err := c.SubscriberPolicy.IsAllowed(ctx, msg.Chat.ID)
	if err != nil {
		c.Metrics.AccessDenied("unavailable")
		return fmt.Errorf("checking subscriber access: %w", err)
	}

	if !allowed {
		c.Metrics.AccessDenied("denied")
		log.Info("chat is not allowed")
		return nil
	}

	return c.handleSubscriberMessage(ctx, log, msg)
}

func (c *Client) handleAdminMessage(ctx context.Context, log logger.Logger, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		log.Info("admin command", "command", msg.Command())

		err := c.Commands.Handle(ctx, admin.Command{
			Name:      msg.Command(),
			Args:      msg.CommandArguments(),
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			ReplyTo:   takeReplyTo(msg),
		})
		if err != nil {
			return fmt.Errorf("handling admin command: %w", err)
		}

		return nil
	}

	outcome, err := c.Relay.HandleReply(ctx, relay.Message{
		Side:      e.DirectionAdmin,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		ReplyTo:   takeReplyTo(msg),
	})
	if err != nil {
		return fmt.Errorf("relaying admin message: %w", err)
	}

	log.Info("admin message handled", "outcome", outcome)

	return nil
}

func (c *Client) handleSubscriberMessage(ctx context.Context, log logger.Logger, msg *tgbotapi.Message) error {
	if msg.From != nil {
		err := c.Users.SaveUser(ctx, takeUser(msg.From))
		if err != nil {
			log.Warn("saving user", "tg_user_id", msg.From.ID, "error", err)
		}
	}

	if msg.IsCommand() && msg.Command() == "start" {
		err := c.Sender.SendText(ctx, msg.Chat.ID, 0, greeting)
		if err != nil {
			return fmt.Errorf("sending greeting: %w", err)
		}
		return nil
	}

	outcome, err := c.Relay.HandleSubscriberMessage(ctx, relay.Message{
		Side:      e.DirectionSubscriber,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		SenderID:  msg.Chat.ID,
		ReplyTo:   takeReplyTo(msg),
	})
	if err != nil {
		return fmt.Errorf("relaying subscriber message: %w", err)
	}

	log.Info("subscriber message handled", "outcome", outcome)

	return nil
}

func takeReplyTo(msg *tgbotapi.Message) *e.Anchor {
	reply := msg.ReplyToMessage
	if reply == nil {
		return nil
	}

	chatID := msg.Chat.ID
	if reply.Chat != nil {
		chatID = reply.Chat.ID
	}

	return &e.Anchor{ChatID: chatID, MessageID: reply.MessageID}
}

func takeUser(user *tgbotapi.User) e.User {
	return e.User{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.UserName,
	}
}

type AdminPolicy interface {
	IsAllowed(chatID int64) bool
}

type SubscriberPolicy interface {
	IsAllowed(ctx context.Context, chatID int64) (bool, error)
}

type RelayHandler interface {
	HandleReply(ctx context.Context, msg relay.Message) (relay.Outcome, error)
	HandleSubscriberMessage(ctx context.Context, msg relay.Message) (relay.Outcome, error)
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd admin.Command) error
}

type UserRecorder interface {
	SaveUser(ctx context.Context, user e.User) error
}

type TextSender interface {
	SendText(ctx context.Context, chatID int64, replyTo int, text string) error
}

type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

type DeniedCounter interface {
	AccessDenied(reason string)
}
