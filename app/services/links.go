package services

import (
	"context"
	"errors"
	"fmt"

	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

var (
	// ErrConflict means a link with the same admin or subscriber anchor exists,
	// i.e. the message was copied twice
	ErrConflict = errors.New("message link conflict")

	// ErrUnavailable means the storage could not serve the request
	ErrUnavailable = errors.New("storage unavailable")
)

// MessageLinkService creates and resolves links between subscriber messages
// and their admin chat copies. Links are append only, there is no way to
// update or delete them. Uniqueness of both anchors is enforced by the store,
// so concurrent creates for one anchor end up with a single winner and
// ErrConflict for everybody else.
type MessageLinkService struct {
	// Store is a store for message links
	Store LinkStore
}

// Create persists a new link. It fails with ErrConflict if either anchor is
// already linked and with ErrUnavailable on storage failure.
func (s *MessageLinkService) Create(ctx context.Context, link e.MessageLink) error {
	err := s.Store.CreateLink(ctx, link)
	if err == nil {
		return nil
	}

	admin, subscriber := link.Anchor(e.DirectionAdmin), link.Anchor(e.DirectionSubscriber)
	if errors.Is(err, e.ErrAlreadyExists) {
		return fmt.Errorf("creating link admin %s subscriber %s: %w: %w", admin, subscriber, ErrConflict, err)
	}

	return fmt.Errorf("creating link admin %s subscriber %s: %w: %w", admin, subscriber, ErrUnavailable, err)
}

// Find looks up the link whose d side is at chatID/messageID. Absence is not
// an error: found is false and the caller should ignore the message.
func (s *MessageLinkService) Find(ctx context.Context, chatID int64, messageID int, d e.Direction) (link e.MessageLink, found bool, err error) {
	if !d.Valid() {
		return e.MessageLink{}, false, fmt.Errorf("unknown link direction %q", d)
	}

	anchor := e.Anchor{ChatID: chatID, MessageID: messageID}
	link, found, err = s.Store.FindLink(ctx, anchor, d)
	if err != nil {
		return e.MessageLink{}, false, fmt.Errorf("finding %s link %s: %w: %w", d, anchor, ErrUnavailable, err)
	}

	return link, found, nil
}

type LinkStore interface {
	CreateLink(ctx context.Context, link e.MessageLink) error
	FindLink(ctx context.Context, anchor e.Anchor, d e.Direction) (e.MessageLink, bool, error)
}
