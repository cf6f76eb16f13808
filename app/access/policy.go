package access

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable means the policy could not be evaluated. The chat is denied.
var ErrUnavailable = errors.New("access policy unavailable")

// SubscriberPolicy gates the subscriber handler chain. A subscriber talks to
// the bot in a private chat, so the chat id is the subscriber's user id. The
// admin chat and group chats never pass, blocked users never pass, and any
// error while checking denies the chat.
type SubscriberPolicy struct {
	// Users answers whether a user is blocked
	Users BlockChecker

	// AdminChatID is the chat served by the admin chain
	AdminChatID int64
}

// IsAllowed reports whether the subscriber chain may handle an update from
// chatID. On error the result is always false.
func (p *SubscriberPolicy) IsAllowed(ctx context.Context, chatID int64) (bool, error) {
	if chatID == p.AdminChatID {
		return false, nil
	}

	userID, ok := subscriberUserID(chatID)
	if !ok {
		return false, nil
	}

	blocked, err := p.Users.IsBlocked(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking user %d: %w: %w", userID, ErrUnavailable, err)
	}

	return !blocked, nil
}

// subscriberUserID derives the user identity of a private chat. Telegram gives
// private chats the id of the user and negative ids to groups and channels.
func subscriberUserID(chatID int64) (int64, bool) {
	if chatID <= 0 {
		return 0, false
	}
	return chatID, true
}

// AdminPolicy is a static allow-list of admin chats.
type AdminPolicy struct {
	chats map[int64]struct{}
}

func NewAdminPolicy(chatIDs ...int64) *AdminPolicy {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}
	return &AdminPolicy{chats: chats}
}

func (p *AdminPolicy) IsAllowed(chatID int64) bool {
	_, ok := p.chats[chatID]
	return ok
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, userID int64) (bool, error)
}
