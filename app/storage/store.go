package storage

import (
	"context"
	"fmt"
	"strings"

	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

// Store is implemented by every storage backend.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateLink(ctx context.Context, link e.MessageLink) error
	FindLink(ctx context.Context, anchor e.Anchor, d e.Direction) (e.MessageLink, bool, error)

	SaveUser(ctx context.Context, user e.User) error
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error)
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)

// Open picks a backend by database url: postgres:// and postgresql:// urls
// open PostgreSQL, anything else is a sqlite file path with optional
// sqlite:// prefix.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)

	switch {
	case url == "":
		return nil, fmt.Errorf("database url is empty")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url)
	default:
		return NewSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	}
}

// anchorColumns returns the columns matched by a lookup in direction d.
func anchorColumns(d e.Direction) (chatColumn, messageColumn string, err error) {
	switch d {
	case e.DirectionAdmin:
		return "admin_chat_id", "admin_message_id", nil
	case e.DirectionSubscriber:
		return "subscriber_chat_id", "subscriber_message_id", nil
	default:
		return "", "", fmt.Errorf("unknown link direction %q", d)
	}
}

const linkColumns = `subscriber_user_id, subscriber_chat_id, subscriber_message_id, admin_chat_id, admin_message_id`
