package entities

import (
	"fmt"
	"strings"
	"time"
)

// User is a subscriber known to the bot. ID is the Telegram user id, which is
// also the id of the subscriber's private chat with the bot.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBlocked bool
	UpdatedAt time.Time
}

// DisplayName returns "First Last (@username)" omitting empty parts.
func (u User) DisplayName() string {
	var sb strings.Builder

	if u.FirstName != "" {
		sb.WriteString(u.FirstName)
	}

	if u.LastName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
		}
		sb.WriteString(u.LastName)
	}

	if u.Username != "" {
		if sb.Len() > 0 {
			sb.WriteString(" (@")
			sb.WriteString(u.Username)
			sb.WriteRune(')')
		} else {
			sb.WriteRune('@')
			sb.WriteString(u.Username)
		}
	}

	if sb.Len() == 0 {
		return fmt.Sprintf("%d", u.ID)
	}

	return sb.String()
}

// UserBlockFilter selects users by their block status.
type UserBlockFilter string

const (
	UserBlockFilterAll       UserBlockFilter = "all"
	UserBlockFilterBlocked   UserBlockFilter = "blocked"
	UserBlockFilterUnblocked UserBlockFilter = "unblocked"
)

// ParseUserBlockFilter parses a filter name, empty string means all users.
func ParseUserBlockFilter(s string) (UserBlockFilter, error) {
	switch f := UserBlockFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return UserBlockFilterAll, nil
	case UserBlockFilterAll, UserBlockFilterBlocked, UserBlockFilterUnblocked:
		return f, nil
	default:
		return "", fmt.Errorf("unknown user filter %q, expected one of: all, blocked, unblocked", s)
	}
}

// Match reports whether a user with the given block status passes the filter.
func (f UserBlockFilter) Match(blocked bool) bool {
	switch f {
	case UserBlockFilterBlocked:
		return blocked
	case UserBlockFilterUnblocked:
		return !blocked
	default:
		return true
	}
}
