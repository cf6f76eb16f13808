package entities

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by stores when an insert violates a unique constraint.
var ErrAlreadyExists = errors.New("already exists")

// Anchor is a message location used as a lookup key for links.
type Anchor struct {
	ChatID    int64
	MessageID int
}

func (a Anchor) String() string {
	return fmt.Sprintf("%d/%d", a.ChatID, a.MessageID)
}

// Direction selects which side of a link is matched during lookup.
type Direction string

const (
	// DirectionAdmin matches links by the admin side message
	DirectionAdmin Direction = "admin"

	// DirectionSubscriber matches links by the subscriber side message
	DirectionSubscriber Direction = "subscriber"
)

func (d Direction) Valid() bool {
	return d == DirectionAdmin || d == DirectionSubscriber
}

// Opposite returns the partner side.
func (d Direction) Opposite() Direction {
	if d == DirectionAdmin {
		return DirectionSubscriber
	}
	return DirectionAdmin
}

// MessageLink pairs a subscriber side message with its admin side copy (or the
// other way around). Links are never updated or deleted.
type MessageLink struct {
	SubscriberUserID    int64
	SubscriberChatID    int64
	SubscriberMessageID int
	AdminChatID         int64
	AdminMessageID      int
}

// Anchor returns the location of the link's message on the given side.
func (l MessageLink) Anchor(d Direction) Anchor {
	if d == DirectionAdmin {
		return Anchor{ChatID: l.AdminChatID, MessageID: l.AdminMessageID}
	}
	return Anchor{ChatID: l.SubscriberChatID, MessageID: l.SubscriberMessageID}
}

// NextLeg builds the link for a message that arrived on side d and was copied
// to the partner side of l. Chats and the subscriber identity are taken from l.
func (l MessageLink) NextLeg(d Direction, originMessageID, copyMessageID int) MessageLink {
	next := MessageLink{
		SubscriberUserID: l.SubscriberUserID,
		SubscriberChatID: l.SubscriberChatID,
		AdminChatID:      l.AdminChatID,
	}

	if d == DirectionAdmin {
		next.AdminMessageID = originMessageID
		next.SubscriberMessageID = copyMessageID
	} else {
		next.SubscriberMessageID = originMessageID
		next.AdminMessageID = copyMessageID
	}

	return next
}
