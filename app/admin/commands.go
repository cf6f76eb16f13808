package admin

import (
	"context"
	"fmt"
	"strings"

	e "nuclight.org/feedback-tg-bot/pkg/entities"
	"nuclight.org/feedback-tg-bot/pkg/logger"
)

// maxListLength keeps /users answers below the Telegram message size limit.
const maxListLength = 3500

const helpText = "Reply to a subscriber message with:\n" +
	"/block - stop relaying messages from the subscriber\n" +
	"/unblock - relay messages from the subscriber again\n\n" +
	"/users [all|blocked|unblocked] - list subscribers"

// Command is a bot command sent to the admin chat.
type Command struct {
	Name      string
	Args      string
	ChatID    int64
	MessageID int

	// ReplyTo is the message the command replies to, nil if none
	ReplyTo *e.Anchor
}

// Commands handles admin chat commands. Every command is answered with a
// text reply in the admin chat.
type Commands struct {
	Log    logger.Logger
	Links  LinkFinder
	Users  UserManager
	Sender TextSender
}

func (c *Commands) Handle(ctx context.Context, cmd Command) error {
	var (
		answer string
		err    error
	)

	switch cmd.Name {
	case "block":
		answer, err = c.setBlocked(ctx, cmd, true)
	case "unblock":
		answer, err = c.setBlocked(ctx, cmd, false)
	case "users":
		answer, err = c.listUsers(ctx, cmd)
	case "start", "help":
		answer = helpText
	default:
		answer = fmt.Sprintf("Unknown command /%s\n\n%s", cmd.Name, helpText)
	}

	if err != nil {
		c.Log.Error("handling admin command", "command", cmd.Name, "error", err)
		answer = "Something went wrong, try again later"
	}

	if sendErr := c.Sender.SendText(ctx, cmd.ChatID, cmd.MessageID, answer); sendErr != nil {
		return fmt.Errorf("answering /%s: %w", cmd.Name, sendErr)
	}

	return err
}

func (c *Commands) setBlocked(ctx context.Context, cmd Command, blocked bool) (string, error) {
	if cmd.ReplyTo == nil {
		return fmt.Sprintf("Reply to a subscriber message with /%s", cmd.Name), nil
	}

	link, found, err := c.Links.Find(ctx, cmd.ReplyTo.ChatID, cmd.ReplyTo.MessageID, e.DirectionAdmin)
	if err != nil {
		return "", fmt.Errorf("finding link: %w", err)
	}
	if !found {
		return "This message was not relayed from a subscriber", nil
	}

	userID := link.SubscriberUserID
	if blocked {
		err = c.Users.Block(ctx, userID)
	} else {
		err = c.Users.Unblock(ctx, userID)
	}
	if err != nil {
		return "", err
	}

	c.Log.Info("user block status changed", "user_id", userID, "blocked", blocked)

	if blocked {
		return fmt.Sprintf("User %d is blocked", userID), nil
	}
	return fmt.Sprintf("User %d is unblocked", userID), nil
}

func (c *Commands) listUsers(ctx context.Context, cmd Command) (string, error) {
	filter, err := e.ParseUserBlockFilter(cmd.Args)
	if err != nil {
		return err.Error(), nil
	}

	users, err := c.Users.ListUsers(ctx, filter)
	if err != nil {
		return "", err
	}

	if len(users) == 0 {
		return "No users found", nil
	}

	return formatUsers(users), nil
}

func formatUsers(users []e.User) string {
	var sb strings.Builder

	for i, u := range users {
		line := fmt.Sprintf("%d. %s, id %d", i+1, u.DisplayName(), u.ID)
		if u.IsBlocked {
			line += " [blocked]"
		}

		if sb.Len()+len(line) > maxListLength {
			fmt.Fprintf(&sb, "...and %d more", len(users)-i)
			break
		}

		sb.WriteString(line)
		sb.WriteRune('\n')
	}

	return strings.TrimRight(sb.String(), "\n")
}

type LinkFinder interface {
	Find(ctx context.Context, chatID int64, messageID int, d e.Direction) (e.MessageLink, bool, error)
}

type UserManager interface {
	Block(ctx context.Context, userID int64) error
	Unblock(ctx context.Context, userID int64) error
	ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error)
}

type TextSender interface {
	SendText(ctx context.Context, chatID int64, replyTo int, text string) error
}
