package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollingTimeout = 60

// API is a thin wrapper over the bot api with the calls the relay needs.
type API struct {
	bot *tgbotapi.BotAPI
}

func NewAPI(token string) (*API, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot api: %w", err)
	}

	return &API{bot: bot}, nil
}

func (a *API) Username() string {
	return a.bot.Self.UserName
}

// CopyMessage copies messageID from fromChatID to toChatID and returns the id
// of the copy. replyTo of 0 sends the copy without a reply.
func (a *API) CopyMessage(_ context.Context, fromChatID, toChatID int64, messageID, replyTo int) (int, error) {
	conf := tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID)
	conf.ReplyToMessageID = replyTo
	conf.AllowSendingWithoutReply = false

	res, err := a.bot.CopyMessage(conf)
	if err != nil {
		return 0, err
	}

	return res.MessageID, nil
}

func (a *API) SendText(_ context.Context, chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true

	_, err := a.bot.Send(msg)
	return err
}

// PollUpdates starts long polling, the channel is closed after StopPolling.
func (a *API) PollUpdates() tgbotapi.UpdatesChannel {
	conf := tgbotapi.NewUpdate(0)
	conf.Timeout = pollingTimeout

	return a.bot.GetUpdatesChan(conf)
}

func (a *API) StopPolling() {
	a.bot.StopReceivingUpdates()
}

// SetWebhook registers url as the webhook of the bot.
func (a *API) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("creating webhook config: %w", err)
	}

	if _, err := a.bot.Request(wh); err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}

	return nil
}

func (a *API) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	return a.bot.HandleUpdate(r)
}
