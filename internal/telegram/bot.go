package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot consumes Telegram updates for the mini-app side of the bot. Its only
// job here is the dismiss acknowledgement of completion notifications; the
// conversational flows live in the main bot process.
type Bot struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger) *Bot {
	return &Bot{api: api, log: log}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// handleCallback removes the notification the user acknowledged. Deleting a
// message that is already gone is fine, so pressing OK twice is a no-op.
func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Data != dismissCallbackData {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "Неизвестный выбор")); err != nil {
			b.log.Error("callback error", "err", err)
		}
		return
	}

	if cb.Message != nil {
		del := tgbotapi.NewDeleteMessage(cb.Message.Chat.ID, cb.Message.MessageID)
		if _, err := b.api.Request(del); err != nil {
			b.log.Debug("dismiss delete", "err", err)
		}
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}
