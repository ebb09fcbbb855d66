package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// dismissCallbackData correlates the OK button with the dismiss handler.
// It is an opaque control id, deliberately not tied to a task id.
const dismissCallbackData = "dismiss_notify"

// Notifier delivers "generation ready" messages to the user's chat. The
// message carries an OK button that removes it when pressed.
type Notifier struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, log *slog.Logger) *Notifier {
	return &Notifier{api: api, log: log}
}

func (n *Notifier) NotifyComplete(ctx context.Context, userID, label string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", userID, err)
	}

	text := fmt.Sprintf(
		"✅ <b>Готово!</b>\n\n🎨 Шаблон: <b>%s</b>\nОткрой приложение → вкладка <b>«Мои»</b>",
		label,
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("OK  ✓", dismissCallbackData),
		),
	)

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
