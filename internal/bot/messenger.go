package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
)

const parseModeHTML = "HTML"

// Messenger turns payloads into Bot API messages and sends them.
type Messenger struct {
	api     telegramAPI
	timeout time.Duration
	log     *slog.Logger
}

// NewMessenger creates a Messenger. A non-positive timeout falls back to 10s.
func NewMessenger(api telegramAPI, timeout time.Duration, log *slog.Logger) *Messenger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Messenger{api: api, timeout: timeout, log: log}
}

// Deliver sends p to chatID. Failures are returned as *apperr.DeliveryError;
// Permanent is set when Telegram refuses the chat for good.
func (m *Messenger) Deliver(ctx context.Context, chatID int64, p model.Payload) error {
	msg, err := buildMessage(chatID, p)
	if err != nil {
		return &apperr.DeliveryError{ChatID: chatID, Err: err}
	}
	_, err = bounded(ctx, m.timeout, func() (tgbotapi.Message, error) {
		return m.api.Send(msg)
	})
	if err != nil {
		return &apperr.DeliveryError{ChatID: chatID, Permanent: isForbidden(err), Err: err}
	}
	return nil
}

func buildMessage(chatID int64, p model.Payload) (tgbotapi.Chattable, error) {
	markup := buttonsMarkup(p.Buttons)

	switch p.Kind {
	case model.PayloadText:
		msg := tgbotapi.NewMessage(chatID, p.Body)
		msg.ParseMode = parseModeHTML
		msg.DisableWebPagePreview = true
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg, nil
	case model.PayloadPhoto:
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(p.Body))
		msg.Caption = p.Caption
		msg.ParseMode = parseModeHTML
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg, nil
	case model.PayloadVideo:
		msg := tgbotapi.NewVideo(chatID, tgbotapi.FileID(p.Body))
		msg.Caption = p.Caption
		msg.ParseMode = parseModeHTML
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg, nil
	case model.PayloadDocument:
		msg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(p.Body))
		msg.Caption = p.Caption
		msg.ParseMode = parseModeHTML
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", p.Kind)
	}
}

// buttonsMarkup lays buttons out one per row. It returns nil when there are none.
func buttonsMarkup(buttons []model.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(btn.Label, btn.URL)))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// isForbidden reports whether Telegram answered 403: the bot was blocked or
// the account is gone.
func isForbidden(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden
	}
	return strings.Contains(err.Error(), "Forbidden")
}
