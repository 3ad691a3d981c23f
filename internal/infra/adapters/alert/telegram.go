// Package alert delivers operator notices, such as a degraded redemption
// store, to a Telegram chat.
package alert

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"golden-ticket/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*TelegramAlerter)(nil)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramAlerter struct {
	bot    sender
	chatID int64
	prefix string
}

func NewTelegramAlerter(token string, chatID int64, prefix string) (*TelegramAlerter, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatID: chatID, prefix: prefix}, nil
}

// Alert sends text to the chat. tgbotapi has no context support, so ctx is
// only checked before sending.
func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.prefix != "" {
		text = a.prefix + " " + text
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram alert: %w", err)
	}
	return nil
}

var _ adapter.Alerter = (*LogAlerter)(nil)

// LogAlerter writes alerts to the log when no chat is configured.
type LogAlerter struct {
	log *zerolog.Logger
}

func NewLogAlerter(logger *zerolog.Logger) *LogAlerter {
	l := logger.With().Str("component", "Alerter").Logger()
	return &LogAlerter{log: &l}
}

func (a *LogAlerter) Alert(ctx context.Context, text string) error {
	a.log.Warn().Str("alert", text).Msg("operator alert")
	return nil
}
