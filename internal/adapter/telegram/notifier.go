// Package telegram sends discharge-start alerts to a configured chat.
package telegram

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// Notifier posts an alert message when a monitor starts discharging.
// It implements snapshot.Notifier.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewNotifier authenticates against the Bot API.
func NewNotifier(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName, "chat_id", chatID)
	return &Notifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// NotifyDischargeStart sends one alert per newly discharging monitor.
// Delivery failures are logged, not returned; alerting must never stall the
// snapshot loop.
func (n *Notifier) NotifyDischargeStart(monitors []*domain.Monitor) {
	for _, m := range monitors {
		msg := tgbotapi.NewMessage(n.chatID, formatDischargeAlert(m))
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn("telegram alert failed",
				"monitor", m.ID(),
				"error", err,
			)
		}
	}
}

func formatDischargeAlert(m *domain.Monitor) string {
	text := fmt.Sprintf("⚠️ *%s* started discharging", m.Name())
	if wc := m.Watercourse(); wc != "" {
		text += fmt.Sprintf(" into %s", wc)
	}
	if ev, err := m.CurrentEvent(); err == nil {
		text += fmt.Sprintf("\nStarted: %s", ev.Start().Format(time.RFC1123))
	}
	return text
}
