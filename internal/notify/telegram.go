// Package notify escalates high-priority messages to staff over Telegram.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"frontdesk/internal/bus"
	"frontdesk/internal/domain"
	"frontdesk/internal/intent"
)

const (
	maxPreviewRunes = 500
	maxSendRetries  = 3
)

// Bot is the subset of *tgbotapi.BotAPI the notifier uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig configures escalation.
type TelegramConfig struct {
	Token       string
	ChatIDs     []int64
	MinPriority domain.Priority // default critical
	ParseMode   string          // empty sends plain text
	Bot         Bot             // overrides Token
	Logger      *slog.Logger
}

// Telegram posts a summary of each routed message at or above MinPriority to every chat.
type Telegram struct {
	bot         Bot
	chatIDs     []int64
	minPriority domain.Priority
	parseMode   string
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger
}

// NewTelegram connects the bot (unless cfg.Bot is set) and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("telegram escalation: at least one chat id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinPriority == "" {
		cfg.MinPriority = domain.PriorityCritical
	}
	if _, ok := domain.ParsePriority(string(cfg.MinPriority)); !ok {
		return nil, fmt.Errorf("telegram escalation: unknown priority %q", cfg.MinPriority)
	}

	bot := cfg.Bot
	if bot == nil {
		if cfg.Token == "" {
			return nil, errors.New("telegram escalation: token is required")
		}
		api, err := tgbotapi.NewBotAPI(cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram bot init: %w", err)
		}
		cfg.Logger.Info("telegram escalation bot connected", "username", api.Self.UserName)
		bot = api
	}

	return &Telegram{
		bot:         bot,
		chatIDs:     cfg.ChatIDs,
		minPriority: cfg.MinPriority,
		parseMode:   cfg.ParseMode,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt+1) * time.Second },
		logger:      cfg.Logger,
	}, nil
}

// Notify is a bus.EventHandler. Run it behind a bus.Queue: it blocks on the network.
func (t *Telegram) Notify(e bus.Event) {
	if e.Type != bus.EventMessageRouted || e.Routed == nil {
		return
	}
	if e.Routed.Priority.Rank() < t.minPriority.Rank() {
		return
	}
	text := Summary(*e.Routed)
	for _, chatID := range t.chatIDs {
		if err := t.send(chatID, text); err != nil {
			t.logger.Error("escalation failed", "chat", chatID, "err", err)
			continue
		}
		t.logger.Info("escalation sent", "chat", chatID, "priority", e.Routed.Priority, "intent", e.Routed.Classification.Intent)
	}
}

// send retries transient failures with backoff, longer on rate limiting.
func (t *Telegram) send(chatID int64, text string) error {
	var err error
	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = t.parseMode
		if attempt > 0 {
			msg.ParseMode = ""
		}
		if _, err = t.bot.Send(msg); err == nil {
			return nil
		}
		if attempt == maxSendRetries {
			break
		}
		wait := t.backoff(attempt)
		if s := err.Error(); strings.Contains(s, "Too Many Requests") || strings.Contains(s, "429") {
			wait *= 3
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", wait, "attempt", attempt+1)
		time.Sleep(wait)
	}
	return fmt.Errorf("after %d attempts: %w", maxSendRetries+1, err)
}

// Summary renders the escalation text for a routed message.
func Summary(m domain.RoutedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s, %.1f)\n",
		strings.ToUpper(string(m.Priority)),
		m.Classification.Intent,
		intent.Describe(m.Classification.Intent),
		m.Classification.Confidence,
	)
	fmt.Fprintf(&b, "Channel: %s\n", m.Message.Channel)
	if m.Message.SenderName != "" {
		fmt.Fprintf(&b, "From: %s (%s)\n", m.Message.SenderName, m.Message.Sender)
	} else {
		fmt.Fprintf(&b, "From: %s\n", m.Message.Sender)
	}
	if m.MessageID != 0 {
		fmt.Fprintf(&b, "Message: #%d\n", m.MessageID)
	}
	if text := preview(m.Message.ClassifiableText()); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	return b.String()
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxPreviewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxPreviewRunes]) + "…"
}
