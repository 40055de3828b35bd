// Package notify sends alert changes to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pmintel/internal/config"
	"pmintel/internal/dashboard"
	"pmintel/internal/refresh"
)

// sender is the part of *tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client sends a message whenever the set of alerts differs from the last
// one delivered.
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	mu       sync.Mutex
	lastSent string
}

// NewClient connects to the Bot API with the configured token.
func NewClient(cfg config.TelegramConfig) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newClient(bot, cfg.ChatID, cfg.MaxRetries, cfg.RetryDelayBase.Duration)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         id,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Notify sends the snapshot's alerts if they changed since the last
// delivered message. A cleared alert set is announced once.
func (c *Client) Notify(ctx context.Context, snap *refresh.Snapshot) error {
	key := alertKey(snap)

	c.mu.Lock()
	defer c.mu.Unlock()

	if key == c.lastSent {
		slog.Debug("alerts unchanged, not notifying", "alerts", len(snap.Alerts))
		return nil
	}

	msg := tgbotapi.NewMessage(c.chatID, formatMessage(snap))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if err := c.send(ctx, msg); err != nil {
		return err
	}
	c.lastSent = key
	slog.Info("telegram alert sent", "alerts", len(snap.Alerts))
	return nil
}

func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("telegram send failed", "attempt", i+1, "error", err)

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sending telegram message: %w", ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("sending telegram message after %d attempts: %w", c.maxRetries, lastErr)
}

// alertKey identifies an alert set by market and signal, ignoring order
// and price movement.
func alertKey(snap *refresh.Snapshot) string {
	parts := make([]string, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		parts = append(parts, a.ID+"="+string(a.Signal))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func formatMessage(snap *refresh.Snapshot) string {
	var b strings.Builder
	b.WriteString("🧠 *" + escapeMarkdownV2(dashboard.Title) + "*\n\n")

	if len(snap.Alerts) == 0 {
		b.WriteString(escapeMarkdownV2(dashboard.NoAlerts))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("⚠️ *Alerts*\n")
	for _, a := range snap.Alerts {
		line := escapeMarkdownV2(dashboard.AlertLine(a))
		if a.URL != "" {
			line += fmt.Sprintf(" [open](%s)", escapeURL(a.URL))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n_%s_\n", escapeMarkdownV2(
		fmt.Sprintf("%s · %s", snap.Strategy, snap.CompletedAt.Format("2006-01-02 15:04:05"))))
	return b.String()
}

// escapeMarkdownV2 escapes the characters Telegram reserves in MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeURL escapes the characters reserved inside a MarkdownV2 link target.
func escapeURL(u string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(u)
}
