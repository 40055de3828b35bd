package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmintel/internal/market"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

type fakeBot struct {
	failures int
	sent     []tgbotapi.MessageConfig
	attempts int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func ptr(v float64) *float64 { return &v }

func snapWith(alerts ...strategy.Scored) *refresh.Snapshot {
	return &refresh.Snapshot{
		Strategy:    "news_biased",
		CompletedAt: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		Alerts:      alerts,
	}
}

func alert(id, name string, sig strategy.Signal, ref float64) strategy.Scored {
	return strategy.Scored{
		Record:    market.Record{ID: id, Name: name, Reference: ref, URL: "https://example.com/" + id},
		Estimated: ptr(0.55),
		Gap:       ptr(0.55 - ref),
		Signal:    sig,
	}
}

func newTestClient(t *testing.T, bot *fakeBot) *Client {
	t.Helper()
	c, err := newClient(bot, "12345", 3, time.Millisecond)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := newClient(&fakeBot{}, "not-a-number", 3, time.Second)
	assert.Error(t, err)
}

func TestNotify_OnlyOnChange(t *testing.T) {
	bot := &fakeBot{}
	c := newTestClient(t, bot)
	ctx := context.Background()

	// Nothing to announce before any alert has been sent.
	require.NoError(t, c.Notify(ctx, snapWith()))
	assert.Empty(t, bot.sent)

	btc := alert("static-2", "Bitcoin > $100k", strategy.Buy, 0.33)
	require.NoError(t, c.Notify(ctx, snapWith(btc)))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(12345), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, bot.sent[0].ParseMode)

	// Same market and signal at a new price is not a change.
	moved := alert("static-2", "Bitcoin > $100k", strategy.Buy, 0.30)
	require.NoError(t, c.Notify(ctx, snapWith(moved)))
	assert.Len(t, bot.sent, 1)

	flipped := alert("static-2", "Bitcoin > $100k", strategy.Sell, 0.80)
	require.NoError(t, c.Notify(ctx, snapWith(flipped)))
	assert.Len(t, bot.sent, 2)

	require.NoError(t, c.Notify(ctx, snapWith()))
	require.Len(t, bot.sent, 3)
	assert.Contains(t, bot.sent[2].Text, "No strong opportunities right now")

	require.NoError(t, c.Notify(ctx, snapWith()))
	assert.Len(t, bot.sent, 3)
}

func TestNotify_Retries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c := newTestClient(t, bot)

	require.NoError(t, c.Notify(context.Background(), snapWith(alert("a", "A", strategy.Buy, 0.2))))
	assert.Equal(t, 3, bot.attempts)
	assert.Len(t, bot.sent, 1)
}

func TestNotify_GivesUp(t *testing.T) {
	bot := &fakeBot{failures: 5}
	c := newTestClient(t, bot)
	snap := snapWith(alert("a", "A", strategy.Buy, 0.2))

	err := c.Notify(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")

	// The failed set is retried on the next cycle.
	bot.failures = 0
	require.NoError(t, c.Notify(context.Background(), snap))
	assert.Len(t, bot.sent, 1)
}

func TestFormatMessage(t *testing.T) {
	msg := formatMessage(snapWith(alert("static-2", "Bitcoin > $100k", strategy.Buy, 0.33)))

	assert.Contains(t, msg, `Bitcoin \> $100k → BUY \| Market: 0\.33 \| Estimated: 0\.55 \| Gap: 0\.22`)
	assert.Contains(t, msg, "[open](https://example.com/static-2)")
	assert.Contains(t, msg, `news\_biased`)
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"1.5", `1\.5`},
		{"a_b*c", `a\_b\*c`},
		{"(x) [y]", `\(x\) \[y\]`},
		{"-0.10!", `\-0\.10\!`},
	}
	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("escapeMarkdownV2(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
