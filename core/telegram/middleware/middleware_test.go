package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stockbot/core/config"
)

func newContext(t *testing.T, userID int64, text string) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	return bot.NewContext(tele.Update{
		ID: 1,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func TestRateLimitDropsBurstsPerSender(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts := RateLimitOptionsFrom(coreconfig.RateLimitConfig{IntervalMS: 1000})
	opts.Now = func() time.Time { return now }

	calls := 0
	h := RateLimit(opts)(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newContext(t, 1, "a")))
	require.NoError(t, h(newContext(t, 1, "b")))
	require.NoError(t, h(newContext(t, 2, "c")))
	require.Equal(t, 2, calls)

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, h(newContext(t, 1, "d")))
	require.Equal(t, 3, calls)
}

func TestRateLimitExclusions(t *testing.T) {
	opts := RateLimitOptionsFrom(coreconfig.RateLimitConfig{
		IntervalMS:     1000,
		ExcludeUpdates: []string{coreconfig.UpdateMessage},
	})
	calls := 0
	h := RateLimit(opts)(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(newContext(t, 1, "x")))
	}
	require.Equal(t, 3, calls)
}

func TestRecoverReturnsError(t *testing.T) {
	h := Recover(func(tele.Context) error { panic("boom") })
	err := h(newContext(t, 1, "x"))
	require.ErrorContains(t, err, "boom")
}

func TestLoggingPassesThrough(t *testing.T) {
	called := false
	h := Logging(func(tele.Context) error { called = true; return nil })
	require.NoError(t, h(newContext(t, 1, "1234")))
	require.True(t, called)
}
