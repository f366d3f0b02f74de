package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/logger"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds that bypass the limit ("message", "callback").
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// RateLimitOptionsFrom maps config onto options. A zero interval disables the limit.
func RateLimitOptionsFrom(cfg coreconfig.RateLimitConfig) RateLimitOptions {
	ex := make(map[string]struct{}, len(cfg.ExcludeUpdates))
	for _, kind := range cfg.ExcludeUpdates {
		ex[kind] = struct{}{}
	}
	return RateLimitOptions{
		Interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		Exclude:  ex,
	}
}

// RateLimit drops updates from a sender that arrive within Interval of the
// previous accepted one.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}

			t := now()
			mu.Lock()
			last, seen := lastSeen[user.ID]
			limited := seen && t.Sub(last) < opts.Interval
			if !limited {
				lastSeen[user.ID] = t
				// entries older than the interval no longer matter
				if len(lastSeen) > 4096 {
					for id, ts := range lastSeen {
						if t.Sub(ts) >= opts.Interval {
							delete(lastSeen, id)
						}
					}
				}
			}
			mu.Unlock()

			if !limited {
				return next(c)
			}
			logger.TG.Warn("rate limited",
				slog.String("event", "tg.rate_limit"),
				slog.String("status", "rate_limited"),
				slog.Int64("actor_id", user.ID),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return coreconfig.UpdateCallback
	case u.Message != nil:
		return coreconfig.UpdateMessage
	default:
		return "other"
	}
}
