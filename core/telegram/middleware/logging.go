// Package middleware holds the telebot middlewares shared by the transport.
package middleware

import (
	"context"
	"log/slog"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stockbot/core/logger"
)

// Logging records one receipt line per update. Message text may hold a PIN,
// so only its length is logged.
func Logging(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !logger.ShouldSampleDebug() {
			return next(c)
		}
		upd := c.Update()
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.Int("update_id", upd.ID),
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs,
				slog.Int64("conversation_id", chat.ID),
				slog.String("chat_type", string(chat.Type)),
			)
		}
		if user := c.Sender(); user != nil {
			attrs = append(attrs, slog.Int64("actor_id", user.ID))
		}
		if text := c.Text(); text != "" {
			attrs = append(attrs, slog.Int("payload_len", utf8.RuneCountInString(text)))
		}
		logger.TG.LogAttrs(context.Background(), slog.LevelDebug, "update received",
			append(attrs, slog.String("event", "tg.update"))...)
		return next(c)
	}
}
