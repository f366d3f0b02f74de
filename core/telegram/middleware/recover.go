package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stockbot/core/logger"
)

// Recover turns a handler panic into an error so the update loop keeps running.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				attrs := []any{
					slog.String("event", "tg.panic"),
					slog.String("status", "fail"),
					slog.String("err_code", "INTERNAL"),
					slog.Any("cause", r),
					slog.String("stack", string(debug.Stack())),
				}
				if chat := c.Chat(); chat != nil {
					attrs = append(attrs, slog.Int64("conversation_id", chat.ID))
				}
				logger.TG.Error("panic recovered", attrs...)
				err = fmt.Errorf("telegram: handler panic: %v", r)
			}
		}()
		return next(c)
	}
}
