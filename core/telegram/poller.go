package telegram

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stockbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// buildPoller selects the webhook or long poller from config and drops every
// update that is not a plain message.
func buildPoller(cfg *coreconfig.Config) tele.Poller {
	var base tele.Poller
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		base = &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	} else {
		timeout := defaultLongPollTimeout
		if cfg.Telegram.LongPollTimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
		}
		base = &tele.LongPoller{Timeout: timeout}
	}
	return tele.NewMiddlewarePoller(base, acceptUpdate)
}

func acceptUpdate(u *tele.Update) bool {
	return u.Message != nil && u.Message.Chat != nil
}
