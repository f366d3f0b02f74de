// Package telegram connects the dispatcher to the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/dispatch"
	"github.com/m3rciful/stockbot/core/logger"
	"github.com/m3rciful/stockbot/core/telegram/keyboard"
	"github.com/m3rciful/stockbot/core/telegram/middleware"
	"github.com/m3rciful/stockbot/core/telegram/sender"
)

// msgTooFast answers an update dropped by the rate limiter.
const msgTooFast = "Too fast. Please wait a moment and resend that message."

// Options controls the transport.
type Options struct {
	Sender sender.Options
	HTTP   HTTPOptions
	// Buffer is the capacity of the event channel.
	Buffer int
	// Offline builds the bot without contacting the API. Used in tests.
	Offline bool
	// APIURL overrides the Bot API endpoint.
	APIURL string
}

// Transport turns Telegram messages into dispatch events and delivers replies.
// Updates are processed synchronously so events leave in arrival order.
type Transport struct {
	cfg      *coreconfig.Config
	bot      *tele.Bot
	out      *sender.Sender
	commands []dispatch.Command

	events  chan dispatch.Event
	stopped chan struct{}
}

// New builds the bot, its middleware chain and the outbound sender.
func New(cfg *coreconfig.Config, commands []dispatch.Command, opts Options) (*Transport, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config")
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.HTTP.ClientTimeout <= 0 {
		opts.HTTP.ClientTimeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds)*time.Second + 20*time.Second
	}

	t := &Transport{
		cfg:      cfg,
		commands: commands,
		events:   make(chan dispatch.Event, opts.Buffer),
		stopped:  make(chan struct{}),
	}

	start := time.Now()
	settings := tele.Settings{
		Token:       cfg.Telegram.Token,
		Synchronous: true,
		Offline:     opts.Offline,
		OnError:     t.onError,
		URL:         opts.APIURL,
	}
	if !opts.Offline {
		settings.Poller = buildPoller(cfg)
		settings.Client = NewHTTPClient(opts.HTTP)
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	t.bot = bot
	t.out = sender.New(opts.Sender)

	bot.Use(middleware.Recover)
	if rl := middleware.RateLimitOptionsFrom(cfg.RateLimit); rl.Interval > 0 {
		rl.OnLimited = t.onLimited
		bot.Use(middleware.RateLimit(rl))
	}
	bot.Use(middleware.Logging)
	bot.Handle(tele.OnText, t.onText)

	logger.TWire.Info("bot ready",
		slog.String("event", "tg.init"),
		slog.String("status", "ok"),
		slog.String("mode_tg", cfg.Telegram.RunMode),
		slog.Duration("duration", logger.Took(start)),
	)
	return t, nil
}

// Events returns the inbound stream. It is closed when Run returns.
func (t *Transport) Events() <-chan dispatch.Event {
	return t.events
}

// Run receives updates until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.events)

	t.prepare()

	done := make(chan struct{})
	go func() {
		t.bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		// unblock a handler waiting on a full event channel before stopping
		close(t.stopped)
		t.bot.Stop()
		<-done
	case <-done:
		close(t.stopped)
	}
	logger.TG.Info("bot stopped",
		slog.String("event", "tg.stop"),
		slog.String("status", "ok"),
	)
	return nil
}

// Close flushes queued replies and stops the sender.
func (t *Transport) Close() {
	t.out.Close()
	if n := t.out.ErrorCount(); n > 0 {
		logger.Warn(context.Background(), "tg.sender", "tg.send",
			slog.String("status", "fail"),
			slog.Uint64("count", n),
		)
	}
}

func (t *Transport) prepare() {
	if t.cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		if err := t.bot.RemoveWebhook(false); err != nil {
			logger.TWire.Warn("webhook cleanup failed",
				slog.String("event", "tg.delete_webhook"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	if err := t.bot.SetCommands(commandMenu(t.commands)); err != nil {
		logger.TWire.Warn("command menu not set",
			slog.String("event", "tg.set_commands"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (t *Transport) onText(c tele.Context) error {
	chat, msg := c.Chat(), c.Message()
	if chat == nil || msg == nil {
		return nil
	}
	ev := dispatch.Event{
		ConversationID: strconv.FormatInt(chat.ID, 10),
		ActorID:        actorID(c.Sender(), chat),
		Text:           msg.Text,
		Timestamp:      msg.Time(),
	}
	select {
	case t.events <- ev:
	case <-t.stopped:
	}
	return nil
}

// onLimited tells the sender its message was dropped. Any open keyboard stays.
func (t *Transport) onLimited(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	to := tele.ChatID(chat.ID)
	return t.out.Submit(context.Background(), chat.ID, "sendMessage", func() error {
		_, err := t.bot.Send(to, msgTooFast)
		return err
	})
}

// SendReply queues the reply on the chat's sender lane.
func (t *Transport) SendReply(ctx context.Context, r dispatch.Reply) error {
	chatID, err := strconv.ParseInt(r.ConversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: conversation id %q: %w", r.ConversationID, err)
	}
	to := tele.ChatID(chatID)
	markup := keyboard.Options(r.Options)

	if r.Attachment != nil {
		name, data := r.Attachment.Name, r.Attachment.Data
		return t.out.Submit(ctx, chatID, "sendDocument", func() error {
			doc := &tele.Document{
				File:     tele.FromReader(bytes.NewReader(data)),
				FileName: name,
				MIME:     "text/csv",
				Caption:  r.Text,
			}
			_, err := t.bot.Send(to, doc, markup)
			return err
		})
	}
	text := r.Text
	return t.out.Submit(ctx, chatID, "sendMessage", func() error {
		_, err := t.bot.Send(to, text, markup)
		return err
	})
}

func (t *Transport) onError(err error, c tele.Context) {
	attrs := []any{
		slog.String("event", "tg.handler"),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	}
	if c != nil && c.Chat() != nil {
		attrs = append(attrs, slog.Int64("conversation_id", c.Chat().ID))
	}
	logger.TG.Error("handler failed", attrs...)
}

func actorID(user *tele.User, chat *tele.Chat) string {
	if user != nil {
		return strconv.FormatInt(user.ID, 10)
	}
	return strconv.FormatInt(chat.ID, 10)
}

// commandMenu maps the dispatcher's command table onto the bot menu.
func commandMenu(cmds []dispatch.Command) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		desc := c.Description
		if c.Privileged {
			desc += " (admin)"
		}
		out = append(out, tele.Command{Text: c.Name, Description: desc})
	}
	return out
}
