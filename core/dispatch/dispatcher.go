// Package dispatch turns inbound chat events into replies by walking the
// per-conversation state machine.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/stockbot/core/auth"
	"github.com/m3rciful/stockbot/core/feedback"
	"github.com/m3rciful/stockbot/core/inventory"
	"github.com/m3rciful/stockbot/core/logger"
	"github.com/m3rciful/stockbot/core/session"
)

// Event is one inbound message.
type Event struct {
	ConversationID string
	ActorID        string
	Text           string
	Timestamp      time.Time
}

// Attachment is a file sent along with a reply.
type Attachment struct {
	Name string
	Data []byte
}

// Reply is the single response to an Event.
type Reply struct {
	ConversationID string
	Text           string
	Options        []string
	Attachment     *Attachment
}

// Replier delivers replies back through the transport.
type Replier interface {
	SendReply(ctx context.Context, r Reply) error
}

// Config holds dispatcher thresholds.
type Config struct {
	LowStockThreshold int64
	AuditPageSize     int
}

const (
	maxAuditPage     = 100
	feedbackPageSize = 10
)

// Dispatcher owns the command grammar and the state machine transitions.
type Dispatcher struct {
	store    *inventory.Store
	feedback *feedback.Box
	sessions session.Manager
	gate     *auth.Gate
	cfg      Config
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used when events carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New wires a dispatcher over its collaborators.
func New(store *inventory.Store, box *feedback.Box, sessions session.Manager, gate *auth.Gate, cfg Config, opts ...Option) *Dispatcher {
	if cfg.AuditPageSize <= 0 {
		cfg.AuditPageSize = 10
	}
	d := &Dispatcher{
		store:    store,
		feedback: box,
		sessions: sessions,
		gate:     gate,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// outcome is the result of one step.
type outcome struct {
	text       string
	options    []string
	attachment *Attachment
	next       session.State
	// keep leaves the stored session exactly as it was.
	keep    bool
	status  string
	command string
	err     error
}

// Handle processes one event for its conversation and returns exactly one reply.
// Events of one conversation are serialized by the session lock.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) Reply {
	start := time.Now()
	unlock := d.sessions.Lock(ev.ConversationID)
	defer unlock()

	ctx = logger.WithConversation(ctx, ev.ConversationID, ev.ActorID)
	now := ev.Timestamp
	if now.IsZero() {
		now = d.now()
	}

	st := d.sessions.Get(ev.ConversationID)
	if st.Mode != session.ModeIdle && st.Stale(now, d.sessions.Timeout()) {
		logger.Session.InfoContext(ctx, "session expired",
			slog.String("event", "session.expire"),
			slog.String("status", "ok"),
			slog.String("mode", string(st.Mode)),
		)
		st.Reset()
	}
	d.gate.IsElevated(&st)
	prev := st.Mode

	out := d.step(ctx, ev, st)
	if !out.keep {
		out.next.LastActivity = now
		d.sessions.Set(ev.ConversationID, out.next)
	}
	d.logStep(ctx, prev, out, start)

	return Reply{
		ConversationID: ev.ConversationID,
		Text:           out.text,
		Options:        out.options,
		Attachment:     out.attachment,
	}
}

// Sweep expires stale sessions and drops elapsed PIN lockouts.
func (d *Dispatcher) Sweep(now time.Time) {
	d.sessions.ExpireStale(now)
	d.gate.Prune()
}

func (d *Dispatcher) logStep(ctx context.Context, prev session.Mode, out outcome, start time.Time) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("mode", string(prev)),
		slog.String("outcome", out.status),
		slog.Duration("duration", logger.Took(start)),
	}
	// input typed while a PIN is awaited is never logged, not even the command word
	if prev != session.ModeAwaitingPin && out.command != "" {
		attrs = append(attrs, slog.String("command", out.command))
	}
	if !out.keep {
		attrs = append(attrs, slog.String("next_mode", string(out.next.Mode)))
	}
	level := slog.LevelInfo
	if out.err != nil {
		code := ErrorCode(out.err)
		attrs = append(attrs, slog.String("err_code", code))
		if code == "STORAGE" || code == "INTERNAL" {
			level = slog.LevelError
			attrs[0] = slog.String("status", "fail")
			attrs = append(attrs, slog.String("err", out.err.Error()))
		}
	}
	logger.LogEvent(ctx, logger.Dispatch, level, "dispatch.handle", attrs...)
}

func (d *Dispatcher) step(ctx context.Context, ev Event, st session.State) outcome {
	in := parseInput(ev.Text)

	if in.name == "cancel" && len(in.args) == 0 {
		return d.cancel(st)
	}

	switch st.Mode {
	case session.ModeAwaitingPin:
		return d.onPin(ev, st)
	case session.ModeAwaitingItem:
		return d.onItem(st, in)
	case session.ModeAwaitingDelta:
		return d.onDelta(st, in)
	case session.ModeAwaitingConfirmation:
		return d.onConfirm(ctx, ev, st, in)
	case session.ModeAwaitingFeedback:
		if strings.HasPrefix(in.raw, "/") {
			return outcome{text: msgFeedbackPlain, options: optionsCancel, next: st, status: "reprompt"}
		}
		return d.submitFeedback(ctx, ev, st, in.raw)
	default:
		return d.onCommand(ctx, ev, st, in)
	}
}

func (d *Dispatcher) cancel(st session.State) outcome {
	text := msgCancelled
	if st.Mode == session.ModeIdle {
		text = msgNothingToCancel
	}
	st.Reset()
	return outcome{text: text, next: st, status: "cancelled", command: "cancel"}
}

func (d *Dispatcher) onPin(ev Event, st session.State) outcome {
	err := d.gate.SubmitPin(ev.ConversationID, &st, ev.Text)
	switch {
	case err == nil:
		st.Reset()
		return outcome{
			text:   fmt.Sprintf("Admin mode on until %s UTC.", st.ElevatedUntil.UTC().Format("15:04")),
			next:   st,
			status: "ok",
		}
	case errors.Is(err, auth.ErrLocked):
		st.Reset()
		return outcome{text: lockedText(d.gate.LockedUntil(ev.ConversationID)), next: st, status: "rejected", err: err}
	default:
		left := d.gate.MaxAttempts() - st.FailedPins
		return outcome{
			text:    fmt.Sprintf("Wrong PIN. %d attempt(s) left.", left),
			options: optionsCancel,
			next:    st,
			status:  "reprompt",
			err:     err,
		}
	}
}

func (d *Dispatcher) onItem(st session.State, in input) outcome {
	it, err := d.store.Get(in.raw)
	if err != nil {
		return outcome{
			text:    errorText(err, in.raw) + " " + msgAskItem,
			options: itemOptions(d.store.List()),
			next:    st,
			status:  "reprompt",
			err:     err,
		}
	}
	return d.afterItem(st, it)
}

// afterItem moves a pending action forward once its item is known.
func (d *Dispatcher) afterItem(st session.State, it inventory.Item) outcome {
	st.Pending.ItemID = it.ID
	switch st.Pending.Kind {
	case session.ActionRemove:
		st.Mode = session.ModeAwaitingConfirmation
		return outcome{text: confirmRemove(it), options: optionsYesNo, next: st, status: "ok"}
	case session.ActionReset:
		st.Mode = session.ModeAwaitingConfirmation
		return outcome{text: confirmReset(it), options: optionsYesNo, next: st, status: "ok"}
	default:
		st.Mode = session.ModeAwaitingDelta
		return outcome{text: askDelta(it), options: optionsCancel, next: st, status: "ok"}
	}
}

func (d *Dispatcher) onDelta(st session.State, in input) outcome {
	delta, err := parseDelta(in.raw)
	if err != nil {
		return outcome{text: errorText(err, ""), options: optionsCancel, next: st, status: "reprompt", err: err}
	}
	it, err := d.store.Get(st.Pending.ItemID)
	if err != nil {
		st.Reset()
		return outcome{text: errorText(err, st.Pending.ItemID), next: st, status: "fail", err: err}
	}
	st.Pending.Delta = delta
	st.Mode = session.ModeAwaitingConfirmation
	return outcome{text: confirmAdjust(it, delta), options: optionsYesNo, next: st, status: "ok"}
}

func (d *Dispatcher) onConfirm(ctx context.Context, ev Event, st session.State, in input) outcome {
	if isNegative(in) {
		st.Reset()
		return outcome{text: msgCancelled, next: st, status: "cancelled"}
	}
	if !isAffirmative(in) {
		return outcome{text: msgAskYesNo, options: optionsYesNo, next: st, status: "reprompt"}
	}

	p := *st.Pending
	if p.Kind != session.ActionAdjust {
		if err := d.authorize(ev.ConversationID, &st); err != nil {
			st.Reset()
			return outcome{text: d.denyText(ev.ConversationID, err), next: st, status: "rejected", err: err}
		}
	}

	var (
		text string
		err  error
	)
	switch p.Kind {
	case session.ActionRemove:
		var it inventory.Item
		it, err = d.store.Remove(ctx, p.ItemID, ev.ActorID)
		text = fmt.Sprintf("Removed %s (had %d).", it.ID, it.Quantity)
	case session.ActionReset:
		var it inventory.Item
		it, err = d.store.Reset(ctx, p.ItemID, ev.ActorID)
		text = fmt.Sprintf("%s reset to %d.", it.ID, it.Quantity)
	default:
		var q int64
		q, err = d.store.Adjust(ctx, p.ItemID, p.Delta, ev.ActorID)
		text = fmt.Sprintf("Done. %s is now %d.", p.ItemID, q)
	}
	st.Reset()
	switch {
	case errors.Is(err, inventory.ErrStorage):
		return outcome{text: msgGenericFailure, next: st, status: "fail", err: err}
	case err != nil:
		return outcome{text: errorText(err, p.ItemID), next: st, status: "fail", err: err}
	}
	return outcome{text: text, next: st, status: "ok"}
}

// authorize checks a privileged operation: lockout first, then elevation.
func (d *Dispatcher) authorize(conversationID string, st *session.State) error {
	if until := d.gate.LockedUntil(conversationID); !until.IsZero() {
		return fmt.Errorf("%w until %s", auth.ErrLocked, until.Format(time.RFC3339))
	}
	if !d.gate.IsElevated(st) {
		return ErrPermissionDenied
	}
	return nil
}

func (d *Dispatcher) denyText(conversationID string, err error) string {
	if errors.Is(err, auth.ErrLocked) {
		return lockedText(d.gate.LockedUntil(conversationID))
	}
	return msgDenied
}

func (d *Dispatcher) onCommand(ctx context.Context, ev Event, st session.State, in input) outcome {
	cmd, ok := lookupCommand(in.name)
	if !ok {
		return outcome{text: helpText(st.Elevated), next: st, status: "reprompt"}
	}
	if cmd.Privileged {
		if err := d.authorize(ev.ConversationID, &st); err != nil {
			return outcome{text: d.denyText(ev.ConversationID, err), next: st, status: "rejected", command: cmd.Name, err: err}
		}
	}

	out := d.runCommand(ctx, ev, st, cmd.Name, in)
	out.command = cmd.Name
	return out
}

func (d *Dispatcher) runCommand(ctx context.Context, ev Event, st session.State, name string, in input) outcome {
	switch name {
	case "help":
		return outcome{text: helpText(st.Elevated), next: st, status: "ok"}
	case "list":
		items := d.store.List()
		if len(items) == 0 {
			return outcome{text: msgEmptyCatalog, next: st, status: "ok"}
		}
		return outcome{text: itemList("Stock:", items), next: st, status: "ok"}
	case "show":
		if len(in.args) != 1 {
			return usage(st, "show <id>")
		}
		it, err := d.store.Get(in.args[0])
		if err != nil {
			return outcome{text: errorText(err, in.args[0]), next: st, status: "fail", err: err}
		}
		return outcome{text: itemDetail(it), next: st, status: "ok"}
	case "adjust":
		return d.startFlow(st, session.ActionAdjust, in)
	case "remove":
		return d.startFlow(st, session.ActionRemove, in)
	case "reset":
		return d.startFlow(st, session.ActionReset, in)
	case "search":
		q := in.rest(0)
		if q == "" {
			return usage(st, "search <text>")
		}
		items := d.store.Search(q)
		if len(items) == 0 {
			return outcome{text: msgNoMatches, next: st, status: "ok"}
		}
		return outcome{text: itemList("Matches:", items), next: st, status: "ok"}
	case "stats":
		s := d.store.Stats()
		return outcome{text: fmt.Sprintf("Items: %d\nTotal units: %d", s.Items, s.Units), next: st, status: "ok"}
	case "lowstock":
		threshold := d.cfg.LowStockThreshold
		if len(in.args) > 0 {
			v, err := parseCount(in.args[0])
			if err != nil {
				return outcome{text: errorText(err, ""), next: st, status: "reprompt", err: err}
			}
			threshold = v
		}
		items := d.store.LowStock(threshold)
		if len(items) == 0 {
			return outcome{text: fmt.Sprintf("Nothing at or below %d.", threshold), next: st, status: "ok"}
		}
		return outcome{text: itemList(fmt.Sprintf("At or below %d:", threshold), items), next: st, status: "ok"}
	case "admin":
		if st.Elevated {
			return outcome{text: msgAlreadyAdmin, next: st, status: "ok"}
		}
		if until := d.gate.LockedUntil(ev.ConversationID); !until.IsZero() {
			return outcome{text: lockedText(until), next: st, status: "rejected", err: auth.ErrLocked}
		}
		st.Mode = session.ModeAwaitingPin
		return outcome{text: msgAskPin, options: optionsCancel, next: st, status: "ok"}
	case "logout":
		text := msgNotAdmin
		if st.Elevated {
			text = msgLoggedOut
		}
		d.gate.Revoke(&st)
		return outcome{text: text, next: st, status: "ok"}
	case "create":
		return d.create(ctx, ev, st, in)
	case "audit":
		return d.audit(ctx, st, in)
	case "export":
		return d.export(ctx, st, in)
	case "feedback":
		if body := in.tail(); body != "" {
			return d.submitFeedback(ctx, ev, st, body)
		}
		st.Mode = session.ModeAwaitingFeedback
		return outcome{text: msgAskFeedback, options: optionsCancel, next: st, status: "ok"}
	case "inbox":
		return d.inbox(ctx, st, in)
	}
	return outcome{text: helpText(st.Elevated), next: st, status: "reprompt"}
}

func usage(st session.State, form string) outcome {
	err := fmt.Errorf("%w: usage: /%s", ErrParse, form)
	return outcome{text: errorText(err, ""), next: st, status: "reprompt", err: err}
}

// startFlow enters the multi-step flow at the step matching the arguments given.
func (d *Dispatcher) startFlow(st session.State, kind session.ActionKind, in input) outcome {
	st.Pending = &session.PendingAction{Kind: kind}
	if len(in.args) == 0 {
		st.Mode = session.ModeAwaitingItem
		return outcome{text: msgAskItem, options: itemOptions(d.store.List()), next: st, status: "ok"}
	}

	it, err := d.store.Get(in.args[0])
	if err != nil {
		st.Mode = session.ModeAwaitingItem
		return outcome{
			text:    errorText(err, in.args[0]) + " " + msgAskItem,
			options: itemOptions(d.store.List()),
			next:    st,
			status:  "reprompt",
			err:     err,
		}
	}
	out := d.afterItem(st, it)
	if kind != session.ActionAdjust || len(in.args) < 2 {
		return out
	}
	return d.onDelta(out.next, parseInput(in.args[1]))
}

func (d *Dispatcher) create(ctx context.Context, ev Event, st session.State, in input) outcome {
	if len(in.args) < 2 {
		return usage(st, "create <id> <qty> [name]")
	}
	qty, err := parseCount(in.args[1])
	if err != nil {
		return outcome{text: errorText(err, ""), next: st, status: "reprompt", err: err}
	}
	it, err := d.store.Create(ctx, in.args[0], in.rest(2), qty, ev.ActorID)
	if errors.Is(err, inventory.ErrStorage) {
		return outcome{text: msgGenericFailure, keep: true, status: "fail", err: err}
	}
	if err != nil {
		return outcome{text: errorText(err, in.args[0]), next: st, status: "fail", err: err}
	}
	return outcome{text: "Created " + itemLine(it) + ".", next: st, status: "ok"}
}

func (d *Dispatcher) audit(ctx context.Context, st session.State, in input) outcome {
	limit := d.cfg.AuditPageSize
	if len(in.args) > 0 {
		v, err := parseCount(in.args[0])
		if err != nil || v == 0 {
			return usage(st, "audit [n]")
		}
		limit = int(min(v, maxAuditPage))
	}
	entries, err := d.store.AuditTrail(ctx, limit)
	if err != nil {
		return outcome{text: msgGenericFailure, keep: true, status: "fail", err: err}
	}
	if len(entries) == 0 {
		return outcome{text: msgNoAudit, next: st, status: "ok"}
	}
	return outcome{text: auditText(entries), next: st, status: "ok"}
}

func (d *Dispatcher) export(ctx context.Context, st session.State, in input) outcome {
	what := "catalog"
	if len(in.args) > 0 {
		what = strings.ToLower(in.args[0])
	}
	var buf bytes.Buffer
	var err error
	switch what {
	case "catalog":
		err = d.store.ExportCatalog(&buf)
	case "audit":
		err = d.store.ExportAudit(ctx, &buf, 0)
	default:
		return usage(st, "export [catalog|audit]")
	}
	if err != nil {
		return outcome{text: msgGenericFailure, keep: true, status: "fail", err: fmt.Errorf("%w: %w", inventory.ErrStorage, err)}
	}
	name := fmt.Sprintf("%s-%s.csv", what, d.now().UTC().Format("20060102-150405"))
	return outcome{
		text:       fmt.Sprintf("Here is the %s export.", what),
		attachment: &Attachment{Name: name, Data: buf.Bytes()},
		next:       st,
		status:     "ok",
	}
}

func (d *Dispatcher) submitFeedback(ctx context.Context, ev Event, st session.State, body string) outcome {
	_, err := d.feedback.Submit(ctx, ev.ActorID, body)
	switch {
	case errors.Is(err, feedback.ErrStorage):
		return outcome{text: msgGenericFailure, keep: true, status: "fail", err: err}
	case err != nil:
		st.Mode = session.ModeAwaitingFeedback
		return outcome{text: errorText(err, ""), options: optionsCancel, next: st, status: "reprompt", err: err}
	}
	st.Reset()
	return outcome{text: msgFeedbackThanks, next: st, status: "ok"}
}

func (d *Dispatcher) inbox(ctx context.Context, st session.State, in input) outcome {
	limit := feedbackPageSize
	if len(in.args) > 0 {
		v, err := parseCount(in.args[0])
		if err != nil || v == 0 {
			return usage(st, "inbox [n]")
		}
		limit = int(min(v, maxAuditPage))
	}
	entries, err := d.feedback.Recent(ctx, limit)
	if err != nil {
		return outcome{text: msgGenericFailure, keep: true, status: "fail", err: err}
	}
	if len(entries) == 0 {
		return outcome{text: msgNoFeedback, next: st, status: "ok"}
	}
	return outcome{text: feedbackText(entries), next: st, status: "ok"}
}
