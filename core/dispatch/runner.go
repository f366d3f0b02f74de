package dispatch

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/stockbot/core/logger"
)

// RunnerOptions controls the worker lanes.
type RunnerOptions struct {
	// Workers is the number of lanes. A conversation always maps to the same lane.
	Workers   int
	QueueSize int
	// SweepInterval <= 0 disables the periodic expiry sweep.
	SweepInterval time.Duration
}

// Runner feeds events to a Dispatcher. Events of one conversation are
// handled in arrival order and each reply is sent before the next event of
// that conversation is taken. Different conversations run in parallel.
type Runner struct {
	d    *Dispatcher
	out  Replier
	opts RunnerOptions
	seq  atomic.Uint64
}

// NewRunner builds a Runner with defaults for zeroed options.
func NewRunner(d *Dispatcher, out Replier, opts RunnerOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Runner{d: d, out: out, opts: opts}
}

// Run consumes events until the channel closes or ctx is cancelled.
// On cancellation events not yet handled are dropped.
func (r *Runner) Run(ctx context.Context, events <-chan Event) error {
	lanes := make([]chan Event, r.opts.Workers)
	var wg sync.WaitGroup
	wg.Add(len(lanes))
	for i := range lanes {
		lanes[i] = make(chan Event, r.opts.QueueSize)
		go r.worker(ctx, &wg, lanes[i])
	}
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
	}()

	var tick <-chan time.Time
	if r.opts.SweepInterval > 0 {
		t := time.NewTicker(r.opts.SweepInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Dispatch.Info("runner stopped",
				slog.String("event", "dispatch.stop"),
				slog.String("status", "cancelled"),
			)
			return nil
		case now := <-tick:
			r.d.Sweep(now)
		case ev, ok := <-events:
			if !ok {
				logger.Dispatch.Info("event source closed",
					slog.String("event", "dispatch.stop"),
					slog.String("status", "ok"),
				)
				return nil
			}
			lane := lanes[laneFor(ev.ConversationID, len(lanes))]
			select {
			case lane <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, lane <-chan Event) {
	defer wg.Done()
	for ev := range lane {
		if ctx.Err() != nil {
			continue
		}
		r.handle(ctx, ev)
	}
}

func (r *Runner) handle(ctx context.Context, ev Event) {
	ctx = logger.WithRID(ctx, logger.BuildRID(r.seq.Add(1), ev.ConversationID))
	reply := r.dispatch(ctx, ev)
	if err := r.out.SendReply(ctx, reply); err != nil {
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelWarn, "dispatch.reply",
			slog.String("status", "fail"),
			logger.Err(err),
		)
	}
}

// dispatch runs the dispatcher and turns a panic into the generic failure reply.
func (r *Runner) dispatch(ctx context.Context, ev Event) (reply Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogEvent(ctx, logger.Dispatch, slog.LevelError, "dispatch.panic",
				slog.String("status", "fail"),
				slog.String("err_code", "INTERNAL"),
				slog.Any("cause", rec),
			)
			reply = Reply{ConversationID: ev.ConversationID, Text: msgGenericFailure}
		}
	}()
	return r.d.Handle(ctx, ev)
}

func laneFor(conversationID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(n))
}
