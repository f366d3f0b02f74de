// Package sender runs outbound Telegram calls on keyed worker lanes with retries.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stockbot/core/logger"
	"github.com/m3rciful/stockbot/core/telegram/netutil"
)

var (
	// ErrClosed is returned when a job is submitted after Close.
	ErrClosed = errors.New("telegram sender: closed")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls lanes and retries.
type Options struct {
	Lanes        int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Sender executes jobs asynchronously. Jobs sharing a key run on the same lane
// in submission order, so replies to one chat never overtake each other.
type Sender struct {
	opts  Options
	lanes []chan job

	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	errs atomic.Uint64
}

// New starts a Sender; zeroed options get defaults.
func New(opts Options) *Sender {
	if opts.Lanes <= 0 {
		opts.Lanes = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	s := &Sender{opts: opts, lanes: make([]chan job, opts.Lanes)}
	s.wg.Add(opts.Lanes)
	for i := range s.lanes {
		s.lanes[i] = make(chan job, opts.QueueSize)
		go s.worker(s.lanes[i])
	}
	return s
}

// Submit queues run on the lane for key. It blocks while the lane is full.
// run must be idempotent if retries are wanted.
func (s *Sender) Submit(ctx context.Context, key int64, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	lane := s.lanes[laneIndex(key, len(s.lanes))]
	select {
	case lane <- job{ctx: ctx, action: action, run: run}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorCount returns the number of jobs that failed after all retries.
func (s *Sender) ErrorCount() uint64 {
	return s.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, lane := range s.lanes {
		close(lane)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func laneIndex(key int64, n int) int {
	if key < 0 {
		key = -key
	}
	return int(uint64(key) % uint64(n))
}

func (s *Sender) worker(lane <-chan job) {
	defer s.wg.Done()
	for j := range lane {
		s.handle(j)
	}
}

func (s *Sender) handle(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// queued replies still go out during shutdown
	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := s.opts.MaxRetries + 1
	var lastErr error
attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = j.run(); lastErr == nil {
			logSend(ctx, j, attempt, start, nil)
			return
		}
		if !netutil.ShouldRetry(lastErr) || attempt == attempts {
			break
		}
		delay := netutil.Backoff(s.opts.RetryBackoff, attempt)
		if fe := floodDelay(lastErr); fe > delay {
			delay = fe
		}
		logger.Debug(ctx, "tg.sender", "tg.send",
			slog.String("status", "retry"),
			slog.String("action", j.action),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			break attemptLoop
		case <-timer.C:
		}
	}
	s.errs.Add(1)
	logSend(ctx, j, attempts, start, lastErr)
}

func floodDelay(err error) time.Duration {
	var fe tele.FloodError
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return time.Duration(fe.RetryAfter) * time.Second
	}
	return 0
}

func logSend(ctx context.Context, j job, attempts int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("action", j.action),
		slog.Duration("duration", logger.Took(start)),
	}
	if attempts > 1 {
		attrs = append(attrs, slog.Int("attempts", attempts))
	}
	if err == nil {
		logger.Debug(ctx, "tg.sender", "tg.send", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("err", sanitizeErrorMessage(err)),
		slog.String("err_code", classifyError(err)),
	)
	if code := httpStatusFromError(err); code != 0 {
		attrs = append(attrs, slog.Int("http_code", code))
	}
	logger.Error(ctx, "tg.sender", "tg.send", attrs...)
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatusFromError(err); {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage keeps bot tokens embedded in API URLs out of the logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open >= 0 && end > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end])); convErr == nil {
			return code
		}
	}
	return 0
}
