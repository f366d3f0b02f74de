// Package feedback keeps free-text suggestions sent by chat users.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/m3rciful/stockbot/core/logger"
)

// MaxLength bounds a stored message, in runes.
const MaxLength = 1000

var (
	// ErrEmpty reports a message with no text.
	ErrEmpty = errors.New("empty feedback")
	// ErrTooLong reports a message above MaxLength.
	ErrTooLong = errors.New("feedback too long")
	// ErrStorage wraps repository failures.
	ErrStorage = errors.New("feedback storage failure")
)

// Entry is one stored message.
type Entry struct {
	ID        string
	ActorID   string
	Body      string
	CreatedAt time.Time
}

// Repository persists entries.
type Repository interface {
	Add(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Box validates and records feedback.
type Box struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// Option configures a Box.
type Option func(*Box)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Box) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides entry identifiers.
func WithIDGenerator(gen func() string) Option {
	return func(b *Box) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// New builds a Box over repo.
func New(repo Repository, opts ...Option) *Box {
	b := &Box{repo: repo, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit stores body on behalf of actorID. Surrounding whitespace is trimmed.
func (b *Box) Submit(ctx context.Context, actorID, body string) (Entry, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Entry{}, ErrEmpty
	}
	if n := utf8.RuneCountInString(body); n > MaxLength {
		return Entry{}, fmt.Errorf("%w: %d characters", ErrTooLong, n)
	}
	e := Entry{
		ID:        b.newID(),
		ActorID:   actorID,
		Body:      body,
		CreatedAt: b.now().UTC().Truncate(time.Millisecond),
	}
	if err := b.repo.Add(ctx, e); err != nil {
		logger.LogEvent(ctx, logger.Feedback, slog.LevelError, "feedback.add",
			slog.String("status", "fail"),
			slog.String("err_code", "STORAGE"),
			logger.Err(err),
		)
		return Entry{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	logger.LogEvent(ctx, logger.Feedback, slog.LevelInfo, "feedback.add",
		slog.String("status", "ok"),
		slog.Int("length", utf8.RuneCountInString(body)),
	)
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (b *Box) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := b.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return entries, nil
}
