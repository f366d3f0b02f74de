// Package auth gates privileged commands behind an admin PIN with lockout.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/logger"
	"github.com/m3rciful/stockbot/core/session"
)

var (
	// ErrLocked reports a conversation in PIN lockout.
	ErrLocked = errors.New("pin entry locked")
	// ErrInvalidPIN reports a wrong PIN below the attempt threshold.
	ErrInvalidPIN = errors.New("invalid pin")
)

type attempts struct {
	failures    int
	lockedUntil time.Time
}

// Gate validates PINs and owns the per-conversation failure counters.
type Gate struct {
	verify      func(candidate string) bool
	elevation   time.Duration
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*attempts
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate builds a gate from normalized auth settings. A secret with a bcrypt
// prefix is verified with bcrypt; anything else is compared in constant time.
func NewGate(cfg coreconfig.AuthConfig, opts ...Option) (*Gate, error) {
	secret := strings.TrimSpace(cfg.AdminPIN)
	if secret == "" {
		return nil, errors.New("auth: empty admin pin")
	}
	if cfg.MaxPinAttempts <= 0 {
		return nil, fmt.Errorf("auth: max pin attempts must be > 0, got %d", cfg.MaxPinAttempts)
	}
	g := &Gate{
		elevation:   cfg.ElevationDuration(),
		maxAttempts: cfg.MaxPinAttempts,
		lockout:     cfg.LockoutDuration(),
		now:         time.Now,
		attempts:    make(map[string]*attempts),
	}
	if isBcrypt(secret) {
		if _, err := bcrypt.Cost([]byte(secret)); err != nil {
			return nil, fmt.Errorf("auth: admin pin hash: %w", err)
		}
		hash := []byte(secret)
		g.verify = func(candidate string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
		}
	} else {
		want := sha256.Sum256([]byte(secret))
		g.verify = func(candidate string) bool {
			got := sha256.Sum256([]byte(candidate))
			return subtle.ConstantTimeCompare(want[:], got[:]) == 1
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func isBcrypt(s string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// SubmitPin checks candidate for the conversation and elevates st on success.
// While locked it fails with ErrLocked even for the correct PIN. The attempt
// that reaches the threshold also returns ErrLocked.
func (g *Gate) SubmitPin(conversationID string, st *session.State, candidate string) error {
	now := g.now()

	g.mu.Lock()
	a := g.entry(conversationID, now)
	if now.Before(a.lockedUntil) {
		until := a.lockedUntil
		g.mu.Unlock()
		g.logAttempt(conversationID, "rejected", "LOCKED", 0, until)
		return fmt.Errorf("%w until %s", ErrLocked, until.Format(time.RFC3339))
	}
	g.mu.Unlock()

	// compare outside the lock; bcrypt is slow
	ok := g.verify(strings.TrimSpace(candidate))

	g.mu.Lock()
	defer g.mu.Unlock()
	a = g.entry(conversationID, now)
	if now.Before(a.lockedUntil) {
		return fmt.Errorf("%w until %s", ErrLocked, a.lockedUntil.Format(time.RFC3339))
	}
	if ok {
		delete(g.attempts, conversationID)
		st.Elevated = true
		st.ElevatedUntil = now.Add(g.elevation)
		st.FailedPins = 0
		g.logAttempt(conversationID, "ok", "", 0, time.Time{})
		logger.Auth.Info("elevation granted",
			slog.String("event", "auth.elevate"),
			slog.String("status", "ok"),
			slog.String("conversation_id", conversationID),
			slog.Time("elevated_until", st.ElevatedUntil),
		)
		return nil
	}

	a.failures++
	st.FailedPins = a.failures
	if a.failures >= g.maxAttempts {
		a.lockedUntil = now.Add(g.lockout)
		g.logAttempt(conversationID, "fail", "LOCKED", a.failures, a.lockedUntil)
		return fmt.Errorf("%w until %s", ErrLocked, a.lockedUntil.Format(time.RFC3339))
	}
	g.logAttempt(conversationID, "fail", "INVALID_PIN", a.failures, time.Time{})
	return fmt.Errorf("%w: %d of %d attempts used", ErrInvalidPIN, a.failures, g.maxAttempts)
}

// IsElevated reports whether st holds an unexpired elevation. An expired one is cleared.
func (g *Gate) IsElevated(st *session.State) bool {
	if !st.Elevated {
		return false
	}
	if g.now().Before(st.ElevatedUntil) {
		return true
	}
	st.Elevated = false
	st.ElevatedUntil = time.Time{}
	return false
}

// Revoke drops any elevation held by st.
func (g *Gate) Revoke(st *session.State) {
	st.Elevated = false
	st.ElevatedUntil = time.Time{}
}

// LockedUntil returns the lockout end for the conversation, or zero when not locked.
func (g *Gate) LockedUntil(conversationID string) time.Time {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[conversationID]
	if !ok || !now.Before(a.lockedUntil) {
		return time.Time{}
	}
	return a.lockedUntil
}

// Attempts returns the current failure count for the conversation.
func (g *Gate) Attempts(conversationID string) int {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[conversationID]
	if !ok {
		return 0
	}
	if !a.lockedUntil.IsZero() && !now.Before(a.lockedUntil) {
		return 0
	}
	return a.failures
}

// MaxAttempts returns the configured threshold.
func (g *Gate) MaxAttempts() int {
	return g.maxAttempts
}

// entry returns the counters for id, starting over once a lockout has elapsed. Caller holds g.mu.
func (g *Gate) entry(id string, now time.Time) *attempts {
	a, ok := g.attempts[id]
	if !ok {
		a = &attempts{}
		g.attempts[id] = a
	}
	if !a.lockedUntil.IsZero() && !now.Before(a.lockedUntil) {
		*a = attempts{}
	}
	return a
}

func (g *Gate) logAttempt(conversationID, status, code string, failures int, lockedUntil time.Time) {
	attrs := []any{
		slog.String("event", "auth.pin"),
		slog.String("status", status),
		slog.String("conversation_id", conversationID),
		slog.Int("attempts", failures),
	}
	if code != "" {
		attrs = append(attrs, slog.String("err_code", code))
	}
	if !lockedUntil.IsZero() {
		attrs = append(attrs, slog.Time("locked_until", lockedUntil))
	}
	if status == "ok" {
		logger.Auth.Debug("pin accepted", attrs...)
		return
	}
	logger.Auth.Warn("pin rejected", attrs...)
}

// Prune drops counters whose lockout has elapsed and reports how many were removed.
func (g *Gate) Prune() int {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, a := range g.attempts {
		if !a.lockedUntil.IsZero() && !now.Before(a.lockedUntil) {
			delete(g.attempts, id)
			n++
		}
	}
	return n
}
