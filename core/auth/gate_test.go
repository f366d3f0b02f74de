package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newGate(t *testing.T, secret string) (*Gate, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	g, err := NewGate(coreconfig.AuthConfig{
		AdminPIN:                 secret,
		ElevationDurationSeconds: 900,
		MaxPinAttempts:           3,
		LockoutDurationSeconds:   300,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return g, clock
}

func TestCorrectPinElevatesOnlyThatConversation(t *testing.T) {
	g, clock := newGate(t, "4321")
	var a, b session.State

	require.NoError(t, g.SubmitPin("a", &a, " 4321 "))
	require.True(t, g.IsElevated(&a))
	require.Equal(t, clock.Now().Add(900*time.Second), a.ElevatedUntil)
	require.False(t, g.IsElevated(&b))
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	g, clock := newGate(t, "4321")
	var st session.State

	require.ErrorIs(t, g.SubmitPin("c", &st, "0000"), ErrInvalidPIN)
	require.ErrorIs(t, g.SubmitPin("c", &st, "1111"), ErrInvalidPIN)
	require.Equal(t, 2, g.Attempts("c"))
	require.Equal(t, 2, st.FailedPins)
	require.ErrorIs(t, g.SubmitPin("c", &st, "2222"), ErrLocked)
	require.Equal(t, clock.Now().Add(300*time.Second), g.LockedUntil("c"))

	require.ErrorIs(t, g.SubmitPin("c", &st, "4321"), ErrLocked)
	require.False(t, g.IsElevated(&st))

	var other session.State
	require.NoError(t, g.SubmitPin("other", &other, "4321"), "lockout is per conversation")

	clock.Advance(300 * time.Second)
	require.True(t, g.LockedUntil("c").IsZero())
	require.Equal(t, 0, g.Attempts("c"))
	require.NoError(t, g.SubmitPin("c", &st, "4321"))
	require.True(t, g.IsElevated(&st))
}

func TestLockoutExpiryResetsCounter(t *testing.T) {
	g, clock := newGate(t, "4321")
	var st session.State
	for i := 0; i < 3; i++ {
		_ = g.SubmitPin("c", &st, "bad")
	}
	clock.Advance(301 * time.Second)
	require.ErrorIs(t, g.SubmitPin("c", &st, "bad"), ErrInvalidPIN)
	require.Equal(t, 1, g.Attempts("c"))
	require.Equal(t, 0, g.Prune())
}

func TestElevationExpiresAndIsCleared(t *testing.T) {
	g, clock := newGate(t, "4321")
	var st session.State
	require.NoError(t, g.SubmitPin("c", &st, "4321"))

	clock.Advance(899 * time.Second)
	require.True(t, g.IsElevated(&st))
	clock.Advance(time.Second)
	require.False(t, g.IsElevated(&st))
	require.False(t, st.Elevated)
	require.True(t, st.ElevatedUntil.IsZero())
}

func TestRevoke(t *testing.T) {
	g, _ := newGate(t, "4321")
	var st session.State
	require.NoError(t, g.SubmitPin("c", &st, "4321"))
	g.Revoke(&st)
	require.False(t, g.IsElevated(&st))
}

func TestBcryptSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	g, _ := newGate(t, string(hash))

	var st session.State
	require.ErrorIs(t, g.SubmitPin("c", &st, "4321"), ErrInvalidPIN)
	require.NoError(t, g.SubmitPin("c", &st, "s3cret"))
	require.True(t, g.IsElevated(&st))
}

func TestNewGateRejectsBadConfig(t *testing.T) {
	_, err := NewGate(coreconfig.AuthConfig{AdminPIN: "", MaxPinAttempts: 3})
	require.Error(t, err)
	_, err = NewGate(coreconfig.AuthConfig{AdminPIN: "1", MaxPinAttempts: 0})
	require.Error(t, err)
	_, err = NewGate(coreconfig.AuthConfig{AdminPIN: "$2a$broken", MaxPinAttempts: 3})
	require.Error(t, err)
}

func TestPruneDropsElapsedLockouts(t *testing.T) {
	g, clock := newGate(t, "4321")
	var st session.State
	for i := 0; i < 3; i++ {
		_ = g.SubmitPin("c", &st, "bad")
	}
	require.Equal(t, 0, g.Prune())
	clock.Advance(time.Hour)
	require.Equal(t, 1, g.Prune())
}
