package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestGetCreatesIdleCopy(t *testing.T) {
	m := NewMemoryManager(time.Minute)

	st := m.Get("c1")
	require.Equal(t, ModeIdle, st.Mode)
	require.Nil(t, st.Pending)
	require.Equal(t, 1, m.Len())

	m.Set("c1", State{Mode: ModeAwaitingDelta, Pending: &PendingAction{Kind: ActionAdjust, ItemID: "widget"}, LastActivity: t0})
	got := m.Get("c1")
	got.Pending.ItemID = "mutated"
	require.Equal(t, "widget", m.Get("c1").Pending.ItemID)
}

func TestSetIdleDropsPending(t *testing.T) {
	m := NewMemoryManager(time.Minute)
	m.Set("c1", State{Mode: ModeIdle, Pending: &PendingAction{ItemID: "widget"}})
	require.Nil(t, m.Get("c1").Pending)

	m.Set("c2", State{Pending: &PendingAction{ItemID: "widget"}})
	st := m.Get("c2")
	require.Equal(t, ModeIdle, st.Mode)
	require.Nil(t, st.Pending)
}

func TestExpireStaleDiscardsPending(t *testing.T) {
	m := NewMemoryManager(time.Minute)
	m.Set("stale", State{Mode: ModeAwaitingConfirmation, Pending: &PendingAction{ItemID: "widget", Delta: -3}, LastActivity: t0})
	m.Set("fresh", State{Mode: ModeAwaitingDelta, Pending: &PendingAction{ItemID: "bolt"}, LastActivity: t0.Add(50 * time.Second)})
	m.Set("admin", State{Mode: ModeAwaitingItem, Pending: &PendingAction{}, Elevated: true, ElevatedUntil: t0.Add(time.Hour), LastActivity: t0})

	expired := m.ExpireStale(t0.Add(90 * time.Second))
	require.Equal(t, 2, expired)
	require.Equal(t, 2, m.Len(), "stale non-elevated entry is reclaimed")

	fresh := m.Get("fresh")
	require.Equal(t, ModeAwaitingDelta, fresh.Mode)
	require.NotNil(t, fresh.Pending)

	admin := m.Get("admin")
	require.Equal(t, ModeIdle, admin.Mode)
	require.Nil(t, admin.Pending)
	require.True(t, admin.Elevated)

	st := m.Get("stale")
	require.Equal(t, ModeIdle, st.Mode)
	require.Nil(t, st.Pending)
}

func TestExpireStaleSkipsLockedEntries(t *testing.T) {
	m := NewMemoryManager(time.Minute)
	m.Set("c1", State{Mode: ModeAwaitingDelta, Pending: &PendingAction{ItemID: "widget"}, LastActivity: t0})
	unlock := m.Lock("c1")
	require.Equal(t, 0, m.ExpireStale(t0.Add(time.Hour)))
	unlock()
	unlock()
	require.Equal(t, 1, m.ExpireStale(t0.Add(time.Hour)))
	require.Equal(t, 0, m.Len())
}

func TestLockSerializesConversation(t *testing.T) {
	m := NewMemoryManager(0)
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		guard   sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("c1")
			defer unlock()
			guard.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			guard.Unlock()
			time.Sleep(time.Millisecond)
			guard.Lock()
			inside--
			guard.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestClear(t *testing.T) {
	m := NewMemoryManager(time.Minute)
	m.Set("c1", State{Mode: ModeAwaitingPin, Elevated: true})
	m.Clear("c1")
	require.Equal(t, 0, m.Len())

	m.Set("c2", State{Mode: ModeAwaitingPin, Elevated: true})
	unlock := m.Lock("c2")
	m.Clear("c2")
	require.Equal(t, State{Mode: ModeIdle}, m.Get("c2"))
	unlock()
}

func TestStale(t *testing.T) {
	st := State{LastActivity: t0}
	require.False(t, st.Stale(t0.Add(time.Minute), time.Minute))
	require.True(t, st.Stale(t0.Add(time.Minute+time.Nanosecond), time.Minute))
	require.False(t, st.Stale(t0.Add(time.Hour), 0))
	require.False(t, State{}.Stale(t0, time.Minute))
}
