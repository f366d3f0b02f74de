package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/stockbot/core/logger"
)

type entry struct {
	state State
	turn  sync.Mutex
	refs  int
}

type memoryManager struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// NewMemoryManager constructs an in-memory Manager. timeout <= 0 disables expiry.
func NewMemoryManager(timeout time.Duration) Manager {
	return &memoryManager{
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

// must hold m.mu
func (m *memoryManager) entry(id string) *entry {
	e, ok := m.entries[id]
	if !ok {
		e = &entry{state: State{Mode: ModeIdle}}
		m.entries[id] = e
	}
	return e
}

// Get returns a copy of the state for a conversation, creating an idle one if needed.
func (m *memoryManager) Get(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry(id).state.clone()
}

// Set replaces the stored state. Idle states never keep a pending action.
func (m *memoryManager) Set(id string, st State) {
	if st.Mode == "" {
		st.Mode = ModeIdle
	}
	if st.Mode == ModeIdle {
		st.Pending = nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(id).state = st.clone()
}

// Lock blocks until the caller owns the conversation.
func (m *memoryManager) Lock(id string) func() {
	m.mu.Lock()
	e := m.entry(id)
	e.refs++
	m.mu.Unlock()

	e.turn.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.turn.Unlock()
			m.mu.Lock()
			e.refs--
			m.mu.Unlock()
		})
	}
}

// ExpireStale resets stale conversations and reclaims unused idle entries.
func (m *memoryManager) ExpireStale(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired, reclaimed := 0, 0
	for id, e := range m.entries {
		if e.refs > 0 || !e.state.Stale(now, m.timeout) {
			continue
		}
		if e.state.Mode != ModeIdle {
			e.state.Reset()
			expired++
		}
		if !e.state.Elevated || !now.Before(e.state.ElevatedUntil) {
			delete(m.entries, id)
			reclaimed++
		}
	}
	if expired > 0 || reclaimed > 0 {
		logger.Session.Debug("sessions expired",
			slog.String("event", "session.expire"),
			slog.String("status", "ok"),
			slog.Int("expired", expired),
			slog.Int("count", reclaimed),
			slog.Int("active", len(m.entries)),
		)
	}
	return expired
}

// Clear drops the conversation. An entry in use is reset instead of removed.
func (m *memoryManager) Clear(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.state = State{Mode: ModeIdle}
		return
	}
	delete(m.entries, id)
}

// Len reports how many conversations are tracked.
func (m *memoryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Timeout returns the inactivity timeout.
func (m *memoryManager) Timeout() time.Duration {
	return m.timeout
}
