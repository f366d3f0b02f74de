package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stockbot/core/inventory"
)

type recordingReplier struct {
	mu      sync.Mutex
	replies map[string][]string
}

func (r *recordingReplier) SendReply(_ context.Context, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = make(map[string][]string)
	}
	r.replies[reply.ConversationID] = append(r.replies[reply.ConversationID], reply.Text)
	return nil
}

func (r *recordingReplier) get(conv string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies[conv]...)
}

func TestRunnerKeepsPerConversationOrder(t *testing.T) {
	h := newHarness(t, inventory.ItemSpec{ID: "widget", Quantity: 10})
	out := &recordingReplier{}
	runner := NewRunner(h.d, out, RunnerOptions{Workers: 4, QueueSize: 4})

	convs := []string{"a", "b", "c", "d", "e"}
	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background(), events) }()

	for _, text := range []string{"/adjust widget", "+1", "yes"} {
		for _, conv := range convs {
			events <- Event{ConversationID: conv, ActorID: conv, Text: text, Timestamp: h.f.Clock.Now()}
		}
	}
	close(events)
	require.NoError(t, <-done)

	for _, conv := range convs {
		got := out.get(conv)
		require.Len(t, got, 3, conv)
		require.Contains(t, got[0], "Send the change")
		require.True(t, strings.HasPrefix(got[1], "Apply +1 to widget"), got[1])
		require.True(t, strings.HasPrefix(got[2], "Done. widget is now "), got[2])
	}
	require.Equal(t, int64(15), h.quantity("widget"))
}

func TestRunnerStopsOnCancel(t *testing.T) {
	h := newHarness(t, inventory.ItemSpec{ID: "widget", Quantity: 10})
	runner := NewRunner(h.d, &recordingReplier{}, RunnerOptions{SweepInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, make(chan Event)) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestLaneForIsStable(t *testing.T) {
	for _, conv := range []string{"1", "42", "-100200300"} {
		require.Equal(t, laneFor(conv, 8), laneFor(conv, 8))
		require.Less(t, laneFor(conv, 8), 8)
	}
}

func TestRunnerRepliesWhenHandlerPanics(t *testing.T) {
	h := newHarness(t)
	// no store: any catalog command panics
	d := New(nil, nil, h.sessions, h.gate, Config{}, WithClock(h.f.Clock.Now))
	out := &recordingReplier{}
	runner := NewRunner(d, out, RunnerOptions{Workers: 1})

	events := make(chan Event, 2)
	events <- Event{ConversationID: "c1", ActorID: "alice", Text: "/list"}
	events <- Event{ConversationID: "c1", ActorID: "alice", Text: "/help"}
	close(events)
	require.NoError(t, runner.Run(context.Background(), events))

	got := out.get("c1")
	require.Len(t, got, 2)
	require.Equal(t, msgGenericFailure, got[0])
	require.Equal(t, helpText(false), got[1])
}
