package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitKeepsOrderPerKey(t *testing.T) {
	s := New(Options{Lanes: 3, QueueSize: 2})

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 20; i++ {
		for _, key := range []int64{1, 2, -7} {
			key, i := key, i
			require.NoError(t, s.Submit(context.Background(), key, "send", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	s.Close()

	for _, key := range []int64{1, 2, -7} {
		require.Len(t, got[key], 20)
		for i, v := range got[key] {
			require.Equal(t, i, v)
		}
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	s := New(Options{Lanes: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, s.Submit(context.Background(), 1, "send", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return nil
	}))
	s.Close()
	require.Equal(t, int32(3), calls.Load())
	require.Zero(t, s.ErrorCount())
}

func TestPermanentErrorIsCounted(t *testing.T) {
	s := New(Options{Lanes: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, s.Submit(context.Background(), 1, "send", func() error {
		calls.Add(1)
		return errors.New("telegram: bad request (400)")
	}))
	s.Close()
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, uint64(1), s.ErrorCount())
}

func TestSubmitAfterClose(t *testing.T) {
	s := New(Options{})
	s.Close()
	s.Close()
	err := s.Submit(context.Background(), 1, "send", func() error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestErrorHelpers(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`)
	require.NotContains(t, sanitizeErrorMessage(err), "123:ABC")

	require.Equal(t, 400, httpStatusFromError(errors.New("telegram: bad request (400)")))
	require.Equal(t, "http_4xx", classifyError(errors.New("telegram: bad request (400)")))
	require.Equal(t, "http_5xx", classifyError(errors.New("telegram: internal (502)")))
	require.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	require.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.Equal(t, "unknown", classifyError(errors.New("boom")))
}
