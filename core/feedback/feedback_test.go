package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stockbot/core/inventory/inventorytest"
)

type brokenRepo struct{}

func (brokenRepo) Add(context.Context, Entry) error { return errors.New("disk full") }
func (brokenRepo) Recent(context.Context, int) ([]Entry, error) {
	return nil, errors.New("disk full")
}

func newBox(t *testing.T) (*Box, *inventorytest.Clock) {
	t.Helper()
	clock := inventorytest.NewClock()
	box := New(NewSQLRepository(inventorytest.OpenDB(t)),
		WithClock(clock.Now),
		WithIDGenerator(inventorytest.SequentialIDs("fb")),
	)
	return box, clock
}

func TestSubmitAndRecent(t *testing.T) {
	ctx := context.Background()
	box, clock := newBox(t)

	first, err := box.Submit(ctx, "7", "  more bolts please ")
	require.NoError(t, err)
	require.Equal(t, "more bolts please", first.Body)
	require.Equal(t, "fb-1", first.ID)

	clock.Advance(time.Minute)
	_, err = box.Submit(ctx, "8", "widgets are great")
	require.NoError(t, err)

	recent, err := box.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "widgets are great", recent[0].Body)
	require.Equal(t, "8", recent[0].ActorID)
	require.Equal(t, first, recent[1])

	one, err := box.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestSubmitValidates(t *testing.T) {
	box, _ := newBox(t)

	_, err := box.Submit(context.Background(), "7", "   ")
	require.ErrorIs(t, err, ErrEmpty)

	_, err = box.Submit(context.Background(), "7", strings.Repeat("é", MaxLength+1))
	require.ErrorIs(t, err, ErrTooLong)

	_, err = box.Submit(context.Background(), "7", strings.Repeat("é", MaxLength))
	require.NoError(t, err)
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	box := New(brokenRepo{})

	_, err := box.Submit(context.Background(), "7", "hello")
	require.ErrorIs(t, err, ErrStorage)

	_, err = box.Recent(context.Background(), 5)
	require.ErrorIs(t, err, ErrStorage)
}
