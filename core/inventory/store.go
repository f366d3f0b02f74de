package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/stockbot/core/logger"
)

// Store is the authoritative catalog. Every mutation commits to the repository
// before memory changes; a failed commit leaves the store as it was.
type Store struct {
	repo  Repository
	now   func() time.Time
	newID func() string

	mu    sync.RWMutex
	items map[string]Item
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides audit entry identifiers.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Open loads the persisted catalog into a new Store.
func Open(ctx context.Context, repo Repository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, errors.New("inventory: nil repository")
	}
	s := &Store{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
		items: make(map[string]Item),
	}
	for _, opt := range opts {
		opt(s)
	}

	start := time.Now()
	items, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	logger.Inventory.Info("catalog loaded",
		slog.String("event", "inventory.load"),
		slog.String("status", "ok"),
		slog.Int("count", len(items)),
		slog.Duration("duration", logger.Took(start)),
	)
	return s, nil
}

// Get returns the item with the given identifier.
func (s *Store) Get(id string) (Item, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return it, nil
}

// List returns a snapshot of the catalog ordered by identifier.
func (s *Store) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(Item) bool { return true })
}

// Search returns items whose identifier or name contains query, case-folded.
func (s *Store) Search(query string) []Item {
	q := Fold(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(it Item) bool {
		return strings.Contains(it.ID, q) || strings.Contains(Fold(it.Name), q)
	})
}

// LowStock returns items with quantity at or below threshold.
func (s *Store) LowStock(threshold int64) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(it Item) bool { return it.Quantity <= threshold })
}

// Stats returns the item count and total units.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Items: len(s.items)}
	for _, it := range s.items {
		st.Units += it.Quantity
	}
	return st
}

// must hold s.mu
func (s *Store) collect(keep func(Item) bool) []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Adjust adds delta to the item's quantity and returns the new quantity.
// Changes that would go below zero or overflow fail with ErrInvalidDelta.
func (s *Store) Adjust(ctx context.Context, id string, delta int64, actor string) (int64, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero change", ErrInvalidDelta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	next, ok := addQuantity(it.Quantity, delta)
	if !ok {
		s.logRejected(ctx, ActionAdjust, key, delta, it.Quantity)
		return it.Quantity, fmt.Errorf("%w: %d%+d", ErrInvalidDelta, it.Quantity, delta)
	}
	it.Quantity = next
	if err := s.apply(ctx, MutationUpdate, it, ActionAdjust, delta, actor); err != nil {
		return 0, err
	}
	return next, nil
}

// Create adds a new item. An empty name defaults to the identifier.
func (s *Store) Create(ctx context.Context, id, name string, quantity int64, actor string) (Item, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return Item{}, err
	}
	if quantity < 0 {
		return Item{}, fmt.Errorf("%w: initial quantity %d", ErrInvalidDelta, quantity)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = key
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return Item{}, fmt.Errorf("%w: %s", ErrDuplicateItem, key)
	}
	it := Item{ID: key, Name: name, Quantity: quantity}
	if err := s.apply(ctx, MutationInsert, it, ActionCreate, quantity, actor); err != nil {
		return Item{}, err
	}
	return s.items[key], nil
}

// Remove deletes an item. The audit delta is the negated prior quantity.
func (s *Store) Remove(ctx context.Context, id string, actor string) (Item, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	prior := it.Quantity
	it.Quantity = 0
	if err := s.apply(ctx, MutationDelete, it, ActionRemove, -prior, actor); err != nil {
		return Item{}, err
	}
	it.Quantity = prior
	return it, nil
}

// Reset sets the item's quantity to zero.
func (s *Store) Reset(ctx context.Context, id string, actor string) (Item, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delta := -it.Quantity
	it.Quantity = 0
	if err := s.apply(ctx, MutationUpdate, it, ActionReset, delta, actor); err != nil {
		return Item{}, err
	}
	return s.items[key], nil
}

// Seed creates the given items when absent and returns how many were created.
func (s *Store) Seed(ctx context.Context, specs []ItemSpec, actor string) (int, error) {
	created := 0
	for _, spec := range specs {
		_, err := s.Create(ctx, spec.ID, spec.Name, spec.Quantity, actor)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateItem):
		default:
			logger.SEED.Error("seed failed",
				slog.String("event", "inventory.seed"),
				slog.String("status", "fail"),
				slog.String("item_id", spec.ID),
				slog.String("err", err.Error()),
			)
			return created, fmt.Errorf("inventory: seed %s: %w", spec.ID, err)
		}
	}
	logger.SEED.Info("catalog seeded",
		slog.String("event", "inventory.seed"),
		slog.String("status", "ok"),
		slog.Int("count", created),
		slog.Int("total", len(specs)),
	)
	return created, nil
}

// AuditTrail returns up to limit entries, most recent first.
func (s *Store) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	entries, err := s.repo.AuditTrail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return entries, nil
}

// apply commits one mutation and then updates memory. Caller holds s.mu.
func (s *Store) apply(ctx context.Context, kind MutationKind, it Item, action Action, delta int64, actor string) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	it.UpdatedAt = now
	entry := AuditEntry{
		ID:                s.newID(),
		ActorID:           actor,
		ItemID:            it.ID,
		Action:            action,
		Delta:             delta,
		ResultingQuantity: it.Quantity,
		Timestamp:         now,
	}

	start := time.Now()
	if err := s.repo.Commit(ctx, Mutation{Kind: kind, Item: it, Entry: entry}); err != nil {
		logger.Inventory.ErrorContext(ctx, "commit failed",
			slog.String("event", "inventory."+string(action)),
			slog.String("status", "fail"),
			slog.String("item_id", it.ID),
			slog.Int64("delta", delta),
			slog.String("err", err.Error()),
			slog.String("err_code", "STORAGE"),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if kind == MutationDelete {
		delete(s.items, it.ID)
	} else {
		s.items[it.ID] = it
	}
	logger.Inventory.InfoContext(ctx, "item changed",
		slog.String("event", "inventory."+string(action)),
		slog.String("status", "ok"),
		slog.String("actor_id", actor),
		slog.String("item_id", it.ID),
		slog.Int64("delta", delta),
		slog.Int64("quantity", it.Quantity),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (s *Store) logRejected(ctx context.Context, action Action, id string, delta, quantity int64) {
	logger.LogEvent(ctx, logger.Inventory, slog.LevelInfo, "inventory."+string(action),
		slog.String("status", "rejected"),
		slog.String("item_id", id),
		slog.Int64("delta", delta),
		slog.Int64("quantity", quantity),
		slog.String("err_code", "INVALID_DELTA"),
	)
}

// addQuantity returns q+delta when the result is representable and non-negative.
func addQuantity(q, delta int64) (int64, bool) {
	if delta > 0 && q > math.MaxInt64-delta {
		return 0, false
	}
	next := q + delta
	if next < 0 {
		return 0, false
	}
	return next, true
}
