package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MutationKind selects the catalog write performed by Commit.
type MutationKind int

const (
	MutationInsert MutationKind = iota + 1
	MutationUpdate
	MutationDelete
)

// Mutation is one durable change: a catalog write plus its audit entry.
type Mutation struct {
	Kind  MutationKind
	Item  Item
	Entry AuditEntry
}

// Repository persists the catalog and the audit log.
// Commit must apply the catalog write and the audit insert atomically.
type Repository interface {
	Load(ctx context.Context) ([]Item, error)
	Commit(ctx context.Context, m Mutation) error
	AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error)
}

type itemRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Quantity  int64  `db:"quantity"`
	UpdatedAt int64  `db:"updated_at"`
}

type auditRow struct {
	Seq               int64  `db:"seq"`
	ID                string `db:"id"`
	ActorID           string `db:"actor_id"`
	ItemID            string `db:"item_id"`
	Action            string `db:"action"`
	Delta             int64  `db:"delta"`
	ResultingQuantity int64  `db:"resulting_quantity"`
	CreatedAt         int64  `db:"created_at"`
}

// SQLRepository stores inventory in the items and audit_log tables.
// Queries use ? placeholders and are rebound for the connected driver.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository wraps an open, migrated database.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Load returns every catalog row.
func (r *SQLRepository) Load(ctx context.Context) ([]Item, error) {
	var rows []itemRow
	q := `SELECT id, name, quantity, updated_at FROM items ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("inventory: load items: %w", err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			ID:        row.ID,
			Name:      row.Name,
			Quantity:  row.Quantity,
			UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
		})
	}
	return items, nil
}

// Commit writes the catalog change and the audit entry in one transaction.
func (r *SQLRepository) Commit(ctx context.Context, m Mutation) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inventory: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	it := m.Item
	switch m.Kind {
	case MutationInsert:
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO items (id, name, quantity, updated_at) VALUES (?, ?, ?, ?)`),
			it.ID, it.Name, it.Quantity, it.UpdatedAt.UnixMilli())
	case MutationUpdate:
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE items SET name = ?, quantity = ?, updated_at = ? WHERE id = ?`),
			it.Name, it.Quantity, it.UpdatedAt.UnixMilli(), it.ID)
	case MutationDelete:
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM items WHERE id = ?`), it.ID)
	default:
		err = fmt.Errorf("unknown mutation kind %d", m.Kind)
	}
	if err != nil {
		return fmt.Errorf("inventory: write item %s: %w", it.ID, err)
	}

	e := m.Entry
	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO audit_log (id, actor_id, item_id, action, delta, resulting_quantity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ActorID, e.ItemID, string(e.Action), e.Delta, e.ResultingQuantity, e.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("inventory: append audit %s: %w", it.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("inventory: commit: %w", err)
	}
	return nil
}

// AuditTrail returns up to limit entries, newest first. limit <= 0 returns all.
func (r *SQLRepository) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	q := `SELECT seq, id, actor_id, item_id, action, delta, resulting_quantity, created_at
		FROM audit_log ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("inventory: load audit: %w", err)
	}
	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, AuditEntry{
			ID:                row.ID,
			ActorID:           row.ActorID,
			ItemID:            row.ItemID,
			Action:            Action(row.Action),
			Delta:             row.Delta,
			ResultingQuantity: row.ResultingQuantity,
			Timestamp:         time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return entries, nil
}

// Ping checks the underlying connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
