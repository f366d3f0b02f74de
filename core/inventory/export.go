package inventory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var (
	catalogHeader = []string{"id", "name", "quantity", "updated_at"}
	auditHeader   = []string{"entry_id", "timestamp", "actor_id", "item_id", "action", "delta", "resulting_quantity"}
)

// ExportCatalog writes the catalog as CSV ordered by identifier.
func (s *Store) ExportCatalog(w io.Writer) error {
	items := s.List()
	cw := csv.NewWriter(w)
	if err := cw.Write(catalogHeader); err != nil {
		return fmt.Errorf("inventory: export catalog: %w", err)
	}
	for _, it := range items {
		rec := []string{
			it.ID,
			it.Name,
			strconv.FormatInt(it.Quantity, 10),
			it.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("inventory: export catalog: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAudit writes up to limit audit entries as CSV, most recent first.
func (s *Store) ExportAudit(ctx context.Context, w io.Writer, limit int) error {
	entries, err := s.AuditTrail(ctx, limit)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return fmt.Errorf("inventory: export audit: %w", err)
	}
	for _, e := range entries {
		rec := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.ActorID,
			e.ItemID,
			string(e.Action),
			strconv.FormatInt(e.Delta, 10),
			strconv.FormatInt(e.ResultingQuantity, 10),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("inventory: export audit: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
