// Package inventory owns the item catalog and its append-only audit log.
package inventory

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var (
	// ErrNotFound reports an unknown item identifier.
	ErrNotFound = errors.New("item not found")
	// ErrDuplicateItem reports a create for an identifier already in the catalog.
	ErrDuplicateItem = errors.New("item already exists")
	// ErrInvalidDelta reports a change that would make a quantity negative or overflow.
	ErrInvalidDelta = errors.New("invalid quantity change")
	// ErrInvalidID reports an identifier outside the allowed shape.
	ErrInvalidID = errors.New("invalid item id")
	// ErrStorage marks failures of the durable write. Memory is untouched when it is returned.
	ErrStorage = errors.New("storage failure")
)

// MaxIDLength bounds identifiers in runes.
const MaxIDLength = 64

var idPattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]{1,64}$`)

// Item is one catalog entry.
type Item struct {
	ID        string
	Name      string
	Quantity  int64
	UpdatedAt time.Time
}

// Action classifies an audit entry.
type Action string

const (
	ActionAdjust Action = "adjust"
	ActionCreate Action = "create"
	ActionRemove Action = "remove"
	ActionReset  Action = "reset"
)

// AuditEntry records one applied mutation.
type AuditEntry struct {
	ID                string
	ActorID           string
	ItemID            string
	Action            Action
	Delta             int64
	ResultingQuantity int64
	Timestamp         time.Time
}

// Stats summarizes the catalog.
type Stats struct {
	Items int
	Units int64
}

// ItemSpec describes an item to seed.
type ItemSpec struct {
	ID       string
	Name     string
	Quantity int64
}

// NormalizeID trims and case-folds raw and checks it against the identifier shape.
func NormalizeID(raw string) (string, error) {
	id := Fold(strings.TrimSpace(raw))
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// Fold case-folds s for comparisons. A Caser keeps state, so each call gets its own.
func Fold(s string) string {
	return cases.Fold().String(s)
}
