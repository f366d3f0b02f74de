package dispatch

import (
	"errors"

	"github.com/m3rciful/stockbot/core/auth"
	"github.com/m3rciful/stockbot/core/feedback"
	"github.com/m3rciful/stockbot/core/inventory"
)

var (
	// ErrPermissionDenied reports a privileged command from a conversation without elevation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrParse reports input that does not fit the expected shape.
	ErrParse = errors.New("parse error")
)

// ErrorCode maps err to the stable code used in log lines.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, inventory.ErrStorage), errors.Is(err, feedback.ErrStorage):
		return "STORAGE"
	case errors.Is(err, inventory.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, inventory.ErrDuplicateItem):
		return "DUPLICATE_ITEM"
	case errors.Is(err, inventory.ErrInvalidDelta):
		return "INVALID_DELTA"
	case errors.Is(err, inventory.ErrInvalidID):
		return "INVALID_ID"
	case errors.Is(err, feedback.ErrEmpty), errors.Is(err, feedback.ErrTooLong):
		return "INVALID_FEEDBACK"
	case errors.Is(err, auth.ErrLocked):
		return "LOCKED"
	case errors.Is(err, auth.ErrInvalidPIN):
		return "INVALID_PIN"
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrParse):
		return "PARSE_ERROR"
	default:
		return "INTERNAL"
	}
}
