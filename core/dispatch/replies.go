package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/stockbot/core/feedback"
	"github.com/m3rciful/stockbot/core/inventory"
)

const (
	msgCancelled       = "Cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgGenericFailure  = "Something went wrong while saving. Nothing was changed; please try again."
	msgAskItem         = "Which item? Send its id."
	msgAskPin          = "Send the admin PIN."
	msgAlreadyAdmin    = "Admin mode is already on."
	msgLoggedOut       = "Admin mode off."
	msgNotAdmin        = "Admin mode was not on."
	msgDenied          = "That command needs admin mode. Send /admin first."
	msgAskYesNo        = "Please answer yes or no."
	msgEmptyCatalog    = "The catalog is empty."
	msgNoMatches       = "No items match."
	msgNoAudit         = "No changes recorded yet."
	msgAskFeedback     = "Send your feedback or suggestion."
	msgFeedbackPlain   = "Send your feedback as plain text, or /cancel."
	msgFeedbackThanks  = "Thanks for your feedback!"
	msgNoFeedback      = "No feedback yet. Users can send it with /feedback."
)

var (
	optionsYesNo  = []string{"yes", "no"}
	optionsCancel = []string{"/cancel"}
)

// maxItemOptions bounds quick-reply buttons offered for item selection.
const maxItemOptions = 8

// feedbackPreview bounds each message shown by /inbox, in runes.
const feedbackPreview = 100

func helpText(elevated bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range commandTable {
		if c.Privileged {
			continue
		}
		writeCommandLine(&b, c)
	}
	b.WriteString("\nAdmin commands:\n")
	for _, c := range commandTable {
		if c.Privileged {
			writeCommandLine(&b, c)
		}
	}
	if elevated {
		b.WriteString("\nAdmin mode is on.")
	} else {
		b.WriteString("\nAdmin commands need /admin first.")
	}
	return b.String()
}

func writeCommandLine(b *strings.Builder, c Command) {
	b.WriteString("/")
	b.WriteString(c.Name)
	if c.Args != "" {
		b.WriteString(" ")
		b.WriteString(c.Args)
	}
	b.WriteString(" - ")
	b.WriteString(c.Description)
	b.WriteString("\n")
}

func itemLine(it inventory.Item) string {
	if it.Name == "" || it.Name == it.ID {
		return fmt.Sprintf("%s: %d", it.ID, it.Quantity)
	}
	return fmt.Sprintf("%s (%s): %d", it.ID, it.Name, it.Quantity)
}

func itemList(title string, items []inventory.Item) string {
	var b strings.Builder
	b.WriteString(title)
	for _, it := range items {
		b.WriteString("\n")
		b.WriteString(itemLine(it))
	}
	return b.String()
}

func itemDetail(it inventory.Item) string {
	return fmt.Sprintf("%s\nName: %s\nQuantity: %d\nUpdated: %s",
		it.ID, it.Name, it.Quantity, it.UpdatedAt.UTC().Format(time.RFC3339))
}

func itemOptions(items []inventory.Item) []string {
	n := len(items)
	if n > maxItemOptions {
		n = maxItemOptions
	}
	opts := make([]string, 0, n+1)
	for _, it := range items[:n] {
		opts = append(opts, it.ID)
	}
	return append(opts, "/cancel")
}

func askDelta(it inventory.Item) string {
	return fmt.Sprintf("%s has %d. Send the change, e.g. +5 or -3.", it.ID, it.Quantity)
}

func confirmAdjust(it inventory.Item, delta int64) string {
	next := it.Quantity + delta
	if (delta > 0 && next < it.Quantity) || (delta < 0 && next > it.Quantity) {
		return fmt.Sprintf("Apply %+d to %s (currently %d)?", delta, it.ID, it.Quantity)
	}
	return fmt.Sprintf("Apply %+d to %s (%d -> %d)?", delta, it.ID, it.Quantity, next)
}

func confirmRemove(it inventory.Item) string {
	return fmt.Sprintf("Remove %s (quantity %d) from the catalog?", it.ID, it.Quantity)
}

func confirmReset(it inventory.Item) string {
	return fmt.Sprintf("Reset %s from %d to 0?", it.ID, it.Quantity)
}

func auditText(entries []inventory.AuditEntry) string {
	var b strings.Builder
	b.WriteString("Recent changes:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s %s %s %+d -> %d",
			e.Timestamp.UTC().Format("2006-01-02 15:04"), e.ActorID, e.Action, e.ItemID, e.Delta, e.ResultingQuantity)
	}
	return b.String()
}

func feedbackText(entries []feedback.Entry) string {
	var b strings.Builder
	b.WriteString("Feedback:")
	for i, e := range entries {
		body := e.Body
		if r := []rune(body); len(r) > feedbackPreview {
			body = string(r[:feedbackPreview]) + "..."
		}
		fmt.Fprintf(&b, "\n%d. %s %s\n%s", i+1, e.CreatedAt.UTC().Format("2006-01-02 15:04"), e.ActorID, body)
	}
	return b.String()
}

func lockedText(until time.Time) string {
	return fmt.Sprintf("Too many wrong PINs. Try again after %s UTC.", until.UTC().Format("15:04:05"))
}

// errorText renders a domain error for the user. Storage failures never reach here.
func errorText(err error, id string) string {
	switch ErrorCode(err) {
	case "NOT_FOUND":
		return fmt.Sprintf("No item %q.", id)
	case "DUPLICATE_ITEM":
		return fmt.Sprintf("Item %q already exists.", id)
	case "INVALID_DELTA":
		return "That change would make the quantity negative or too large. Nothing was changed."
	case "INVALID_ID":
		return "Item ids use letters, digits, '_', '.' or '-' (up to 64)."
	case "PERMISSION_DENIED":
		return msgDenied
	case "INVALID_FEEDBACK":
		return fmt.Sprintf("Feedback must be 1 to %d characters.", feedback.MaxLength)
	case "PARSE_ERROR":
		return "I did not understand that. " + parseHint(err)
	default:
		return msgGenericFailure
	}
}

func parseHint(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return ""
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
