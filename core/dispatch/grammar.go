package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Command describes one entry of the command table.
type Command struct {
	Name        string
	Args        string
	Description string
	Privileged  bool
}

var commandTable = []Command{
	{Name: "help", Description: "Show this help"},
	{Name: "list", Description: "List all items"},
	{Name: "show", Args: "<id>", Description: "Show one item"},
	{Name: "adjust", Args: "[id [delta]]", Description: "Change a quantity, e.g. adjust widget -3"},
	{Name: "search", Args: "<text>", Description: "Find items by id or name"},
	{Name: "stats", Description: "Item count and total units"},
	{Name: "lowstock", Args: "[threshold]", Description: "Items at or below the threshold"},
	{Name: "feedback", Args: "[text]", Description: "Send a suggestion to the admins"},
	{Name: "admin", Description: "Enter the admin PIN"},
	{Name: "logout", Description: "Leave admin mode"},
	{Name: "cancel", Description: "Abort the current action"},
	{Name: "create", Args: "<id> <qty> [name]", Description: "Add an item", Privileged: true},
	{Name: "remove", Args: "<id>", Description: "Delete an item", Privileged: true},
	{Name: "reset", Args: "<id>", Description: "Set a quantity to zero", Privileged: true},
	{Name: "audit", Args: "[n]", Description: "Recent changes", Privileged: true},
	{Name: "export", Args: "[catalog|audit]", Description: "Download CSV", Privileged: true},
	{Name: "inbox", Args: "[n]", Description: "Read user feedback", Privileged: true},
}

// Commands returns a copy of the command table.
func Commands() []Command {
	return append([]Command(nil), commandTable...)
}

func lookupCommand(name string) (Command, bool) {
	if name == "start" {
		name = "help"
	}
	for _, c := range commandTable {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// input is a tokenized message. name is the lowercased first token with any
// leading slash and @bot suffix removed.
type input struct {
	raw  string
	name string
	args []string
}

func parseInput(text string) input {
	in := input{raw: strings.TrimSpace(text)}
	fields := strings.Fields(in.raw)
	if len(fields) == 0 {
		return in
	}
	head := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	in.name = strings.ToLower(head)
	in.args = fields[1:]
	return in
}

// rest joins the arguments from index i on.
func (in input) rest(i int) string {
	if i >= len(in.args) {
		return ""
	}
	return strings.Join(in.args[i:], " ")
}

// tail returns the raw text after the command word, keeping inner spacing.
func (in input) tail() string {
	i := strings.IndexFunc(in.raw, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(in.raw[i:])
}

// parseDelta accepts a signed integer such as "+5", "-3" or "7".
func parseDelta(s string) (int64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrParse, s)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: change must not be zero", ErrParse)
	}
	return v, nil
}

func parseCount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative number", ErrParse, s)
	}
	return v, nil
}

var (
	affirmative = map[string]struct{}{"yes": {}, "y": {}, "ok": {}, "confirm": {}}
	negative    = map[string]struct{}{"no": {}, "n": {}}
)

func isAffirmative(in input) bool {
	_, ok := affirmative[in.name]
	return ok && len(in.args) == 0
}

func isNegative(in input) bool {
	_, ok := negative[in.name]
	return ok && len(in.args) == 0
}
