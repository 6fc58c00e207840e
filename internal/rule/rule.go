// Package rule defines the synchronization rule persisted and edited by dsd.
package rule

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Mode selects how files are mirrored from a rule's source to its target.
type Mode string

const (
	// Copy duplicates file contents into the target directory.
	Copy Mode = "Copy"
	// Link creates symbolic links in the target pointing back at the source.
	Link Mode = "Link"
)

// ParseMode accepts "copy" or "link" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "copy":
		return Copy, nil
	case "link":
		return Link, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want Copy or Link)", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == Copy || m == Link
}

func (m Mode) String() string {
	return string(m)
}

// UnmarshalJSON rejects anything other than "Copy" or "Link".
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !Mode(s).Valid() {
		return fmt.Errorf("invalid mode %q", s)
	}
	*m = Mode(s)
	return nil
}

// SyncRule is a single directory synchronization rule.
type SyncRule struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Mode    Mode   `json:"mode"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

// New returns a disabled Copy rule with a freshly generated id.
func New(from, to string) SyncRule {
	return SyncRule{
		ID:   NewID(),
		From: from,
		To:   to,
		Mode: Copy,
	}
}

// NewID returns a time-ordered unique identifier (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the random source does; fall back to a v4 id.
		return uuid.NewString()
	}
	return id.String()
}

// Active reports whether the rule is enabled and has no error recorded.
func (r SyncRule) Active() bool {
	return r.Enabled && r.Error == ""
}

// Field names a mutable attribute of a SyncRule.
type Field string

const (
	FieldFrom    Field = "from"
	FieldTo      Field = "to"
	FieldMode    Field = "mode"
	FieldEnabled Field = "enabled"
)

// Locked reports whether edits of f are refused while a rule is enabled.
func (f Field) Locked() bool {
	return f != FieldEnabled
}

// Decode parses a persisted rule document. It returns an error unless the
// document is a JSON array whose elements are all rule-shaped objects with a
// non-empty id and a known mode. Unknown fields are ignored.
func Decode(data []byte) ([]SyncRule, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document is not a rule list: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("document is null")
	}

	rules := make([]SyncRule, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, elem := range raw {
		var r SyncRule
		if err := json.Unmarshal(elem, &r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %s", i, r.ID)
		}
		seen[r.ID] = true
		if !r.Mode.Valid() {
			return nil, fmt.Errorf("rule %d: invalid mode %q", i, r.Mode)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Encode serializes rules as a JSON array, preserving order.
func Encode(rules []SyncRule) ([]byte, error) {
	if rules == nil {
		rules = []SyncRule{}
	}
	return json.Marshal(rules)
}
