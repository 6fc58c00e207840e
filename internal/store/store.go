// Package store holds the ordered set of sync rules and publishes every
// committed mutation to its subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/signals"
	"github.com/zoobzio/capitan"
)

var (
	// ErrAlreadyLoaded is returned by a second call to Load.
	ErrAlreadyLoaded = errors.New("store already loaded")
	// ErrLocked is returned when editing from, to or mode of an enabled rule.
	ErrLocked = errors.New("cannot modify configuration while active")
	// ErrIndex is returned for a position outside the collection.
	ErrIndex = errors.New("rule index out of range")
	// ErrValue is returned when a value does not fit the field.
	ErrValue = errors.New("invalid value for field")
)

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind int

const (
	Loaded ChangeKind = iota
	Appended
	Updated
	Removed
	Reported
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case Loaded:
		return "loaded"
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Reported:
		return "reported"
	default:
		return "unknown"
	}
}

// Change describes one committed mutation. Before and After hold the affected
// rule around the mutation (Before is zero for Appended and Loaded, After is
// zero for Removed). Rules is the full collection after the mutation.
type Change struct {
	Kind   ChangeKind
	Index  int
	Field  rule.Field
	Before rule.SyncRule
	After  rule.SyncRule
	Rules  []rule.SyncRule
}

// Store is the single owner of the rule list. All accessors return copies.
type Store struct {
	mu      sync.Mutex
	rules   []rule.SyncRule
	loaded  bool
	subs    []subscription
	nextSub int
	newID   func() string

	queue       []Change
	dispatching bool
}

type subscription struct {
	id int
	fn func(Change)
}

// New returns an empty Store.
func New() *Store {
	return &Store{newID: rule.NewID}
}

// Subscribe registers fn to receive every Change in commit order. Changes are
// delivered synchronously by the mutating call before it returns, except for
// mutations issued from inside a subscriber, which are delivered right after
// the running subscriber returns. The returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Load populates the store from a previously persisted list. It has an effect
// only once; nil (absent or malformed data) leaves the store empty.
func (s *Store) Load(rules []rule.SyncRule) error {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return ErrAlreadyLoaded
	}
	s.loaded = true
	if rules == nil {
		return nil
	}
	s.rules = append([]rule.SyncRule(nil), rules...)

	capitan.Emit(context.Background(), signals.StoreLoaded,
		signals.KeyCount.Field(len(s.rules)),
	)
	s.publish(Change{Kind: Loaded, Index: -1})
	return nil
}

// Append adds a disabled Copy rule at the end and returns it.
func (s *Store) Append(from, to string) rule.SyncRule {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rule.New(from, to)
	r.ID = s.newID()
	s.rules = append(s.rules, r)
	s.publish(Change{Kind: Appended, Index: len(s.rules) - 1, After: r})
	return r
}

// Update sets one field of the rule at index. Edits of anything but enabled
// fail with ErrLocked while the rule is enabled, leaving it untouched.
// Changing enabled clears any recorded error.
func (s *Store) Update(index int, field rule.Field, value any) error {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rules) {
		return fmt.Errorf("%w: %d", ErrIndex, index)
	}
	before := s.rules[index]
	if before.Enabled && field.Locked() {
		capitan.Warn(context.Background(), signals.StoreEditRejected,
			signals.KeyRuleID.Field(before.ID),
			signals.KeyField.Field(string(field)),
		)
		return ErrLocked
	}

	after := before
	switch field {
	case rule.FieldFrom, rule.FieldTo:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s wants a string, got %T", ErrValue, field, value)
		}
		if field == rule.FieldFrom {
			after.From = v
		} else {
			after.To = v
		}
	case rule.FieldMode:
		v, ok := value.(rule.Mode)
		if !ok || !v.Valid() {
			return fmt.Errorf("%w: mode %v", ErrValue, value)
		}
		after.Mode = v
	case rule.FieldEnabled:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: enabled wants a bool, got %T", ErrValue, value)
		}
		if v == before.Enabled {
			return nil
		}
		after.Enabled = v
		after.Error = ""
	default:
		return fmt.Errorf("%w: unknown field %q", ErrValue, field)
	}

	if after == before {
		return nil
	}
	s.rules[index] = after
	s.publish(Change{Kind: Updated, Index: index, Field: field, Before: before, After: after})
	return nil
}

// Toggle flips enabled on the rule at index, deciding from the value the
// store holds at the moment of the call. It returns the new value.
func (s *Store) Toggle(index int) (bool, error) {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rules) {
		return false, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	before := s.rules[index]
	after := before
	after.Enabled = !before.Enabled
	after.Error = ""
	s.rules[index] = after
	s.publish(Change{Kind: Updated, Index: index, Field: rule.FieldEnabled, Before: before, After: after})
	return after.Enabled, nil
}

// Remove deletes the rule at index; later rules shift down by one.
func (s *Store) Remove(index int) (rule.SyncRule, error) {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rules) {
		return rule.SyncRule{}, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	removed := s.rules[index]
	s.rules = append(s.rules[:index:index], s.rules[index+1:]...)
	s.publish(Change{Kind: Removed, Index: index, Before: removed})
	return removed, nil
}

// SetError records a watcher report on the rule with the given id. An empty
// message clears the error. It reports whether a rule with that id exists.
func (s *Store) SetError(id, message string) bool {
	return s.SetErrorIf(id, message, nil)
}

// SetErrorIf is SetError applied only when cond accepts the rule as it is at
// that moment; cond runs under the store lock and must not call back into the
// store. It reports whether the error was applied.
func (s *Store) SetErrorIf(id, message string, cond func(rule.SyncRule) bool) bool {
	defer s.deliver()
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(id)
	if index < 0 {
		return false
	}
	before := s.rules[index]
	if cond != nil && !cond(before) {
		return false
	}
	if before.Error == message {
		return true
	}
	after := before
	after.Error = message
	s.rules[index] = after
	s.publish(Change{Kind: Reported, Index: index, Before: before, After: after})
	return true
}

// Rules returns a copy of the collection in display order.
func (s *Store) Rules() []rule.SyncRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Rule returns a copy of the rule at index.
func (s *Store) Rule(index int) (rule.SyncRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rules) {
		return rule.SyncRule{}, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	return s.rules[index], nil
}

// Find returns the rule with the given id.
func (s *Store) Find(id string) (rule.SyncRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(id)
	if index < 0 {
		return rule.SyncRule{}, false
	}
	return s.rules[index], true
}

// Len returns the number of rules.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshot() []rule.SyncRule {
	out := make([]rule.SyncRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// publish queues ch for delivery; callers hold s.mu.
func (s *Store) publish(ch Change) {
	ch.Rules = s.snapshot()
	s.queue = append(s.queue, ch)
}

// deliver hands queued changes to subscribers in commit order with s.mu
// released, so a subscriber may call back into the store. A mutation made
// from inside a subscriber is delivered once the current delivery returns.
func (s *Store) deliver() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		ch := s.queue[0]
		s.queue = s.queue[1:]
		subs := append([]subscription(nil), s.subs...)
		s.mu.Unlock()

		capitan.Emit(context.Background(), signals.StoreChanged,
			signals.KeyChange.Field(ch.Kind.String()),
			signals.KeyIndex.Field(ch.Index),
			signals.KeyField.Field(string(ch.Field)),
		)
		for _, sub := range subs {
			sub.fn(ch)
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}
