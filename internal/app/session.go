// Package app wires the rule store, persistence, watcher coordination and
// notices into the operations a user interface invokes.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/mahyarmirrashed/dsd/internal/coordinator"
	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/persist"
	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/store"
)

// LockedMessage is shown when editing a rule that is enabled.
const LockedMessage = "cannot modify configuration while active"

// Picker asks the user for a directory. ok is false when the user cancels.
type Picker interface {
	PickDirectory(title string) (path string, ok bool)
}

// Options tune a Session. Zero values select the defaults.
type Options struct {
	// Context is passed to watcher commands.
	Context        context.Context
	Debounce       time.Duration
	NoticeDuration time.Duration
	Clock          clockz.Clock
	SyncDispatch   bool
}

// Session owns every component for one run of the program. It is built once
// at startup; the store is loaded from kv exactly once here.
type Session struct {
	Store       *store.Store
	Notices     *notice.Center
	Coordinator *coordinator.Coordinator
	Bridge      *persist.Bridge
	Gate        *DeletionGate

	picker Picker
}

// New loads the persisted rules from kv and wires the components together.
// A nil picker makes every pick behave as cancelled.
func New(kv persist.KV, w coordinator.Watcher, picker Picker, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	s := store.New()
	if err := s.Load(persist.LoadRules(kv)); err != nil {
		log.Warnf("Loading rules: %v", err)
	}

	notices := notice.NewCenter(
		notice.WithClock(clock),
		notice.WithDuration(opts.NoticeDuration),
	)

	bridgeOpts := []persist.Option{persist.WithClock(clock), persist.WithDebounce(opts.Debounce)}
	coordOpts := []coordinator.Option{}
	if opts.Context != nil {
		coordOpts = append(coordOpts, coordinator.WithContext(opts.Context))
	}
	if opts.SyncDispatch {
		coordOpts = append(coordOpts, coordinator.WithSyncDispatch())
	}

	return &Session{
		Store:       s,
		Notices:     notices,
		Coordinator: coordinator.New(s, w, coordOpts...),
		Bridge:      persist.NewBridge(s, kv, bridgeOpts...),
		Gate:        NewDeletionGate(s, notices),
		picker:      picker,
	}
}

// Resume restarts the watches of rules persisted as enabled.
func (s *Session) Resume() {
	s.Coordinator.Resume()
}

// Report forwards an asynchronous watcher report to the coordinator.
func (s *Session) Report(id, message string) {
	s.Coordinator.Report(id, message)
}

// Add appends a new disabled Copy rule.
func (s *Session) Add(from, to string) rule.SyncRule {
	r := s.Store.Append(from, to)
	log.Infof("Added rule %s", r.ID)
	return r
}

// Toggle flips the rule at index between enabled and disabled.
func (s *Session) Toggle(index int) (bool, error) {
	enabled, err := s.Store.Toggle(index)
	if err != nil {
		s.Notices.Post(err.Error(), notice.Error)
		return false, err
	}
	return enabled, nil
}

// PickFrom asks for a new source directory for the rule at index.
func (s *Session) PickFrom(index int) error {
	return s.pick(index, rule.FieldFrom, "Select source directory")
}

// PickTo asks for a new target directory for the rule at index.
func (s *Session) PickTo(index int) error {
	return s.pick(index, rule.FieldTo, "Select target directory")
}

// SetFrom sets the source directory without a picker.
func (s *Session) SetFrom(index int, path string) error {
	return s.edit(index, rule.FieldFrom, path)
}

// SetTo sets the target directory without a picker.
func (s *Session) SetTo(index int, path string) error {
	return s.edit(index, rule.FieldTo, path)
}

// SetMode changes the copy/link mode of the rule at index.
func (s *Session) SetMode(index int, mode rule.Mode) error {
	return s.edit(index, rule.FieldMode, mode)
}

// Close writes pending changes and releases the components.
func (s *Session) Close() error {
	err := s.Bridge.Close()
	s.Coordinator.Close()
	s.Notices.Close()
	return err
}

func (s *Session) pick(index int, field rule.Field, title string) error {
	r, err := s.Store.Rule(index)
	if err != nil {
		s.Notices.Post(err.Error(), notice.Error)
		return err
	}
	// Refuse before prompting so the user is not asked for a path that
	// cannot be applied.
	if r.Enabled {
		s.Notices.Post(LockedMessage, notice.Warning)
		return store.ErrLocked
	}

	if s.picker == nil {
		return nil
	}
	path, ok := s.picker.PickDirectory(title)
	if !ok {
		log.Debugf("Directory selection for rule %s cancelled", r.ID)
		return nil
	}
	return s.edit(index, field, path)
}

func (s *Session) edit(index int, field rule.Field, value any) error {
	err := s.Store.Update(index, field, value)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrLocked):
		s.Notices.Post(LockedMessage, notice.Warning)
	default:
		s.Notices.Post(fmt.Sprintf("Cannot update %s: %v", field, err), notice.Error)
	}
	return err
}
