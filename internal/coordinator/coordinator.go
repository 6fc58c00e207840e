// Package coordinator keeps an external watcher service in step with the
// enabled flags of the rule store and feeds the service's reports back.
package coordinator

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/capitan"

	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/signals"
	"github.com/mahyarmirrashed/dsd/internal/store"
)

// Watcher is the external service that performs the actual watching.
// It tracks watches by rule id.
type Watcher interface {
	Start(ctx context.Context, id, from, to string, mode rule.Mode) error
	Stop(ctx context.Context, id string) error
}

// Coordinator issues start and stop commands on enabled transitions. The
// store flips enabled optimistically; command results arrive later and only
// ever set or clear the rule's error.
type Coordinator struct {
	store   *store.Store
	watcher Watcher
	ctx     context.Context
	sync    bool

	unsubscribe func()

	mu       sync.Mutex
	states   map[string]State
	attempts map[string]uint64
	wg       sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSyncDispatch runs watcher commands on the caller's goroutine instead of
// spawning one per command. Intended for deterministic tests.
func WithSyncDispatch() Option {
	return func(c *Coordinator) {
		c.sync = true
	}
}

// WithContext sets the context passed to watcher commands.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		c.ctx = ctx
	}
}

// New creates a Coordinator and subscribes it to s. Rules already enabled in
// s get no start command until Resume is called.
func New(s *store.Store, w Watcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    s,
		watcher:  w,
		ctx:      context.Background(),
		states:   make(map[string]State),
		attempts: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = s.Subscribe(c.observe)
	return c
}

// Resume issues a start command for every rule that is enabled in the store
// but has no watch requested yet, e.g. after loading persisted rules.
func (c *Coordinator) Resume() {
	for _, r := range c.store.Rules() {
		if !r.Enabled {
			continue
		}
		c.mu.Lock()
		st := c.states[r.ID]
		c.mu.Unlock()
		if st.Enabled() {
			continue
		}
		if r.Error != "" {
			c.store.SetError(r.ID, "")
		}
		c.start(r)
	}
}

// Report applies an asynchronous report from the watcher service. An empty
// message clears the error. Reports for unknown or disabled rules are dropped.
func (c *Coordinator) Report(id, message string) {
	c.apply(id, message, func(st State) (State, bool) {
		switch {
		case message != "" && st.Enabled():
			return StateErrored, true
		case message == "" && st == StateErrored:
			return StateActive, true
		}
		return st, true
	})
}

// reportAttempt applies a start failure only while attempt is still the
// latest command for id and the rule is still starting.
func (c *Coordinator) reportAttempt(id string, attempt uint64, message string) {
	c.apply(id, message, func(st State) (State, bool) {
		if c.attempts[id] != attempt || st != StateStarting {
			return st, false
		}
		return StateErrored, true
	})
}

// apply records message on the rule when it is enabled and decide accepts
// the current state. decide runs under c.mu inside the store's critical
// section, so no transition can slip in between the check and the write.
func (c *Coordinator) apply(id, message string, decide func(State) (State, bool)) {
	capitan.Emit(c.ctx, signals.WatchReported,
		signals.KeyRuleID.Field(id),
		signals.KeyError.Field(message),
	)

	applied := c.store.SetErrorIf(id, message, func(r rule.SyncRule) bool {
		if !r.Enabled {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		next, ok := decide(c.states[id])
		if ok {
			c.transitionLocked(id, next)
		}
		return ok
	})
	if !applied {
		log.Debugf("Dropping report for %s: %s", id, message)
		return
	}
	if message != "" {
		log.Warnf("Rule %s: %s", id, message)
	}
}

// State returns the watch state of the rule with the given id.
func (c *Coordinator) State(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[id]
}

// Wait blocks until every dispatched command has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops observing the store and waits for in-flight commands.
func (c *Coordinator) Close() {
	c.unsubscribe()
	c.wg.Wait()
}

func (c *Coordinator) observe(ch store.Change) {
	switch ch.Kind {
	case store.Updated:
		if ch.Field != rule.FieldEnabled || ch.Before.Enabled == ch.After.Enabled {
			return
		}
		if ch.After.Enabled {
			c.start(ch.After)
		} else {
			c.stop(ch.After.ID, true)
		}
	case store.Removed:
		if ch.Before.Enabled {
			c.stop(ch.Before.ID, false)
		}
		c.mu.Lock()
		if c.states[ch.Before.ID] == StateDisabled {
			delete(c.states, ch.Before.ID)
			delete(c.attempts, ch.Before.ID)
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) start(r rule.SyncRule) {
	c.mu.Lock()
	attempt := c.nextAttemptLocked(r.ID)
	c.transitionLocked(r.ID, StateStarting)
	c.mu.Unlock()

	log.Infof("Starting watch %s: %s -> %s (%s)", r.ID, r.From, r.To, r.Mode)
	c.dispatch(func() {
		err := c.watcher.Start(c.ctx, r.ID, r.From, r.To, r.Mode)

		if err != nil {
			c.reportAttempt(r.ID, attempt, err.Error())
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		// A later transition or report supersedes this result.
		if c.attempts[r.ID] == attempt && c.states[r.ID] == StateStarting {
			c.transitionLocked(r.ID, StateActive)
		}
	})
}

func (c *Coordinator) stop(id string, keep bool) {
	c.mu.Lock()
	attempt := c.nextAttemptLocked(id)
	c.transitionLocked(id, StateStopping)
	c.mu.Unlock()

	log.Infof("Stopping watch %s", id)
	c.dispatch(func() {
		err := c.watcher.Stop(c.ctx, id)
		if err != nil {
			log.Warnf("Stopping watch %s failed: %v", id, err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.attempts[id] != attempt {
			return
		}
		c.transitionLocked(id, StateDisabled)
		if !keep {
			delete(c.states, id)
			delete(c.attempts, id)
		}
	})
}

func (c *Coordinator) dispatch(fn func()) {
	if c.sync {
		fn()
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// nextAttemptLocked tags a new command for id so results of earlier commands
// can be recognized as stale; callers hold c.mu.
func (c *Coordinator) nextAttemptLocked(id string) uint64 {
	c.attempts[id]++
	return c.attempts[id]
}

// transitionLocked records a state change; callers hold c.mu.
func (c *Coordinator) transitionLocked(id string, next State) {
	prev := c.states[id]
	if prev == next {
		return
	}
	c.states[id] = next
	log.Debugf("Rule %s: %s -> %s", id, prev, next)
	capitan.Emit(c.ctx, signals.WatchStateChanged,
		signals.KeyRuleID.Field(id),
		signals.KeyOldState.Field(prev.String()),
		signals.KeyNewState.Field(next.String()),
	)
}
