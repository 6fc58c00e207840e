package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"

	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/signals"
	"github.com/mahyarmirrashed/dsd/internal/store"
)

// DefaultDebounce is the quiescence window before a write.
const DefaultDebounce = 1000 * time.Millisecond

// Bridge writes the store's full rule list to a KV after every burst of
// changes. A change arriving while a write is pending cancels that write
// and schedules a new one; the write always reflects the state at fire time.
type Bridge struct {
	kv       KV
	store    *store.Store
	clock    clockz.Clock
	debounce time.Duration

	unsubscribe func()

	mu      sync.Mutex
	gen     uint64
	pending bool
	cancel  chan struct{}
	timer   clockz.Timer
	closed  bool

	// writeMu serializes writes from timers and Flush.
	writeMu sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDebounce sets the quiescence window.
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.debounce = d
		}
	}
}

// WithClock sets the clock used for the debounce timer.
// Use this with clockz.FakeClock for deterministic tests.
func WithClock(clock clockz.Clock) Option {
	return func(b *Bridge) {
		b.clock = clock
	}
}

// NewBridge subscribes to s and persists it into kv.
func NewBridge(s *store.Store, kv KV, opts ...Option) *Bridge {
	b := &Bridge{
		kv:       kv,
		store:    s,
		clock:    clockz.RealClock,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.unsubscribe = s.Subscribe(b.observe)
	return b
}

func (b *Bridge) observe(ch store.Change) {
	if ch.Kind == store.Loaded {
		// The loaded list came from kv; nothing to write back.
		return
	}
	b.schedule()
}

// schedule cancels any pending write and starts a new debounce window.
func (b *Bridge) schedule() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.stopLocked()
	b.gen++
	b.pending = true
	b.cancel = make(chan struct{})
	b.timer = b.clock.NewTimer(b.debounce)
	go b.wait(b.gen, b.timer, b.cancel)

	capitan.Emit(context.Background(), signals.PersistScheduled,
		signals.KeyDebounce.Field(b.debounce),
	)
}

func (b *Bridge) wait(gen uint64, timer clockz.Timer, cancel <-chan struct{}) {
	select {
	case <-timer.C():
	case <-cancel:
		return
	}

	b.mu.Lock()
	if gen != b.gen || !b.pending {
		b.mu.Unlock()
		return
	}
	b.pending = false
	b.timer = nil
	b.cancel = nil
	b.mu.Unlock()

	if err := b.Write(); err != nil {
		log.Errorf("Failed to persist rules: %v", err)
	}
}

// stopLocked cancels the pending timer; callers hold b.mu.
func (b *Bridge) stopLocked() {
	if b.cancel != nil {
		close(b.cancel)
		b.cancel = nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Pending reports whether a write is scheduled.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Write serializes the current rule list and commits it to the KV.
func (b *Bridge) Write() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	rules := b.store.Rules()
	err := b.commit(rules)
	if err != nil {
		capitan.Error(context.Background(), signals.PersistFailed,
			signals.KeyError.Field(err.Error()),
		)
		return err
	}

	log.Debugf("Persisted %d rules", len(rules))
	capitan.Emit(context.Background(), signals.PersistSucceeded,
		signals.KeyCount.Field(len(rules)),
	)
	return nil
}

func (b *Bridge) commit(rules []rule.SyncRule) error {
	doc, err := rule.Encode(rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := b.kv.Set(Key, doc); err != nil {
		return fmt.Errorf("failed to stage rules: %w", err)
	}
	if err := b.kv.Flush(); err != nil {
		return fmt.Errorf("failed to flush rules: %w", err)
	}
	return nil
}

// Flush performs a pending write immediately. It is a no-op when nothing
// is pending.
func (b *Bridge) Flush() error {
	b.mu.Lock()
	if !b.pending {
		b.mu.Unlock()
		return nil
	}
	b.stopLocked()
	b.gen++
	b.pending = false
	b.mu.Unlock()

	return b.Write()
}

// Close stops observing the store and writes any pending change.
func (b *Bridge) Close() error {
	b.unsubscribe()
	err := b.Flush()

	b.mu.Lock()
	b.closed = true
	b.stopLocked()
	b.mu.Unlock()
	return err
}
