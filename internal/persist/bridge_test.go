package persist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"

	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/signals"
	"github.com/mahyarmirrashed/dsd/internal/store"
)

// memKV is an in-memory KV that records every flushed document.
type memKV struct {
	mu       sync.Mutex
	values   map[string][]byte
	staged   map[string][]byte
	flushed  [][]byte
	failNext error
}

func newMemKV() *memKV {
	return &memKV{values: make(map[string][]byte), staged: make(map[string][]byte)}
}

func (m *memKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	for k, v := range m.staged {
		m.values[k] = v
		if k == Key {
			m.flushed = append(m.flushed, v)
		}
	}
	m.staged = make(map[string][]byte)
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.flushed...)
}

func (m *memKV) failFlush(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// waitFor polls cond until it holds or a second elapses.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func decodeWrite(t *testing.T, doc []byte) []rule.SyncRule {
	t.Helper()
	rules, err := rule.Decode(doc)
	if err != nil {
		t.Fatalf("written document is malformed: %v\n%s", err, doc)
	}
	return rules
}

func TestBridgeCoalescesBurst(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))
	defer b.Close()

	s.Append("/a", "/b")
	clock.Advance(500 * time.Millisecond)
	s.Update(0, rule.FieldTo, "/c")
	clock.Advance(500 * time.Millisecond)
	s.Update(0, rule.FieldMode, rule.Link)

	// The first two windows were superseded before they elapsed.
	clock.Advance(999 * time.Millisecond)
	clock.BlockUntilReady()
	time.Sleep(10 * time.Millisecond)
	if n := len(kv.writes()); n != 0 {
		t.Fatalf("expected no write inside the window, got %d", n)
	}
	if !b.Pending() {
		t.Error("expected a pending write")
	}

	clock.Advance(time.Millisecond)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(kv.writes()) == 1 })
	time.Sleep(10 * time.Millisecond)

	writes := kv.writes()
	if len(writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(writes))
	}
	want := s.Rules()
	if diff := cmp.Diff(want, decodeWrite(t, writes[0])); diff != "" {
		t.Errorf("write does not match final state (-want +got):\n%s", diff)
	}
	if want[0].Mode != rule.Link || want[0].To != "/c" {
		t.Errorf("unexpected final state %+v", want[0])
	}
}

func TestBridgeWritesEachQuietBurst(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock), WithDebounce(100*time.Millisecond))
	defer b.Close()

	s.Append("/a", "/b")
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(kv.writes()) == 1 })

	s.Toggle(0)
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(kv.writes()) == 2 })

	got := decodeWrite(t, kv.writes()[1])
	if len(got) != 1 || !got[0].Enabled {
		t.Errorf("second write should carry the toggle, got %+v", got)
	}
}

func TestBridgeIgnoresLoad(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))
	defer b.Close()

	s.Load([]rule.SyncRule{{ID: "1", Mode: rule.Copy}})
	if b.Pending() {
		t.Error("loading should not schedule a write")
	}
}

func TestBridgeFailureIsRetriedOnNextChange(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))
	defer b.Close()

	kv.failFlush(errors.New("disk full"))
	s.Append("/a", "/b")
	clock.Advance(DefaultDebounce)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return !b.Pending() })
	time.Sleep(10 * time.Millisecond)
	if n := len(kv.writes()); n != 0 {
		t.Fatalf("expected failed write, got %d writes", n)
	}
	if s.Len() != 1 {
		t.Fatal("in-memory state lost after failed write")
	}

	s.Append("/c", "/d")
	clock.Advance(DefaultDebounce)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(kv.writes()) == 1 })
	if got := decodeWrite(t, kv.writes()[0]); len(got) != 2 {
		t.Errorf("retry should persist both rules, got %d", len(got))
	}
}

func TestBridgeFlushAndClose(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if n := len(kv.writes()); n != 0 {
		t.Fatalf("Flush with nothing pending wrote %d times", n)
	}

	s.Append("/a", "/b")
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := len(kv.writes()); n != 1 {
		t.Fatalf("Close should write the pending change, got %d writes", n)
	}

	// The cancelled timer must not produce a second write.
	clock.Advance(DefaultDebounce)
	clock.BlockUntilReady()
	time.Sleep(10 * time.Millisecond)
	s.Append("/c", "/d")
	if n := len(kv.writes()); n != 1 {
		t.Errorf("expected no writes after Close, got %d", n)
	}
}

func TestBridgeScenarioAppendPersistsDisabledRule(t *testing.T) {
	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))
	defer b.Close()

	r := s.Append("/a", "/b")
	clock.Advance(DefaultDebounce)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(kv.writes()) == 1 })

	want := []rule.SyncRule{{ID: r.ID, From: "/a", To: "/b", Mode: rule.Copy, Enabled: false}}
	if diff := cmp.Diff(want, LoadRules(kv)); diff != "" {
		t.Errorf("persisted document mismatch (-want +got):\n%s", diff)
	}
}

func TestBridgeFailureEmitsSignal(t *testing.T) {
	failures := make(chan string, 4)
	listener := capitan.Hook(signals.PersistFailed, func(_ context.Context, e *capitan.Event) {
		msg, _ := signals.KeyError.From(e)
		failures <- msg
	})
	defer listener.Close()

	clock := clockz.NewFakeClock()
	kv := newMemKV()
	s := store.New()
	b := NewBridge(s, kv, WithClock(clock))
	defer b.Close()

	kv.failFlush(errors.New("read-only file system"))
	s.Append("/a", "/b")
	clock.Advance(DefaultDebounce)
	clock.BlockUntilReady()

	select {
	case msg := <-failures:
		if !strings.Contains(msg, "read-only file system") {
			t.Errorf("unexpected failure message %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no persist failure signal")
	}
}
