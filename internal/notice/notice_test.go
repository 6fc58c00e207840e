package notice

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
)

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

func TestSeverityString(t *testing.T) {
	tests := map[Severity]string{
		Info:         "info",
		Success:      "success",
		Warning:      "warning",
		Error:        "error",
		Severity(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("Severity(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestPostKeepsInsertionOrderAndIncreasingIDs(t *testing.T) {
	c := NewCenter(WithClock(clockz.NewFakeClock()))
	defer c.Close()

	c.Post("first", Info)
	c.Post("second", Warning)
	c.Post("second", Warning)

	got := c.Notices()
	want := []Notice{
		{ID: 1, Message: "first", Severity: Info},
		{ID: 2, Message: "second", Severity: Warning},
		{ID: 3, Message: "second", Severity: Warning},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Notices() mismatch (-want +got):\n%s", diff)
	}
}

func TestNoticesExpireIndependently(t *testing.T) {
	clock := clockz.NewFakeClock()
	c := NewCenter(WithClock(clock))
	defer c.Close()

	c.Post("long", Info)
	clock.Advance(2 * time.Second)
	c.PostFor("short", Error, time.Second)

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(c.Notices()) == 1 })
	if got := c.Notices()[0].Message; got != "long" {
		t.Fatalf("expected remaining notice %q, got %q", "long", got)
	}

	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(c.Notices()) == 0 })
}

func TestDefaultDurationOverride(t *testing.T) {
	clock := clockz.NewFakeClock()
	c := NewCenter(WithClock(clock), WithDuration(100*time.Millisecond))
	defer c.Close()

	c.Post("hello", Success)
	clock.Advance(99 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if len(c.Notices()) != 1 {
		t.Fatal("notice expired before its duration")
	}

	clock.Advance(time.Millisecond)
	clock.BlockUntilReady()
	waitFor(t, func() bool { return len(c.Notices()) == 0 })
}

func TestSubscribeSeesPostAndExpiry(t *testing.T) {
	clock := clockz.NewFakeClock()
	c := NewCenter(WithClock(clock))
	defer c.Close()

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	n := c.Post("saved", Success)
	clock.Advance(DefaultDuration)
	clock.BlockUntilReady()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	})

	mu.Lock()
	want := []Event{{Kind: Posted, Notice: n}, {Kind: Expired, Notice: n}}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	mu.Unlock()

	unsubscribe()
	c.Post("ignored", Info)
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Errorf("expected no events after unsubscribe, got %d", len(events))
	}
}

func TestCloseDropsNewNotices(t *testing.T) {
	c := NewCenter(WithClock(clockz.NewFakeClock()))
	c.Post("before", Info)
	c.Close()
	c.Close()

	c.Post("after", Info)
	if got := len(c.Notices()); got != 1 {
		t.Errorf("expected 1 notice after close, got %d", got)
	}
}
