// Package notice keeps the queue of short-lived user-facing messages.
package notice

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// DefaultDuration is how long a notice stays visible.
const DefaultDuration = 5 * time.Second

// Severity classifies a notice.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is one message in the queue.
type Notice struct {
	ID       int64
	Message  string
	Severity Severity
}

// EventKind tells observers whether a notice appeared or expired.
type EventKind int

const (
	Posted EventKind = iota
	Expired
)

// Event is delivered to observers whenever the queue changes.
type Event struct {
	Kind   EventKind
	Notice Notice
}

// Center owns the notice queue. Every notice is removed by its own timer;
// there is no capacity limit and no early dismissal.
type Center struct {
	clock    clockz.Clock
	duration time.Duration

	mu      sync.Mutex
	nextID  int64
	notices []Notice
	subs    map[int]func(Event)
	nextSub int
	done    chan struct{}
	closed  bool
}

// Option configures a Center.
type Option func(*Center)

// WithClock sets the clock used for expiry timers.
func WithClock(clock clockz.Clock) Option {
	return func(c *Center) {
		c.clock = clock
	}
}

// WithDuration overrides DefaultDuration.
func WithDuration(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.duration = d
		}
	}
}

// NewCenter creates an empty Center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		clock:    clockz.RealClock,
		duration: DefaultDuration,
		subs:     make(map[int]func(Event)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post appends a notice that expires after the center's default duration.
func (c *Center) Post(message string, severity Severity) Notice {
	return c.PostFor(message, severity, c.duration)
}

// PostFor appends a notice that expires after d. Identical messages are
// never merged; each call yields an independent notice.
func (c *Center) PostFor(message string, severity Severity, d time.Duration) Notice {
	c.mu.Lock()
	c.nextID++
	n := Notice{ID: c.nextID, Message: message, Severity: severity}
	if c.closed {
		c.mu.Unlock()
		return n
	}
	c.notices = append(c.notices, n)
	timer := c.clock.NewTimer(d)
	subs := c.subscribers()
	c.mu.Unlock()

	go c.expire(n, timer)

	for _, fn := range subs {
		fn(Event{Kind: Posted, Notice: n})
	}
	return n
}

// Notices returns the visible notices in insertion order.
func (c *Center) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

// Subscribe registers fn to be called on every post and expiry.
// The returned function removes the subscription.
func (c *Center) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Close stops all pending expiry timers. Notices posted afterwards are not queued.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Center) expire(n Notice, timer clockz.Timer) {
	select {
	case <-timer.C():
	case <-c.done:
		timer.Stop()
		return
	}

	c.mu.Lock()
	removed := false
	for i, cur := range c.notices {
		if cur.ID == n.ID {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			removed = true
			break
		}
	}
	subs := c.subscribers()
	c.mu.Unlock()

	if !removed {
		return
	}
	for _, fn := range subs {
		fn(Event{Kind: Expired, Notice: n})
	}
}

// subscribers snapshots the observer list; callers hold c.mu.
func (c *Center) subscribers() []func(Event) {
	out := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
