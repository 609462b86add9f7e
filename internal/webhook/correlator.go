// Package webhook correlates asynchronous call-completion events with the
// workers awaiting them.
//
// The telephony platform POSTs completion events when a call ends. The call
// id only exists once the dial returns, so the worker registers right after
// placing the call; an event that wins that race lands in a short-lived
// buffer and is handed over on Register. A registration stays live until
// Forget, so platforms that post an interim completed event before the
// recording is processed reach the same waiter with the follow-up. Unmatched
// events older than the buffer TTL are dropped.
package webhook

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferTTL is how long an event without a registered waiter is kept
// before it is dropped.
const DefaultBufferTTL = 60 * time.Second

// Event is one call-completion notification.
type Event struct {
	// CallID is the platform's id for the completed call.
	CallID string

	// Status is the platform's final call status ("completed", "failed",
	// "no-answer", ...). Empty means completed.
	Status string

	// RecordingAvailable reports that the call audio can be fetched.
	RecordingAvailable bool

	// RecordingURL optionally locates the recording when the platform
	// serves it from a dedicated URL.
	RecordingURL string

	// Duration is the call length as reported by the platform, zero when
	// not reported.
	Duration time.Duration

	// Error carries the platform's failure description for failed calls.
	Error string
}

// buffered is an event that arrived before its waiter.
type buffered struct {
	event   Event
	expires time.Time
}

// Option configures a [Correlator].
type Option func(*Correlator)

// WithBufferTTL overrides how long unmatched events are buffered.
// Default: [DefaultBufferTTL].
func WithBufferTTL(ttl time.Duration) Option {
	return func(c *Correlator) { c.ttl = ttl }
}

// WithLogger sets the logger for dropped events. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) { c.logger = logger }
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// Correlator matches completion events to waiting workers by call id.
// Safe for concurrent use.
type Correlator struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	waiters map[string]chan Event
	pending map[string]buffered
}

// NewCorrelator returns an empty correlator.
func NewCorrelator(opts ...Option) *Correlator {
	c := &Correlator{
		ttl:     DefaultBufferTTL,
		logger:  slog.Default(),
		now:     time.Now,
		waiters: make(map[string]chan Event),
		pending: make(map[string]buffered),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register announces interest in callID and returns a channel that receives
// completion events until Forget. If an event already arrived and is still
// within the buffer TTL it is delivered immediately. An unread event is
// replaced by a newer delivery, so the channel always yields the latest
// known state.
//
// Callers must call Forget when they stop waiting (done, timeout, shutdown)
// to release the registration.
func (c *Correlator) Register(callID string) <-chan Event {
	ch := make(chan Event, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if buf, ok := c.pending[callID]; ok {
		delete(c.pending, callID)
		ch <- buf.event
		return ch
	}
	c.waiters[callID] = ch
	return ch
}

// Forget drops the registration for callID. Safe to call when no
// registration exists.
func (c *Correlator) Forget(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, callID)
}

// Deliver routes event to the registered waiter, or buffers it for the TTL
// when no waiter exists yet. The waiter stays registered for follow-up
// events; a delivery for an id with an unread or still-buffered event
// replaces the earlier one.
func (c *Correlator) Deliver(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if ch, ok := c.waiters[event.CallID]; ok {
		// Capacity-1 channel; the waiter may not have read yet, so replace
		// any unread event rather than blocking.
		select {
		case <-ch:
		default:
		}
		ch <- event
		return
	}

	c.pending[event.CallID] = buffered{
		event:   event,
		expires: c.now().Add(c.ttl),
	}
}

// PendingCount returns the number of buffered unmatched events, expired
// entries excluded.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.pending)
}

// sweepLocked drops buffered events past their TTL. Callers must hold c.mu.
func (c *Correlator) sweepLocked() {
	now := c.now()
	for id, buf := range c.pending {
		if now.After(buf.expires) {
			delete(c.pending, id)
			c.logger.Warn("dropping expired call-completion event",
				"call_id", id,
				"status", buf.event.Status)
		}
	}
}
