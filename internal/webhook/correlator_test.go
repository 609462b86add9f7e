package webhook

import (
	"sync"
	"testing"
	"time"
)

func TestCorrelator_RegisterThenDeliver(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	ch := c.Register("call-1")

	c.Deliver(Event{CallID: "call-1", RecordingAvailable: true})

	select {
	case ev := <-ch:
		if ev.CallID != "call-1" || !ev.RecordingAvailable {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestCorrelator_EarlyEventBuffered(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()

	// The webhook fires before the worker is back at Register.
	c.Deliver(Event{CallID: "call-1", RecordingAvailable: true})
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("pending: want 1, got %d", got)
	}

	ch := c.Register("call-1")
	select {
	case ev := <-ch:
		if !ev.RecordingAvailable {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("buffered event should be delivered on Register")
	}
	if got := c.PendingCount(); got != 0 {
		t.Errorf("pending after match: want 0, got %d", got)
	}
}

func TestCorrelator_DuplicateLatestWins(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()

	c.Deliver(Event{CallID: "call-1", Status: "failed"})
	c.Deliver(Event{CallID: "call-1", Status: "completed", RecordingAvailable: true})

	ch := c.Register("call-1")
	ev := <-ch
	if ev.Status != "completed" || !ev.RecordingAvailable {
		t.Errorf("latest event should win: %+v", ev)
	}
}

func TestCorrelator_DuplicateAfterRegisterReplacesUnread(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	ch := c.Register("call-1")

	c.Deliver(Event{CallID: "call-1", Status: "failed"})
	c.Deliver(Event{CallID: "call-1", Status: "completed"})

	ev := <-ch
	if ev.Status != "completed" {
		t.Errorf("unread event should be replaced by the duplicate: %+v", ev)
	}
}

func TestCorrelator_WaiterSurvivesInterimEvent(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	ch := c.Register("call-1")

	// Interim completion before the recording is processed.
	c.Deliver(Event{CallID: "call-1", Status: "completed"})
	ev := <-ch
	if ev.RecordingAvailable {
		t.Fatalf("interim event should not carry a recording: %+v", ev)
	}

	// The follow-up must reach the same registration.
	c.Deliver(Event{CallID: "call-1", Status: "completed", RecordingAvailable: true})
	select {
	case ev := <-ch:
		if !ev.RecordingAvailable {
			t.Errorf("follow-up event lost: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was dropped after the first delivery")
	}
	if got := c.PendingCount(); got != 0 {
		t.Errorf("follow-up should not buffer while the waiter is live: pending %d", got)
	}
}

func TestCorrelator_ExpiredEventsDropped(t *testing.T) {
	t.Parallel()

	clock := time.Now()
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	c := NewCorrelator(WithBufferTTL(time.Minute), withClock(now))

	c.Deliver(Event{CallID: "stale"})
	advance(2 * time.Minute)

	if got := c.PendingCount(); got != 0 {
		t.Errorf("expired event should be swept: pending %d", got)
	}

	ch := c.Register("stale")
	select {
	case ev := <-ch:
		t.Errorf("expired event must not be delivered: %+v", ev)
	default:
	}
}

func TestCorrelator_Forget(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	c.Register("call-1")
	c.Forget("call-1")

	// With the waiter gone the event lands in the buffer instead.
	c.Deliver(Event{CallID: "call-1"})
	if got := c.PendingCount(); got != 1 {
		t.Errorf("event after Forget should buffer: pending %d", got)
	}
}

func TestCorrelator_ConcurrentRegisterDeliver(t *testing.T) {
	t.Parallel()

	const calls = 50

	c := NewCorrelator()

	var wg sync.WaitGroup
	errs := make(chan string, calls)

	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('0'+i/26))
			ch := c.Register(id)
			c.Deliver(Event{CallID: id, RecordingAvailable: true})
			select {
			case ev := <-ch:
				if ev.CallID != id {
					errs <- "wrong call id: " + ev.CallID
				}
			case <-time.After(time.Second):
				errs <- "timeout waiting for " + id
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
