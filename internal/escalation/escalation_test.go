package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"assay-backoffice/internal/storage"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs timer i as the runtime would, ignoring stopped timers.
func (c *fakeClock) fire(i int) bool {
	c.mu.Lock()
	t := c.timers[i]
	if t.stopped || t.fired {
		c.mu.Unlock()
		return false
	}
	t.fired = true
	c.mu.Unlock()
	t.fn()
	return true
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Escalation
	err  error
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, esc Escalation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, esc)
	return n.err
}

type harness struct {
	store    *storage.MemoryStore
	notifier *recordingNotifier
	clock    *fakeClock
	outcomes []Outcome
	sched    *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemoryStore(),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{},
	}
	h.sched = New(h.store, h.notifier, Options{
		AfterFunc: h.clock.AfterFunc,
		Now:       func() time.Time { return time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC) },
		OnOutcome: func(o Outcome) { h.outcomes = append(h.outcomes, o) },
	}, zerolog.Nop())
	return h
}

func (h *harness) pendingRate(t *testing.T, id string) {
	t.Helper()
	_, err := h.store.CreateRate(context.Background(), storage.RateRecord{
		ID:            id,
		Type:          storage.RateTypeExchange,
		ItemID:        "ex-" + id,
		Price:         decimal.RequireFromString("12.5"),
		WeekStartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WeekEndDate:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		Status:        storage.StatusPending,
		SubmittedBy:   "u1",
	})
	if err != nil {
		t.Fatalf("seed rate: %v", err)
	}
}

func snapshot(id string) Escalation {
	return Escalation{
		RateID:       id,
		ExchangeName: "X",
		Rate:         decimal.RequireFromString("12.5"),
		WeekStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SubmittedBy:  "Kofi",
	}
}

func TestScheduleRejectsNonPositiveDelay(t *testing.T) {
	h := newHarness(t)
	for _, d := range []time.Duration{0, -time.Minute} {
		if err := h.sched.Schedule(snapshot("r1"), d); !errors.Is(err, ErrInvalidDelay) {
			t.Fatalf("delay %s: expected ErrInvalidDelay, got %v", d, err)
		}
	}
	if len(h.sched.Scheduled()) != 0 || len(h.clock.timers) != 0 {
		t.Fatal("nothing should be armed")
	}
}

func TestFireWhilePendingNotifiesAndCleansUp(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")

	if err := h.sched.Schedule(snapshot("r1"), 5*time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	armed := h.sched.Scheduled()
	if len(armed) != 1 || !armed[0].FireAt.Equal(armed[0].ArmedAt.Add(5*time.Minute)) {
		t.Fatalf("unexpected armed table %+v", armed)
	}

	h.clock.fire(0)

	if len(h.notifier.sent) != 1 || h.notifier.sent[0].ExchangeName != "X" {
		t.Fatalf("expected one escalation, got %+v", h.notifier.sent)
	}
	if len(h.sched.Scheduled()) != 0 {
		t.Fatal("entry should be removed after firing")
	}
	if len(h.outcomes) != 1 || h.outcomes[0].Result != ResultSent {
		t.Fatalf("unexpected outcomes %+v", h.outcomes)
	}
}

func TestFireSkipsDecidedRecord(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")
	if err := h.sched.Schedule(snapshot("r1"), time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.store.SetStatus("r1", storage.StatusApproved)
	h.clock.fire(0)

	if len(h.notifier.sent) != 0 {
		t.Fatal("no escalation expected once approved")
	}
	if len(h.outcomes) != 1 || h.outcomes[0].Result != ResultSkipped || h.outcomes[0].Status != storage.StatusApproved {
		t.Fatalf("unexpected outcomes %+v", h.outcomes)
	}
	if len(h.sched.Scheduled()) != 0 {
		t.Fatal("entry should be removed after a skipped fire")
	}
}

func TestFireReportsStatusFailure(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")
	if err := h.sched.Schedule(snapshot("r1"), time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.store.StatusErr = errors.New("connection refused")
	h.clock.fire(0)

	if len(h.notifier.sent) != 0 {
		t.Fatal("no escalation expected when status is unknown")
	}
	if len(h.outcomes) != 1 || h.outcomes[0].Result != ResultFailed || h.outcomes[0].Err == nil {
		t.Fatalf("unexpected outcomes %+v", h.outcomes)
	}
	if len(h.sched.Scheduled()) != 0 {
		t.Fatal("entry should be removed even when the fire fails")
	}
}

func TestFireReportsNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")
	h.notifier.err = errors.New("gateway down")
	if err := h.sched.Schedule(snapshot("r1"), time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.clock.fire(0)

	if len(h.outcomes) != 1 || h.outcomes[0].Result != ResultFailed {
		t.Fatalf("unexpected outcomes %+v", h.outcomes)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")
	if err := h.sched.Schedule(snapshot("r1"), time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.sched.Cancel("r1")
	h.sched.Cancel("r1")
	h.sched.Cancel("unknown")

	if h.clock.fire(0) {
		t.Fatal("cancelled timer must not fire")
	}
	if len(h.sched.Scheduled()) != 0 || len(h.notifier.sent) != 0 {
		t.Fatal("cancel should leave nothing armed and send nothing")
	}
}

func TestRescheduleReplacesAndStaleFireKeepsNewEntry(t *testing.T) {
	h := newHarness(t)
	h.pendingRate(t, "r1")

	if err := h.sched.Schedule(snapshot("r1"), time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := h.sched.Schedule(snapshot("r1"), 10*time.Minute); err != nil {
		t.Fatalf("re-Schedule: %v", err)
	}

	if !h.clock.timers[0].stopped {
		t.Fatal("first timer should be stopped on re-arm")
	}
	armed := h.sched.Scheduled()
	if len(armed) != 1 || h.clock.timers[1].delay != 10*time.Minute {
		t.Fatalf("expected a single entry with the new delay, got %+v", armed)
	}

	// A fire that raced the re-arm must not evict the newer entry.
	h.sched.fire(&entry{esc: snapshot("r1"), timer: h.clock.timers[0]})
	if len(h.sched.Scheduled()) != 1 {
		t.Fatal("stale fire removed the re-armed entry")
	}

	h.clock.fire(1)
	if len(h.sched.Scheduled()) != 0 {
		t.Fatal("current fire should remove the entry")
	}
}

func TestScheduledOrderingAndClearAll(t *testing.T) {
	h := newHarness(t)
	for _, tc := range []struct {
		id    string
		delay time.Duration
	}{{"late", 10 * time.Minute}, {"early", time.Minute}, {"mid", 5 * time.Minute}} {
		if err := h.sched.Schedule(snapshot(tc.id), tc.delay); err != nil {
			t.Fatalf("Schedule %s: %v", tc.id, err)
		}
	}

	armed := h.sched.Scheduled()
	if len(armed) != 3 || armed[0].RateID != "early" || armed[1].RateID != "mid" || armed[2].RateID != "late" {
		t.Fatalf("unexpected ordering %+v", armed)
	}

	h.sched.ClearAll()
	if len(h.sched.Scheduled()) != 0 {
		t.Fatal("ClearAll should empty the table")
	}
	for i, timer := range h.clock.timers {
		if !timer.stopped {
			t.Fatalf("timer %d not stopped", i)
		}
	}
}

func TestRealTimerFires(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	done := make(chan Outcome, 1)
	sched := New(store, notifier, Options{OnOutcome: func(o Outcome) { done <- o }}, zerolog.Nop())

	_, err := store.CreateRate(context.Background(), storage.RateRecord{
		ID: "r1", Type: storage.RateTypeExchange, ItemID: "ex", Status: storage.StatusPending,
		WeekStartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := sched.Schedule(snapshot("r1"), 10*time.Millisecond); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case o := <-done:
		if o.Result != ResultSent {
			t.Fatalf("unexpected outcome %+v", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
