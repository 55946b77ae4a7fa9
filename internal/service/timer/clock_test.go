package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeRunsInDueOrder(t *testing.T) {
	f := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var order []int
	f.Arm(3*time.Second, func() { order = append(order, 3) })
	f.Arm(1*time.Second, func() { order = append(order, 1) })
	f.Arm(2*time.Second, func() { order = append(order, 2) })

	f.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected order after 2s: %v", order)
	}
	f.Advance(time.Second)
	if len(order) != 3 || order[2] != 3 {
		t.Fatalf("unexpected order after 3s: %v", order)
	}
}

func TestFakeCancel(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ran := false
	tok := f.Arm(time.Second, func() { ran = true })
	if !tok.Cancel() {
		t.Fatalf("expected cancel to succeed")
	}
	if tok.Cancel() {
		t.Fatalf("second cancel must report false")
	}
	f.Advance(time.Minute)
	if ran {
		t.Fatalf("cancelled callback ran")
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
}

func TestFakeCallbackSeesDueTime(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)
	var seen time.Time
	f.Arm(5*time.Second, func() { seen = f.Now() })
	f.Advance(time.Minute)
	if !seen.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("callback saw %v", seen)
	}
	if !f.Now().Equal(start.Add(time.Minute)) {
		t.Fatalf("clock not at target: %v", f.Now())
	}
}

func TestFakeNestedArm(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	f.Arm(time.Second, func() {
		count++
		f.Arm(time.Second, func() { count++ })
	})
	f.Advance(3 * time.Second)
	if count != 2 {
		t.Fatalf("expected nested timer to run, count=%d", count)
	}
}

func TestRealClockFiresAndCancels(t *testing.T) {
	c := Real()
	var n int32
	done := make(chan struct{})
	c.Arm(5*time.Millisecond, func() { atomic.AddInt32(&n, 1); close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("real timer did not fire")
	}
	tok := c.Arm(time.Hour, func() { atomic.AddInt32(&n, 1) })
	if !tok.Cancel() {
		t.Fatalf("expected cancel of pending timer")
	}
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("unexpected fire count %d", n)
	}
}
