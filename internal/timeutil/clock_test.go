package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	clock := RealClock{}
	done := make(chan struct{})
	clock.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("callback did not run")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)

	if got := clock.Now(); !got.Equal(fixedTime) {
		t.Errorf("got %v, want %v", got, fixedTime)
	}
	clock.Advance(2500 * time.Millisecond)
	if got := clock.Since(fixedTime); got != 2500*time.Millisecond {
		t.Errorf("Since() = %v, want 2.5s", got)
	}
}

func TestMockClock_AfterFuncFiresInDeadlineOrder(t *testing.T) {
	clock := NewMockClock(time.Time{})
	var order []int
	clock.AfterFunc(700*time.Millisecond, func() { order = append(order, 2) })
	clock.AfterFunc(300*time.Millisecond, func() { order = append(order, 1) })

	clock.Advance(299 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("fired early: %v", order)
	}
	clock.Advance(time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
	if n := clock.PendingTimers(); n != 0 {
		t.Errorf("PendingTimers() = %d, want 0", n)
	}
}

func TestMockClock_AfterFuncStop(t *testing.T) {
	clock := NewMockClock(time.Time{})
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() on a pending timer should report true")
	}
	if timer.Stop() {
		t.Error("second Stop() should report false")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestMockClock_AfterFuncCanRegisterMore(t *testing.T) {
	clock := NewMockClock(time.Time{})
	count := 0
	var again func()
	again = func() {
		count++
		if count < 3 {
			clock.AfterFunc(100*time.Millisecond, again)
		}
	}
	clock.AfterFunc(100*time.Millisecond, again)

	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(1200 * time.Millisecond)

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticked before its period")
	default:
	}

	clock.Advance(200 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("expected a tick")
	}

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
