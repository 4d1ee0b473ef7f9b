package olsr

import (
	"testing"
	"time"
)

// TestVirtualClock_FiresInInstantThenInsertionOrder covers §5's "events
// scheduled for the same instant fire in insertion order".
func TestVirtualClock_FiresInInstantThenInsertionOrder(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)

	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "second-at-2s") })
	clock.AfterFunc(1*time.Second, func() { order = append(order, "first-at-1s") })
	clock.AfterFunc(1*time.Second, func() { order = append(order, "second-at-1s") })

	clock.Advance(3 * time.Second)

	want := []string{"first-at-1s", "second-at-1s", "second-at-2s"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

// TestVirtualClock_CascadingSchedule: a callback that schedules another
// callback within the same Advance window still fires before Advance
// returns, as long as its target instant falls within the window.
func TestVirtualClock_CascadingSchedule(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)

	fired := false
	clock.AfterFunc(1*time.Second, func() {
		clock.AfterFunc(1*time.Second, func() { fired = true })
	})

	clock.Advance(3 * time.Second)
	if !fired {
		t.Error("cascaded callback scheduled at t=2s should have fired within a 3s Advance")
	}
}

// TestVirtualClock_CancelPreventsFiring.
func TestVirtualClock_CancelPreventsFiring(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)

	fired := false
	cancel := clock.AfterFunc(1*time.Second, func() { fired = true })
	if !cancel() {
		t.Fatal("first cancel call should report it stopped a pending timer")
	}
	if cancel() {
		t.Error("second cancel call on an already-cancelled timer should report false")
	}

	clock.Advance(2 * time.Second)
	if fired {
		t.Error("cancelled callback must not fire")
	}
}

// TestVirtualClock_NowAdvancesToTarget: with no pending timers, Now()
// reflects the full requested Advance.
func TestVirtualClock_NowAdvancesToTarget(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)
	clock.Advance(5 * time.Second)
	if got := clock.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("got %v, want %v", got, start.Add(5*time.Second))
	}
}
