package timectrl

import (
	"testing"
	"time"
)

func TestManualClockAdvanceFiresDueWaiters(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	early := c.After(time.Second)
	late := c.After(5 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case got := <-early:
		if want := start.Add(2 * time.Second); !got.Equal(want) {
			t.Fatalf("early fired at %v, want %v", got, want)
		}
	default:
		t.Fatalf("early waiter did not fire")
	}
	select {
	case <-late:
		t.Fatalf("late waiter fired too soon")
	default:
	}
	if got := c.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
}

func TestManualClockAutoAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.AutoAdvance = true

	var hooks int
	c.OnAdvance = func(time.Time) { hooks++ }

	for i := 0; i < 3; i++ {
		<-c.After(time.Second)
	}
	if got, want := c.Now(), start.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
	if hooks != 3 {
		t.Fatalf("OnAdvance ran %d times, want 3", hooks)
	}
}

func TestWallClockAfter(t *testing.T) {
	var c Clock = WallClock{}
	before := c.Now()
	<-c.After(time.Millisecond)
	if !c.Now().After(before) {
		t.Fatalf("wall clock did not move")
	}
}
