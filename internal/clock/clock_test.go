package clock

import (
	"testing"
	"time"
)

func TestFakeSleepUntilFiresOnAdvance(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)

	timer := f.SleepUntil(start.Add(60 * time.Second))
	select {
	case <-timer.C():
		t.Fatal("timer fired before deadline")
	default:
	}

	f.Advance(59 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired 1s early")
	default:
	}

	f.Advance(1 * time.Second)
	select {
	case fired := <-timer.C():
		if !fired.Equal(start.Add(60 * time.Second)) {
			t.Fatalf("fire time = %v, want %v", fired, start.Add(60*time.Second))
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestFakeSleepUntilPastDeadlineFiresImmediately(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)
	timer := f.SleepUntil(start.Add(-1 * time.Second))
	select {
	case <-timer.C():
	default:
		t.Fatal("expected immediate fire for a past deadline")
	}
}

func TestFakeTimerStopPreventsFiring(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	timer := f.SleepUntil(start.Add(10 * time.Second))
	if !timer.Stop() {
		t.Fatal("expected Stop to succeed before firing")
	}
	f.Advance(20 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer should not fire")
	default:
	}
}
