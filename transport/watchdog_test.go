package transport

import (
	"testing"
	"time"
)

func TestWatchdogFiresOncePerEpisode(t *testing.T) {
	wd := NewWatchdog(50 * time.Millisecond)
	wd.Start()
	defer wd.Stop()

	select {
	case <-wd.C():
	case <-time.After(time.Second):
		t.Fatal("watchdog never fired")
	}

	// Without a feed it must stay quiet.
	select {
	case <-wd.C():
		t.Fatal("watchdog fired a second time without a feed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchdogRearmsOnFeed(t *testing.T) {
	wd := NewWatchdog(50 * time.Millisecond)
	wd.Start()
	defer wd.Stop()

	select {
	case <-wd.C():
	case <-time.After(time.Second):
		t.Fatal("first episode never fired")
	}

	wd.Feed()

	select {
	case <-wd.C():
	case <-time.After(time.Second):
		t.Fatal("watchdog did not re-arm after feed")
	}
}

func TestWatchdogStaysQuietWhileFed(t *testing.T) {
	wd := NewWatchdog(100 * time.Millisecond)
	wd.Start()
	defer wd.Stop()

	done := time.After(400 * time.Millisecond)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			wd.Feed()
		case <-wd.C():
			t.Fatal("watchdog fired despite regular feeds")
		case <-done:
			return
		}
	}
}

func TestWatchdogStopIdempotent(t *testing.T) {
	wd := NewWatchdog(time.Second)
	wd.Start()
	wd.Stop()
	wd.Stop()
}
