package anticheat

import (
	"context"
	"testing"
	"time"
)

func TestSweepTimerEvictsStaleSessions(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	s, _ := reg.Create("tokencatcher", time.Now().Add(-time.Hour).UnixMilli())

	timer := NewSweepTimer(reg, 10*time.Millisecond, 30*time.Minute, nil)
	timer.Start(context.Background())
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Get(s.ID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never evicted the stale session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweepTimerStartIdempotent(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	timer := NewSweepTimer(reg, time.Hour, time.Hour, nil)

	timer.Start(context.Background())
	timer.Start(context.Background()) // no-op
	if !timer.Running() {
		t.Error("timer should be running")
	}

	timer.Stop()
	timer.Stop() // safe to call twice
	if timer.Running() {
		t.Error("timer should be stopped")
	}
}

func TestSweepTimerRestart(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	timer := NewSweepTimer(reg, 10*time.Millisecond, 30*time.Minute, nil)

	timer.Start(context.Background())
	timer.Stop()

	// A fresh cycle after Stop must sweep again; the old loop's stop
	// channel belongs to the old loop alone.
	s, _ := reg.Create("tokencatcher", time.Now().Add(-time.Hour).UnixMilli())
	timer.Start(context.Background())
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Get(s.ID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("restarted sweeper never evicted the stale session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweepTimerStopsOnContextCancel(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	timer := NewSweepTimer(reg, 10*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	timer.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for timer.Running() {
		if time.Now().After(deadline) {
			t.Fatal("timer never observed context cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
