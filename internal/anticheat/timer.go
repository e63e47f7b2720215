package anticheat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SweepTimer periodically evicts abandoned sessions from a Registry. Without
// it, every tab closed mid-game would leak a session forever.
type SweepTimer struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex // guards stop
	stop    chan struct{}
	running atomic.Bool
}

// NewSweepTimer creates a sweeper that runs every interval and evicts
// sessions older than maxAge.
func NewSweepTimer(registry *Registry, interval, maxAge time.Duration, logger *slog.Logger) *SweepTimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepTimer{
		registry: registry,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Start launches the sweep loop in a goroutine. Calling Start on a running
// timer is a no-op. The loop captures its stop channel at launch, so a loop
// from a previous Start/Stop cycle can never observe a later cycle's channel.
func (t *SweepTimer) Start(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	stop := make(chan struct{})
	t.mu.Lock()
	t.stop = stop
	t.mu.Unlock()
	go t.loop(ctx, stop)
}

// Stop halts the sweep loop. Safe to call more than once.
func (t *SweepTimer) Stop() {
	if t.running.CompareAndSwap(true, false) {
		t.mu.Lock()
		close(t.stop)
		t.mu.Unlock()
	}
}

// Running reports whether the sweep loop is active.
func (t *SweepTimer) Running() bool {
	return t.running.Load()
}

func (t *SweepTimer) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("session sweeper started",
		"interval", t.interval.String(), "maxAge", t.maxAge.String())

	for {
		select {
		case <-ctx.Done():
			t.running.Store(false)
			return
		case <-stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *SweepTimer) sweep() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("sweep panic", "panic", fmt.Sprint(r))
		}
	}()
	if evicted := t.registry.Sweep(t.maxAge); evicted > 0 {
		t.logger.Info("swept stale sessions",
			"evicted", evicted, "remaining", t.registry.Len())
	}
}
