package health

import (
	"context"
	"errors"
	"testing"
)

func TestCheckAll_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("store", func(ctx context.Context) Status {
		return Status{Healthy: true, Detail: "in-memory"}
	})
	r.Register("sessions", func(ctx context.Context) Status {
		return Status{Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("expected aggregate healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "store" || statuses[1].Name != "sessions" {
		t.Errorf("names not stamped: %+v", statuses)
	}
	for _, s := range statuses {
		if s.LatencyMs < 0 {
			t.Errorf("negative latency for %s", s.Name)
		}
	}
}

func TestCheckAll_OneUnhealthyDegradesAggregate(t *testing.T) {
	dbErr := errors.New("connection refused")

	r := NewRegistry()
	r.Register("store", func(ctx context.Context) Status {
		return Status{Healthy: false, Detail: dbErr.Error()}
	})
	r.Register("sessions", func(ctx context.Context) Status {
		return Status{Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("expected aggregate unhealthy")
	}
	if statuses[0].Detail != dbErr.Error() {
		t.Errorf("detail lost: %+v", statuses[0])
	}
	if !statuses[1].Healthy {
		t.Error("healthy subsystem reported unhealthy")
	}
}

func TestCheckAll_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}
