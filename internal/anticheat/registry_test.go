package anticheat

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

func TestCreateSessionIDFormat(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := reg.Create("tokencatcher", time.Now().UnixMilli())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !sessionIDPattern.MatchString(s.ID) {
			t.Fatalf("session ID %q is not 32 lowercase hex chars", s.ID)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session ID %q", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestCreateUnknownGame(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})

	_, err := reg.Create("poker", time.Now().UnixMilli())
	if !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("rejected create must not register a session, have %d", reg.Len())
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	if s := reg.Get("ffffffffffffffffffffffffffffffff"); s != nil {
		t.Errorf("expected nil for unknown id, got %+v", s)
	}
}

func TestTakeReturnsSessionExactlyOnce(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	s, err := reg.Create("tokencatcher", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got := reg.Take(s.ID); got == nil || got.ID != s.ID {
		t.Fatalf("first Take returned %+v", got)
	}
	if got := reg.Take(s.ID); got != nil {
		t.Errorf("second Take should return nil, got %+v", got)
	}

	// Remove on an already-taken session is a no-op.
	reg.Remove(s.ID)
}

func TestSweepEvictsOnlyStaleSessions(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})

	stale, _ := reg.Create("tokencatcher", time.Now().UnixMilli())
	stale.StartTime = time.Now().Add(-time.Hour).UnixMilli()

	fresh, _ := reg.Create("tokencatcher", time.Now().UnixMilli())

	evicted := reg.Sweep(30 * time.Minute)
	if evicted != 1 {
		t.Fatalf("expected 1 evicted, got %d", evicted)
	}
	if reg.Get(stale.ID) != nil {
		t.Error("stale session should be gone")
	}
	if reg.Get(fresh.ID) == nil {
		t.Error("fresh session should survive the sweep")
	}
}

func TestSweepEmptyRegistry(t *testing.T) {
	reg := NewRegistry([]string{"tokencatcher"})
	if evicted := reg.Sweep(time.Minute); evicted != 0 {
		t.Errorf("expected 0 evicted, got %d", evicted)
	}
}
