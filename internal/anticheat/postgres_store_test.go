package anticheat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/playguard/playguard/internal/pagination"
	"github.com/playguard/playguard/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	r := storedReport(1, "tokencatcher")
	r.Flags = []Flag{{
		Type:   FlagScoreRateTooHigh,
		Time:   r.EndTime,
		Detail: map[string]float64{"scorePerSecond": 42},
	}}
	r.Valid = false

	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Hash != r.Hash || got.Valid != r.Valid {
		t.Errorf("got %+v, want %+v", got, r)
	}
	if len(got.Flags) != 1 || got.Flags[0].Type != FlagScoreRateTooHigh {
		t.Errorf("flags round-trip failed: %+v", got.Flags)
	}
	if got.Flags[0].Detail["scorePerSecond"] != 42 {
		t.Errorf("flag detail round-trip failed: %+v", got.Flags[0].Detail)
	}
}

func TestPostgresStoreRecordIdempotent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	r := storedReport(2, "tokencatcher")
	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	// Retried best-effort writes must not error on the second attempt.
	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("second Record: %v", err)
	}
}

func TestPostgresStoreGetMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestPostgresStoreListByGamePaginates(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := store.Record(ctx, storedReport(i, "gemcrush")); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	page, err := store.ListByGame(ctx, "gemcrush", 3, nil)
	if err != nil {
		t.Fatalf("ListByGame: %v", err)
	}
	if len(page) != 3 || page[0].ID != fmt.Sprintf("%032d", 5) {
		t.Fatalf("unexpected first page: %+v", page)
	}

	cursor := &pagination.Cursor{EndTime: page[2].EndTime, ID: page[2].ID}
	rest, err := store.ListByGame(ctx, "gemcrush", 10, cursor)
	if err != nil {
		t.Fatalf("ListByGame with cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != fmt.Sprintf("%032d", 2) {
		t.Fatalf("unexpected second page: %+v", rest)
	}
}
