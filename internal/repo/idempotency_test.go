package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateGetRoundTrip(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "823441", "user", "upd-1", 42, 1, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.TicketID != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "823441", "user", "upd-1", now)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.TicketID != 42 {
		t.Fatalf("TicketID = %d, want 42", got.TicketID)
	}

	// Different scope must miss.
	if _, err := GetIdempotency(ctx, db, "823441", "thread-9", "upd-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across scopes, got %v", err)
	}
}

func TestIdempotency_DuplicateKeyRejected(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "51", "thread-1", "k1", 1, 1, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "51", "thread-1", "k1", 2, 1, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key on a different thread is a distinct operation.
	if _, err := CreateIdempotency(ctx, db, "51", "thread-2", "k1", 3, 1, time.Hour); err != nil {
		t.Fatalf("cross-scope create: %v", err)
	}
}

func TestIdempotency_ExpiredRecordsAreInvisible(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "9", "user", "old", 7, 1, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := time.Now().UTC().Add(time.Minute)
	if _, err := GetIdempotency(ctx, db, "9", "user", "old", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be invisible, got %v", err)
	}
}

func TestIdempotency_EmptyScopeNeverMatches(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	if _, err := GetIdempotency(context.Background(), db, "9", "  ", "k", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank scope, got %v", err)
	}
}
