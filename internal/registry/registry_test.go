package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/repo"
)

func newRegistryDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("registry_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.SupportTicket{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRegister_ResolvesBothDirections(t *testing.T) {
	r := New()
	r.Register(7, 100, "thread-a")

	e, ok := r.ResolveByThread("thread-a")
	if !ok || e.TicketID != 7 || e.UserID != 100 {
		t.Fatalf("ResolveByThread = %+v, %v", e, ok)
	}
	e, ok = r.ResolveByUser(100)
	if !ok || e.Thread != "thread-a" {
		t.Fatalf("ResolveByUser = %+v, %v", e, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegister_EmptyThreadIgnored(t *testing.T) {
	r := New()
	r.Register(7, 100, "")
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
	if _, ok := r.ResolveByUser(100); ok {
		t.Fatal("expected no binding for user")
	}
}

func TestRegister_UserRebindEvictsOldThread(t *testing.T) {
	r := New()
	r.Register(7, 100, "thread-a")
	r.Register(8, 100, "thread-b")

	if _, ok := r.ResolveByThread("thread-a"); ok {
		t.Fatal("stale thread binding survived rebind")
	}
	e, ok := r.ResolveByUser(100)
	if !ok || e.TicketID != 8 || e.Thread != "thread-b" {
		t.Fatalf("ResolveByUser = %+v, %v", e, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestUnregister_DropsBinding(t *testing.T) {
	r := New()
	r.Register(7, 100, "thread-a")
	r.Unregister("thread-a")

	if _, ok := r.ResolveByThread("thread-a"); ok {
		t.Fatal("thread binding survived unregister")
	}
	if _, ok := r.ResolveByUser(100); ok {
		t.Fatal("user binding survived unregister")
	}

	// Unknown handles are a no-op.
	r.Unregister("thread-zzz")
}

func TestUnregister_KeepsNewerUserBinding(t *testing.T) {
	r := New()
	r.Register(7, 100, "thread-a")
	r.Register(8, 100, "thread-b")

	// Dropping the old handle must not evict the user's current binding.
	r.Unregister("thread-a")
	if _, ok := r.ResolveByUser(100); !ok {
		t.Fatal("current user binding evicted by stale unregister")
	}
}

func TestRebuild_RestoresOpenTicketsFromStore(t *testing.T) {
	db := newRegistryDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, _ := repo.CreateTicket(ctx, db, 100, "", now)
	_ = repo.SetThreadHandle(ctx, db, a.ID, "thread-a", 0)

	// Never got a thread handle: skipped on rebuild.
	_, _ = repo.CreateTicket(ctx, db, 200, "", now)

	// Closed: not listed by the store.
	c, _ := repo.CreateTicket(ctx, db, 300, "", now)
	_ = repo.SetThreadHandle(ctx, db, c.ID, "thread-c", 0)
	_, _ = repo.CloseTicketIfOpen(ctx, db, c.ID, now)

	r := New()
	r.Register(99, 999, "thread-stale")
	if err := r.Rebuild(ctx, db); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	e, ok := r.ResolveByThread("thread-a")
	if !ok || e.TicketID != a.ID || e.UserID != 100 {
		t.Fatalf("ResolveByThread = %+v, %v", e, ok)
	}
	if _, ok := r.ResolveByThread("thread-stale"); ok {
		t.Fatal("rebuild kept a binding not present in the store")
	}
	if _, ok := r.ResolveByUser(200); ok {
		t.Fatal("handleless ticket was registered")
	}
}
