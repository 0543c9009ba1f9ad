package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

func TestAppendResponse_OrderingIsDeterministic(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()
	now := time.Now().UTC()

	tk, err := CreateTicket(ctx, db, 100, "", now)
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	// Two responses sharing one timestamp plus a later one: order must be
	// (created_at, id) ascending.
	if _, err := AppendResponse(db, tk.ID, 100, domain.RoleUser, "first", "", "", now); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := AppendResponse(db, tk.ID, 51, domain.RoleStaff, "second", "", "", now); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := AppendResponse(db, tk.ID, 100, domain.RoleUser, "third", "", "", now.Add(time.Second)); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := ListResponses(db, tk.ID, 0)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(out) != 3 || out[0].Content != "first" || out[1].Content != "second" || out[2].Content != "third" {
		t.Fatalf("transcript order = %+v", out)
	}

	if n, err := CountResponses(db, tk.ID); err != nil || n != 3 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
}

func TestListResponsesPage(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()
	now := time.Now().UTC()

	tk, _ := CreateTicket(ctx, db, 100, "", now)
	for i := 0; i < 5; i++ {
		_, _ = AppendResponse(db, tk.ID, 100, domain.RoleUser, fmt.Sprintf("msg %d", i), "", "", now.Add(time.Duration(i)*time.Second))
	}

	page, err := ListResponsesPage(db, tk.ID, 2, 2)
	if err != nil {
		t.Fatalf("ListResponsesPage: %v", err)
	}
	if len(page) != 2 || page[0].Content != "msg 2" || page[1].Content != "msg 3" {
		t.Fatalf("page = %+v", page)
	}
}

func TestAppendResponse_StoresAttachment(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	ctx := context.Background()
	now := time.Now().UTC()

	tk, _ := CreateTicket(ctx, db, 100, "", now)
	r, err := AppendResponse(db, tk.ID, 100, domain.RoleUser, "", "file-9", "photo", now)
	if err != nil {
		t.Fatalf("AppendResponse: %v", err)
	}

	got, err := GetResponse(db, r.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if got.AttachmentRef != "file-9" || got.AttachmentKind != "photo" || !got.HasPayload() {
		t.Fatalf("response = %+v", got)
	}
}

func TestGetResponse_NotFound(t *testing.T) {
	db := newTicketRepoDB(t, allModels()...)
	if _, err := GetResponse(db, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
