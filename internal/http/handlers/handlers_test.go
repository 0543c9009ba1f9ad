package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/escalation"
	"github.com/eventdesk/go-support-backend/internal/repo"
	"github.com/eventdesk/go-support-backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRouter lets each test script routing outcomes.
type fakeRouter struct {
	routeUser  func(services.UserMessage) (*services.RoutingResult, error)
	routeStaff func(services.StaffReply) (*services.RoutingResult, error)
	close      func(uint, int64) (bool, error)
	reopen     func(uint, int64) (bool, error)
}

func (f *fakeRouter) RouteUserMessage(_ context.Context, in services.UserMessage) (*services.RoutingResult, error) {
	return f.routeUser(in)
}

func (f *fakeRouter) RouteStaffReply(_ context.Context, in services.StaffReply) (*services.RoutingResult, error) {
	return f.routeStaff(in)
}

func (f *fakeRouter) CloseTicket(_ context.Context, id uint, actor int64) (bool, error) {
	return f.close(id, actor)
}

func (f *fakeRouter) ReopenTicket(_ context.Context, id uint, actor int64) (bool, error) {
	return f.reopen(id, actor)
}

type fakeFeedback struct {
	submit func(int64, string, int, string) (*domain.Feedback, error)
}

func (f *fakeFeedback) Submit(_ context.Context, userID int64, category string, rating int, comment string) (*domain.Feedback, error) {
	return f.submit(userID, category, rating, comment)
}

type fakeMonitor struct {
	snap escalation.Snapshot
}

func (f *fakeMonitor) Snapshot() escalation.Snapshot { return f.snap }

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
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
	if err := db.AutoMigrate(
		&domain.User{}, &domain.SupportTicket{}, &domain.SupportResponse{}, &domain.Feedback{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestRouter(t *testing.T, h *Handlers) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.POST("/messages/user", h.RouteUserMessage)
	r.POST("/messages/staff", h.RouteStaffReply)
	r.GET("/tickets", h.ListTickets)
	r.GET("/tickets/:id/responses", h.ListTicketResponses)
	r.POST("/tickets/:id/close", h.CloseTicket)
	r.POST("/tickets/:id/reopen", h.ReopenTicket)
	r.POST("/feedback", h.SubmitFeedback)
	r.GET("/stats", h.GetStats)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouteUserMessage_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"delivery failed", services.ErrDeliveryFailed, http.StatusAccepted, ""},
		{"invalid content", services.ErrInvalidContent, http.StatusBadRequest, ErrCodeInvalidContent},
		{"blocked", services.ErrUserBlocked, http.StatusForbidden, ErrCodeUserBlocked},
		{"rate limited", services.ErrRateLimited, http.StatusTooManyRequests, ErrCodeRateLimited},
		{"internal", errors.New("boom"), http.StatusInternalServerError, ErrCodeRouteFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := &fakeRouter{routeUser: func(in services.UserMessage) (*services.RoutingResult, error) {
				if in.SenderID != 823441 {
					t.Fatalf("sender = %d", in.SenderID)
				}
				res := &services.RoutingResult{TicketID: 7, Action: services.ActionForwarded}
				if tc.err != nil && !errors.Is(tc.err, services.ErrDeliveryFailed) {
					res = nil
				}
				return res, tc.err
			}}
			h := New(router, nil, nil, StatsSource{})
			w := doJSON(newTestRouter(t, h), http.MethodPost, "/messages/user",
				UserMessageRequest{SenderID: 823441, Content: "hi"}, nil)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.code != "" {
				var resp ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != tc.code {
					t.Fatalf("error body = %s, want code %q", w.Body.String(), tc.code)
				}
			}
		})
	}
}

func TestRouteUserMessage_RejectsBadJSON(t *testing.T) {
	h := New(&fakeRouter{}, nil, nil, StatsSource{})
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodPost, "/messages/user", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRouteUserMessage_DeliveryFailureKeepsResultBody(t *testing.T) {
	router := &fakeRouter{routeUser: func(services.UserMessage) (*services.RoutingResult, error) {
		return &services.RoutingResult{TicketID: 9, Action: services.ActionCreated, ThreadHandle: "thread-9"},
			fmt.Errorf("%w: platform down", services.ErrDeliveryFailed)
	}}
	h := New(router, nil, nil, StatsSource{})
	w := doJSON(newTestRouter(t, h), http.MethodPost, "/messages/user",
		UserMessageRequest{SenderID: 1, Content: "hi"}, nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var res services.RoutingResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.TicketID != 9 || res.Delivered {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRouteStaffReply_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"unknown thread", services.ErrUnknownThread, http.StatusNotFound, ErrCodeUnknownThread},
		{"ticket closed", services.ErrTicketClosed, http.StatusConflict, ErrCodeTicketClosed},
		{"invalid content", services.ErrInvalidContent, http.StatusBadRequest, ErrCodeInvalidContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := &fakeRouter{routeStaff: func(services.StaffReply) (*services.RoutingResult, error) {
				if tc.err != nil {
					return nil, tc.err
				}
				return &services.RoutingResult{TicketID: 7, Delivered: true}, nil
			}}
			h := New(router, nil, nil, StatsSource{})
			w := doJSON(newTestRouter(t, h), http.MethodPost, "/messages/staff",
				StaffReplyRequest{ThreadHandle: "thread-7", StaffID: 51, Content: "hi"}, nil)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.code != "" {
				var resp ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != tc.code {
					t.Fatalf("error body = %s, want code %q", w.Body.String(), tc.code)
				}
			}
		})
	}
}

func TestListTickets_PaginationAndETag(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, _ = repo.CreateTicket(ctx, db, int64(100+i), "", now)
	}

	h := New(&fakeRouter{}, nil, nil, StatsSource{DB: db})
	r := newTestRouter(t, h)

	w := doJSON(r, http.MethodGet, "/tickets?page=1&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag header")
	}

	var resp ListTicketsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tickets) != 2 || resp.Pagination.Total != 5 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("response = %+v", resp)
	}

	// Unchanged data with a matching ETag short-circuits to 304.
	w = doJSON(r, http.MethodGet, "/tickets?page=1&page_size=2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}

	// A write invalidates the ETag.
	_, _ = repo.CreateTicket(ctx, db, 200, "", now.Add(time.Minute))
	w = doJSON(r, http.MethodGet, "/tickets?page=1&page_size=2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("status after write = %d, want 200", w.Code)
	}
}

func TestListTickets_RejectsUnknownStatus(t *testing.T) {
	h := New(&fakeRouter{}, nil, nil, StatsSource{DB: newHandlerDB(t)})
	w := doJSON(newTestRouter(t, h), http.MethodGet, "/tickets?status=pending", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListTickets_ClampsPageSize(t *testing.T) {
	h := New(&fakeRouter{}, nil, nil, StatsSource{DB: newHandlerDB(t)})
	w := doJSON(newTestRouter(t, h), http.MethodGet, "/tickets?page_size=1000&page=-3", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListTicketsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination.PageSize != 100 || resp.Pagination.Page != 1 {
		t.Fatalf("pagination = %+v, want clamped to page 1 size 100", resp.Pagination)
	}
}

func TestListTicketResponses(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	tk, _ := repo.CreateTicket(ctx, db, 100, "", now)
	for i := 0; i < 3; i++ {
		_, _ = repo.AppendResponse(db, tk.ID, 100, domain.RoleUser, fmt.Sprintf("msg %d", i), "", "", now.Add(time.Duration(i)*time.Second))
	}

	h := New(&fakeRouter{}, nil, nil, StatsSource{DB: db})
	r := newTestRouter(t, h)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/tickets/%d/responses", tk.ID), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp ListResponsesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Responses) != 3 || resp.Pagination.Total != 3 {
		t.Fatalf("response = %+v", resp)
	}

	w = doJSON(r, http.MethodGet, "/tickets/9999/responses", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing ticket status = %d, want 404", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/tickets/abc/responses", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", w.Code)
	}
}

func TestCloseAndReopenTicket(t *testing.T) {
	var gotActor int64
	router := &fakeRouter{
		close: func(id uint, actor int64) (bool, error) {
			if id == 9999 {
				return false, services.ErrTicketNotFound
			}
			gotActor = actor
			return true, nil
		},
		reopen: func(id uint, actor int64) (bool, error) {
			return false, nil
		},
	}
	h := New(router, nil, nil, StatsSource{})
	r := newTestRouter(t, h)

	w := doJSON(r, http.MethodPost, "/tickets/7/close", nil, map[string]string{"X-Staff-ID": "51"})
	if w.Code != http.StatusOK {
		t.Fatalf("close status = %d", w.Code)
	}
	var lc LifecycleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &lc); err != nil || lc.TicketID != 7 || !lc.Changed {
		t.Fatalf("close body = %s", w.Body.String())
	}
	if gotActor != 51 {
		t.Fatalf("actor = %d, want 51", gotActor)
	}

	w = doJSON(r, http.MethodPost, "/tickets/9999/close", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing ticket close status = %d, want 404", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/tickets/7/reopen", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reopen status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &lc); err != nil || lc.Changed {
		t.Fatalf("reopen body = %s, want changed=false", w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/tickets/0/close", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero id status = %d, want 400", w.Code)
	}
}

func TestSubmitFeedback(t *testing.T) {
	fb := &fakeFeedback{submit: func(userID int64, category string, rating int, comment string) (*domain.Feedback, error) {
		if rating > 5 {
			return nil, services.ErrInvalidFeedback
		}
		return &domain.Feedback{ID: 1, UserID: userID, Category: category, Rating: rating, Comment: comment}, nil
	}}
	h := New(&fakeRouter{}, fb, nil, StatsSource{})
	r := newTestRouter(t, h)

	w := doJSON(r, http.MethodPost, "/feedback",
		FeedbackRequest{UserID: 100, Category: "food", Rating: 4, Comment: "great"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/feedback",
		FeedbackRequest{UserID: 100, Category: "food", Rating: 9}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid rating status = %d, want 400", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/feedback", FeedbackRequest{UserID: 100}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status = %d, want 400", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, _ = repo.UpsertUser(ctx, db, 100, "Ada", "en", now)
	_, _ = repo.CreateTicket(ctx, db, 100, "", now.Add(-3*time.Hour))

	sweep := escalation.Snapshot{Open: 1, Urgent: 1, SweptAt: now, Escalated: 1}
	h := New(&fakeRouter{}, nil, &fakeMonitor{snap: sweep}, StatsSource{DB: db})

	w := doJSON(newTestRouter(t, h), http.MethodGet, "/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OpenTickets != 1 || resp.UrgentTickets != 1 || resp.TotalUsers != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.LastSweep == nil || resp.LastSweep.Urgent != 1 {
		t.Fatalf("last sweep = %+v", resp.LastSweep)
	}
}

func TestGetStats_HonorsThresholdAndFeedbackWindow(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, _ = repo.UpsertUser(ctx, db, 100, "Ada", "en", now)
	// Waiting 30 minutes: urgent under a 15m threshold, not under the 2h default.
	_, _ = repo.CreateTicket(ctx, db, 100, "", now.Add(-30*time.Minute))

	_, _ = repo.CreateFeedback(ctx, db, 100, "venue", 5, "")
	stale, _ := repo.CreateFeedback(ctx, db, 100, "food", 3, "")
	_ = db.Model(&domain.Feedback{}).Where("id = ?", stale.ID).
		Update("created_at", now.Add(-72*time.Hour)).Error

	h := New(&fakeRouter{}, nil, nil, StatsSource{
		DB:              db,
		UrgentThreshold: 15 * time.Minute,
		FeedbackWindow:  24 * time.Hour,
	})
	w := doJSON(newTestRouter(t, h), http.MethodGet, "/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UrgentTickets != 1 {
		t.Fatalf("urgent = %d, want 1 under the configured threshold", resp.UrgentTickets)
	}
	if resp.FeedbackLastDay != 1 {
		t.Fatalf("feedback last day = %d, want only the fresh entry", resp.FeedbackLastDay)
	}
}

func TestGetStats_OmitsSweepBeforeFirstRun(t *testing.T) {
	h := New(&fakeRouter{}, nil, &fakeMonitor{}, StatsSource{DB: newHandlerDB(t)})
	w := doJSON(newTestRouter(t, h), http.MethodGet, "/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp StatsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.LastSweep != nil {
		t.Fatalf("last sweep = %+v, want omitted", resp.LastSweep)
	}
}
