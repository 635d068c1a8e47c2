package task

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"dayboard/internal/model"
	"dayboard/internal/owner"
	"dayboard/internal/recur"
	"dayboard/internal/recurring"
	"dayboard/internal/reorder"
	"dayboard/internal/store"
)

func newHandlerForTests(t *testing.T) (*Handler, *store.Memory) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st := store.NewMemory()
	rs := recurring.NewService(st, recur.DefaultLimits(), 14, logger)
	rc := reorder.NewCoordinator(st, logger)
	return NewHandler(st, rc, rs, logger), st
}

func jsonReq(t *testing.T, ownerID, method, path string, body any) *http.Request {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(owner.WithOwner(req.Context(), ownerID))
}

func seedScope(t *testing.T, st *store.Memory, ownerID, date string, titles ...string) []model.Task {
	t.Helper()
	var out []model.Task
	for _, title := range titles {
		created, err := st.CreateTask(context.Background(), model.Task{
			OwnerID:       ownerID,
			Title:         title,
			ScheduledDate: &date,
		})
		if err != nil {
			t.Fatalf("seed task: %v", err)
		}
		out = append(out, created)
	}
	return out
}

func TestTasksRoot_CreateThenList(t *testing.T) {
	h, _ := newHandlerForTests(t)

	for _, title := range []string{"inbox zero", "book dentist"} {
		rec := httptest.NewRecorder()
		h.TasksRoot(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks", map[string]any{
			"title":         title,
			"scheduledDate": "2026-03-02",
		}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	h.TasksRoot(rec, jsonReq(t, "alice", http.MethodGet, "/api/tasks?date=2026-03-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got []model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	if got[0].Title != "inbox zero" || got[1].Title != "book dentist" {
		t.Fatalf("unexpected order: %q then %q", got[0].Title, got[1].Title)
	}
	if !(got[0].Position < got[1].Position) {
		t.Fatalf("positions not increasing: %q vs %q", got[0].Position, got[1].Position)
	}
}

func TestTasksRoot_RejectsBadInput(t *testing.T) {
	h, _ := newHandlerForTests(t)

	rec := httptest.NewRecorder()
	h.TasksRoot(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks", map[string]any{"title": "  "}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.TasksRoot(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks", map[string]any{
		"title":         "x",
		"scheduledDate": "03/02/2026",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.TasksRoot(rec, jsonReq(t, "alice", http.MethodGet, "/api/tasks?date=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date filter status = %d", rec.Code)
	}
}

func TestTasksRoot_MissingOwner(t *testing.T) {
	h, _ := newHandlerForTests(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	h.TasksRoot(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTasksSub_MoveReordersScope(t *testing.T) {
	h, st := newHandlerForTests(t)
	date := "2026-03-02"
	seeded := seedScope(t, st, "alice", date, "first", "second", "third")

	rec := httptest.NewRecorder()
	h.TasksSub(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks/"+string(seeded[2].ID)+"/move", map[string]any{
		"date": date,
		"from": 2,
		"to":   0,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("move status = %d, body %s", rec.Code, rec.Body.String())
	}

	got, err := st.FindTasksInScope(context.Background(), "alice", &date)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	titles := []string{got[0].Title, got[1].Title, got[2].Title}
	want := []string{"third", "first", "second"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("order after move = %v, want %v", titles, want)
		}
	}
}

func TestTasksSub_MoveStaleViewIsRetryable(t *testing.T) {
	h, st := newHandlerForTests(t)
	date := "2026-03-02"
	seeded := seedScope(t, st, "alice", date, "first", "second", "third")

	// Client claims the task is at index 0 while it is really at 2.
	rec := httptest.NewRecorder()
	h.TasksSub(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks/"+string(seeded[2].ID)+"/move", map[string]any{
		"date": date,
		"from": 0,
		"to":   1,
	}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Retryable bool `json:"retryable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Retryable {
		t.Fatal("expected retryable conflict")
	}
}

func TestTasksSub_MoveRejectsBadIndexes(t *testing.T) {
	h, st := newHandlerForTests(t)
	date := "2026-03-02"
	seeded := seedScope(t, st, "alice", date, "first", "second")

	rec := httptest.NewRecorder()
	h.TasksSub(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks/"+string(seeded[0].ID)+"/move", map[string]any{
		"date": date,
		"from": 0,
		"to":   9,
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.TasksSub(rec, jsonReq(t, "alice", http.MethodPost, "/api/tasks/"+string(seeded[0].ID)+"/move", map[string]any{
		"date": date,
		"from": 0,
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing to status = %d", rec.Code)
	}
}
