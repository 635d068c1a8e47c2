package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dayboard/internal/config"
	"dayboard/internal/model"
	"dayboard/internal/owner"
	"dayboard/internal/serverapp"
)

type testApp struct {
	handler http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.Default()
	cfg.Store.Backend = "memory"

	app, err := serverapp.New(serverapp.Options{
		Config: cfg,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return &testApp{handler: app.Handler}
}

func (a *testApp) request(method, path, ownerID string, body any) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if ownerID != "" {
		req.Header.Set(owner.HeaderName, ownerID)
	}
	res := httptest.NewRecorder()
	a.handler.ServeHTTP(res, req)
	return res
}

func TestServer_APIRoutesRequireOwner(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/api/tasks", "/api/recurring"} {
		res := app.request(http.MethodGet, path, "", nil)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s expected 401 without owner header, got %d", path, res.Code)
		}
	}
}

func TestServer_HealthAndReadinessExposeRequestID(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res := app.request(http.MethodGet, path, "", nil)
		if res.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d body=%s", path, res.Code, res.Body.String())
		}
		if rid := strings.TrimSpace(res.Header().Get("X-Request-Id")); rid == "" {
			t.Fatalf("%s missing X-Request-Id header", path)
		}
	}
}

func TestServer_TaskAndRecurringRoundTrip(t *testing.T) {
	app := newTestApp(t)
	const ownerID = "integration"

	createRes := app.request(http.MethodPost, "/api/tasks", ownerID, map[string]any{
		"title":         "write trip report",
		"scheduledDate": "2026-09-01",
	})
	if createRes.Code != http.StatusCreated {
		t.Fatalf("create task expected 201, got %d body=%s", createRes.Code, createRes.Body.String())
	}
	var created model.Task
	if err := json.Unmarshal(createRes.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}

	recurringRes := app.request(http.MethodPost, "/api/recurring", ownerID, map[string]any{
		"title":     "morning review",
		"frequency": "daily",
		"rule":      "daily",
		"startDate": "2026-09-01",
	})
	if recurringRes.Code != http.StatusCreated {
		t.Fatalf("create recurring expected 201, got %d body=%s", recurringRes.Code, recurringRes.Body.String())
	}
	var recurringBody struct {
		Item      model.RecurringTaskItem `json:"item"`
		Generated int                     `json:"generated"`
	}
	if err := json.Unmarshal(recurringRes.Body.Bytes(), &recurringBody); err != nil {
		t.Fatalf("decode recurring response: %v", err)
	}
	if recurringBody.Generated == 0 {
		t.Fatal("expected recurring creation to generate instances")
	}

	listRes := app.request(http.MethodGet, "/api/tasks?date=2026-09-01", ownerID, nil)
	if listRes.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d body=%s", listRes.Code, listRes.Body.String())
	}
	var scope []model.Task
	if err := json.Unmarshal(listRes.Body.Bytes(), &scope); err != nil {
		t.Fatalf("decode scope: %v", err)
	}
	if len(scope) != 2 {
		t.Fatalf("expected manual task plus generated instance, got %d tasks", len(scope))
	}
	if scope[0].ID != created.ID {
		t.Fatalf("expected manual task first, got %q", scope[0].Title)
	}

	moveRes := app.request(http.MethodPost, "/api/tasks/"+string(scope[1].ID)+"/move", ownerID, map[string]any{
		"date": "2026-09-01",
		"from": 1,
		"to":   0,
	})
	if moveRes.Code != http.StatusOK {
		t.Fatalf("move expected 200, got %d body=%s", moveRes.Code, moveRes.Body.String())
	}

	staleRes := app.request(http.MethodPost, "/api/tasks/"+string(scope[1].ID)+"/move", ownerID, map[string]any{
		"date": "2026-09-01",
		"from": 1,
		"to":   0,
	})
	if staleRes.Code != http.StatusConflict {
		t.Fatalf("stale move expected 409, got %d body=%s", staleRes.Code, staleRes.Body.String())
	}

	otherRes := app.request(http.MethodGet, "/api/tasks?date=2026-09-01", "someone-else", nil)
	if otherRes.Code != http.StatusOK {
		t.Fatalf("other owner list expected 200, got %d", otherRes.Code)
	}
	var otherScope []model.Task
	if err := json.Unmarshal(otherRes.Body.Bytes(), &otherScope); err != nil {
		t.Fatalf("decode other scope: %v", err)
	}
	if len(otherScope) != 0 {
		t.Fatalf("expected empty scope for other owner, got %d tasks", len(otherScope))
	}

	pauseRes := app.request(http.MethodPatch, "/api/recurring/"+string(recurringBody.Item.ID), ownerID, map[string]any{
		"active": false,
	})
	if pauseRes.Code != http.StatusOK {
		t.Fatalf("pause expected 200, got %d body=%s", pauseRes.Code, pauseRes.Body.String())
	}
	var paused model.RecurringTaskItem
	if err := json.Unmarshal(pauseRes.Body.Bytes(), &paused); err != nil {
		t.Fatalf("decode paused item: %v", err)
	}
	if paused.IsActive {
		t.Fatal("expected item to be paused")
	}

	deleteRes := app.request(http.MethodDelete, "/api/recurring/"+string(recurringBody.Item.ID), ownerID, nil)
	if deleteRes.Code != http.StatusOK {
		t.Fatalf("delete expected 200, got %d body=%s", deleteRes.Code, deleteRes.Body.String())
	}

	// Generated instances survive template deletion.
	afterRes := app.request(http.MethodGet, "/api/tasks?date=2026-09-01", ownerID, nil)
	var after []model.Task
	if err := json.Unmarshal(afterRes.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode after scope: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected instances to survive template deletion, got %d tasks", len(after))
	}
}
