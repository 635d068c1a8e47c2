// Package task exposes the HTTP surface for listing ordered scopes,
// creating tasks and applying drag-and-drop moves.
package task

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"dayboard/internal/model"
	"dayboard/internal/owner"
	"dayboard/internal/recurring"
	"dayboard/internal/reorder"
	"dayboard/internal/store"
)

type Handler struct {
	store     store.Store
	reorder   *reorder.Coordinator
	recurring *recurring.Service
	logger    *log.Logger
}

func NewHandler(st store.Store, rc *reorder.Coordinator, rs *recurring.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: st, reorder: rc, recurring: rs, logger: logger}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

// parseScope maps the date query parameter to an ordering scope.
// "" and "unscheduled" mean the backlog; anything else must be a date.
func parseScope(raw string) (*string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "unscheduled" {
		return nil, true
	}
	if _, err := model.ParseDate(raw); err != nil {
		return nil, false
	}
	return &raw, true
}

// /api/tasks  (collection)
func (h *Handler) TasksRoot(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner.FromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	switch r.Method {
	case http.MethodGet:
		scope, ok := parseScope(r.URL.Query().Get("date"))
		if !ok {
			writeErr(w, 400, "bad date")
			return
		}

		// Opportunistic top-up: listing a scope is the natural moment to
		// refill lagging recurring templates. Best effort only.
		if h.recurring != nil {
			if _, err := h.recurring.EnsureTasksGenerated(r.Context(), ownerID); err != nil {
				h.logger.Printf("task: top up for %s: %v", ownerID, err)
			}
		}

		ts, err := h.store.FindTasksInScope(r.Context(), ownerID, scope)
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, ts)
		return

	case http.MethodPost:
		var in struct {
			Title         string          `json:"title"`
			Description   string          `json:"description"`
			ScheduledDate *string         `json:"scheduledDate"`
			DueDate       *string         `json:"dueDate"`
			CategoryID    *string         `json:"categoryId"`
			Priority      *model.Priority `json:"priority"`
			Section       *model.Section  `json:"section"`
		}
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, 400, "bad json")
			return
		}
		if strings.TrimSpace(in.Title) == "" {
			writeErr(w, 400, "title is required")
			return
		}
		for _, d := range []*string{in.ScheduledDate, in.DueDate} {
			if d != nil && *d != "" {
				if _, err := model.ParseDate(*d); err != nil {
					writeErr(w, 400, "bad date")
					return
				}
			}
		}

		t, err := h.store.CreateTask(r.Context(), model.Task{
			OwnerID:       ownerID,
			Title:         in.Title,
			Description:   in.Description,
			ScheduledDate: in.ScheduledDate,
			DueDate:       in.DueDate,
			CategoryID:    in.CategoryID,
			Priority:      in.Priority,
			Section:       in.Section,
		})
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 201, t)
		return

	default:
		writeErr(w, 405, "method not allowed")
		return
	}
}

// /api/tasks/{id} and /api/tasks/{id}/move
func (h *Handler) TasksSub(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner.FromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tasks/"), "/")
	if tail == "" {
		writeErr(w, 404, "not found")
		return
	}
	parts := strings.Split(tail, "/")
	id := model.TaskID(parts[0])

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, 405, "method not allowed")
			return
		}
		t, err := h.store.GetTask(r.Context(), ownerID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, 404, "not found")
			return
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, t)
		return
	}

	if len(parts) == 2 && parts[1] == "move" {
		if r.Method != http.MethodPost {
			writeErr(w, 405, "method not allowed")
			return
		}
		var in struct {
			Date *string `json:"date"`
			From *int    `json:"from"`
			To   *int    `json:"to"`
		}
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, 400, "bad json")
			return
		}
		if in.From == nil || in.To == nil {
			writeErr(w, 400, `missing field "from" or "to"`)
			return
		}
		scope := in.Date
		if scope != nil {
			if _, err := model.ParseDate(*scope); err != nil {
				writeErr(w, 400, "bad date")
				return
			}
		}

		updates, err := h.reorder.Apply(r.Context(), reorder.Move{
			OwnerID: ownerID,
			Date:    scope,
			TaskID:  id,
			From:    *in.From,
			To:      *in.To,
		})
		switch {
		case errors.Is(err, reorder.ErrBadMove):
			writeErr(w, 400, err.Error())
			return
		case errors.Is(err, store.ErrConflict):
			// Retryable: the caller rolls back its optimistic view,
			// re-reads the scope and may try again.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":     "scope changed concurrently",
				"retryable": true,
			})
			return
		case err != nil:
			writeErr(w, 500, err.Error())
			return
		}

		writeJSON(w, 200, map[string]any{
			"ok":      true,
			"updates": updates,
		})
		return
	}

	writeErr(w, 404, "not found")
}
