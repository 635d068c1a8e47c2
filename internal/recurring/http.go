package recurring

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dayboard/internal/model"
	"dayboard/internal/owner"
	"dayboard/internal/store"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// /api/recurring  (collection)
func (h *Handler) ItemsRoot(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner.FromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := h.svc.List(r.Context(), ownerID)
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, items)
		return

	case http.MethodPost:
		var in struct {
			Title         string          `json:"title"`
			Description   string          `json:"description"`
			CategoryID    *string         `json:"categoryId"`
			Priority      *model.Priority `json:"priority"`
			Section       *model.Section  `json:"section"`
			Frequency     model.Frequency `json:"frequency"`
			Rule          string          `json:"rule"`
			StartDate     string          `json:"startDate"`
			EndDate       *string         `json:"endDate"`
			DueOffsetDays int             `json:"dueOffsetDays"`
			GenerateAhead int             `json:"generateAhead"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErr(w, 400, "bad json")
			return
		}

		item, created, err := h.svc.Create(r.Context(), model.RecurringTaskItem{
			OwnerID:       ownerID,
			Title:         in.Title,
			Description:   in.Description,
			CategoryID:    in.CategoryID,
			Priority:      in.Priority,
			Section:       in.Section,
			Frequency:     in.Frequency,
			Rule:          in.Rule,
			StartDate:     in.StartDate,
			EndDate:       in.EndDate,
			DueOffsetDays: in.DueOffsetDays,
			GenerateAhead: in.GenerateAhead,
		})
		if errors.Is(err, ErrInvalidItem) {
			writeErr(w, 400, err.Error())
			return
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 201, map[string]any{
			"item":      item,
			"generated": len(created),
		})
		return

	default:
		writeErr(w, 405, "method not allowed")
		return
	}
}

// /api/recurring/{id} and /api/recurring/generate
func (h *Handler) ItemsSub(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner.FromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/recurring/"), "/")
	if tail == "" {
		writeErr(w, 404, "not found")
		return
	}

	// /api/recurring/generate: explicit top-up trigger.
	if tail == "generate" {
		if r.Method != http.MethodPost {
			writeErr(w, 405, "method not allowed")
			return
		}
		n, err := h.svc.EnsureTasksGenerated(r.Context(), ownerID)
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true, "generated": n})
		return
	}

	id := model.RecurringItemID(tail)
	switch r.Method {
	case http.MethodGet:
		item, err := h.svc.Get(r.Context(), ownerID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, 404, "not found")
			return
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, item)
		return

	case http.MethodPatch:
		var in struct {
			Active *bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErr(w, 400, "bad json")
			return
		}
		if in.Active == nil {
			writeErr(w, 400, `missing field "active"`)
			return
		}
		var err error
		if *in.Active {
			err = h.svc.Activate(r.Context(), ownerID, id)
		} else {
			err = h.svc.Deactivate(r.Context(), ownerID, id)
		}
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, 404, "not found")
			return
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		item, err := h.svc.Get(r.Context(), ownerID, id)
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, item)
		return

	case http.MethodDelete:
		err := h.svc.Delete(r.Context(), ownerID, id)
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, 404, "not found")
			return
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true})
		return

	default:
		writeErr(w, 405, "method not allowed")
		return
	}
}
