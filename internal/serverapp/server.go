package serverapp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dayboard/internal/config"
	"dayboard/internal/httpmw"
	"dayboard/internal/owner"
	"dayboard/internal/recurring"
	"dayboard/internal/reorder"
	"dayboard/internal/store"
	"dayboard/internal/task"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// App owns the wired HTTP surface and the backing store. Close releases
// the store; for the sqlite backend that flushes and closes the database.
type App struct {
	Handler http.Handler
	store   store.Store
}

func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	cfg := opts.Config

	st, err := openStore(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	recurringService := recurring.NewService(st, cfg.Limits(), cfg.Recurring.TopUpHorizonDays, opts.Logger)
	reorderCoordinator := reorder.NewCoordinator(st, opts.Logger)

	taskHandler := task.NewHandler(st, reorderCoordinator, recurringService, opts.Logger)
	recurringHandler := recurring.NewHandler(recurringService)

	api := http.NewServeMux()
	api.HandleFunc("/api/tasks", taskHandler.TasksRoot)
	api.HandleFunc("/api/tasks/", taskHandler.TasksSub)
	api.HandleFunc("/api/recurring", recurringHandler.ItemsRoot)
	api.HandleFunc("/api/recurring/", recurringHandler.ItemsSub)

	mux := http.NewServeMux()
	mux.Handle("/api/", owner.Require(api))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "dayboard",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, err := st.FindTasksInScope(r.Context(), "readyz-probe", nil); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "task storage unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "dayboard",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	handler := httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger),
		httpmw.WithRequestID,
		httpmw.WithRecover(opts.Logger),
	)

	return &App{Handler: handler, store: st}, nil
}

func openStore(cfg *config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, err
		}
		return store.OpenSQLite(cfg.Store.Path, logger)
	default:
		return nil, errors.New("unknown store backend " + cfg.Store.Backend)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
