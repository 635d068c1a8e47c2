package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"dayboard/internal/model"
	"dayboard/internal/position"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	applied_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	scheduled_date    TEXT,
	due_date          TEXT,
	done              INTEGER NOT NULL DEFAULT 0,
	completed_at      TEXT,
	category_id       TEXT,
	priority          TEXT,
	section           TEXT,
	position          TEXT NOT NULL,
	recurring_item_id TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

-- Total order inside a scope: one position per (owner, date) bucket.
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_scope_position
	ON tasks(owner_id, ifnull(scheduled_date, ''), position);

-- One materialized instance per template per date; closes the top-up
-- read/insert race window.
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_item_date
	ON tasks(recurring_item_id, scheduled_date)
	WHERE recurring_item_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS recurring_items (
	id                  TEXT PRIMARY KEY,
	owner_id            TEXT NOT NULL,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	category_id         TEXT,
	priority            TEXT,
	section             TEXT,
	frequency           TEXT NOT NULL,
	rule                TEXT NOT NULL,
	start_date          TEXT NOT NULL,
	end_date            TEXT,
	due_offset_days     INTEGER NOT NULL DEFAULT 0,
	last_generated_date TEXT,
	generate_ahead      INTEGER NOT NULL DEFAULT 0,
	is_active           INTEGER NOT NULL DEFAULT 1,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recurring_items_owner
	ON recurring_items(owner_id, is_active);
`

// SQLite is the durable store backend.
type SQLite struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var current sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current.Valid && current.Int64 > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than this build (v%d)", current.Int64, schemaVersion)
	}
	if !current.Valid || current.Int64 < schemaVersion {
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			schemaVersion, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// DB exposes the handle for maintenance tooling.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

const taskColumns = `id, owner_id, title, description, scheduled_date, due_date,
	done, completed_at, category_id, priority, section, position,
	recurring_item_id, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var (
		t                          model.Task
		scheduled, due, completed  sql.NullString
		category, priority         sql.NullString
		section, recurring         sql.NullString
		createdAt, updatedAt       string
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Description, &scheduled, &due,
		&t.Done, &completed, &category, &priority, &section, &t.Position,
		&recurring, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}
	t.ScheduledDate = strPtr(scheduled)
	t.DueDate = strPtr(due)
	t.CategoryID = strPtr(category)
	if completed.Valid {
		if at, perr := time.Parse(time.RFC3339, completed.String); perr == nil {
			t.CompletedAt = &at
		}
	}
	if priority.Valid {
		p := model.Priority(priority.String)
		t.Priority = &p
	}
	if section.Valid {
		sec := model.Section(section.String)
		t.Section = &sec
	}
	if recurring.Valid {
		id := model.RecurringItemID(recurring.String)
		t.RecurringItemID = &id
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

func (s *SQLite) FindTasksInScope(ctx context.Context, ownerID string, date *string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = ? AND ifnull(scheduled_date, '') = ?
		ORDER BY position ASC;
	`, ownerID, derefOr(date, ""))
	if err != nil {
		return nil, fmt.Errorf("find tasks in scope: %w", err)
	}
	defer rows.Close()

	out := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func (s *SQLite) insertTask(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, t model.Task, orIgnore bool) (model.Task, bool, error) {
	now := time.Now().UTC()
	t.ID = newTaskID()
	t.CreatedAt = now
	t.UpdatedAt = now

	verb := "INSERT"
	if orIgnore {
		verb = "INSERT OR IGNORE"
	}
	var priority, section, recurring any
	if t.Priority != nil {
		priority = string(*t.Priority)
	}
	if t.Section != nil {
		section = string(*t.Section)
	}
	if t.RecurringItemID != nil {
		recurring = string(*t.RecurringItemID)
	}
	var completed any
	if t.CompletedAt != nil {
		completed = t.CompletedAt.UTC().Format(time.RFC3339)
	}

	res, err := q.ExecContext(ctx, verb+` INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		string(t.ID), t.OwnerID, t.Title, t.Description,
		nullStr(t.ScheduledDate), nullStr(t.DueDate), t.Done, completed,
		nullStr(t.CategoryID), priority, section, t.Position, recurring,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return model.Task{}, false, fmt.Errorf("insert task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Task{}, false, fmt.Errorf("insert task: %w", err)
	}
	return t, n > 0, nil
}

func (s *SQLite) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.OwnerID == "" {
		return model.Task{}, fmt.Errorf("store: task owner is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if t.Position == "" {
		pos, err := s.nextPosition(ctx, tx, t.OwnerID, t.ScheduledDate)
		if err != nil {
			return model.Task{}, err
		}
		t.Position = pos
	}
	created, _, err := s.insertTask(ctx, tx, t, false)
	if err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (s *SQLite) nextPosition(ctx context.Context, tx *sql.Tx, ownerID string, date *string) (string, error) {
	var max sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(position) FROM tasks
		WHERE owner_id = ? AND ifnull(scheduled_date, '') = ?;
	`, ownerID, derefOr(date, "")).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("max position: %w", err)
	}
	if !max.Valid {
		return position.Initial(), nil
	}
	return position.Append([]string{max.String}), nil
}

func (s *SQLite) GetTask(ctx context.Context, ownerID string, id model.TaskID) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?;
	`, string(id), ownerID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLite) CreateTasksBatch(ctx context.Context, tasks []model.Task) ([]model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.OwnerID == "" {
			return nil, fmt.Errorf("store: task owner is required")
		}
		// OR IGNORE drops rows losing the (item, date) uniqueness race.
		created, inserted, err := s.insertTask(ctx, tx, t, true)
		if err != nil {
			return nil, err
		}
		if inserted {
			out = append(out, created)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *SQLite) AtomicUpdatePositions(ctx context.Context, ownerID string, updates []PositionUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var failures []ItemFailure
	for _, u := range updates {
		if !position.Valid(u.NewPosition) {
			failures = append(failures, ItemFailure{TaskID: u.TaskID, Reason: "invalid position"})
			continue
		}
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT position FROM tasks WHERE id = ? AND owner_id = ?;`,
			string(u.TaskID), ownerID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			failures = append(failures, ItemFailure{TaskID: u.TaskID, Reason: "not found"})
			continue
		}
		if err != nil {
			return fmt.Errorf("read position: %w", err)
		}
		if current != u.OldPosition {
			return fmt.Errorf("task %s moved underneath us: %w", u.TaskID, ErrConflict)
		}
	}
	if len(failures) > 0 {
		return &PartialFailure{Failures: failures}
	}

	// The scope's unique position index is not deferrable and a rebalance
	// may hand a row a key another row still holds. Park every row on a
	// per-row placeholder first ('!' sorts outside the key alphabet), then
	// write the final keys.
	now := time.Now().UTC().Format(time.RFC3339)
	for _, u := range updates {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET position = '!' || id
			WHERE id = ? AND owner_id = ? AND position = ?;
		`, string(u.TaskID), ownerID, u.OldPosition)
		if err != nil {
			return fmt.Errorf("park position: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("park position: %w", err)
		} else if n == 0 {
			return fmt.Errorf("task %s moved underneath us: %w", u.TaskID, ErrConflict)
		}
	}
	for _, u := range updates {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET position = ?, updated_at = ?
			WHERE id = ? AND owner_id = ?;
		`, u.NewPosition, now, string(u.TaskID), ownerID)
		if err != nil {
			return fmt.Errorf("update position: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update position: %w", err)
		} else if n == 0 {
			return fmt.Errorf("task %s moved underneath us: %w", u.TaskID, ErrConflict)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const itemColumns = `id, owner_id, title, description, category_id, priority,
	section, frequency, rule, start_date, end_date, due_offset_days,
	last_generated_date, generate_ahead, is_active, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (model.RecurringTaskItem, error) {
	var (
		item                 model.RecurringTaskItem
		category, priority   sql.NullString
		section, end, last   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Description, &category,
		&priority, &section, &item.Frequency, &item.Rule, &item.StartDate,
		&end, &item.DueOffsetDays, &last, &item.GenerateAhead,
		&item.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.RecurringTaskItem{}, err
	}
	item.CategoryID = strPtr(category)
	if priority.Valid {
		p := model.Priority(priority.String)
		item.Priority = &p
	}
	if section.Valid {
		sec := model.Section(section.String)
		item.Section = &sec
	}
	item.EndDate = strPtr(end)
	item.LastGeneratedDate = strPtr(last)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return item, nil
}

func (s *SQLite) CreateRecurringItem(ctx context.Context, item model.RecurringTaskItem) (model.RecurringTaskItem, error) {
	if item.OwnerID == "" {
		return model.RecurringTaskItem{}, fmt.Errorf("store: item owner is required")
	}
	now := time.Now().UTC()
	item.ID = model.RecurringItemID("rec_" + uuid.NewString())
	item.CreatedAt = now
	item.UpdatedAt = now

	var priority, section any
	if item.Priority != nil {
		priority = string(*item.Priority)
	}
	if item.Section != nil {
		section = string(*item.Section)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO recurring_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		string(item.ID), item.OwnerID, item.Title, item.Description,
		nullStr(item.CategoryID), priority, section, string(item.Frequency),
		item.Rule, item.StartDate, nullStr(item.EndDate), item.DueOffsetDays,
		nullStr(item.LastGeneratedDate), item.GenerateAhead, item.IsActive,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return model.RecurringTaskItem{}, fmt.Errorf("insert recurring item: %w", err)
	}
	return item, nil
}

func (s *SQLite) GetRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) (model.RecurringTaskItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM recurring_items WHERE id = ? AND owner_id = ?;
	`, string(id), ownerID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RecurringTaskItem{}, ErrNotFound
	}
	if err != nil {
		return model.RecurringTaskItem{}, fmt.Errorf("get recurring item: %w", err)
	}
	return item, nil
}

func (s *SQLite) ListRecurringItems(ctx context.Context, ownerID string) ([]model.RecurringTaskItem, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM recurring_items
		WHERE owner_id = ? ORDER BY created_at ASC;
	`, ownerID)
}

func (s *SQLite) queryItems(ctx context.Context, query string, args ...any) ([]model.RecurringTaskItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring items: %w", err)
	}
	defer rows.Close()

	out := make([]model.RecurringTaskItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLite) SetRecurringItemActive(ctx context.Context, ownerID string, id model.RecurringItemID, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_items SET is_active = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?;
	`, active, time.Now().UTC().Format(time.RFC3339), string(id), ownerID)
	if err != nil {
		return fmt.Errorf("set recurring item active: %w", err)
	}
	return requireRow(res)
}

func (s *SQLite) DeleteRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM recurring_items WHERE id = ? AND owner_id = ?;
	`, string(id), ownerID)
	if err != nil {
		return fmt.Errorf("delete recurring item: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) FindActiveRecurringItemsDueForTopUp(ctx context.Context, ownerID string, horizonDate string) ([]model.RecurringTaskItem, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM recurring_items
		WHERE owner_id = ?
		  AND is_active = 1
		  AND (last_generated_date IS NULL OR last_generated_date < ?)
		  AND (end_date IS NULL OR last_generated_date IS NULL OR last_generated_date < end_date)
		ORDER BY created_at ASC;
	`, ownerID, horizonDate)
}

func (s *SQLite) UpdateLastGeneratedDate(ctx context.Context, id model.RecurringItemID, date string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_items SET last_generated_date = ?, updated_at = ?
		WHERE id = ?
		  AND (last_generated_date IS NULL OR last_generated_date < ?);
	`, date, time.Now().UTC().Format(time.RFC3339), string(id), date)
	if err != nil {
		return fmt.Errorf("update last generated date: %w", err)
	}
	// Zero rows is fine: either unknown id or a stale mark that must not
	// move backward. Distinguish the two for callers.
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM recurring_items WHERE id = ?;`, string(id),
		).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("check recurring item: %w", err)
		}
	}
	return nil
}

func (s *SQLite) FindGeneratedDates(ctx context.Context, id model.RecurringItemID) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scheduled_date FROM tasks
		WHERE recurring_item_id = ? AND scheduled_date IS NOT NULL;
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("find generated dates: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan generated date: %w", err)
		}
		out[d] = true
	}
	return out, rows.Err()
}
