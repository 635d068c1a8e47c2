// Package store is the persistence boundary for tasks and recurring
// templates. Implementations must make AtomicUpdatePositions all-or-nothing
// and reject concurrent conflicting writers with ErrConflict: a partially
// applied rebalance corrupts the total order of a scope.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dayboard/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrConflict reports a concurrent conflicting position write. It is
	// retryable: re-read the scope and try again.
	ErrConflict = errors.New("store: concurrent position update")
)

// PositionUpdate moves one task to a new sort key. OldPosition is the
// value the writer last read; a mismatch means someone else won the race.
type PositionUpdate struct {
	TaskID      model.TaskID `json:"taskId"`
	OldPosition string       `json:"oldPosition"`
	NewPosition string       `json:"newPosition"`
}

// ItemFailure identifies one rejected entry of a bulk operation.
type ItemFailure struct {
	TaskID model.TaskID
	Reason string
}

// PartialFailure rejects a bulk operation before anything is applied.
// It is never a partial success: the batch did not happen.
type PartialFailure struct {
	Failures []ItemFailure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.TaskID, f.Reason))
	}
	return "store: batch rejected: " + strings.Join(parts, "; ")
}

// Store is everything the ordering and recurrence engine needs from
// persistence. Every call is pre-scoped by an authenticated owner id
// supplied by the caller; the store does no authorization of its own.
type Store interface {
	// FindTasksInScope returns the tasks of one ordering scope. date nil
	// means the owner's unscheduled backlog.
	FindTasksInScope(ctx context.Context, ownerID string, date *string) ([]model.Task, error)

	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	GetTask(ctx context.Context, ownerID string, id model.TaskID) (model.Task, error)

	// CreateTasksBatch bulk-inserts materialized instances. Rows that
	// would duplicate an existing (recurring item, date) pair are dropped
	// silently; only actually inserted tasks are returned.
	CreateTasksBatch(ctx context.Context, tasks []model.Task) ([]model.Task, error)

	// AtomicUpdatePositions applies every update or none. A stale
	// OldPosition yields ErrConflict; an unknown or foreign task id
	// yields *PartialFailure. Nothing is written in either case.
	AtomicUpdatePositions(ctx context.Context, ownerID string, updates []PositionUpdate) error

	CreateRecurringItem(ctx context.Context, item model.RecurringTaskItem) (model.RecurringTaskItem, error)
	GetRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) (model.RecurringTaskItem, error)
	ListRecurringItems(ctx context.Context, ownerID string) ([]model.RecurringTaskItem, error)
	SetRecurringItemActive(ctx context.Context, ownerID string, id model.RecurringItemID, active bool) error
	DeleteRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) error

	// FindActiveRecurringItemsDueForTopUp returns active items whose
	// high-water mark lags behind horizonDate.
	FindActiveRecurringItemsDueForTopUp(ctx context.Context, ownerID string, horizonDate string) ([]model.RecurringTaskItem, error)

	// UpdateLastGeneratedDate advances the high-water mark. Regressions
	// are ignored; the stored value never moves backward.
	UpdateLastGeneratedDate(ctx context.Context, id model.RecurringItemID, date string) error

	// FindGeneratedDates returns the scheduled dates already materialized
	// from the given template.
	FindGeneratedDates(ctx context.Context, id model.RecurringItemID) (map[string]bool, error)

	Close() error
}
