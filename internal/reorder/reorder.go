// Package reorder translates a drag-and-drop move inside one ordering
// scope into the cheapest correct position write: usually a single-row
// update, falling back to a full-scope rebalance when the key space
// between the target neighbors is exhausted.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"dayboard/internal/model"
	"dayboard/internal/position"
	"dayboard/internal/store"
)

// ErrBadMove rejects a move whose indices do not fit the current scope.
var ErrBadMove = errors.New("reorder: move does not match scope")

// Move is one drag gesture: the task at index From in the
// position-sorted scope moves to index To.
type Move struct {
	OwnerID string
	Date    *string // scope; nil = unscheduled backlog
	TaskID  model.TaskID
	From    int
	To      int
}

type Coordinator struct {
	store  store.Store
	logger *log.Logger
}

func NewCoordinator(st store.Store, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{store: st, logger: logger}
}

// Apply performs the move and returns the writes it submitted so the
// caller can reconcile its optimistic view. A store.ErrConflict result is
// retryable after re-reading the scope; Apply itself never retries.
func (c *Coordinator) Apply(ctx context.Context, mv Move) ([]store.PositionUpdate, error) {
	tasks, err := c.store.FindTasksInScope(ctx, mv.OwnerID, mv.Date)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Position < tasks[j].Position
	})

	n := len(tasks)
	if mv.From < 0 || mv.From >= n || mv.To < 0 || mv.To >= n {
		return nil, fmt.Errorf("%w: index out of range (%d -> %d of %d)", ErrBadMove, mv.From, mv.To, n)
	}
	if tasks[mv.From].ID != mv.TaskID {
		// The scope changed since the caller rendered it. Retryable, same
		// as losing a position write race.
		return nil, fmt.Errorf("reorder: task %s is no longer at index %d: %w", mv.TaskID, mv.From, store.ErrConflict)
	}
	if mv.From == mv.To {
		return nil, nil
	}

	lower, upper := targetNeighbors(tasks, mv.From, mv.To)
	key, err := position.Between(lower, upper)
	if errors.Is(err, position.ErrExhausted) {
		c.logger.Printf("reorder: scope owner=%s date=%v exhausted between %q and %q, rebalancing %d tasks",
			mv.OwnerID, mv.Date, lower, upper, n)
		return c.rebalance(ctx, mv, tasks)
	}
	if err != nil {
		return nil, err
	}

	updates := []store.PositionUpdate{{
		TaskID:      mv.TaskID,
		OldPosition: tasks[mv.From].Position,
		NewPosition: key,
	}}
	if err := c.store.AtomicUpdatePositions(ctx, mv.OwnerID, updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// targetNeighbors picks the bounds of the slot the task lands in. Moving
// down places it immediately after the task currently at To; moving up
// places it immediately before. List edges are open bounds.
func targetNeighbors(tasks []model.Task, from, to int) (lower, upper string) {
	if to > from {
		lower = tasks[to].Position
		if to+1 < len(tasks) {
			upper = tasks[to+1].Position
		}
		return lower, upper
	}
	upper = tasks[to].Position
	if to > 0 {
		lower = tasks[to-1].Position
	}
	return lower, upper
}

// rebalance simulates the fully reordered scope and rewrites every key in
// one all-or-nothing batch.
func (c *Coordinator) rebalance(ctx context.Context, mv Move, tasks []model.Task) ([]store.PositionUpdate, error) {
	reordered := make([]model.Task, 0, len(tasks))
	reordered = append(reordered, tasks[:mv.From]...)
	reordered = append(reordered, tasks[mv.From+1:]...)
	reordered = append(reordered[:mv.To], append([]model.Task{tasks[mv.From]}, reordered[mv.To:]...)...)

	keys := position.Rebalance(len(reordered))
	updates := make([]store.PositionUpdate, len(reordered))
	for i, t := range reordered {
		updates[i] = store.PositionUpdate{
			TaskID:      t.ID,
			OldPosition: t.Position,
			NewPosition: keys[i],
		}
	}
	if err := c.store.AtomicUpdatePositions(ctx, mv.OwnerID, updates); err != nil {
		return nil, err
	}
	return updates, nil
}
