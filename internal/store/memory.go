package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayboard/internal/model"
	"dayboard/internal/position"
)

// Memory is the in-process store used by tests and as the default
// backend. All methods are safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	tasks map[model.TaskID]model.Task
	items map[model.RecurringItemID]model.RecurringTaskItem
}

func NewMemory() *Memory {
	return &Memory{
		tasks: map[model.TaskID]model.Task{},
		items: map[model.RecurringItemID]model.RecurringTaskItem{},
	}
}

func newTaskID() model.TaskID {
	return model.TaskID("task_" + uuid.NewString())
}

func newItemID() model.RecurringItemID {
	return model.RecurringItemID("rec_" + uuid.NewString())
}

func sameScope(t model.Task, ownerID string, date *string) bool {
	if t.OwnerID != ownerID {
		return false
	}
	if date == nil {
		return t.ScheduledDate == nil
	}
	return t.ScheduledDate != nil && *t.ScheduledDate == *date
}

func sortByPosition(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Position < tasks[j].Position
	})
}

func (m *Memory) FindTasksInScope(ctx context.Context, ownerID string, date *string) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Task, 0)
	for _, t := range m.tasks {
		if sameScope(t, ownerID, date) {
			out = append(out, t)
		}
	}
	sortByPosition(out)
	return out, nil
}

func (m *Memory) scopeKeysLocked(ownerID string, date *string) []string {
	var keys []string
	for _, t := range m.tasks {
		if sameScope(t, ownerID, date) {
			keys = append(keys, t.Position)
		}
	}
	return keys
}

func (m *Memory) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTaskLocked(t)
}

func (m *Memory) createTaskLocked(t model.Task) (model.Task, error) {
	if t.OwnerID == "" {
		return model.Task{}, fmt.Errorf("store: task owner is required")
	}
	now := time.Now()
	t.ID = newTaskID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Position == "" {
		t.Position = position.Append(m.scopeKeysLocked(t.OwnerID, t.ScheduledDate))
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) GetTask(ctx context.Context, ownerID string, id model.TaskID) (model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) CreateTasksBatch(ctx context.Context, tasks []model.Task) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	generated := map[string]bool{}
	for _, existing := range m.tasks {
		if existing.RecurringItemID != nil {
			generated[string(*existing.RecurringItemID)+"|"+existing.ScopeDate()] = true
		}
	}

	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.RecurringItemID != nil {
			key := string(*t.RecurringItemID) + "|" + t.ScopeDate()
			if generated[key] {
				continue // lost the materialization race; the earlier row wins
			}
			generated[key] = true
		}
		created, err := m.createTaskLocked(t)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (m *Memory) AtomicUpdatePositions(ctx context.Context, ownerID string, updates []PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole batch before touching anything.
	var failures []ItemFailure
	for _, u := range updates {
		t, ok := m.tasks[u.TaskID]
		if !ok || t.OwnerID != ownerID {
			failures = append(failures, ItemFailure{TaskID: u.TaskID, Reason: "not found"})
			continue
		}
		if !position.Valid(u.NewPosition) {
			failures = append(failures, ItemFailure{TaskID: u.TaskID, Reason: "invalid position"})
			continue
		}
		if t.Position != u.OldPosition {
			return fmt.Errorf("task %s moved underneath us: %w", u.TaskID, ErrConflict)
		}
	}
	if len(failures) > 0 {
		return &PartialFailure{Failures: failures}
	}

	now := time.Now()
	for _, u := range updates {
		t := m.tasks[u.TaskID]
		t.Position = u.NewPosition
		t.UpdatedAt = now
		m.tasks[u.TaskID] = t
	}
	return nil
}

func (m *Memory) CreateRecurringItem(ctx context.Context, item model.RecurringTaskItem) (model.RecurringTaskItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.OwnerID == "" {
		return model.RecurringTaskItem{}, fmt.Errorf("store: item owner is required")
	}
	now := time.Now()
	item.ID = newItemID()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.items[item.ID] = item
	return item, nil
}

func (m *Memory) GetRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) (model.RecurringTaskItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok || item.OwnerID != ownerID {
		return model.RecurringTaskItem{}, ErrNotFound
	}
	return item, nil
}

func (m *Memory) ListRecurringItems(ctx context.Context, ownerID string) ([]model.RecurringTaskItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RecurringTaskItem, 0)
	for _, item := range m.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SetRecurringItemActive(ctx context.Context, ownerID string, id model.RecurringItemID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.OwnerID != ownerID {
		return ErrNotFound
	}
	item.IsActive = active
	item.UpdatedAt = time.Now()
	m.items[id] = item
	return nil
}

func (m *Memory) DeleteRecurringItem(ctx context.Context, ownerID string, id model.RecurringItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) FindActiveRecurringItemsDueForTopUp(ctx context.Context, ownerID string, horizonDate string) ([]model.RecurringTaskItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RecurringTaskItem, 0)
	for _, item := range m.items {
		if item.OwnerID != ownerID || !item.IsActive {
			continue
		}
		if item.LastGeneratedDate != nil && *item.LastGeneratedDate >= horizonDate {
			continue
		}
		if item.EndDate != nil && item.LastGeneratedDate != nil && *item.LastGeneratedDate >= *item.EndDate {
			continue // already generated through its end
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateLastGeneratedDate(ctx context.Context, id model.RecurringItemID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if item.LastGeneratedDate != nil && *item.LastGeneratedDate >= date {
		return nil // high-water mark never moves backward
	}
	item.LastGeneratedDate = &date
	item.UpdatedAt = time.Now()
	m.items[id] = item
	return nil
}

func (m *Memory) FindGeneratedDates(ctx context.Context, id model.RecurringItemID) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]bool{}
	for _, t := range m.tasks {
		if t.RecurringItemID != nil && *t.RecurringItemID == id && t.ScheduledDate != nil {
			out[*t.ScheduledDate] = true
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
