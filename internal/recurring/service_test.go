package recurring

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayboard/internal/model"
	"dayboard/internal/recur"
	"dayboard/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory, *bytes.Buffer) {
	t.Helper()
	m := store.NewMemory()
	var buf bytes.Buffer
	svc := NewService(m, nil, 14, log.New(&buf, "", 0))
	// Deterministic clock: a Monday.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}
	return svc, m, &buf
}

func weeklyItem() model.RecurringTaskItem {
	return model.RecurringTaskItem{
		OwnerID:   "u1",
		Title:     "water the plants",
		Frequency: model.FrequencyWeekly,
		Rule:      "weekly:mon,wed",
		StartDate: "2026-03-02",
	}
}

func TestCreate_MaterializesFirstWindow(t *testing.T) {
	svc, m, _ := newTestService(t)
	ctx := context.Background()

	saved, created, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)
	assert.True(t, saved.IsActive)
	require.Len(t, created, 8) // weekly default limit

	require.NotNil(t, saved.LastGeneratedDate)
	assert.Equal(t, "2026-03-25", *saved.LastGeneratedDate)

	stored, err := m.GetRecurringItem(ctx, "u1", saved.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGeneratedDate)
	assert.Equal(t, "2026-03-25", *stored.LastGeneratedDate)

	first := created[0]
	require.NotNil(t, first.ScheduledDate)
	assert.Equal(t, "2026-03-02", *first.ScheduledDate)
	assert.Equal(t, "water the plants", first.Title)
}

func TestCreate_RejectsBadParameters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	bad := weeklyItem()
	bad.Rule = "weekly:"
	_, _, err := svc.Create(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)

	bad = weeklyItem()
	bad.StartDate = "next monday"
	_, _, err = svc.Create(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)

	bad = weeklyItem()
	bad.DueOffsetDays = -1
	_, _, err = svc.Create(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)

	bad = weeklyItem()
	bad.Frequency = model.FrequencyDaily // tag disagrees with encoding
	_, _, err = svc.Create(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)

	bad = weeklyItem()
	end := "2026-02-01"
	bad.EndDate = &end
	_, _, err = svc.Create(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestEnsureTasksGenerated_IsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	saved, created, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)
	require.Len(t, created, 8)

	// Mark is at 2026-03-25, past the 14-day horizon: nothing to do.
	n, err := svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Jump the clock past the mark; top-up resumes from mark+1.
	svc.now = func() time.Time {
		return time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	}
	n, err = svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	got, err := svc.Get(ctx, "u1", saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastGeneratedDate)
	assert.Greater(t, *got.LastGeneratedDate, "2026-03-25")

	// Immediate re-run: idempotent, nothing new.
	n, err = svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureTasksGenerated_SkipsPausedItems(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	saved, _, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "u1", saved.ID))

	svc.now = func() time.Time {
		return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	}
	n, err := svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n, "paused items must not generate")

	// Resuming picks up from the preserved high-water mark.
	require.NoError(t, svc.Activate(ctx, "u1", saved.ID))
	n, err = svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestEnsureTasksGenerated_CorruptRuleDegradesQuietly(t *testing.T) {
	svc, m, buf := newTestService(t)
	ctx := context.Background()

	// Bypass Create's validation to simulate stored corruption.
	item, err := m.CreateRecurringItem(ctx, model.RecurringTaskItem{
		OwnerID:   "u1",
		Title:     "broken",
		Frequency: model.FrequencyDaily,
		Rule:      "every-full-moon",
		StartDate: "2026-03-02",
		IsActive:  true,
	})
	require.NoError(t, err)

	healthy, _, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)

	svc.now = func() time.Time {
		return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	}
	n, err := svc.EnsureTasksGenerated(ctx, "u1")
	require.NoError(t, err, "corrupt rules must not fail the whole top-up")
	assert.Equal(t, 8, n, "the healthy item still generates")
	assert.Contains(t, buf.String(), "unreadable rule")

	dates, err := m.FindGeneratedDates(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, dates)
	_ = healthy
}

func TestCreate_InstancesLandAfterExistingScopeTasks(t *testing.T) {
	svc, m, _ := newTestService(t)
	ctx := context.Background()

	date := "2026-03-02"
	manual, err := m.CreateTask(ctx, model.Task{OwnerID: "u1", Title: "standup", ScheduledDate: &date})
	require.NoError(t, err)

	_, created, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)

	for _, task := range created {
		if *task.ScheduledDate == date {
			assert.Greater(t, task.Position, manual.Position,
				"generated instance must append after the scope's existing tasks")
		}
	}
}

func TestDelete_RemovesTemplateOnly(t *testing.T) {
	svc, m, _ := newTestService(t)
	ctx := context.Background()

	saved, created, err := svc.Create(ctx, weeklyItem())
	require.NoError(t, err)
	require.NotEmpty(t, created)

	require.NoError(t, svc.Delete(ctx, "u1", saved.ID))
	_, err = svc.Get(ctx, "u1", saved.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Instance cleanup is an external collaborator concern.
	date := *created[0].ScheduledDate
	tasks, err := m.FindTasksInScope(ctx, "u1", &date)
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)
}

func TestLimitsOverride(t *testing.T) {
	m := store.NewMemory()
	svc := NewService(m, recur.Limits{model.FrequencyWeekly: 2}, 14, log.New(&bytes.Buffer{}, "", 0))
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}

	_, created, err := svc.Create(context.Background(), weeklyItem())
	require.NoError(t, err)
	assert.Len(t, created, 2)
}
