// Package recurring orchestrates the lifecycle of recurring task
// templates: creating them, topping up their generated instances, and
// pausing or deleting them.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dayboard/internal/model"
	"dayboard/internal/recur"
	"dayboard/internal/store"
)

// ErrInvalidItem rejects malformed template parameters before any
// expansion happens.
var ErrInvalidItem = errors.New("recurring: invalid item")

const defaultTopUpHorizonDays = 14

type Service struct {
	store   store.Store
	limits  recur.Limits
	horizon int // days ahead the high-water mark should reach
	logger  *log.Logger
	now     func() time.Time
}

func NewService(st store.Store, limits recur.Limits, horizonDays int, logger *log.Logger) *Service {
	if limits == nil {
		limits = recur.DefaultLimits()
	}
	if horizonDays <= 0 {
		horizonDays = defaultTopUpHorizonDays
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:   st,
		limits:  limits,
		horizon: horizonDays,
		logger:  logger,
		now:     time.Now,
	}
}

func validate(item model.RecurringTaskItem) error {
	if item.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidItem)
	}
	if item.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	if item.DueOffsetDays < 0 {
		return fmt.Errorf("%w: due offset must be >= 0", ErrInvalidItem)
	}
	if _, err := model.ParseDate(item.StartDate); err != nil {
		return fmt.Errorf("%w: start date %q", ErrInvalidItem, item.StartDate)
	}
	if item.EndDate != nil {
		if _, err := model.ParseDate(*item.EndDate); err != nil {
			return fmt.Errorf("%w: end date %q", ErrInvalidItem, *item.EndDate)
		}
		if *item.EndDate < item.StartDate {
			return fmt.Errorf("%w: end date before start date", ErrInvalidItem)
		}
	}
	rule, err := recur.Parse(item.Rule)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if rule.Freq != item.Frequency {
		return fmt.Errorf("%w: frequency %q does not match rule %q", ErrInvalidItem, item.Frequency, item.Rule)
	}
	return nil
}

// Create persists the template, materializes its first window of
// instances and advances the high-water mark. A template whose rule
// produces nothing in the window is still created.
func (s *Service) Create(ctx context.Context, item model.RecurringTaskItem) (model.RecurringTaskItem, []model.Task, error) {
	if err := validate(item); err != nil {
		return model.RecurringTaskItem{}, nil, err
	}
	item.IsActive = true
	item.LastGeneratedDate = nil

	saved, err := s.store.CreateRecurringItem(ctx, item)
	if err != nil {
		return model.RecurringTaskItem{}, nil, err
	}

	created, last, err := s.generate(ctx, saved, saved.StartDate, map[string]bool{})
	if err != nil {
		return model.RecurringTaskItem{}, nil, err
	}
	if last != "" {
		if err := s.store.UpdateLastGeneratedDate(ctx, saved.ID, last); err != nil {
			return model.RecurringTaskItem{}, nil, err
		}
		saved.LastGeneratedDate = &last
	}
	return saved, created, nil
}

// generate runs one expansion and bulk-inserts the result. A corrupt rule
// is logged and degrades to an empty result; it never fails the caller.
func (s *Service) generate(ctx context.Context, item model.RecurringTaskItem, from string, existing map[string]bool) ([]model.Task, string, error) {
	res, err := recur.Expand(recur.Input{
		Item:     item,
		From:     from,
		Existing: existing,
		Limits:   s.limits,
		ScopeKeys: func(date string) []string {
			tasks, serr := s.store.FindTasksInScope(ctx, item.OwnerID, &date)
			if serr != nil {
				return nil
			}
			keys := make([]string, len(tasks))
			for i, t := range tasks {
				keys[i] = t.Position
			}
			return keys
		},
	})
	if err != nil {
		s.logger.Printf("recurring: item %s has unreadable rule %q: %v", item.ID, item.Rule, err)
		return nil, "", nil
	}
	if len(res.Tasks) == 0 {
		return nil, res.LastDate, nil
	}
	created, err := s.store.CreateTasksBatch(ctx, res.Tasks)
	if err != nil {
		return nil, "", fmt.Errorf("materialize instances for %s: %w", item.ID, err)
	}
	return created, res.LastDate, nil
}

// EnsureTasksGenerated tops up every active template of the owner whose
// high-water mark lags behind the desired horizon. It is safe to invoke
// opportunistically and repeatedly: already-materialized dates are
// skipped, and the store's uniqueness constraint absorbs the residual
// read/insert race. Returns the number of instances created.
func (s *Service) EnsureTasksGenerated(ctx context.Context, ownerID string) (int, error) {
	today := model.FormatDate(s.now())
	horizon := model.FormatDate(s.now().AddDate(0, 0, s.horizon))

	items, err := s.store.FindActiveRecurringItemsDueForTopUp(ctx, ownerID, horizon)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, item := range items {
		from := today
		if item.LastGeneratedDate != nil && *item.LastGeneratedDate >= today {
			next, perr := model.ParseDate(*item.LastGeneratedDate)
			if perr != nil {
				s.logger.Printf("recurring: item %s has bad high-water mark %q", item.ID, *item.LastGeneratedDate)
				continue
			}
			from = model.FormatDate(next.AddDate(0, 0, 1))
		}

		existing, err := s.store.FindGeneratedDates(ctx, item.ID)
		if err != nil {
			s.logger.Printf("recurring: read generated dates for %s: %v", item.ID, err)
			continue
		}

		created, last, err := s.generate(ctx, item, from, existing)
		if err != nil {
			s.logger.Printf("recurring: top up %s: %v", item.ID, err)
			continue
		}
		if last != "" {
			if err := s.store.UpdateLastGeneratedDate(ctx, item.ID, last); err != nil {
				s.logger.Printf("recurring: advance mark for %s: %v", item.ID, err)
			}
		}
		total += len(created)
	}
	return total, nil
}

// Deactivate pauses future generation. Already-materialized instances are
// untouched; cleanup is the surrounding CRUD layer's concern.
func (s *Service) Deactivate(ctx context.Context, ownerID string, id model.RecurringItemID) error {
	return s.store.SetRecurringItemActive(ctx, ownerID, id, false)
}

// Activate resumes generation from the preserved high-water mark.
func (s *Service) Activate(ctx context.Context, ownerID string, id model.RecurringItemID) error {
	return s.store.SetRecurringItemActive(ctx, ownerID, id, true)
}

// Delete removes the template. What happens to its generated instances
// (delete future, keep completed) is decided outside this engine.
func (s *Service) Delete(ctx context.Context, ownerID string, id model.RecurringItemID) error {
	return s.store.DeleteRecurringItem(ctx, ownerID, id)
}

func (s *Service) Get(ctx context.Context, ownerID string, id model.RecurringItemID) (model.RecurringTaskItem, error) {
	return s.store.GetRecurringItem(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]model.RecurringTaskItem, error) {
	return s.store.ListRecurringItems(ctx, ownerID)
}
