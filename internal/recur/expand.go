package recur

import (
	"fmt"

	"dayboard/internal/model"
	"dayboard/internal/position"
)

// HorizonDays hard-caps every expansion regardless of rule shape or
// configured limits.
const HorizonDays = 365

// Input is everything an expansion depends on. ScopeKeys reports the
// position keys already present in the (owner, date) scope so generated
// instances land after existing tasks; Expand is deterministic for a
// deterministic callback.
type Input struct {
	Item      model.RecurringTaskItem
	From      string          // generation start, YYYY-MM-DD
	Existing  map[string]bool // occurrence dates already materialized for this item
	ScopeKeys func(date string) []string
	Limits    Limits
}

// Result holds emitted instances in chronological order. LastDate is the
// max occurrence date among them ("" when nothing was emitted); callers
// advance the item's high-water mark to it.
type Result struct {
	Tasks    []model.Task
	LastDate string
}

// Expand materializes instances for one template over a bounded window.
// Dates in Existing are skipped, so re-running with an accurate set is
// idempotent. A rule that cannot be decoded returns ErrBadRule; callers
// log it and carry on with an empty result.
func Expand(in Input) (Result, error) {
	rule, err := Parse(in.Item.Rule)
	if err != nil {
		return Result{}, err
	}
	from, err := model.ParseDate(in.From)
	if err != nil {
		return Result{}, fmt.Errorf("%w: start date %q", ErrBadRule, in.From)
	}

	limits := in.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	limit := limits.For(in.Item)

	boundary := from.AddDate(0, 0, HorizonDays)
	if in.Item.EndDate != nil {
		if end, err := model.ParseDate(*in.Item.EndDate); err == nil && end.Before(boundary) {
			boundary = end
		}
	}

	var res Result
	for d := from; !d.After(boundary); d = d.AddDate(0, 0, 1) {
		if len(res.Tasks) >= limit {
			break
		}
		if !rule.Matches(d) {
			continue
		}
		date := model.FormatDate(d)
		if in.Existing[date] {
			continue
		}
		res.Tasks = append(res.Tasks, instantiate(in, date))
		res.LastDate = date
	}
	return res, nil
}

func instantiate(in Input, date string) model.Task {
	item := in.Item
	t := model.Task{
		OwnerID:         item.OwnerID,
		Title:           item.Title,
		Description:     item.Description,
		CategoryID:      item.CategoryID,
		Priority:        item.Priority,
		Section:         item.Section,
		ScheduledDate:   &date,
		RecurringItemID: &item.ID,
	}
	if item.DueOffsetDays > 0 {
		if d, err := model.ParseDate(date); err == nil {
			due := model.FormatDate(d.AddDate(0, 0, item.DueOffsetDays))
			t.DueDate = &due
		}
	}
	var scope []string
	if in.ScopeKeys != nil {
		scope = in.ScopeKeys(date)
	}
	t.Position = position.Append(scope)
	return t
}
