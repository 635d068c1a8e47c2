package recur

import "dayboard/internal/model"

// Limits caps how many instances one expansion may emit per frequency.
// High-frequency rules generate fewer days of raw instances than the
// 365-day boundary allows so that every frequency covers a comparable
// time horizon. The table is injected, never package state, so tests and
// deployments can swap it.
type Limits map[model.Frequency]int

const fallbackLimit = 10

func DefaultLimits() Limits {
	return Limits{
		model.FrequencyDaily:    60,
		model.FrequencyWeekdays: 44,
		model.FrequencyWeekends: 16,
		model.FrequencyWeekly:   8,
		model.FrequencyMonthly:  12,
		model.FrequencyYearly:   2,
	}
}

// For resolves the cap for an item: its own GenerateAhead override when
// set, otherwise the table entry for its frequency.
func (l Limits) For(item model.RecurringTaskItem) int {
	if item.GenerateAhead > 0 {
		return item.GenerateAhead
	}
	if n, ok := l[item.Frequency]; ok && n > 0 {
		return n
	}
	return fallbackLimit
}
