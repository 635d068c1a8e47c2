package model

import (
	"time"
)

type TaskID string

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Section string

const (
	SectionMorning   Section = "morning"
	SectionAfternoon Section = "afternoon"
	SectionEvening   Section = "evening"
)

// DateLayout is the wire and storage form for calendar dates. Values sort
// chronologically under plain string comparison.
const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

type Task struct {
	ID          TaskID `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// ScheduledDate buckets the task into its ordering scope.
	// nil = the owner's unscheduled backlog.
	ScheduledDate *string    `json:"scheduledDate,omitempty"`
	DueDate       *string    `json:"dueDate,omitempty"`
	Done          bool       `json:"done"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`

	CategoryID *string   `json:"categoryId,omitempty"`
	Priority   *Priority `json:"priority,omitempty"`
	Section    *Section  `json:"section,omitempty"`

	// Position is the fractional-index sort key. Unique within the
	// (owner, scheduledDate) scope; order is plain string order.
	Position string `json:"position"`

	RecurringItemID *RecurringItemID `json:"recurringItemId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScopeDate normalizes the task's ordering scope for map keys.
func (t Task) ScopeDate() string {
	if t.ScheduledDate == nil {
		return ""
	}
	return *t.ScheduledDate
}
