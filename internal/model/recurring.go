package model

import "time"

type RecurringItemID string

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekdays Frequency = "weekdays"
	FrequencyWeekends Frequency = "weekends"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyYearly   Frequency = "yearly"
)

// RecurringTaskItem is the template that generated task instances are
// stamped from. Rule is the canonical recurrence encoding and is immutable
// after creation; changing the cadence means creating a new item.
type RecurringTaskItem struct {
	ID      RecurringItemID `json:"id"`
	OwnerID string          `json:"ownerId"`

	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CategoryID  *string   `json:"categoryId,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Section     *Section  `json:"section,omitempty"`

	Frequency Frequency `json:"frequency"`
	Rule      string    `json:"rule"`

	StartDate     string  `json:"startDate"`
	EndDate       *string `json:"endDate,omitempty"`
	DueOffsetDays int     `json:"dueOffsetDays"`

	// LastGeneratedDate is the high-water mark: the latest occurrence date
	// that has been materialized. Monotonically non-decreasing.
	LastGeneratedDate *string `json:"lastGeneratedDate,omitempty"`

	// GenerateAhead overrides the per-frequency generation limit when > 0.
	GenerateAhead int  `json:"generateAhead,omitempty"`
	IsActive      bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
