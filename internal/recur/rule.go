// Package recur turns compact recurrence templates into bounded sets of
// dated task instances. Rules are parsed once at the persistence boundary
// into a typed variant and operated on in that form.
package recur

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dayboard/internal/model"
)

// ErrBadRule marks a rule encoding that cannot be decoded. Expansion
// treats it as a data-integrity signal and degrades to an empty result.
var ErrBadRule = errors.New("recur: bad rule encoding")

// Rule is the decoded recurrence definition. Exactly the fields implied by
// Freq are meaningful.
type Rule struct {
	Freq     model.Frequency
	Weekdays []time.Weekday // weekly: selected days, canonical Mon..Sun order
	MonthDay int            // monthly: 1..31
	Month    time.Month     // yearly
	Day      int            // yearly
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// weekIndex orders weekdays Monday-first for canonical encoding.
func weekIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Parse decodes a canonical rule string:
//
//	daily | weekdays | weekends | weekly:mon,wed | monthly:15 | yearly:06-14
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty", ErrBadRule)
	}

	head, arg := s, ""
	if i := strings.IndexByte(s, ':'); i >= 0 {
		head, arg = s[:i], s[i+1:]
	}

	switch model.Frequency(head) {
	case model.FrequencyDaily, model.FrequencyWeekdays, model.FrequencyWeekends:
		if arg != "" {
			return Rule{}, fmt.Errorf("%w: %q takes no argument", ErrBadRule, head)
		}
		return Rule{Freq: model.Frequency(head)}, nil

	case model.FrequencyWeekly:
		days, err := parseWeekdays(arg)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Freq: model.FrequencyWeekly, Weekdays: days}, nil

	case model.FrequencyMonthly:
		day, err := strconv.Atoi(arg)
		if err != nil || day < 1 || day > 31 {
			return Rule{}, fmt.Errorf("%w: monthly day %q", ErrBadRule, arg)
		}
		return Rule{Freq: model.FrequencyMonthly, MonthDay: day}, nil

	case model.FrequencyYearly:
		month, day, err := parseMonthDay(arg)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Freq: model.FrequencyYearly, Month: month, Day: day}, nil
	}

	return Rule{}, fmt.Errorf("%w: unknown frequency %q", ErrBadRule, head)
}

func parseWeekdays(arg string) ([]time.Weekday, error) {
	if arg == "" {
		return nil, fmt.Errorf("%w: weekly needs at least one day", ErrBadRule)
	}
	seen := map[time.Weekday]bool{}
	var days []time.Weekday
	for _, part := range strings.Split(arg, ",") {
		d, ok := weekdayNames[strings.TrimSpace(part)]
		if !ok {
			return nil, fmt.Errorf("%w: weekday %q", ErrBadRule, part)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool {
		return weekIndex(days[i]) < weekIndex(days[j])
	})
	return days, nil
}

func parseMonthDay(arg string) (time.Month, int, error) {
	parts := strings.SplitN(arg, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: yearly wants MM-DD, got %q", ErrBadRule, arg)
	}
	m, err1 := strconv.Atoi(parts[0])
	d, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, 0, fmt.Errorf("%w: yearly wants MM-DD, got %q", ErrBadRule, arg)
	}
	// Feb 29 is allowed; it simply only fires on leap years.
	probe := time.Date(2024, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if probe.Month() != time.Month(m) || probe.Day() != d {
		return 0, 0, fmt.Errorf("%w: no such date %02d-%02d", ErrBadRule, m, d)
	}
	return time.Month(m), d, nil
}

// Encode renders the canonical string form of the rule.
func (r Rule) Encode() string {
	switch r.Freq {
	case model.FrequencyWeekly:
		codes := make([]string, len(r.Weekdays))
		for i, d := range r.Weekdays {
			codes[i] = weekdayCodes[d]
		}
		return string(r.Freq) + ":" + strings.Join(codes, ",")
	case model.FrequencyMonthly:
		return fmt.Sprintf("%s:%d", r.Freq, r.MonthDay)
	case model.FrequencyYearly:
		return fmt.Sprintf("%s:%02d-%02d", r.Freq, int(r.Month), r.Day)
	default:
		return string(r.Freq)
	}
}

// Matches reports whether the rule fires on the given calendar day.
// Monthly and yearly rules match only dates that exist, so day-31 rules
// skip short months and Feb 29 fires only on leap years.
func (r Rule) Matches(d time.Time) bool {
	switch r.Freq {
	case model.FrequencyDaily:
		return true
	case model.FrequencyWeekdays:
		wd := d.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	case model.FrequencyWeekends:
		wd := d.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case model.FrequencyWeekly:
		for _, wd := range r.Weekdays {
			if d.Weekday() == wd {
				return true
			}
		}
		return false
	case model.FrequencyMonthly:
		return d.Day() == r.MonthDay
	case model.FrequencyYearly:
		return d.Month() == r.Month && d.Day() == r.Day
	}
	return false
}
