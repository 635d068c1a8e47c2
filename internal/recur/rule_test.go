package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayboard/internal/model"
)

func TestParse_CanonicalRoundTrip(t *testing.T) {
	for _, enc := range []string{
		"daily",
		"weekdays",
		"weekends",
		"weekly:mon,wed",
		"weekly:sun",
		"monthly:15",
		"monthly:31",
		"yearly:06-14",
		"yearly:02-29",
	} {
		r, err := Parse(enc)
		require.NoError(t, err, enc)
		assert.Equal(t, enc, r.Encode(), enc)
	}
}

func TestParse_NormalizesWeekdayOrderAndDupes(t *testing.T) {
	r, err := Parse("weekly:fri,mon,fri,wed")
	require.NoError(t, err)
	assert.Equal(t, "weekly:mon,wed,fri", r.Encode())
}

func TestParse_Rejects(t *testing.T) {
	for _, enc := range []string{
		"",
		"fortnightly",
		"daily:3",
		"weekly",
		"weekly:",
		"weekly:funday",
		"monthly:0",
		"monthly:32",
		"monthly:x",
		"yearly:14",
		"yearly:13-01",
		"yearly:02-30",
		"yearly:04-31",
	} {
		_, err := Parse(enc)
		assert.ErrorIs(t, err, ErrBadRule, "enc=%q", enc)
	}
}

func TestMatches(t *testing.T) {
	day := func(s string) time.Time {
		d, err := model.ParseDate(s)
		require.NoError(t, err)
		return d
	}

	weekdays, _ := Parse("weekdays")
	assert.True(t, weekdays.Matches(day("2026-01-05"))) // Monday
	assert.False(t, weekdays.Matches(day("2026-01-10"))) // Saturday

	weekends, _ := Parse("weekends")
	assert.True(t, weekends.Matches(day("2026-01-11"))) // Sunday
	assert.False(t, weekends.Matches(day("2026-01-06")))

	monthly, _ := Parse("monthly:31")
	assert.True(t, monthly.Matches(day("2026-01-31")))
	// Short months simply have no day 31.
	assert.False(t, monthly.Matches(day("2026-04-30")))

	leap, _ := Parse("yearly:02-29")
	assert.True(t, leap.Matches(day("2028-02-29")))
	assert.False(t, leap.Matches(day("2026-02-28")))
	assert.False(t, leap.Matches(day("2026-03-01")))
}
