package timedesc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDailyEventFiresInWindow(t *testing.T) {
	td := TimeDescriptor{TimeEventItems: []TimeEventItem{
		{Hour: 7, Minute: 30, Repeating: RepeatDaily},
	}}
	last := time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	require.True(t, td.Evaluate(last, now))
}

func TestDailyEventDoesNotFireOutsideWindow(t *testing.T) {
	td := TimeDescriptor{TimeEventItems: []TimeEventItem{
		{Hour: 7, Minute: 30, Repeating: RepeatDaily},
	}}
	last := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	require.False(t, td.Evaluate(last, now))
}

func TestWeeklyRespectsWeekDaySet(t *testing.T) {
	td := TimeDescriptor{TimeEventItems: []TimeEventItem{
		{Hour: 9, Minute: 0, Repeating: RepeatWeekly, WeekDays: []int{1, 2, 3, 4, 5}},
	}}
	// 2026-08-03 is a Monday.
	monday := time.Date(2026, 8, 3, 8, 30, 0, 0, time.UTC)
	mondayAfter := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	require.True(t, td.Evaluate(monday, mondayAfter))

	// 2026-08-08 is a Saturday, excluded from the weekday set.
	saturday := time.Date(2026, 8, 8, 8, 30, 0, 0, time.UTC)
	saturdayAfter := time.Date(2026, 8, 8, 9, 30, 0, 0, time.UTC)
	require.False(t, td.Evaluate(saturday, saturdayAfter))
}

func TestMonthlyRespectsMonthDaySet(t *testing.T) {
	td := TimeDescriptor{TimeEventItems: []TimeEventItem{
		{Hour: 0, Minute: 0, Repeating: RepeatMonthly, MonthDays: []int{1, 15}},
	}}
	last := time.Date(2026, 8, 14, 23, 30, 0, 0, time.UTC)
	now := time.Date(2026, 8, 15, 0, 30, 0, 0, time.UTC)
	require.True(t, td.Evaluate(last, now))
}

func TestCalendarItemWindow(t *testing.T) {
	start := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	td := TimeDescriptor{CalendarItems: []CalendarItem{{DateTime: start, Duration: 2 * time.Minute}}}

	require.True(t, td.CalendarActive(start))
	require.True(t, td.CalendarActive(start.Add(time.Minute)))
	require.False(t, td.CalendarActive(start.Add(3*time.Minute)))

	// Evaluate reports the transition into the window, not every tick
	// while it stays active.
	require.True(t, td.Evaluate(start.Add(-time.Minute), start))
	require.False(t, td.Evaluate(start, start.Add(time.Minute)))
}

func TestWeeklyCalendarItemWindow(t *testing.T) {
	td := TimeDescriptor{CalendarItems: []CalendarItem{
		{StartHour: 8, StartMinute: 0, Duration: 60 * time.Minute, Repeating: RepeatWeekly, WeekDays: []int{1}},
	}}
	// 2026-08-03 is a Monday.
	before := time.Date(2026, 8, 3, 7, 59, 0, 0, time.UTC)
	start := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	during := time.Date(2026, 8, 3, 8, 30, 0, 0, time.UTC)
	after := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	require.False(t, td.CalendarActive(before))
	require.True(t, td.CalendarActive(start))
	require.True(t, td.CalendarActive(during))
	require.False(t, td.CalendarActive(after))

	// Saturday isn't in the weekday set.
	saturday := time.Date(2026, 8, 8, 8, 30, 0, 0, time.UTC)
	require.False(t, td.CalendarActive(saturday))
}

func TestEmptyDescriptorNeverFires(t *testing.T) {
	var td TimeDescriptor
	require.True(t, td.IsEmpty())
	require.False(t, td.Evaluate(time.Now().Add(-time.Hour), time.Now()))
}
