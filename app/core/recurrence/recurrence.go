// Package recurrence implements the date math behind repeating todos and
// reminders. Patterns are a closed string grammar persisted on the entity:
//
//	weekly:<0-6>          weekday, 0=Sunday
//	monthly:<1-31>        day of month, clamped to month length
//	monthly:first:<0-6>   first weekday of the month
//	monthly:last:<0-6>    last weekday of the month
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// NextDueDate returns the next strictly-later occurrence of pattern after
// from, at local midnight. A weekly pattern whose weekday matches from
// advances a full week. A malformed pattern degrades to from+7d rather than
// erroring.
func NextDueDate(pattern string, from time.Time) time.Time {
	day := midnight(from)
	parts := strings.Split(pattern, ":")

	switch parts[0] {
	case "weekly":
		target, ok := parseWeekday(parts, 1)
		if !ok {
			break
		}
		until := (target - int(day.Weekday()) + 7) % 7
		if until == 0 {
			until = 7
		}
		return day.AddDate(0, 0, until)

	case "monthly":
		if len(parts) >= 2 && (parts[1] == "first" || parts[1] == "last") {
			target, ok := parseWeekday(parts, 2)
			if !ok {
				break
			}
			next := time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, day.Location())
			return nthWeekdayOf(next, parts[1], target)
		}
		target, ok := parseMonthDay(parts, 1)
		if !ok {
			break
		}
		next := time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, day.Location())
		return next.AddDate(0, 0, min(target, daysIn(next))-1)
	}

	return day.AddDate(0, 0, 7)
}

// FirstDueDate returns the first occurrence of pattern at or after now, at
// local midnight. Unlike NextDueDate a same-day match is a valid result.
// A malformed pattern degrades to today's midnight.
func FirstDueDate(pattern string, now time.Time) time.Time {
	today := midnight(now)
	parts := strings.Split(pattern, ":")

	switch parts[0] {
	case "weekly":
		target, ok := parseWeekday(parts, 1)
		if !ok {
			break
		}
		until := (target - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, until)

	case "monthly":
		if len(parts) >= 2 && (parts[1] == "first" || parts[1] == "last") {
			target, ok := parseWeekday(parts, 2)
			if !ok {
				break
			}
			thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
			candidate := nthWeekdayOf(thisMonth, parts[1], target)
			if !candidate.Before(today) {
				return candidate
			}
			return nthWeekdayOf(thisMonth.AddDate(0, 1, 0), parts[1], target)
		}
		target, ok := parseMonthDay(parts, 1)
		if !ok {
			break
		}
		thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		candidate := thisMonth.AddDate(0, 0, min(target, daysIn(thisMonth))-1)
		if !candidate.Before(today) {
			return candidate
		}
		next := thisMonth.AddDate(0, 1, 0)
		return next.AddDate(0, 0, min(target, daysIn(next))-1)
	}

	return today
}

// Describe renders a pattern for display. Unrecognized patterns are returned
// unchanged.
func Describe(pattern string) string {
	parts := strings.Split(pattern, ":")

	switch parts[0] {
	case "weekly":
		if target, ok := parseWeekday(parts, 1); ok {
			return "Every " + weekdayNames[target]
		}
	case "monthly":
		if len(parts) >= 2 && (parts[1] == "first" || parts[1] == "last") {
			if target, ok := parseWeekday(parts, 2); ok {
				return fmt.Sprintf("Monthly · %s %s", parts[1], weekdayNames[target])
			}
			break
		}
		if target, ok := parseMonthDay(parts, 1); ok {
			return fmt.Sprintf("Monthly · %d%s", target, ordinal(target))
		}
	}
	return pattern
}

func ordinal(n int) string {
	if n >= 11 && n <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// nthWeekdayOf resolves the first or last weekday of the month containing
// monthStart, which must be the first of that month.
func nthWeekdayOf(monthStart time.Time, nth string, weekday int) time.Time {
	if nth == "first" {
		diff := (weekday - int(monthStart.Weekday()) + 7) % 7
		return monthStart.AddDate(0, 0, diff)
	}
	lastDay := monthStart.AddDate(0, 1, -1)
	diff := (int(lastDay.Weekday()) - weekday + 7) % 7
	return lastDay.AddDate(0, 0, -diff)
}

func parseWeekday(parts []string, idx int) (int, bool) {
	if len(parts) <= idx {
		return 0, false
	}
	n, err := strconv.Atoi(parts[idx])
	if err != nil || n < 0 || n > 6 {
		return 0, false
	}
	return n, true
}

func parseMonthDay(parts []string, idx int) (int, bool) {
	if len(parts) <= idx {
		return 0, false
	}
	n, err := strconv.Atoi(parts[idx])
	if err != nil || n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}
