package recurrence

import (
	"fmt"
	"testing"
	"time"
)

// March 4 2026 is a Wednesday.
var march4 = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.Local)

func TestDescribe(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"weekly:0", "Every Sunday"},
		{"weekly:1", "Every Monday"},
		{"weekly:3", "Every Wednesday"},
		{"weekly:6", "Every Saturday"},
		{"monthly:1", "Monthly · 1st"},
		{"monthly:2", "Monthly · 2nd"},
		{"monthly:3", "Monthly · 3rd"},
		{"monthly:5", "Monthly · 5th"},
		{"monthly:11", "Monthly · 11th"},
		{"monthly:12", "Monthly · 12th"},
		{"monthly:13", "Monthly · 13th"},
		{"monthly:22", "Monthly · 22nd"},
		{"monthly:first:1", "Monthly · first Monday"},
		{"monthly:first:0", "Monthly · first Sunday"},
		{"monthly:last:6", "Monthly · last Saturday"},
		{"monthly:last:5", "Monthly · last Friday"},
		{"unknown:x", "unknown:x"},
		{"weekly:9", "weekly:9"},
	}
	for _, tc := range cases {
		if got := Describe(tc.pattern); got != tc.want {
			t.Fatalf("Describe(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestNextDueDate(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		want    time.Time
	}{
		{"weekly same weekday advances a full week", "weekly:3", date(2026, time.March, 11)},
		{"weekly later this week", "weekly:5", date(2026, time.March, 6)},
		{"weekly sunday from wednesday", "weekly:0", date(2026, time.March, 8)},
		{"monthly date next month", "monthly:5", date(2026, time.April, 5)},
		{"monthly date clamps to short month", "monthly:31", date(2026, time.April, 30)},
		{"monthly first monday", "monthly:first:1", date(2026, time.April, 6)},
		{"monthly first sunday", "monthly:first:0", date(2026, time.April, 5)},
		{"monthly last saturday", "monthly:last:6", date(2026, time.April, 25)},
		{"monthly last monday", "monthly:last:1", date(2026, time.April, 27)},
		{"malformed pattern falls back to plus seven days", "unknown:x", date(2026, time.March, 11)},
	}
	for _, tc := range cases {
		got := NextDueDate(tc.pattern, march4)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: NextDueDate(%q) = %v, want %v", tc.name, tc.pattern, got, tc.want)
		}
	}
}

func TestNextDueDateIsMidnight(t *testing.T) {
	got := NextDueDate("weekly:0", march4)
	h, m, s := got.Clock()
	if h != 0 || m != 0 || s != 0 || got.Nanosecond() != 0 {
		t.Fatalf("expected midnight, got %v", got)
	}
}

func TestNextDueDateNeverSameDay(t *testing.T) {
	for wd := 0; wd < 7; wd++ {
		from := date(2026, time.March, 1).AddDate(0, 0, wd) // covers all weekdays
		pattern := fmt.Sprintf("weekly:%d", int(from.Weekday()))
		got := NextDueDate(pattern, from)
		if !got.Equal(from.AddDate(0, 0, 7)) {
			t.Fatalf("pattern %q from %v: got %v, want exactly 7 days later", pattern, from, got)
		}
	}
}

func TestFirstDueDate(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		want    time.Time
	}{
		{"weekly today qualifies", "weekly:3", date(2026, time.March, 4)},
		{"weekly later this week", "weekly:5", date(2026, time.March, 6)},
		{"weekly past weekday rolls a week", "weekly:1", date(2026, time.March, 9)},
		{"monthly date upcoming this month", "monthly:15", date(2026, time.March, 15)},
		{"monthly date today", "monthly:4", date(2026, time.March, 4)},
		{"monthly date passed rolls forward", "monthly:1", date(2026, time.April, 1)},
		{"monthly first monday passed rolls forward", "monthly:first:1", date(2026, time.April, 6)},
		{"monthly first saturday still upcoming", "monthly:first:6", date(2026, time.March, 7)},
		{"monthly last saturday still upcoming", "monthly:last:6", date(2026, time.March, 28)},
		{"malformed pattern degrades to today", "nope", date(2026, time.March, 4)},
	}
	for _, tc := range cases {
		got := FirstDueDate(tc.pattern, march4)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: FirstDueDate(%q) = %v, want %v", tc.name, tc.pattern, got, tc.want)
		}
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
