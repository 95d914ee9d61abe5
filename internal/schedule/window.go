// Package schedule holds the pure scheduling math for the outreach
// engine: send-window evaluation, humanized jitter and retry backoff.
// Nothing in here touches the database, Redis or the clock directly;
// callers pass the current time in.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lower-cased full weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", name)
	}
	return d, nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Window is a daily send window: a [start, end) time-of-day range in
// minutes since midnight plus the set of weekdays it applies to.
// Overnight windows (start >= end) are rejected at construction.
type Window struct {
	StartMinute int
	EndMinute   int
	Days        map[time.Weekday]bool
}

// NewWindow builds a Window from HH:MM bounds and weekday names.
func NewWindow(start, end string, days []string) (Window, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("send_window_start: %w", err)
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("send_window_end: %w", err)
	}
	if startMin >= endMin {
		return Window{}, fmt.Errorf("send window %s-%s crosses midnight or is empty", start, end)
	}

	daySet := make(map[time.Weekday]bool, len(days))
	for _, name := range days {
		d, err := ParseWeekday(name)
		if err != nil {
			return Window{}, err
		}
		daySet[d] = true
	}

	return Window{StartMinute: startMin, EndMinute: endMin, Days: daySet}, nil
}

// Contains reports whether t falls inside the window. The end boundary
// is exclusive. An empty day set means the window never opens.
func (w Window) Contains(t time.Time) bool {
	if !w.Days[t.Weekday()] {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= w.StartMinute && minute < w.EndMinute
}

// NextOpen returns the earliest instant at or after t that falls inside
// the window, preserving t's location. Returns the zero time when no
// day is enabled.
func (w Window) NextOpen(t time.Time) time.Time {
	if len(w.Days) == 0 {
		return time.Time{}
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for i := 0; i < 8; i++ {
		open := day.Add(time.Duration(w.StartMinute) * time.Minute)
		if w.Days[day.Weekday()] {
			if i == 0 && w.Contains(t) {
				return t
			}
			if open.After(t) || open.Equal(t) {
				return open
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// InLocation resolves an IANA timezone name, falling back through the
// campaign default to UTC. Window evaluation happens in the recipient's
// local time, so the caller converts before testing Contains.
func InLocation(leadTZ, fallbackTZ string) *time.Location {
	for _, name := range []string{leadTZ, fallbackTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
