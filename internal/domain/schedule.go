package domain

import (
	"strings"
	"time"
)

type dateLayout struct {
	layout   string
	hasClock bool
}

var dateLayouts = []dateLayout{
	{"2006-01-02", false},
	{time.RFC3339, true},
	{"January 2, 2006", false},
	{"Jan 2, 2006", false},
	{"Monday, January 2, 2006", false},
	{"Mon, Jan 2, 2006", false},
	{"2 January 2006", false},
	{"01/02/2006", false},
}

var timeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// parseEventDate also reports whether the value carried its own clock.
func parseEventDate(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.UTC(), l.hasClock, true
		}
	}
	return time.Time{}, false, false
}

func parseEventClock(s string) (time.Duration, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
		}
	}
	return 0, false
}

// EndInstant derives when the event is over. The end date falls back to the
// start date when missing or unparsable; a missing clock means end of that day.
func (e Event) EndInstant() (time.Time, bool) {
	day, hasClock, ok := parseEventDate(e.EndDate)
	clock := e.EndTime
	if !ok {
		day, hasClock, ok = parseEventDate(e.StartDate)
		if !ok {
			return time.Time{}, false
		}
		if strings.TrimSpace(clock) == "" {
			clock = e.StartTime
		}
	}
	if hasClock {
		return day, true
	}
	if d, ok := parseEventClock(clock); ok {
		return day.Add(d), true
	}
	return day.Add(24*time.Hour - time.Second), true
}

func (e Event) IsEnded(now time.Time) bool {
	if e.Status == EventEnded {
		return true
	}
	end, ok := e.EndInstant()
	if !ok {
		return false
	}
	return !now.Before(end)
}

// CheckoutAvailable refuses checkout for cancelled or finished events.
func CheckoutAvailable(e Event, now time.Time) error {
	if e.Status == EventCancelled {
		return ErrEventCanceled
	}
	if e.IsEnded(now) {
		return ErrEventEnded
	}
	return nil
}
