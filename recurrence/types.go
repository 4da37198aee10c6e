package recurrence

import (
	"fmt"
	"time"
)

// MinutesPerDay is the length of a day in minute-of-day arithmetic.
const MinutesPerDay = 24 * 60

// DateLayout is the calendar date format used for one-off rules and event dates.
const DateLayout = "2006-01-02"

// ClockTime is a time of day expressed as minutes since midnight.
// It encodes as "HH:MM".
type ClockTime int

// ParseClock parses an "HH:MM" string. Trailing seconds ("09:00:00") are ignored.
func ParseClock(s string) (ClockTime, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	tt, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, fmt.Errorf("invalid time string: %q: %w", s, err)
	}
	return ClockTime(tt.Hour()*60 + tt.Minute()), nil
}

// MustParseClock is like ParseClock but panics on malformed input.
func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the minute-of-day of t in its own location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant at this time of day on the calendar date of day.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, day.Location())
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Kind is the recurrence descriptor of a rule.
type Kind string

const (
	Daily        Kind = "daily"
	Weekdays     Kind = "weekdays"
	Weekends     Kind = "weekends"
	Weekly       Kind = "weekly"
	Monthly      Kind = "monthly"
	SpecificDays Kind = "specific-days"
	OneOff       Kind = "one-off"
)

// Valid reports whether k is a known recurrence kind.
func (k Kind) Valid() bool {
	switch k {
	case Daily, Weekdays, Weekends, Weekly, Monthly, SpecificDays, OneOff:
		return true
	}
	return false
}

// Rule describes when something recurs.
type Rule struct {
	Kind Kind `json:"kind"`
	// Days is used by SpecificDays.
	Days []time.Weekday `json:"days,omitempty"`
	// Weekday is used by Weekly. The zero value is time.Sunday.
	Weekday time.Weekday `json:"weekday,omitempty"`
	// Date is used by OneOff, formatted with DateLayout.
	Date string `json:"date,omitempty"`
}

// Validate checks the rule shape. Rules are not validated on the resolution path.
func (r Rule) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown recurrence kind %q", r.Kind)
	}
	switch r.Kind {
	case SpecificDays:
		if len(r.Days) == 0 {
			return fmt.Errorf("specific-days rule needs at least one day")
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("day of week %d out of range", d)
			}
		}
	case Weekly:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("day of week %d out of range", r.Weekday)
		}
	case OneOff:
		if _, err := time.Parse(DateLayout, r.Date); err != nil {
			return fmt.Errorf("one-off rule needs a %s date: %w", DateLayout, err)
		}
	}
	return nil
}
