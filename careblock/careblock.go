// Package careblock holds the recurring care arrangements of a household and answers which
// of them apply on a date or at the current instant.
package careblock

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cyp0633/libroutine/recurrence"
)

// ErrNotFound is returned when a block id is unknown
var ErrNotFound = errors.New("care block not found")

// ErrInvalidBlock wraps validation failures
var ErrInvalidBlock = errors.New("invalid care block")

// Category classifies what a block means for the caregiver
type Category string

const (
	Childcare      Category = "childcare"
	Babysitter     Category = "babysitter"
	Appointment    Category = "appointment"
	Activity       Category = "activity"
	SleepScheduled Category = "sleep-scheduled"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case Childcare, Babysitter, Appointment, Activity, SleepScheduled:
		return true
	}
	return false
}

// CareBlock is a named time window, possibly recurring, tied to one or more children.
// Start and End are times of day on the same day.
type CareBlock struct {
	ID       string          `json:"id"`
	ChildIDs []string        `json:"child_ids"`
	Name     string          `json:"name"`
	Category Category        `json:"category"`
	Rule     recurrence.Rule `json:"recurrence"`
	// DaysOverride takes precedence over Rule when non-empty
	DaysOverride []time.Weekday       `json:"days_override,omitempty"`
	Start        recurrence.ClockTime `json:"start"`
	End          recurrence.ClockTime `json:"end"`
	// Travel buffers, in minutes
	BufferBefore int  `json:"buffer_before,omitempty"`
	BufferAfter  int  `json:"buffer_after,omitempty"`
	Active       bool `json:"active"`
}

// Validate checks the invariants callers must uphold before handing a block to a Registry
func (b CareBlock) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidBlock)
	}
	if !b.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidBlock, b.Category)
	}
	if b.Start < 0 || b.End > recurrence.MinutesPerDay || b.Start >= b.End {
		return fmt.Errorf("%w: start %s must be before end %s on the same day", ErrInvalidBlock, b.Start, b.End)
	}
	if b.BufferBefore < 0 || b.BufferAfter < 0 {
		return fmt.Errorf("%w: buffers cannot be negative", ErrInvalidBlock)
	}
	for _, d := range b.DaysOverride {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: override day %d out of range", ErrInvalidBlock, d)
		}
	}
	if err := b.Rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	return nil
}

// Inert reports whether the block applies to no child
func (b CareBlock) Inert() bool {
	return len(b.ChildIDs) == 0
}

// Covers reports whether the block applies to the child
func (b CareBlock) Covers(childID string) bool {
	return slices.Contains(b.ChildIDs, childID)
}

// OccursOn reports whether the block's recurrence fires on the date, ignoring Active
func (b CareBlock) OccursOn(date time.Time) bool {
	return recurrence.OccursOn(b.Rule, b.DaysOverride, date)
}

// EffectiveWindow is the nominal window widened by both buffers, clamped to the day
func (b CareBlock) EffectiveWindow() (start, end recurrence.ClockTime) {
	start = max(b.Start-recurrence.ClockTime(b.BufferBefore), 0)
	end = min(b.End+recurrence.ClockTime(b.BufferAfter), recurrence.MinutesPerDay)
	return start, end
}

// InTravelBuffer reports whether t falls between leaving and the start, or between the
// end and returning home
func (b CareBlock) InTravelBuffer(t recurrence.ClockTime) bool {
	start, end := b.EffectiveWindow()
	return recurrence.IsWithin(t, start, b.Start) || recurrence.IsWithin(t, b.End, end)
}
