// Package transition watches care block and nap boundaries, applies the expected change to
// the event logs ahead of the caregiver, and keeps a time-boxed pending transition through
// which the change can be confirmed or reverted.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/recurrence"
)

var (
	// ErrNotFound is returned for unknown transition ids
	ErrNotFound = errors.New("transition not found")
	// ErrNotPending is returned when confirming or dismissing a resolved transition
	ErrNotPending = errors.New("transition is no longer pending")
)

// Kind is what boundary produced a transition
type Kind string

const (
	CareBlockStart Kind = "care-block-start"
	CareBlockEnd   Kind = "care-block-end"
	NapStart       Kind = "nap-start"
)

// Status of a transition. Everything but Pending is terminal.
type Status string

const (
	Pending       Status = "pending"
	Confirmed     Status = "confirmed"
	Dismissed     Status = "dismissed"
	AutoConfirmed Status = "auto-confirmed"
)

// PendingTransition is a detected change awaiting confirmation
type PendingTransition struct {
	ID            string               `json:"id"`
	Kind          Kind                 `json:"kind"`
	ChildID       string               `json:"child_id"`
	ScheduledTime recurrence.ClockTime `json:"scheduled_time"`
	Date          string               `json:"date"`
	// Ref is the care block or nap schedule the transition came from
	Ref         string     `json:"ref"`
	Description string     `json:"description"`
	DeadlineMs  int64      `json:"deadline_ms"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      Status     `json:"status"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Change      Change     `json:"change"`
}

// Deadline is the instant after which the transition confirms itself
func (p PendingTransition) Deadline() time.Time {
	return p.CreatedAt.Add(time.Duration(p.DeadlineMs) * time.Millisecond)
}

// Op is an event log mutation
type Op string

const (
	// OpStartAway opens an auto-tracked away event at Change.At
	OpStartAway Op = "start-away"
	// OpEndAway closes the away event at Change.At
	OpEndAway Op = "end-away"
	// OpRevertAway removes the auto-tracked away event started at Change.At, even if it
	// has already been closed
	OpRevertAway Op = "revert-away"
	// OpStartNap opens an auto-tracked nap at Change.At
	OpStartNap Op = "start-nap"
	// OpSuggestNap changes nothing
	OpSuggestNap Op = "suggest-nap"
)

// Change is a reversible command against the event logs. It carries everything needed to
// build its own inverse.
type Change struct {
	Op      Op        `json:"op"`
	ChildID string    `json:"child_id"`
	At      time.Time `json:"at"`
	Label   string    `json:"label,omitempty"`
}

// Inverse returns the command that undoes c
func (c Change) Inverse() Change {
	inv := c
	switch c.Op {
	case OpStartAway:
		inv.Op = OpRevertAway
	case OpEndAway:
		// the child is still there: reopen from when we closed it
		inv.Op = OpStartAway
	case OpRevertAway:
		inv.Op = OpStartAway
	default:
		inv.Op = OpSuggestNap
	}
	return inv
}

// EventLog is the part of an event log the detector drives
type EventLog interface {
	IsActive(childID string) bool
	StartAuto(ctx context.Context, childID string, at time.Time, d eventlog.Details) (eventlog.Event, error)
	EndAuto(ctx context.Context, childID string, at time.Time) (eventlog.Event, error)
	RevertAutoStart(ctx context.Context, childID string) mo.Option[eventlog.Event]
	RemoveAutoTracked(ctx context.Context, childID string, startedAt time.Time) mo.Option[eventlog.Event]
	StartedOn(childID string, date time.Time) []eventlog.Event
}

// Apply runs the command against the logs
func (c Change) Apply(ctx context.Context, sleep, away EventLog) error {
	switch c.Op {
	case OpStartAway:
		_, err := away.StartAuto(ctx, c.ChildID, c.At, eventlog.Details{Label: c.Label})
		return err
	case OpEndAway:
		_, err := away.EndAuto(ctx, c.ChildID, c.At)
		return err
	case OpRevertAway:
		if away.RemoveAutoTracked(ctx, c.ChildID, c.At).IsAbsent() {
			away.RevertAutoStart(ctx, c.ChildID)
		}
		return nil
	case OpStartNap:
		_, err := sleep.StartAuto(ctx, c.ChildID, c.At, eventlog.Details{SleepType: eventlog.Nap})
		return err
	case OpSuggestNap:
		return nil
	}
	return fmt.Errorf("unknown change op %q", c.Op)
}
