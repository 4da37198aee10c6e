// Package eventlog records open-ended per-child events such as sleep and time away.
//
// An event starts open (no end) and is closed by the caregiver, by the transition
// detector, or by auto-expiry once it has run implausibly long. At most one event per
// child is open in a Log at any time.
package eventlog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown event ids
	ErrNotFound = errors.New("event not found")
	// ErrNotOpen is returned when ending a child that has no open event
	ErrNotOpen = errors.New("no open event for child")
	// ErrAlreadyOpen is returned by StartAuto when the child already has an open event
	ErrAlreadyOpen = errors.New("child already has an open event")
	// ErrInvalidRange is returned when an edit would end an event before it started
	ErrInvalidRange = errors.New("event ends before it starts")
	// ErrInvalidDetails is returned for a sleep event without a known sleep type
	ErrInvalidDetails = errors.New("invalid event details")
)

// Kind is the type of log
type Kind string

const (
	Sleep Kind = "sleep"
	Away  Kind = "away"
)

// SleepType distinguishes daytime naps from night sleep
type SleepType string

const (
	Nap   SleepType = "nap"
	Night SleepType = "night"
)

// Valid reports whether s is a known sleep type
func (s SleepType) Valid() bool {
	return s == Nap || s == Night
}

// ClosedReason records what closed an event
type ClosedReason string

const (
	ClosedByUser     ClosedReason = "user"
	ClosedExpired    ClosedReason = "expired"
	ClosedSuperseded ClosedReason = "superseded"
	ClosedAuto       ClosedReason = "auto"
)

// Event is one entry of a log. A nil EndedAt means the event is still ongoing.
type Event struct {
	ID        string     `json:"id"`
	ChildID   string     `json:"child_id"`
	Kind      Kind       `json:"kind"`
	Date      string     `json:"date"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// SleepType is set on sleep events only
	SleepType SleepType `json:"sleep_type,omitempty"`
	// Label names the care arrangement of an away event
	Label        string       `json:"label,omitempty"`
	AutoTracked  bool         `json:"auto_tracked,omitempty"`
	ClosedReason ClosedReason `json:"closed_reason,omitempty"`
}

// Open reports whether the event has not ended
func (e Event) Open() bool {
	return e.EndedAt == nil
}

// Duration is the length of the event, measured up to now while it is open
func (e Event) Duration(now time.Time) time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return now.Sub(e.StartedAt)
}

// Details carries the kind-specific fields of a new event
type Details struct {
	SleepType SleepType `json:"sleep_type,omitempty"`
	Label     string    `json:"label,omitempty"`
}

// Patch is a user correction. Nil fields are left unchanged.
type Patch struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Expiry bounds how long an open sleep event may run before it is closed automatically.
// Away events never expire.
type Expiry struct {
	NapCeiling    time.Duration
	NightCeiling  time.Duration
	NapFallback   time.Duration
	NightFallback time.Duration
}

// DefaultExpiry closes naps after 3 hours and night sleep after 14 hours
var DefaultExpiry = Expiry{
	NapCeiling:    3 * time.Hour,
	NightCeiling:  14 * time.Hour,
	NapFallback:   2 * time.Hour,
	NightFallback: 11 * time.Hour,
}
