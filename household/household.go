// Package household describes the children the engine tracks and their nap schedules.
// The engine only reads these; editing them belongs to the settings surface.
package household

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/recurrence"
)

// Child is a tracked child
type Child struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Birthdate time.Time `json:"birthdate"`
	// TracksNaps marks a child young enough for daytime sleep to be tracked
	TracksNaps bool `json:"tracks_naps"`
}

// NapSchedule is a child's typical nap. NapNumber is the 1-based ordinal of the nap
// within the day.
type NapSchedule struct {
	ID              string               `json:"id"`
	ChildID         string               `json:"child_id"`
	NapNumber       int                  `json:"nap_number"`
	TypicalStart    recurrence.ClockTime `json:"typical_start"`
	TypicalDuration int                  `json:"typical_duration_minutes"`
}

// Duration returns the typical nap length
func (n NapSchedule) Duration() time.Duration {
	return time.Duration(n.TypicalDuration) * time.Minute
}

// Children is the read side of the child registry
type Children interface {
	ListChildren() []Child
	GetChild(id string) mo.Option[Child]
}

// NapSchedules is the read side of the nap schedule registry
type NapSchedules interface {
	ListNapSchedules() []NapSchedule
	// NapSchedulesFor returns a child's schedules ordered by NapNumber
	NapSchedulesFor(childID string) []NapSchedule
}

// Registry combines both read sides
type Registry interface {
	Children
	NapSchedules
}
