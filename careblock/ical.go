package careblock

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
)

const (
	icalProductID   = "-//libroutine//Care Blocks//EN"
	icalFloatLayout = "20060102T150405"
	icalDateLayout  = "20060102"
)

// floatingProp builds a date-time property without a zone, so the block keeps its
// wall-clock times wherever the calendar is opened
func floatingProp(name string, t time.Time) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = t.Format(icalFloatLayout)
	return prop
}

// Event renders one block as a VEVENT whose first instance is the block's first
// occurrence on or after anchor. It reports false when the block never occurs.
func (r *Registry) Event(b CareBlock, anchor time.Time) (*ical.Event, bool) {
	day, ok := r.engine.NextOccurrence(b.Rule, b.DaysOverride, anchor).Get()
	if !ok {
		return nil, false
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, b.ID)
	event.Props.SetText(ical.PropSummary, b.Name)
	event.Props.SetText(ical.PropCategories, string(b.Category))
	event.Props.SetDateTime(ical.PropDateTimeStamp, r.clock.Now().UTC())
	event.Props.Set(floatingProp(ical.PropDateTimeStart, b.Start.On(day)))
	event.Props.Set(floatingProp(ical.PropDateTimeEnd, b.End.On(day)))

	if opt, ok := b.Rule.ROption(b.DaysOverride, b.Start.On(day)); ok {
		event.Props.SetRecurrenceRule(&opt)
	}
	if b.BufferBefore > 0 || b.BufferAfter > 0 {
		event.Props.SetText(ical.PropDescription,
			fmt.Sprintf("Travel buffer: %d min before, %d min after", b.BufferBefore, b.BufferAfter))
	}
	return event, true
}

// Calendar collects every active block that still occurs on or after anchor
func (r *Registry) Calendar(anchor time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, icalProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for _, b := range r.List() {
		if !b.Active {
			continue
		}
		event, ok := r.Event(b, anchor)
		if !ok {
			continue
		}
		cal.Children = append(cal.Children, event.Component)
	}
	return cal
}

// ExportICS writes the active blocks as an iCalendar stream
func (r *Registry) ExportICS(w io.Writer, anchor time.Time) error {
	cal := r.Calendar(anchor)
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode care block calendar: %w", err)
	}
	r.logger.Debug("care blocks exported", "events", len(cal.Children), "anchor", anchor.Format(icalDateLayout))
	return nil
}
