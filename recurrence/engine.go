package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

const opOccurrences = "occurrences"

// Engine expands rules into concrete dates for forward-looking views.
// OccursOn answers the single-date question without an Engine.
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
}

// NewEngine creates an engine without caching
func NewEngine() *Engine {
	return NewEngineWithConfig(DisabledCacheConfig)
}

// Close releases the cache, if any
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Occurrences returns the midnight of every date in [from, to) on which the rule fires.
// from is truncated to its date.
func (e *Engine) Occurrences(rule Rule, daysOverride []time.Weekday, from, to time.Time) ([]time.Time, error) {
	dayStart := startOfDay(from)
	if !to.After(dayStart) {
		return nil, nil
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(opOccurrences, rule, daysOverride, dayStart, to); ok {
			return cached, nil
		}
	}

	occurrences, err := e.expand(rule, daysOverride, dayStart, to)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(opOccurrences, rule, daysOverride, dayStart, to, occurrences)
	}
	return occurrences, nil
}

func (e *Engine) expand(rule Rule, daysOverride []time.Weekday, dayStart, to time.Time) ([]time.Time, error) {
	opt, ok := rule.ROption(daysOverride, dayStart)
	if !ok {
		if len(daysOverride) == 0 && rule.Kind == OneOff {
			return e.expandOneOff(rule, dayStart, to)
		}
		return nil, nil
	}
	opt.Count = e.config.MaxOccurrences

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rrule for %s rule: %w", rule.Kind, err)
	}

	var out []time.Time
	for _, occ := range r.Between(dayStart, to, true) {
		if occ.Before(to) {
			out = append(out, occ)
		}
	}
	return out, nil
}

func (e *Engine) expandOneOff(rule Rule, dayStart, to time.Time) ([]time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, rule.Date, dayStart.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to parse one-off date %q: %w", rule.Date, err)
	}
	if date.Before(dayStart) || !date.Before(to) {
		return nil, nil
	}
	return []time.Time{date}, nil
}

// NextOccurrence returns the first date on or after the date of after on which the rule fires.
func (e *Engine) NextOccurrence(rule Rule, daysOverride []time.Weekday, after time.Time) mo.Option[time.Time] {
	occurrences, err := e.Occurrences(rule, daysOverride, after, startOfDay(after).Add(e.config.LookAhead))
	if err != nil || len(occurrences) == 0 {
		return mo.None[time.Time]()
	}
	return mo.Some(occurrences[0])
}
