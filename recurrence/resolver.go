package recurrence

import (
	"slices"
	"time"

	"github.com/teambition/rrule-go"
)

// DateKey formats the calendar date of t in its own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// OccursOn reports whether a rule fires on the calendar date of date.
// A non-empty daysOverride always wins over the rule's kind.
func OccursOn(rule Rule, daysOverride []time.Weekday, date time.Time) bool {
	wd := date.Weekday()
	if len(daysOverride) > 0 {
		return slices.Contains(daysOverride, wd)
	}

	switch rule.Kind {
	case Daily:
		return true
	case Weekdays:
		return wd >= time.Monday && wd <= time.Friday
	case Weekends:
		return wd == time.Saturday || wd == time.Sunday
	case Weekly:
		return wd == rule.Weekday
	case Monthly:
		return date.Day() == 1
	case SpecificDays:
		return slices.Contains(rule.Days, wd)
	case OneOff:
		return rule.Date == DateKey(date)
	}
	return false
}

// IsWithin reports whether t falls in the half-open window [start, end).
// Windows crossing midnight are not supported.
func IsWithin(t, start, end ClockTime) bool {
	return t >= start && t < end
}

// ShiftTime moves t by delta minutes, wrapping around midnight.
func ShiftTime(t ClockTime, delta int) ClockTime {
	m := (int(t) + delta) % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return ClockTime(m)
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func toRRuleWeekdays(days []time.Weekday) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, rruleWeekdays[d])
	}
	return out
}

// ROption returns the rrule options equivalent to the rule with the given override.
// One-off rules and empty specific-days rules have no rrule form.
func (r Rule) ROption(daysOverride []time.Weekday, dtstart time.Time) (rrule.ROption, bool) {
	opt := rrule.ROption{Dtstart: dtstart}
	if len(daysOverride) > 0 {
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleWeekdays(daysOverride)
		return opt, true
	}

	switch r.Kind {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekdays:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case Weekends:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.SA, rrule.SU}
	case Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleWeekdays([]time.Weekday{r.Weekday})
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{1}
	case SpecificDays:
		if len(r.Days) == 0 {
			return opt, false
		}
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleWeekdays(r.Days)
	default:
		return opt, false
	}
	return opt, true
}
