package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/household"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/notify"
	"github.com/cyp0633/libroutine/persist"
	"github.com/cyp0633/libroutine/recurrence"
)

// Log is the in-memory event log of one Kind
type Log struct {
	mu       sync.Mutex
	kind     Kind
	events   []Event
	clock    clock.Clock
	naps     household.NapSchedules
	emitter  notify.Emitter
	expiry   Expiry
	store    persist.Store
	storeKey string
	logger   *slog.Logger
}

// Option represents a configuration option for the Log
type Option func(*Log)

// WithLogger sets the logger for the log
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the clock used for timestamps and expiry
func WithClock(c clock.Clock) Option {
	return func(l *Log) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithNapSchedules sets where estimated nap lengths come from during auto-expiry
func WithNapSchedules(naps household.NapSchedules) Option {
	return func(l *Log) {
		l.naps = naps
	}
}

// WithEmitter sets the notification sink for start and end events
func WithEmitter(e notify.Emitter) Option {
	return func(l *Log) {
		if e != nil {
			l.emitter = e
		}
	}
}

// WithExpiry overrides the auto-expiry ceilings and fallbacks
func WithExpiry(e Expiry) Option {
	return func(l *Log) {
		l.expiry = e
	}
}

// WithStore persists the log under key. An empty key uses "<kind>-log".
func WithStore(store persist.Store, key string) Option {
	return func(l *Log) {
		l.store = store
		if key != "" {
			l.storeKey = key
		}
	}
}

// NewLog creates an empty log of the given kind
func NewLog(kind Kind, opts ...Option) *Log {
	l := &Log{
		kind:     kind,
		clock:    clock.System{},
		emitter:  notify.Nop{},
		expiry:   DefaultExpiry,
		storeKey: string(kind) + "-log",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("log", string(kind))
	return l
}

// Kind returns the kind of events this log holds
func (l *Log) Kind() Kind {
	return l.kind
}

// Restore loads the persisted snapshot, if any
func (l *Log) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	var events []Event
	found, err := persist.LoadJSON(ctx, l.store, l.storeKey, &events)
	if err != nil || !found {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = events
	l.logger.Info("event log restored", "events", len(events))
	return nil
}

func (l *Log) saveLocked() {
	persist.SaveLogged(l.store, l.storeKey, l.events, l.logger)
}

func (l *Log) startName() notify.Name {
	if l.kind == Sleep {
		return notify.SleepStart
	}
	return notify.AwayStart
}

func (l *Log) endName() notify.Name {
	if l.kind == Sleep {
		return notify.SleepEnd
	}
	return notify.AwayEnd
}

// emit sends notifications outside the lock
func (l *Log) emit(ctx context.Context, name notify.Name, events ...Event) {
	for _, e := range events {
		at := e.StartedAt
		if name == l.endName() && e.EndedAt != nil {
			at = *e.EndedAt
		}
		l.emitter.Emit(ctx, notify.Event{Name: name, ChildID: e.ChildID, Ref: e.ID, At: at})
	}
}

func (l *Log) checkDetails(d Details) error {
	if l.kind == Sleep && !d.SleepType.Valid() {
		return fmt.Errorf("%w: sleep type %q", ErrInvalidDetails, d.SleepType)
	}
	return nil
}

func (l *Log) newEvent(childID string, at time.Time, d Details, auto bool) Event {
	e := Event{
		ID:          uuid.NewString(),
		ChildID:     childID,
		Kind:        l.kind,
		Date:        recurrence.DateKey(at),
		StartedAt:   at,
		AutoTracked: auto,
	}
	if l.kind == Sleep {
		e.SleepType = d.SleepType
	} else {
		e.Label = d.Label
	}
	return e
}

// openIndexLocked returns the index of the most recent open event of the child, or -1
func (l *Log) openIndexLocked(childID string) int {
	idx := -1
	for i, e := range l.events {
		if e.ChildID != childID || !e.Open() {
			continue
		}
		if idx < 0 || !e.StartedAt.Before(l.events[idx].StartedAt) {
			idx = i
		}
	}
	return idx
}

func (l *Log) closeLocked(i int, at time.Time, reason ClosedReason) Event {
	if at.Before(l.events[i].StartedAt) {
		at = l.events[i].StartedAt
	}
	l.events[i].EndedAt = &at
	l.events[i].ClosedReason = reason
	return l.events[i]
}

// Start opens a new event for the child at the current time. Any event already open for
// the child is closed first and marked superseded.
func (l *Log) Start(ctx context.Context, childID string, d Details) (Event, error) {
	if err := l.checkDetails(d); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	now := l.clock.Now()
	closed := l.closeExpiredLocked(now)
	for i := l.openIndexLocked(childID); i >= 0; i = l.openIndexLocked(childID) {
		old := l.closeLocked(i, now, ClosedSuperseded)
		closed = append(closed, old)
		l.logger.Warn("open event superseded by new start", "child_id", childID, "event_id", old.ID)
	}
	e := l.newEvent(childID, now, d, false)
	l.events = append(l.events, e)
	l.saveLocked()
	l.mu.Unlock()

	l.logger.Debug("event started", "child_id", childID, "event_id", e.ID)
	l.emit(ctx, l.endName(), closed...)
	l.emit(ctx, l.startName(), e)
	return e, nil
}

// End closes the child's open event at the current time
func (l *Log) End(ctx context.Context, childID string) (Event, error) {
	return l.end(ctx, childID, mo.None[time.Time](), ClosedByUser)
}

// EndAuto closes the child's open event at a scheduled time on behalf of the detector
func (l *Log) EndAuto(ctx context.Context, childID string, at time.Time) (Event, error) {
	return l.end(ctx, childID, mo.Some(at), ClosedAuto)
}

func (l *Log) end(ctx context.Context, childID string, at mo.Option[time.Time], reason ClosedReason) (Event, error) {
	l.mu.Lock()
	now := l.clock.Now()
	expired := l.closeExpiredLocked(now)
	i := l.openIndexLocked(childID)
	if i < 0 {
		if len(expired) > 0 {
			l.saveLocked()
		}
		l.mu.Unlock()
		l.emit(ctx, l.endName(), expired...)
		return Event{}, fmt.Errorf("%w: %s", ErrNotOpen, childID)
	}
	e := l.closeLocked(i, at.OrElse(now), reason)
	l.saveLocked()
	l.mu.Unlock()

	l.logger.Debug("event ended", "child_id", childID, "event_id", e.ID, "reason", reason)
	l.emit(ctx, l.endName(), append(expired, e)...)
	return e, nil
}

// StartAuto opens an auto-tracked event back-dated to a scheduled time. Unlike Start it
// refuses to touch an event that is already open.
func (l *Log) StartAuto(ctx context.Context, childID string, at time.Time, d Details) (Event, error) {
	if err := l.checkDetails(d); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	expired := l.closeExpiredLocked(l.clock.Now())
	if l.openIndexLocked(childID) >= 0 {
		if len(expired) > 0 {
			l.saveLocked()
		}
		l.mu.Unlock()
		l.emit(ctx, l.endName(), expired...)
		return Event{}, fmt.Errorf("%w: %s", ErrAlreadyOpen, childID)
	}
	e := l.newEvent(childID, at, d, true)
	l.events = append(l.events, e)
	l.saveLocked()
	l.mu.Unlock()

	l.logger.Debug("auto-tracked event started", "child_id", childID, "event_id", e.ID, "at", at)
	l.emit(ctx, l.endName(), expired...)
	l.emit(ctx, l.startName(), e)
	return e, nil
}

// RevertAutoStart removes the child's most recent auto-tracked event that is still open.
// It is an undo: no end is recorded and nothing is emitted.
func (l *Log) RevertAutoStart(ctx context.Context, childID string) mo.Option[Event] {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, e := range l.events {
		if e.ChildID != childID || !e.Open() || !e.AutoTracked {
			continue
		}
		if idx < 0 || !e.StartedAt.Before(l.events[idx].StartedAt) {
			idx = i
		}
	}
	if idx < 0 {
		return mo.None[Event]()
	}

	removed := l.events[idx]
	l.events = append(l.events[:idx], l.events[idx+1:]...)
	l.saveLocked()

	l.logger.Debug("auto-tracked event reverted", "child_id", childID, "event_id", removed.ID)
	return mo.Some(removed)
}

// RemoveAutoTracked removes the child's auto-tracked event that started at startedAt,
// whether or not it has ended. Like RevertAutoStart it is an undo and emits nothing.
func (l *Log) RemoveAutoTracked(ctx context.Context, childID string, startedAt time.Time) mo.Option[Event] {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.events {
		if e.ChildID != childID || !e.AutoTracked || !e.StartedAt.Equal(startedAt) {
			continue
		}
		l.events = append(l.events[:i], l.events[i+1:]...)
		l.saveLocked()

		l.logger.Debug("auto-tracked event removed", "child_id", childID, "event_id", e.ID)
		return mo.Some(e)
	}
	return mo.None[Event]()
}

// Update applies a user correction. Moving the start also moves the event's date; setting
// an end on an open event closes it.
func (l *Log) Update(ctx context.Context, id string, p Patch) (Event, error) {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e := l.events[i]
	wasOpen := e.Open()
	if p.StartedAt != nil {
		e.StartedAt = *p.StartedAt
		e.Date = recurrence.DateKey(e.StartedAt)
	}
	if p.EndedAt != nil {
		end := *p.EndedAt
		e.EndedAt = &end
		if wasOpen {
			e.ClosedReason = ClosedByUser
		}
	}
	if e.EndedAt != nil && e.EndedAt.Before(e.StartedAt) {
		l.mu.Unlock()
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidRange, id)
	}
	l.events[i] = e
	l.saveLocked()
	l.mu.Unlock()

	l.logger.Debug("event updated", "event_id", id)
	if wasOpen && !e.Open() {
		l.emit(ctx, l.endName(), e)
	}
	return e, nil
}

// Delete removes an event permanently
func (l *Log) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	l.events = append(l.events[:i], l.events[i+1:]...)
	l.saveLocked()

	l.logger.Debug("event deleted", "event_id", id)
	return nil
}

func (l *Log) indexLocked(id string) int {
	for i, e := range l.events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// estimate is the assumed length of an open event that has to be closed by expiry
func (l *Log) estimate(e Event) time.Duration {
	if e.SleepType == Night {
		return l.expiry.NightFallback
	}
	if l.naps != nil {
		if schedules := l.naps.NapSchedulesFor(e.ChildID); len(schedules) > 0 && schedules[0].TypicalDuration > 0 {
			return schedules[0].Duration()
		}
	}
	return l.expiry.NapFallback
}

func (l *Log) ceiling(e Event) time.Duration {
	if e.SleepType == Night {
		return l.expiry.NightCeiling
	}
	return l.expiry.NapCeiling
}

// closeExpiredLocked closes every open sleep event older than its ceiling and returns them
func (l *Log) closeExpiredLocked(now time.Time) []Event {
	if l.kind != Sleep {
		return nil
	}

	var closed []Event
	for i, e := range l.events {
		if !e.Open() || now.Sub(e.StartedAt) <= l.ceiling(e) {
			continue
		}
		end := e.StartedAt.Add(l.estimate(e))
		if end.After(now) {
			end = now
		}
		closed = append(closed, l.closeLocked(i, end, ClosedExpired))
		l.logger.Info("open event auto-expired", "child_id", e.ChildID, "event_id", e.ID, "started_at", e.StartedAt)
	}
	return closed
}

// CloseExpired closes open events that have run past their ceiling and returns them.
// It runs before every read, so calling it directly is only needed to force the sweep.
func (l *Log) CloseExpired(ctx context.Context) []Event {
	l.mu.Lock()
	closed := l.closeExpiredLocked(l.clock.Now())
	if len(closed) > 0 {
		l.saveLocked()
	}
	l.mu.Unlock()

	l.emit(ctx, l.endName(), closed...)
	return closed
}

// read runs fn against the log after the expiry sweep
func (l *Log) read(fn func()) {
	l.mu.Lock()
	closed := l.closeExpiredLocked(l.clock.Now())
	if len(closed) > 0 {
		l.saveLocked()
	}
	fn()
	l.mu.Unlock()

	l.emit(context.Background(), l.endName(), closed...)
}

// ActiveFor returns the child's open event, if any
func (l *Log) ActiveFor(childID string) mo.Option[Event] {
	result := mo.None[Event]()
	l.read(func() {
		if i := l.openIndexLocked(childID); i >= 0 {
			result = mo.Some(l.events[i])
		}
	})
	return result
}

// IsActive reports whether the child has an open event
func (l *Log) IsActive(childID string) bool {
	return l.ActiveFor(childID).IsPresent()
}

// LastEndTime returns the end of the child's most recently ended event
func (l *Log) LastEndTime(childID string) mo.Option[time.Time] {
	result := mo.None[time.Time]()
	l.read(func() {
		var last *time.Time
		for _, e := range l.events {
			if e.ChildID != childID || e.EndedAt == nil {
				continue
			}
			if last == nil || e.EndedAt.After(*last) {
				last = e.EndedAt
			}
		}
		if last != nil {
			result = mo.Some(*last)
		}
	})
	return result
}

// Overlapping returns the events that touch the calendar date: started on it, ended on
// it, or ran through it. Open events are treated as running until now.
func (l *Log) Overlapping(date time.Time) []Event {
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var out []Event
	l.read(func() {
		now := l.clock.Now()
		for _, e := range l.events {
			end := now
			if e.EndedAt != nil {
				end = *e.EndedAt
			}
			if e.StartedAt.Before(dayEnd) && !end.Before(dayStart) {
				out = append(out, e)
			}
		}
	})
	sortByStart(out)
	return out
}

func (l *Log) Get(id string) mo.Option[Event] {
	result := mo.None[Event]()
	l.read(func() {
		if i := l.indexLocked(id); i >= 0 {
			result = mo.Some(l.events[i])
		}
	})
	return result
}

// List returns every event ordered by start time
func (l *Log) List() []Event {
	var out []Event
	l.read(func() {
		out = append(out, l.events...)
	})
	sortByStart(out)
	return out
}

// ForChild returns the child's events ordered by start time
func (l *Log) ForChild(childID string) []Event {
	var out []Event
	l.read(func() {
		for _, e := range l.events {
			if e.ChildID == childID {
				out = append(out, e)
			}
		}
	})
	sortByStart(out)
	return out
}

// StartedOn returns the child's events whose date is the calendar date of date
func (l *Log) StartedOn(childID string, date time.Time) []Event {
	key := recurrence.DateKey(date)
	var out []Event
	for _, e := range l.ForChild(childID) {
		if e.Date == key {
			out = append(out, e)
		}
	}
	return out
}

func sortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartedAt.Before(events[j].StartedAt)
	})
}
