package transition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/household"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/notify"
	"github.com/cyp0633/libroutine/persist"
	"github.com/cyp0633/libroutine/recurrence"
)

const (
	// DefaultDeadline is how long a transition waits before confirming itself
	DefaultDeadline = 30 * time.Minute
	// DefaultRetention is how long resolved transitions are kept
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultStoreKey is the snapshot key used when persistence is enabled
	DefaultStoreKey = "transitions"
)

// Blocks is the read side of the care block registry used by the detector
type Blocks interface {
	ActiveOn(date time.Time) []careblock.CareBlock
}

// ScanResult lists what a scan changed
type ScanResult struct {
	Created       []PendingTransition `json:"created"`
	AutoConfirmed []PendingTransition `json:"auto_confirmed"`
}

// Detector compares the wall clock against care block and nap boundaries
type Detector struct {
	mu          sync.Mutex
	transitions []PendingTransition
	household   household.Registry
	blocks      Blocks
	sleep       EventLog
	away        EventLog
	emitter     notify.Emitter
	clock       clock.Clock
	deadline    time.Duration
	retention   time.Duration
	store       persist.Store
	storeKey    string
	logger      *slog.Logger
}

// Option represents a configuration option for the Detector
type Option func(*Detector)

// WithLogger sets the logger for the detector
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the clock scans compare against
func WithClock(c clock.Clock) Option {
	return func(d *Detector) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithEmitter sets the sink for confirmation events
func WithEmitter(e notify.Emitter) Option {
	return func(d *Detector) {
		if e != nil {
			d.emitter = e
		}
	}
}

// WithDeadline sets how long new transitions stay pending
func WithDeadline(deadline time.Duration) Option {
	return func(d *Detector) {
		if deadline > 0 {
			d.deadline = deadline
		}
	}
}

// WithRetention sets how long resolved transitions are kept before being dropped
func WithRetention(retention time.Duration) Option {
	return func(d *Detector) {
		if retention > 0 {
			d.retention = retention
		}
	}
}

// WithStore persists the transition list under key
func WithStore(store persist.Store, key string) Option {
	return func(d *Detector) {
		d.store = store
		if key != "" {
			d.storeKey = key
		}
	}
}

// New creates a detector
func New(hh household.Registry, blocks Blocks, sleep, away EventLog, opts ...Option) *Detector {
	d := &Detector{
		household: hh,
		blocks:    blocks,
		sleep:     sleep,
		away:      away,
		emitter:   notify.Nop{},
		clock:     clock.System{},
		deadline:  DefaultDeadline,
		retention: DefaultRetention,
		storeKey:  DefaultStoreKey,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Restore loads the persisted snapshot, if any
func (d *Detector) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	var transitions []PendingTransition
	found, err := persist.LoadJSON(ctx, d.store, d.storeKey, &transitions)
	if err != nil || !found {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = transitions
	d.logger.Info("transitions restored", "count", len(transitions))
	return nil
}

func (d *Detector) saveLocked() {
	persist.SaveLogged(d.store, d.storeKey, d.transitions, d.logger)
}

// existsLocked checks every status, so a dismissed transition is never recreated
func (d *Detector) existsLocked(kind Kind, ref, childID, date string) bool {
	for _, p := range d.transitions {
		if p.Kind == kind && p.Ref == ref && p.ChildID == childID && p.Date == date {
			return true
		}
	}
	return false
}

func (d *Detector) childName(id string) string {
	if c, ok := d.household.GetChild(id).Get(); ok && c.Name != "" {
		return c.Name
	}
	return id
}

func (d *Detector) record(now time.Time, kind Kind, ref string, at recurrence.ClockTime, desc string, change Change) PendingTransition {
	p := PendingTransition{
		ID:            uuid.NewString(),
		Kind:          kind,
		ChildID:       change.ChildID,
		ScheduledTime: at,
		Date:          recurrence.DateKey(now),
		Ref:           ref,
		Description:   desc,
		DeadlineMs:    d.deadline.Milliseconds(),
		CreatedAt:     now,
		Status:        Pending,
		Change:        change,
	}
	d.transitions = append(d.transitions, p)
	d.logger.Info("transition detected", "id", p.ID, "kind", kind, "child_id", p.ChildID, "ref", ref)
	return p
}

// Scan runs one detection pass: care block starts, care block ends, nap suggestions, then
// the auto-confirm sweep. Scans are serialized.
func (d *Detector) Scan(ctx context.Context) ScanResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	t := recurrence.ClockOf(now)
	date := recurrence.DateKey(now)

	var result ScanResult
	blocks := d.blocks.ActiveOn(now)

	for _, b := range blocks {
		if t < b.Start {
			continue
		}
		for _, childID := range d.knownChildren(b) {
			if d.existsLocked(CareBlockStart, b.ID, childID, date) || d.away.IsActive(childID) {
				continue
			}
			change := Change{Op: OpStartAway, ChildID: childID, At: b.Start.On(now), Label: b.Name}
			if err := change.Apply(ctx, d.sleep, d.away); err != nil {
				d.logger.Warn("failed to apply care block start", "block_id", b.ID, "child_id", childID, "error", err)
				continue
			}
			desc := fmt.Sprintf("%s started %s at %s", d.childName(childID), b.Name, b.Start)
			result.Created = append(result.Created, d.record(now, CareBlockStart, b.ID, b.Start, desc, change))
		}
	}

	for _, b := range blocks {
		if t < b.End {
			continue
		}
		for _, childID := range d.knownChildren(b) {
			if d.existsLocked(CareBlockEnd, b.ID, childID, date) || !d.away.IsActive(childID) {
				continue
			}
			// the block never started for this child today
			if d.suppressedLocked(b.ID, childID, date) {
				continue
			}
			change := Change{Op: OpEndAway, ChildID: childID, At: b.End.On(now), Label: b.Name}
			if err := change.Apply(ctx, d.sleep, d.away); err != nil {
				d.logger.Warn("failed to apply care block end", "block_id", b.ID, "child_id", childID, "error", err)
				continue
			}
			desc := fmt.Sprintf("%s finished %s at %s", d.childName(childID), b.Name, b.End)
			result.Created = append(result.Created, d.record(now, CareBlockEnd, b.ID, b.End, desc, change))
		}
	}

	for _, c := range d.household.ListChildren() {
		if !c.TracksNaps {
			continue
		}
		for _, s := range d.household.NapSchedulesFor(c.ID) {
			if t < s.TypicalStart || d.existsLocked(NapStart, s.ID, c.ID, date) || d.sleep.IsActive(c.ID) {
				continue
			}
			if d.napsLogged(c.ID, now) >= s.NapNumber {
				continue
			}
			change := Change{Op: OpSuggestNap, ChildID: c.ID, At: s.TypicalStart.On(now)}
			desc := fmt.Sprintf("%s usually starts nap %d at %s", c.Name, s.NapNumber, s.TypicalStart)
			result.Created = append(result.Created, d.record(now, NapStart, s.ID, s.TypicalStart, desc, change))
		}
	}

	result.AutoConfirmed = d.sweepLocked(now)
	if len(result.Created) > 0 || len(result.AutoConfirmed) > 0 {
		d.saveLocked()
	}

	d.logger.Debug("scan finished", "created", len(result.Created), "auto_confirmed", len(result.AutoConfirmed))
	return result
}

// knownChildren returns the block's children that exist in the household
func (d *Detector) knownChildren(b careblock.CareBlock) []string {
	var out []string
	for _, id := range b.ChildIDs {
		if d.household.GetChild(id).IsPresent() {
			out = append(out, id)
		}
	}
	return out
}

func (d *Detector) napsLogged(childID string, now time.Time) int {
	n := 0
	for _, e := range d.sleep.StartedOn(childID, now) {
		if e.SleepType == eventlog.Nap {
			n++
		}
	}
	return n
}

// sweepLocked auto-confirms pending transitions past their deadline and drops resolved
// ones older than the retention window
func (d *Detector) sweepLocked(now time.Time) []PendingTransition {
	today := recurrence.DateKey(now)
	var confirmed []PendingTransition
	kept := d.transitions[:0]
	for _, p := range d.transitions {
		if p.Status == Pending && now.Sub(p.CreatedAt) > time.Duration(p.DeadlineMs)*time.Millisecond {
			resolved := now
			p.Status = AutoConfirmed
			p.ResolvedAt = &resolved
			confirmed = append(confirmed, p)
			d.logger.Info("transition auto-confirmed", "id", p.ID, "kind", p.Kind, "child_id", p.ChildID)
		}
		// resolved transitions of today still block duplicates, whatever the retention
		if p.Status != Pending && p.ResolvedAt != nil && now.Sub(*p.ResolvedAt) > d.retention && p.Date < today {
			continue
		}
		kept = append(kept, p)
	}
	d.transitions = kept
	return confirmed
}

// resolveLocked moves a pending transition to a terminal status
func (d *Detector) resolveLocked(id string, status Status) (*PendingTransition, error) {
	now := d.clock.Now()
	if swept := d.sweepLocked(now); len(swept) > 0 {
		d.saveLocked()
	}

	for i := range d.transitions {
		p := &d.transitions[i]
		if p.ID != id {
			continue
		}
		if p.Status != Pending {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, p.Status)
		}
		p.Status = status
		p.ResolvedAt = &now
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Confirm keeps the optimistic change. Confirming a nap suggestion records the nap from
// its usual start.
func (d *Detector) Confirm(ctx context.Context, id string) (PendingTransition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.resolveLocked(id, Confirmed)
	if err != nil {
		return PendingTransition{}, err
	}

	switch p.Kind {
	case CareBlockStart:
		d.emitter.Emit(ctx, notify.Event{Name: notify.CareBlockStartConfirmed, ChildID: p.ChildID, Ref: p.Ref, At: *p.ResolvedAt})
	case CareBlockEnd:
		d.emitter.Emit(ctx, notify.Event{Name: notify.CareBlockEndConfirmed, ChildID: p.ChildID, Ref: p.Ref, At: *p.ResolvedAt})
	case NapStart:
		nap := Change{Op: OpStartNap, ChildID: p.ChildID, At: p.Change.At}
		if err := nap.Apply(ctx, d.sleep, d.away); err != nil && !errors.Is(err, eventlog.ErrAlreadyOpen) {
			d.logger.Warn("failed to record confirmed nap", "id", id, "error", err)
		}
	}
	d.saveLocked()

	d.logger.Info("transition confirmed", "id", id, "kind", p.Kind)
	return *p, nil
}

// Dismiss reverts the optimistic change
func (d *Detector) Dismiss(ctx context.Context, id string) (PendingTransition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.resolveLocked(id, Dismissed)
	if err != nil {
		return PendingTransition{}, err
	}

	if p.Kind == CareBlockStart {
		d.dismissEndLocked(p)
	}
	inverse := p.Change.Inverse()
	if err := inverse.Apply(ctx, d.sleep, d.away); err != nil && !errors.Is(err, eventlog.ErrAlreadyOpen) {
		d.logger.Warn("failed to revert transition", "id", id, "op", inverse.Op, "error", err)
	}
	d.saveLocked()

	d.logger.Info("transition dismissed", "id", id, "kind", p.Kind, "revert", inverse.Op)
	return *p, nil
}

// dismissEndLocked dismisses the pending end paired with a dismissed start. The end is not
// reverted: reverting the start already removes the whole away event.
func (d *Detector) dismissEndLocked(start *PendingTransition) {
	for i := range d.transitions {
		p := &d.transitions[i]
		if p.Kind != CareBlockEnd || p.Status != Pending || p.Ref != start.Ref || p.ChildID != start.ChildID || p.Date != start.Date {
			continue
		}
		p.Status = Dismissed
		p.ResolvedAt = start.ResolvedAt
		d.logger.Info("paired transition dismissed", "id", p.ID, "start_id", start.ID)
	}
}

// Pending returns transitions awaiting a decision, oldest first
func (d *Detector) Pending() []PendingTransition {
	d.mu.Lock()
	defer d.mu.Unlock()

	if swept := d.sweepLocked(d.clock.Now()); len(swept) > 0 {
		d.saveLocked()
	}
	var out []PendingTransition
	for _, p := range d.transitions {
		if p.Status == Pending {
			out = append(out, p)
		}
	}
	sortByCreated(out)
	return out
}

// List returns every retained transition, oldest first
func (d *Detector) List() []PendingTransition {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := append([]PendingTransition(nil), d.transitions...)
	sortByCreated(out)
	return out
}

func (d *Detector) Get(id string) mo.Option[PendingTransition] {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.transitions {
		if p.ID == id {
			return mo.Some(p)
		}
	}
	return mo.None[PendingTransition]()
}

// Suppressed reports whether the caregiver dismissed the start of the block for the child
// on the date
func (d *Detector) Suppressed(blockID, childID, date string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressedLocked(blockID, childID, date)
}

func (d *Detector) suppressedLocked(blockID, childID, date string) bool {
	for _, p := range d.transitions {
		if p.Kind == CareBlockStart && p.Status == Dismissed && p.Ref == blockID && p.ChildID == childID && p.Date == date {
			return true
		}
	}
	return false
}

func sortByCreated(ps []PendingTransition) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
