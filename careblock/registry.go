package careblock

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

	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/persist"
	"github.com/cyp0633/libroutine/recurrence"
)

// DefaultStoreKey is the snapshot key used when persistence is enabled
const DefaultStoreKey = "care-blocks"

// Registry is the in-memory set of care blocks. It stores blocks as given; use
// CareBlock.Validate at the edge.
type Registry struct {
	mu       sync.RWMutex
	blocks   map[string]CareBlock
	clock    clock.Clock
	engine   *recurrence.Engine
	store    persist.Store
	storeKey string
	logger   *slog.Logger
}

// Option represents a configuration option for the Registry
type Option func(*Registry)

// WithLogger sets the logger for the registry
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the clock used for "now" queries
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithEngine sets the recurrence engine used for forward-looking queries
func WithEngine(e *recurrence.Engine) Option {
	return func(r *Registry) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithStore persists the registry under key
func WithStore(store persist.Store, key string) Option {
	return func(r *Registry) {
		r.store = store
		if key != "" {
			r.storeKey = key
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		blocks:   make(map[string]CareBlock),
		clock:    clock.System{},
		storeKey: DefaultStoreKey,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = recurrence.NewEngine()
	}
	return r
}

// Restore loads the persisted snapshot, if any
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	var blocks []CareBlock
	found, err := persist.LoadJSON(ctx, r.store, r.storeKey, &blocks)
	if err != nil || !found {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range blocks {
		r.blocks[b.ID] = b
	}
	r.logger.Info("care blocks restored", "count", len(blocks))
	return nil
}

func (r *Registry) saveLocked() {
	persist.SaveLogged(r.store, r.storeKey, r.sortedLocked(), r.logger)
}

// Add stores a new block. An empty ID is filled in.
func (r *Registry) Add(b CareBlock) CareBlock {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.ChildIDs = append([]string(nil), b.ChildIDs...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[b.ID] = b
	r.saveLocked()

	r.logger.Debug("care block added", "id", b.ID, "name", b.Name, "category", b.Category)
	return b
}

// Update replaces an existing block
func (r *Registry) Update(b CareBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[b.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, b.ID)
	}
	b.ChildIDs = append([]string(nil), b.ChildIDs...)
	r.blocks[b.ID] = b
	r.saveLocked()

	r.logger.Debug("care block updated", "id", b.ID)
	return nil
}

// Remove deletes a block
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.blocks, id)
	r.saveLocked()

	r.logger.Debug("care block removed", "id", id)
	return nil
}

// List returns every block ordered by start time, then name
func (r *Registry) List() []CareBlock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) Get(id string) mo.Option[CareBlock] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.blocks[id]; ok {
		return mo.Some(b)
	}
	return mo.None[CareBlock]()
}

// ActiveOn returns the active blocks whose recurrence fires on the date
func (r *Registry) ActiveOn(date time.Time) []CareBlock {
	var out []CareBlock
	for _, b := range r.List() {
		if b.Active && b.OccursOn(date) {
			out = append(out, b)
		}
	}
	return out
}

// ActiveAt returns the blocks active on the date whose effective window contains t
func (r *Registry) ActiveAt(date time.Time, t recurrence.ClockTime) []CareBlock {
	var out []CareBlock
	for _, b := range r.ActiveOn(date) {
		start, end := b.EffectiveWindow()
		if recurrence.IsWithin(t, start, end) {
			out = append(out, b)
		}
	}
	return out
}

// ActiveNow returns the blocks whose effective window contains the current time
func (r *Registry) ActiveNow() []CareBlock {
	now := r.clock.Now()
	return r.ActiveAt(now, recurrence.ClockOf(now))
}

// LeaveByTime is the start shifted earlier by the before-buffer, if there is one
func (r *Registry) LeaveByTime(b CareBlock) mo.Option[recurrence.ClockTime] {
	if b.BufferBefore <= 0 {
		return mo.None[recurrence.ClockTime]()
	}
	return mo.Some(recurrence.ShiftTime(b.Start, -b.BufferBefore))
}

// ReturnTime is the end shifted later by the after-buffer, if there is one
func (r *Registry) ReturnTime(b CareBlock) mo.Option[recurrence.ClockTime] {
	if b.BufferAfter <= 0 {
		return mo.None[recurrence.ClockTime]()
	}
	return mo.Some(recurrence.ShiftTime(b.End, b.BufferAfter))
}

// NextOccurrence returns the next start instant of the block at or after after.
// Inactive and unknown blocks never occur.
func (r *Registry) NextOccurrence(id string, after time.Time) mo.Option[time.Time] {
	b, ok := r.Get(id).Get()
	if !ok || !b.Active {
		return mo.None[time.Time]()
	}

	from := after
	for i := 0; i < 2; i++ {
		day, ok := r.engine.NextOccurrence(b.Rule, b.DaysOverride, from).Get()
		if !ok {
			return mo.None[time.Time]()
		}
		start := b.Start.On(day)
		if !start.Before(after) {
			return mo.Some(start)
		}
		// today's start already passed
		from = day.AddDate(0, 0, 1)
	}
	return mo.None[time.Time]()
}

func (r *Registry) sortedLocked() []CareBlock {
	out := make([]CareBlock, 0, len(r.blocks))
	for _, b := range r.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
