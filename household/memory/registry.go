// memory based household registry
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/household"
	"github.com/cyp0633/libroutine/persist"
)

// DefaultStoreKey is the snapshot key used when persistence is enabled
const DefaultStoreKey = "household"

// ErrNotFound is returned when removing an unknown child or schedule
var ErrNotFound = errors.New("household entry not found")

type snapshot struct {
	Children []household.Child       `json:"children"`
	Naps     []household.NapSchedule `json:"nap_schedules"`
}

// Registry implements household.Registry in memory
type Registry struct {
	mu       sync.RWMutex
	children map[string]household.Child
	naps     map[string]household.NapSchedule
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

// WithStore persists the registry under key
func WithStore(store persist.Store, key string) Option {
	return func(r *Registry) {
		r.store = store
		if key != "" {
			r.storeKey = key
		}
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		children: make(map[string]household.Child),
		naps:     make(map[string]household.NapSchedule),
		storeKey: DefaultStoreKey,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads the persisted snapshot, if any
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	var snap snapshot
	found, err := persist.LoadJSON(ctx, r.store, r.storeKey, &snap)
	if err != nil || !found {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range snap.Children {
		r.children[c.ID] = c
	}
	for _, n := range snap.Naps {
		r.naps[n.ID] = n
	}
	r.logger.Info("household restored", "children", len(snap.Children), "nap_schedules", len(snap.Naps))
	return nil
}

// saveLocked snapshots the registry; callers hold the lock
func (r *Registry) saveLocked() {
	if r.store == nil {
		return
	}
	snap := snapshot{Children: r.sortedChildren(), Naps: r.sortedNaps()}
	persist.SaveLogged(r.store, r.storeKey, snap, r.logger)
}

// PutChild adds or replaces a child. An empty ID is filled in.
func (r *Registry) PutChild(c household.Child) household.Child {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[c.ID] = c
	r.saveLocked()
	return c
}

// RemoveChild deletes a child together with its nap schedules
func (r *Registry) RemoveChild(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.children[id]; !ok {
		return fmt.Errorf("%w: child %s", ErrNotFound, id)
	}
	delete(r.children, id)
	for nid, n := range r.naps {
		if n.ChildID == id {
			delete(r.naps, nid)
		}
	}
	r.saveLocked()
	return nil
}

// PutNapSchedule adds or replaces a nap schedule. An empty ID is filled in.
func (r *Registry) PutNapSchedule(n household.NapSchedule) household.NapSchedule {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.naps[n.ID] = n
	r.saveLocked()
	return n
}

// RemoveNapSchedule deletes a nap schedule
func (r *Registry) RemoveNapSchedule(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.naps[id]; !ok {
		return fmt.Errorf("%w: nap schedule %s", ErrNotFound, id)
	}
	delete(r.naps, id)
	r.saveLocked()
	return nil
}

func (r *Registry) ListChildren() []household.Child {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedChildren()
}

func (r *Registry) GetChild(id string) mo.Option[household.Child] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.children[id]; ok {
		return mo.Some(c)
	}
	return mo.None[household.Child]()
}

func (r *Registry) ListNapSchedules() []household.NapSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNaps()
}

func (r *Registry) NapSchedulesFor(childID string) []household.NapSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []household.NapSchedule
	for _, n := range r.sortedNaps() {
		if n.ChildID == childID {
			out = append(out, n)
		}
	}
	return out
}

func (r *Registry) sortedChildren() []household.Child {
	out := make([]household.Child, 0, len(r.children))
	for _, c := range r.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortedNaps orders by child, then nap number, then start time
func (r *Registry) sortedNaps() []household.NapSchedule {
	out := make([]household.NapSchedule, 0, len(r.naps))
	for _, n := range r.naps {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ChildID != b.ChildID {
			return a.ChildID < b.ChildID
		}
		if a.NapNumber != b.NapNumber {
			return a.NapNumber < b.NapNumber
		}
		if a.TypicalStart != b.TypicalStart {
			return a.TypicalStart < b.TypicalStart
		}
		return a.ID < b.ID
	})
	return out
}
