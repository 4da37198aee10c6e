// Package availability derives what kind of task the caregiver can do at a given moment
// from the care blocks of the day and the live sleep and away state of every child.
package availability

import (
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/household"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/recurrence"
)

// State is the derived availability of the caregiver
type State string

const (
	// Unavailable means travelling or accompanying a child
	Unavailable State = "unavailable"
	// Free means every child is looked after by someone else
	Free State = "free"
	// Quiet means no child is both home and awake
	Quiet State = "quiet"
	// Parenting is the default
	Parenting State = "parenting"
)

// CategoryState maps a block category to the state it signals
func CategoryState(c careblock.Category) State {
	switch c {
	case careblock.Childcare, careblock.Babysitter:
		return Free
	case careblock.Appointment, careblock.Activity:
		return Unavailable
	case careblock.SleepScheduled:
		return Quiet
	}
	return Parenting
}

// Blocks is the read side of the care block registry used here
type Blocks interface {
	ActiveOn(date time.Time) []careblock.CareBlock
}

// Presence reports whether a child has an open event in a log
type Presence interface {
	IsActive(childID string) bool
}

// Suppressor reports that a block did not happen for a child on a date even though its
// schedule says it did, for example because the caregiver dismissed its start
type Suppressor interface {
	Suppressed(blockID, childID, date string) bool
}

// Result is a state together with what produced it
type Result struct {
	State State `json:"state"`
	// Reason is a short human readable explanation
	Reason string `json:"reason"`
	// BlockIDs are the blocks that decided the state, if any
	BlockIDs []string `json:"block_ids,omitempty"`
}

// Engine evaluates availability. It holds no state of its own.
type Engine struct {
	children   household.Children
	blocks     Blocks
	sleep      Presence
	away       Presence
	suppressor Suppressor
	clock      clock.Clock
	logger     *slog.Logger
}

// Option represents a configuration option for the Engine
type Option func(*Engine)

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock used by Current
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithSuppressor excludes blocks the caregiver said did not happen
func WithSuppressor(s Suppressor) Option {
	return func(e *Engine) {
		e.suppressor = s
	}
}

// New creates an engine. sleep and away may be nil, in which case no child is ever
// considered asleep or away.
func New(children household.Children, blocks Blocks, sleep, away Presence, opts ...Option) *Engine {
	e := &Engine{
		children: children,
		blocks:   blocks,
		sleep:    sleep,
		away:     away,
		clock:    clock.System{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Current evaluates availability right now, including live sleep and away state
func (e *Engine) Current() State {
	return e.Explain().State
}

// Explain is Current with the reasoning attached
func (e *Engine) Explain() Result {
	now := e.clock.Now()
	return e.evaluate(now, recurrence.ClockOf(now), true)
}

// At evaluates availability at an arbitrary date and time of day from block data only
func (e *Engine) At(date time.Time, t recurrence.ClockTime) State {
	return e.ExplainAt(date, t).State
}

// ExplainAt is At with the reasoning attached
func (e *Engine) ExplainAt(date time.Time, t recurrence.ClockTime) Result {
	return e.evaluate(date, t, false)
}

// relevant is a block of the day with the children it actually applies to
type relevant struct {
	block    careblock.CareBlock
	children []string
	now      bool
}

func (r relevant) covers(childID string) bool {
	return slices.Contains(r.children, childID)
}

func (e *Engine) relevantBlocks(date time.Time, t recurrence.ClockTime) []relevant {
	key := recurrence.DateKey(date)

	var out []relevant
	for _, b := range e.blocks.ActiveOn(date) {
		var children []string
		for _, c := range b.ChildIDs {
			if e.suppressor != nil && e.suppressor.Suppressed(b.ID, c, key) {
				continue
			}
			children = append(children, c)
		}
		if len(children) == 0 {
			continue
		}
		start, end := b.EffectiveWindow()
		out = append(out, relevant{
			block:    b,
			children: children,
			now:      recurrence.IsWithin(t, start, end),
		})
	}
	return out
}

func coveredBy(childID string, blocks []relevant, want State) bool {
	for _, r := range blocks {
		if r.now && CategoryState(r.block.Category) == want && r.covers(childID) {
			return true
		}
	}
	return false
}

func ids(blocks []relevant, keep func(relevant) bool) []string {
	var out []string
	for _, r := range blocks {
		if keep(r) {
			out = append(out, r.block.ID)
		}
	}
	return out
}

func (e *Engine) evaluate(date time.Time, t recurrence.ClockTime, live bool) Result {
	blocks := e.relevantBlocks(date, t)
	children := e.children.ListChildren()

	travelling := ids(blocks, func(r relevant) bool { return r.block.InTravelBuffer(t) })
	if len(travelling) > 0 {
		return e.result(Unavailable, "in a travel buffer", travelling, t)
	}
	accompanying := ids(blocks, func(r relevant) bool {
		return r.now && CategoryState(r.block.Category) == Unavailable
	})
	if len(accompanying) > 0 {
		return e.result(Unavailable, "accompanying a child", accompanying, t)
	}

	if len(children) == 0 {
		return e.result(Parenting, "no children", nil, t)
	}

	free := ids(blocks, func(r relevant) bool { return r.now && CategoryState(r.block.Category) == Free })
	allFree, allHomeAsleep, allScheduledAsleep := true, true, true
	for _, c := range children {
		isFree := coveredBy(c.ID, blocks, Free)
		allFree = allFree && isFree
		allScheduledAsleep = allScheduledAsleep && coveredBy(c.ID, blocks, Quiet)
		if !isFree && !(live && e.isAsleepOrAway(c.ID)) {
			allHomeAsleep = false
		}
	}

	switch {
	case len(free) > 0 && allFree:
		return e.result(Free, "every child is looked after", free, t)
	case allHomeAsleep:
		return e.result(Quiet, "no child is home and awake", nil, t)
	case allScheduledAsleep:
		return e.result(Quiet, "scheduled sleep", ids(blocks, func(r relevant) bool {
			return r.now && CategoryState(r.block.Category) == Quiet
		}), t)
	}
	return e.result(Parenting, "a child is home and awake", nil, t)
}

func (e *Engine) isAsleepOrAway(childID string) bool {
	return (e.sleep != nil && e.sleep.IsActive(childID)) || (e.away != nil && e.away.IsActive(childID))
}

func (e *Engine) result(s State, reason string, blockIDs []string, t recurrence.ClockTime) Result {
	e.logger.Debug("availability evaluated", "state", s, "reason", reason, "at", t.String(), "blocks", blockIDs)
	return Result{State: s, Reason: reason, BlockIDs: blockIDs}
}
