package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/household"
	hhmemory "github.com/cyp0633/libroutine/household/memory"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/recurrence"
)

// 2024-01-02 is a Tuesday
func tuesdayAt(hhmm string) time.Time {
	return recurrence.MustParseClock(hhmm).On(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
}

type fixture struct {
	clock    *clock.Mock
	children *hhmemory.Registry
	blocks   *careblock.Registry
	sleep    *eventlog.Log
	away     *eventlog.Log
	engine   *Engine
}

func newFixture(t *testing.T, at string, children ...string) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewMock(tuesdayAt(at)), children: hhmemory.New()}
	for _, id := range children {
		f.children.PutChild(household.Child{ID: id, Name: id})
	}
	f.blocks = careblock.NewRegistry(careblock.WithClock(f.clock))
	f.sleep = eventlog.NewLog(eventlog.Sleep, eventlog.WithClock(f.clock))
	f.away = eventlog.NewLog(eventlog.Away, eventlog.WithClock(f.clock))
	f.engine = New(f.children, f.blocks, f.sleep, f.away, WithClock(f.clock))
	return f
}

func (f *fixture) block(name string, category careblock.Category, start, end string, children ...string) careblock.CareBlock {
	return f.blocks.Add(careblock.CareBlock{
		Name:     name,
		ChildIDs: children,
		Category: category,
		Rule:     recurrence.Rule{Kind: recurrence.Daily},
		Start:    recurrence.MustParseClock(start),
		End:      recurrence.MustParseClock(end),
		Active:   true,
	})
}

type suppressed map[string]bool

func (s suppressed) Suppressed(blockID, childID, date string) bool {
	return s[blockID+"/"+childID+"/"+date]
}

func TestCategoryState(t *testing.T) {
	assert.Equal(t, Free, CategoryState(careblock.Childcare))
	assert.Equal(t, Free, CategoryState(careblock.Babysitter))
	assert.Equal(t, Unavailable, CategoryState(careblock.Appointment))
	assert.Equal(t, Unavailable, CategoryState(careblock.Activity))
	assert.Equal(t, Quiet, CategoryState(careblock.SleepScheduled))
	assert.Equal(t, Parenting, CategoryState("other"))
}

func TestEngine_NoChildren(t *testing.T) {
	f := newFixture(t, "10:00")
	assert.Equal(t, Parenting, f.engine.Current())
}

func TestEngine_DefaultIsParenting(t *testing.T) {
	f := newFixture(t, "10:00", "milo")
	f.block("Nursery", careblock.Childcare, "13:00", "15:00", "milo")
	assert.Equal(t, Parenting, f.engine.Current())
}

func TestEngine_FreeWhenEveryChildCovered(t *testing.T) {
	f := newFixture(t, "10:00", "milo", "ada")
	f.block("Nursery", careblock.Childcare, "08:30", "15:00", "milo")
	assert.Equal(t, Parenting, f.engine.Current(), "ada is still home")

	f.block("Sitter", careblock.Babysitter, "09:00", "11:00", "ada")
	res := f.engine.Explain()
	assert.Equal(t, Free, res.State)
	assert.Len(t, res.BlockIDs, 2)
}

func TestEngine_QuietWhenAsleepOrAwayUnderFreeBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "13:30", "milo", "ada")
	f.block("Nursery", careblock.Childcare, "08:30", "15:00", "milo")
	_, err := f.away.Start(ctx, "milo", eventlog.Details{Label: "Nursery"})
	require.NoError(t, err)

	assert.Equal(t, Parenting, f.engine.Current())

	_, err = f.sleep.Start(ctx, "ada", eventlog.Details{SleepType: eventlog.Nap})
	require.NoError(t, err)
	assert.Equal(t, Quiet, f.engine.Current())
}

func TestEngine_QuietWhenEveryoneAsleep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "20:00", "milo", "ada")
	for _, c := range []string{"milo", "ada"} {
		_, err := f.sleep.Start(ctx, c, eventlog.Details{SleepType: eventlog.Night})
		require.NoError(t, err)
	}
	assert.Equal(t, Quiet, f.engine.Current())
}

func TestEngine_QuietFromScheduledSleep(t *testing.T) {
	f := newFixture(t, "13:30", "milo")
	f.block("Quiet time", careblock.SleepScheduled, "13:00", "14:00", "milo")

	assert.Equal(t, Quiet, f.engine.Current())
	assert.Equal(t, Quiet, f.engine.At(tuesdayAt("00:00"), recurrence.MustParseClock("13:15")))
	assert.Equal(t, Parenting, f.engine.At(tuesdayAt("00:00"), recurrence.MustParseClock("14:00")))
}

func TestEngine_TravelBufferOverridesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "13:40", "milo", "ada")
	f.block("Nursery", careblock.Childcare, "08:30", "15:00", "milo")
	f.block("Sitter", careblock.Babysitter, "13:00", "16:00", "ada")
	_, err := f.sleep.Start(ctx, "ada", eventlog.Details{SleepType: eventlog.Nap})
	require.NoError(t, err)
	require.Equal(t, Free, f.engine.Current())

	dentist := careblock.CareBlock{
		Name:         "Dentist",
		ChildIDs:     []string{"milo"},
		Category:     careblock.Appointment,
		Rule:         recurrence.Rule{Kind: recurrence.OneOff, Date: "2024-01-02"},
		Start:        recurrence.MustParseClock("14:00"),
		End:          recurrence.MustParseClock("14:30"),
		BufferBefore: 30,
		BufferAfter:  20,
		Active:       true,
	}
	f.blocks.Add(dentist)

	res := f.engine.Explain()
	assert.Equal(t, Unavailable, res.State)
	assert.Equal(t, "in a travel buffer", res.Reason)

	f.clock.Set(tuesdayAt("14:10"))
	assert.Equal(t, Unavailable, f.engine.Current(), "appointment in progress")

	f.clock.Set(tuesdayAt("14:45"))
	assert.Equal(t, Unavailable, f.engine.Current(), "driving back")

	f.clock.Set(tuesdayAt("14:50"))
	assert.Equal(t, Free, f.engine.Current())
}

func TestEngine_InertAndInactiveBlocksIgnored(t *testing.T) {
	f := newFixture(t, "10:00", "milo")
	f.block("Nobody's", careblock.Appointment, "09:00", "11:00")

	off := f.block("Nursery", careblock.Childcare, "08:30", "15:00", "milo")
	off.Active = false
	require.NoError(t, f.blocks.Update(off))

	assert.Equal(t, Parenting, f.engine.Current())
}

func TestEngine_SuppressedCoverage(t *testing.T) {
	f := newFixture(t, "10:00", "milo")
	b := f.block("Nursery", careblock.Childcare, "08:30", "15:00", "milo")
	require.Equal(t, Free, f.engine.Current())

	sup := suppressed{b.ID + "/milo/2024-01-02": true}
	engine := New(f.children, f.blocks, f.sleep, f.away, WithClock(f.clock), WithSuppressor(sup))
	assert.Equal(t, Parenting, engine.Current())

	assert.Equal(t, Free, engine.At(tuesdayAt("00:00").AddDate(0, 0, 1), recurrence.MustParseClock("10:00")),
		"suppression only applies to its date")
}

func TestEngine_AtIgnoresLiveState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "10:00", "milo")
	_, err := f.sleep.Start(ctx, "milo", eventlog.Details{SleepType: eventlog.Nap})
	require.NoError(t, err)

	assert.Equal(t, Quiet, f.engine.Current())
	assert.Equal(t, Parenting, f.engine.At(tuesdayAt("00:00"), recurrence.MustParseClock("10:00")))
}
