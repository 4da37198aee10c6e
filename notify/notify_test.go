package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	var got []string

	unsubA := bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "a:"+string(ev.Name)) })
	bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "b:"+string(ev.Name)) })

	bus.Emit(context.Background(), Event{Name: SleepStart})
	unsubA()
	bus.Emit(context.Background(), Event{Name: SleepEnd})

	assert.Equal(t, []string{"a:sleep-start", "b:sleep-start", "b:sleep-end"}, got)
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.channel = channel
	f.payload = message.([]byte)
	return goredis.NewIntResult(1, f.err)
}

func TestRedis_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	emitter := NewRedis(pub, "routine-events", nil)

	at := time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)
	emitter.Emit(context.Background(), Event{Name: AwayStart, ChildID: "milo", At: at})

	assert.Equal(t, "routine-events", pub.channel)
	var ev Event
	require.NoError(t, json.Unmarshal(pub.payload, &ev))
	assert.Equal(t, AwayStart, ev.Name)
	assert.Equal(t, "milo", ev.ChildID)
	assert.True(t, at.Equal(ev.At))
}

func TestRedis_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	emitter := NewRedis(pub, "routine-events", nil)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), Event{Name: AwayEnd})
	})
}

func TestMockEmitter_Names(t *testing.T) {
	m := &MockEmitter{}
	m.On("Emit", mock.Anything, mock.Anything).Return()

	m.Emit(context.Background(), Event{Name: SleepStart})
	m.Emit(context.Background(), Event{Name: CareBlockEndConfirmed})

	assert.Equal(t, []Name{SleepStart, CareBlockEndConfirmed}, m.Names())
	m.AssertNumberOfCalls(t, "Emit", 2)
}
