package notify

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockEmitter implements Emitter for testing
type MockEmitter struct {
	mock.Mock
}

// Emit implements the Emitter interface
func (m *MockEmitter) Emit(ctx context.Context, ev Event) {
	m.Called(ctx, ev)
}

// Names returns the names of all emitted events, in order
func (m *MockEmitter) Names() []Name {
	var names []Name
	for _, call := range m.Calls {
		if call.Method == "Emit" {
			names = append(names, call.Arguments.Get(1).(Event).Name)
		}
	}
	return names
}
