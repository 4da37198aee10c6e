package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libroutine/persist"
)

func TestStore_GetPut(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, persist.ErrNotFound)

	data := []byte(`{"a":1}`)
	require.NoError(t, store.Put(ctx, "k", data))
	data[0] = 'x' // the store keeps its own copy

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.Equal(t, []string{"k"}, store.Keys())
}
