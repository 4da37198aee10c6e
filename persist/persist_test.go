package persist_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libroutine/persist"
	"github.com/cyp0633/libroutine/persist/memory"
)

type snapshot struct {
	Names []string `json:"names"`
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingStore) Put(context.Context, string, []byte) error   { return errors.New("down") }

func TestJSONRoundTrip(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	var out snapshot
	found, err := persist.LoadJSON(ctx, store, "things", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, persist.SaveJSON(ctx, store, "things", snapshot{Names: []string{"a", "b"}}))

	found, err = persist.LoadJSON(ctx, store, "things", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, out.Names)
}

func TestLoadJSON_Corrupt(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), "things", []byte("{")))

	var out snapshot
	_, err := persist.LoadJSON(context.Background(), store, "things", &out)
	assert.Error(t, err)
}

func TestSaveLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	persist.SaveLogged(nil, "things", snapshot{}, logger)
	assert.Empty(t, buf.String())

	persist.SaveLogged(failingStore{}, "things", snapshot{}, logger)
	assert.Contains(t, buf.String(), "failed to persist snapshot")
	assert.Contains(t, buf.String(), "key=things")
}
