package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip exercises the Store contract shared by all backends.
func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	blob := map[string]any{"job_id": "abc", "status": "completed", "score": 0.9}
	require.NoError(t, s.Put(ctx, "job_abc", blob))
	require.NoError(t, s.Put(ctx, "job_def", map[string]any{"job_id": "def"}))
	require.NoError(t, s.Put(ctx, "proposal_1", map[string]any{"record_id": "1"}))

	data, err := s.Get(ctx, "job_abc")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "completed", got["status"])

	keys, err := s.List(ctx, "job_")
	require.NoError(t, err)
	assert.Equal(t, []string{"job_abc", "job_def"}, keys)

	// Overwrite is an upsert.
	require.NoError(t, s.Put(ctx, "job_abc", map[string]any{"status": "failed"}))
	data, err = s.Get(ctx, "job_abc")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "failed", got["status"])

	require.NoError(t, s.Delete(ctx, "job_abc"))
	_, err = s.Get(ctx, "job_abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "job_abc"), ErrNotFound)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	roundTrip(t, NewMemoryStore())
}

func TestFSStore_RoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	roundTrip(t, s)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	roundTrip(t, s)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("job_abc-1.2"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey("../escape"))
	assert.Error(t, ValidateKey("a/b"))
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "k", map[string]any{"v": 1}))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	data[0] = 'X'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, byte('X'), again[0])
}
