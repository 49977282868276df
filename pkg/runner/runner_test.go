package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanet-labs/datanet/pkg/store"
)

func constantHarness(output any) Harness {
	return HarnessFunc(func(context.Context, map[string]any) (any, error) {
		return output, nil
	})
}

func TestRunner_Consensus(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := New(constantHarness(map[string]any{"answer": 42}), st, WithExecutions(3))

	rec, err := r.Run(ctx, map[string]any{"claim": "x"})
	require.NoError(t, err)

	assert.Equal(t, StatusConsensus, rec.Status)
	assert.True(t, rec.Consensus.Agreed)
	assert.Equal(t, 3, rec.Consensus.Executions)
	assert.Empty(t, rec.RunErrors)

	// The job record is persisted under its id.
	data, err := st.Get(ctx, store.JobKeyPrefix+rec.JobID)
	require.NoError(t, err)
	var stored JobRecord
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, rec.JobID, stored.JobID)
	assert.Equal(t, StatusConsensus, stored.Status)
}

func TestRunner_Disagreement(t *testing.T) {
	var n atomic.Int64
	h := HarnessFunc(func(context.Context, map[string]any) (any, error) {
		return map[string]any{"answer": n.Add(1)}, nil
	})
	r := New(h, store.NewMemoryStore(), WithExecutions(3))

	rec, err := r.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, StatusDisagreement, rec.Status)
	assert.False(t, rec.Consensus.Agreed)
	assert.Len(t, rec.Consensus.Discrepancies, 3)
}

func TestRunner_PartialFailuresExcluded(t *testing.T) {
	var n atomic.Int64
	h := HarnessFunc(func(context.Context, map[string]any) (any, error) {
		if n.Add(1) == 1 {
			return nil, errors.New("flaky backend")
		}
		return map[string]any{"answer": 42}, nil
	})
	r := New(h, store.NewMemoryStore(), WithExecutions(3))

	rec, err := r.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, StatusConsensus, rec.Status)
	require.Len(t, rec.RunErrors, 1)
	assert.Contains(t, rec.RunErrors[0].Error, "flaky backend")
	assert.Equal(t, 2, rec.Consensus.Executions)
	require.Len(t, rec.Outputs, 3)
	assert.Nil(t, rec.Outputs[rec.RunErrors[0].Index])
}

func TestRunner_AllRunsFail(t *testing.T) {
	h := HarnessFunc(func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("down")
	})
	r := New(h, store.NewMemoryStore(), WithExecutions(2))

	rec, err := r.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	assert.False(t, rec.Consensus.Agreed)
	assert.Len(t, rec.RunErrors, 2)
}

func TestRunner_DefaultExecutions(t *testing.T) {
	r := New(constantHarness("ok"), store.NewMemoryStore())

	rec, err := r.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, DefaultExecutions, rec.Consensus.Executions)

	// Non-positive overrides are ignored.
	r = New(constantHarness("ok"), store.NewMemoryStore(), WithExecutions(0))
	rec, err = r.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, DefaultExecutions, rec.Consensus.Executions)
}
