package decision

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanet-labs/datanet/pkg/store"
)

func TestRecordID_StableAndShort(t *testing.T) {
	proposal := map[string]any{"change_type": "canon_update", "proposed_change": map[string]any{"k": "v"}}

	id1, err := RecordID("canon_proposal", proposal, "2026-08-23T00:00:00Z", "alice")
	require.NoError(t, err)
	id2, err := RecordID("canon_proposal", proposal, "2026-08-23T00:00:00Z", "alice")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), id1)

	// Any input change yields a different id.
	id3, err := RecordID("canon_proposal", proposal, "2026-08-23T00:00:00Z", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestComposer_ProposalLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewComposer(st)

	rec, err := c.ProposeCanonUpdate(ctx,
		map[string]any{"version": "v1"},
		map[string]any{"field": "new_value"},
		"source drifted", "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, rec.Metadata["status"])
	assert.NotEmpty(t, rec.Proposal["current_canon_hash"])

	pending, err := c.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.RecordID, pending[0].RecordID)

	require.NoError(t, c.Approve(ctx, rec.RecordID, "bob"))

	pending, err = c.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A decided record cannot be reviewed again.
	assert.Error(t, c.Approve(ctx, rec.RecordID, "carol"))
}

func TestComposer_Reject(t *testing.T) {
	ctx := context.Background()
	c := NewComposer(store.NewMemoryStore())

	rec, err := c.ProposeCanonUpdate(ctx,
		map[string]any{"version": "v1"}, map[string]any{"x": 1}, "r", "alice")
	require.NoError(t, err)

	require.NoError(t, c.Reject(ctx, rec.RecordID, "bob", "stale base"))

	pending, err := c.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestComposer_Acceptance(t *testing.T) {
	ctx := context.Background()
	c := NewComposer(store.NewMemoryStore())

	policy, err := NewCELPolicy(`result.agreed == true && result.confidence >= 0.5`, "v1")
	require.NoError(t, err)

	rec, err := c.ComposeAcceptance(ctx, map[string]any{
		"job_id":     "job-1",
		"agreed":     true,
		"confidence": 0.9,
	}, policy, "system")
	require.NoError(t, err)
	assert.Equal(t, "accepted", rec.Proposal["acceptance_status"])
	assert.Equal(t, "v1", rec.Proposal["policy_version"])

	rec, err = c.ComposeAcceptance(ctx, map[string]any{
		"job_id":     "job-2",
		"agreed":     false,
		"confidence": 0.9,
	}, policy, "system")
	require.NoError(t, err)
	assert.Equal(t, "rejected", rec.Proposal["acceptance_status"])
}

func TestCELPolicy_CompileError(t *testing.T) {
	_, err := NewCELPolicy(`result.agreed &&`, "v1")
	assert.Error(t, err)
}

func TestCELPolicy_NonBoolResult(t *testing.T) {
	policy, err := NewCELPolicy(`result.confidence`, "v1")
	require.NoError(t, err)

	_, err = policy.Accept(map[string]any{"confidence": 0.9})
	assert.Error(t, err)
}

func TestRecord_CanonicalJSONDeterministic(t *testing.T) {
	rec, err := newRecordAt(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		"acceptance", map[string]any{"z": 1, "a": 2}, "ok", "alice", nil)
	require.NoError(t, err)

	b1, err := rec.CanonicalJSON()
	require.NoError(t, err)
	b2, err := rec.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
