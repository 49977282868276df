// Package decision composes auditable decision records for canonical-change
// proposals and job acceptance, identified by canonical content hashes.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
	"github.com/datanet-labs/datanet/pkg/store"
)

// Record is one auditable decision. RecordID is derived from the record's
// canonical content, so identical inputs always produce the same identifier.
type Record struct {
	RecordID     string         `json:"record_id"`
	DecisionType string         `json:"decision_type"`
	Timestamp    string         `json:"timestamp"`
	Author       string         `json:"author"`
	Proposal     map[string]any `json:"proposal"`
	Rationale    string         `json:"rationale"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Review lifecycle states tracked in Metadata["status"].
const (
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
)

// ErrNotPending is returned when a review action targets a record that has
// already been decided.
var ErrNotPending = errors.New("decision: record is not pending review")

// recordIDLen is the prefix of the canonical hash used as identifier.
// Collisions at this width are treated as astronomically unlikely; there is
// no retry or re-derivation path.
const recordIDLen = 16

// RecordID derives the stable identifier for a decision's content.
func RecordID(decisionType string, proposal map[string]any, timestamp, author string) (string, error) {
	h, err := canonicalize.Hash(map[string]any{
		"type":      decisionType,
		"proposal":  proposal,
		"timestamp": timestamp,
		"author":    author,
	})
	if err != nil {
		return "", fmt.Errorf("decision: derive record id: %w", err)
	}
	return h[:recordIDLen], nil
}

// NewRecord builds a Record stamped with the current UTC time.
func NewRecord(decisionType string, proposal map[string]any, rationale, author string, metadata map[string]any) (*Record, error) {
	return newRecordAt(time.Now().UTC(), decisionType, proposal, rationale, author, metadata)
}

func newRecordAt(now time.Time, decisionType string, proposal map[string]any, rationale, author string, metadata map[string]any) (*Record, error) {
	ts := now.UTC().Format(time.RFC3339)
	id, err := RecordID(decisionType, proposal, ts, author)
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Record{
		RecordID:     id,
		DecisionType: decisionType,
		Timestamp:    ts,
		Author:       author,
		Proposal:     proposal,
		Rationale:    rationale,
		Metadata:     metadata,
	}, nil
}

// CanonicalJSON renders the record in canonical form. Signing helpers must
// sign exactly these bytes; re-serializing elsewhere would change the hash.
func (r *Record) CanonicalJSON() ([]byte, error) {
	return canonicalize.Canonicalize(r)
}

// Composer creates decision records and tracks their review lifecycle in an
// explicit store handle. The ID derivation itself stays pure.
type Composer struct {
	store store.Store
	now   func() time.Time
}

func NewComposer(st store.Store) *Composer {
	return &Composer{store: st, now: time.Now}
}

// ProposeCanonUpdate records a proposal to change the canonical
// specification. The proposal pins the current canon by content hash so a
// reviewer can detect a stale base.
func (c *Composer) ProposeCanonUpdate(ctx context.Context, currentCanon, change map[string]any, rationale, author string) (*Record, error) {
	canonHash, err := canonicalize.Hash(currentCanon)
	if err != nil {
		return nil, fmt.Errorf("decision: hash current canon: %w", err)
	}

	proposal := map[string]any{
		"current_canon_hash": canonHash,
		"proposed_change":    change,
		"change_type":        "canon_update",
	}

	record, err := newRecordAt(c.now(), "canon_proposal", proposal, rationale, author,
		map[string]any{"status": StatusPendingReview})
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, store.ProposalKeyPrefix+record.RecordID, record); err != nil {
		return nil, fmt.Errorf("decision: persist proposal: %w", err)
	}
	return record, nil
}

// ComposeAcceptance records an accept/reject decision for a job result,
// evaluated against a policy.
func (c *Composer) ComposeAcceptance(ctx context.Context, jobResult map[string]any, policy Policy, author string) (*Record, error) {
	accepted, err := policy.Accept(jobResult)
	if err != nil {
		return nil, fmt.Errorf("decision: evaluate acceptance policy: %w", err)
	}

	resultHash, err := canonicalize.Hash(jobResult)
	if err != nil {
		return nil, fmt.Errorf("decision: hash job result: %w", err)
	}

	status := "rejected"
	rationale := "result does not meet acceptance criteria"
	if accepted {
		status = "accepted"
		rationale = "result meets acceptance criteria"
	}

	proposal := map[string]any{
		"job_id":            jobResult["job_id"],
		"result_hash":       resultHash,
		"acceptance_status": status,
		"policy_version":    policy.Version(),
	}

	record, err := newRecordAt(c.now(), "acceptance", proposal, rationale, author, nil)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, store.ProposalKeyPrefix+record.RecordID, record); err != nil {
		return nil, fmt.Errorf("decision: persist acceptance: %w", err)
	}
	return record, nil
}

// PendingReviews lists stored records still awaiting review.
func (c *Composer) PendingReviews(ctx context.Context) ([]*Record, error) {
	keys, err := c.store.List(ctx, store.ProposalKeyPrefix)
	if err != nil {
		return nil, err
	}

	var pending []*Record
	for _, key := range keys {
		data, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decision: corrupt record %s: %w", key, err)
		}
		if rec.Metadata["status"] == StatusPendingReview {
			pending = append(pending, &rec)
		}
	}
	return pending, nil
}

// Approve transitions a pending record to approved.
func (c *Composer) Approve(ctx context.Context, recordID, reviewer string) error {
	return c.review(ctx, recordID, reviewer, StatusApproved, "")
}

// Reject transitions a pending record to rejected with a reason.
func (c *Composer) Reject(ctx context.Context, recordID, reviewer, reason string) error {
	return c.review(ctx, recordID, reviewer, StatusRejected, reason)
}

func (c *Composer) review(ctx context.Context, recordID, reviewer, status, reason string) error {
	key := store.ProposalKeyPrefix + recordID
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decision: corrupt record %s: %w", recordID, err)
	}
	if rec.Metadata["status"] != StatusPendingReview {
		return fmt.Errorf("record %s: %w", recordID, ErrNotPending)
	}

	rec.Metadata["status"] = status
	rec.Metadata["reviewer"] = reviewer
	rec.Metadata["reviewed_at"] = c.now().UTC().Format(time.RFC3339)
	if reason != "" {
		rec.Metadata["reason"] = reason
	}

	return c.store.Put(ctx, key, &rec)
}
