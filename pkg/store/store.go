// Package store provides the key→JSON blob persistence layer used for job
// results, decision proposals, and canonical documents. The verification
// core never touches a Store; callers own all I/O.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when no blob exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Store is a keyed JSON blob store. Values are serialized with encoding/json
// on Put and returned as raw JSON from Get; the store treats them as opaque.
type Store interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Key namespaces shared by the runner, composer, and API.
const (
	JobKeyPrefix      = "job_"
	ProposalKeyPrefix = "proposal_"
	DocumentKeyPrefix = "doc_"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateKey rejects keys that could escape a backend's namespace (path
// separators, empty keys).
func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}
