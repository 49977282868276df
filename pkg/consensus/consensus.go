// Package consensus decides whether multiple independent executions of the
// same logical job agree, using canonical content hashes as the only
// equality test.
package consensus

import (
	"sync"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
)

// Execution is one independent run of a job. Outputs is an arbitrary
// JSON-like payload; the comparator only ever looks at its content hash.
type Execution struct {
	Outputs any `json:"outputs"`
}

// Discrepancy describes one execution's contribution to a disagreement.
// Hash and Output are set for executions that hashed successfully; Error is
// set when canonicalization failed for that execution.
type Discrepancy struct {
	Index  int    `json:"execution_index"`
	Hash   string `json:"canonical_hash,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the full outcome of a comparison. On disagreement every hashed
// execution appears in Discrepancies, not just the outliers, so a reviewer
// can inspect the whole disagreement set.
type Result struct {
	Agreed          bool          `json:"consensus_reached"`
	CanonicalOutput any           `json:"canonical_output,omitempty"`
	Executions      int           `json:"num_executions"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
}

// Compare hashes every execution's outputs and checks for unanimity.
//
//   - zero executions: not agreed, nothing to agree on
//   - one execution: trivially agreed
//   - N >= 2: agreed iff the successfully hashed subset is non-empty and all
//     its hashes are identical; a hash failure is recorded per-index and
//     excluded from the unanimity set (it neither confirms nor breaks
//     consensus). There is no majority vote: any split is a disagreement.
//
// Hashing runs in parallel; the discrepancy list always preserves original
// execution order.
func Compare(executions []Execution) Result {
	result := Result{
		Executions:    len(executions),
		Discrepancies: []Discrepancy{},
	}

	if len(executions) == 0 {
		return result
	}

	if len(executions) == 1 {
		result.Agreed = true
		result.CanonicalOutput = executions[0].Outputs
		return result
	}

	hashes := make([]string, len(executions))
	errs := make([]error, len(executions))

	var wg sync.WaitGroup
	for i := range executions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hashes[i], errs[i] = canonicalize.Hash(executions[i].Outputs)
		}(i)
	}
	wg.Wait()

	// Aggregate in index order so output is deterministic regardless of
	// goroutine completion order.
	unanimous := true
	first := -1
	for i := range executions {
		if errs[i] != nil {
			continue
		}
		if first == -1 {
			first = i
		} else if hashes[i] != hashes[first] {
			unanimous = false
		}
	}

	for i := range executions {
		if errs[i] != nil {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Index: i,
				Error: "failed to canonicalize: " + errs[i].Error(),
			})
			continue
		}
		if !unanimous {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Index:  i,
				Hash:   hashes[i],
				Output: executions[i].Outputs,
			})
		}
	}

	if first != -1 && unanimous {
		result.Agreed = true
		result.CanonicalOutput = executions[first].Outputs
	}

	return result
}
