// Package runner executes a task through N independent harness runs and
// reduces the outputs to a consensus verdict, persisting the full job record.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datanet-labs/datanet/pkg/consensus"
	"github.com/datanet-labs/datanet/pkg/observability"
	"github.com/datanet-labs/datanet/pkg/store"
)

// Harness runs one independent execution of a task and returns its output.
// Implementations must not share mutable state between runs; the whole point
// of repeated execution is independence.
type Harness interface {
	Execute(ctx context.Context, task map[string]any) (any, error)
}

// HarnessFunc adapts a function to the Harness interface.
type HarnessFunc func(ctx context.Context, task map[string]any) (any, error)

func (f HarnessFunc) Execute(ctx context.Context, task map[string]any) (any, error) {
	return f(ctx, task)
}

// Job statuses stored with the record.
const (
	StatusConsensus    = "consensus"
	StatusDisagreement = "disagreement"
	StatusFailed       = "failed"
)

const DefaultExecutions = 3

// RunError records a harness run that returned an error instead of output.
type RunError struct {
	Index int    `json:"execution_index"`
	Error string `json:"error"`
}

// JobRecord is the persisted outcome of one job. Outputs holds every run's
// output in execution order; a failed run's slot is null and its error is in
// RunErrors.
type JobRecord struct {
	JobID     string           `json:"job_id"`
	Task      map[string]any   `json:"task"`
	Status    string           `json:"status"`
	Outputs   []any            `json:"execution_outputs"`
	Consensus consensus.Result `json:"consensus"`
	RunErrors []RunError       `json:"run_errors,omitempty"`
	StartedAt string           `json:"started_at"`
	Duration  string           `json:"duration"`
}

// Runner owns the execution fan-out and persistence of job records.
type Runner struct {
	harness    Harness
	store      store.Store
	metrics    *observability.Metrics
	executions int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutions sets how many independent runs each job gets.
func WithExecutions(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.executions = n
		}
	}
}

// WithMetrics attaches pipeline metrics; nil disables recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func New(h Harness, st store.Store, opts ...Option) *Runner {
	r := &Runner{
		harness:    h,
		store:      st,
		executions: DefaultExecutions,
		logger:     slog.Default().With("component", "runner"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the task r.executions times in parallel, compares the outputs,
// and persists the job record. Harness errors do not abort the job; the
// failing run is excluded from the comparison and reported in RunErrors. The
// job fails only when every run errors.
func (r *Runner) Run(ctx context.Context, task map[string]any) (*JobRecord, error) {
	jobID := uuid.NewString()
	started := r.now().UTC()
	logger := r.logger.With("job_id", jobID)
	r.metrics.RecordCall(ctx, "run_job")

	outputs := make([]any, r.executions)
	errs := make([]error, r.executions)

	var wg sync.WaitGroup
	for i := 0; i < r.executions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outputs[i], errs[i] = r.harness.Execute(ctx, task)
		}(i)
	}
	wg.Wait()

	var executions []consensus.Execution
	var runErrors []RunError
	for i := 0; i < r.executions; i++ {
		if errs[i] != nil {
			runErrors = append(runErrors, RunError{Index: i, Error: errs[i].Error()})
			logger.Warn("harness run failed", "execution_index", i, "error", errs[i])
			continue
		}
		executions = append(executions, consensus.Execution{Outputs: outputs[i]})
	}

	result := consensus.Compare(executions)

	status := StatusDisagreement
	switch {
	case len(executions) == 0:
		status = StatusFailed
	case result.Agreed:
		status = StatusConsensus
	}

	record := &JobRecord{
		JobID:     jobID,
		Task:      task,
		Status:    status,
		Outputs:   outputs,
		Consensus: result,
		RunErrors: runErrors,
		StartedAt: started.Format(time.RFC3339),
		Duration:  r.now().UTC().Sub(started).String(),
	}

	if err := r.store.Put(ctx, store.JobKeyPrefix+jobID, record); err != nil {
		return nil, fmt.Errorf("runner: persist job %s: %w", jobID, err)
	}

	r.metrics.RecordJobDuration(ctx, r.now().UTC().Sub(started), result.Agreed)
	logger.Info("job finished",
		"status", status,
		"executions", r.executions,
		"failed_runs", len(runErrors),
		"agreed", result.Agreed,
	)
	return record, nil
}
