// Command datanet runs the claim-verification service and its companion
// tooling: canonical hashing, record validation, consensus comparison, and
// proposal review.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datanet-labs/datanet/pkg/api"
	"github.com/datanet-labs/datanet/pkg/canonicalize"
	"github.com/datanet-labs/datanet/pkg/claim"
	"github.com/datanet-labs/datanet/pkg/config"
	"github.com/datanet-labs/datanet/pkg/consensus"
	"github.com/datanet-labs/datanet/pkg/decision"
	"github.com/datanet-labs/datanet/pkg/observability"
	"github.com/datanet-labs/datanet/pkg/runner"
	"github.com/datanet-labs/datanet/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServe(stderr)
	case "hash":
		return runHash(args[2:], stdout, stderr)
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "compare":
		return runCompare(args[2:], stdout, stderr)
	case "review":
		return runReview(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "datanet "+api.Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: datanet <command> [flags]

Commands:
  serve                     Start the HTTP API server (default)
  hash [file]               Print the canonical form and hash of a JSON value
  validate -record <file> -text <file>
                            Validate a claim record against document text
  compare [file]            Compare executions from a JSON array of outputs
  review list|approve|reject
                            Manage pending canon proposals
  version                   Print the service version`)
}

// newStore builds the persistence backend selected by the configuration.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "local":
		return store.NewFSStore(cfg.StorePath)
	case "sqlite":
		db, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(db)
	case "postgres":
		db, err := store.OpenPostgres(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(db)
	case "s3":
		return store.NewS3Store(ctx, store.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case "redis":
		rs := store.NewRedisStore(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

// simulatedHarness stands in for a real agent backend: it validates the
// task's claim record when one is provided, so repeated runs agree exactly.
func simulatedHarness() runner.Harness {
	validator := claim.NewValidator()
	return runner.HarnessFunc(func(_ context.Context, task map[string]any) (any, error) {
		raw, err := json.Marshal(task["record"])
		if err != nil {
			return nil, err
		}
		text, _ := task["canonical_text"].(string)

		if _, err := validator.ValidateJSON(raw, text); err != nil {
			return map[string]any{"valid": false, "reason": err.Error()}, nil
		}
		return map[string]any{"valid": true}, nil
	})
}

func runServe(stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("store init failed", "backend", cfg.Store, "error", err)
		return 1
	}

	metrics, err := observability.New(api.Version)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	var policy decision.Policy = decision.AcceptAll{}
	if cfg.PolicyExpr != "" {
		policy, err = decision.NewCELPolicy(cfg.PolicyExpr, cfg.PolicyVersion)
		if err != nil {
			logger.Error("policy init failed", "error", err)
			return 1
		}
	}

	run := runner.New(simulatedHarness(), st,
		runner.WithExecutions(cfg.Executions),
		runner.WithMetrics(metrics),
	)
	server := api.NewServer(st, run,
		api.WithAPIKeys(cfg.APIKeys),
		api.WithMetrics(metrics),
		api.WithPolicy(policy),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	logger.Info("datanet listening",
		"port", cfg.Port,
		"store", cfg.Store,
		"executions", cfg.Executions,
		"auth", cfg.AuthEnabled(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
		return 0
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	}
}

// readInput reads from the named file, or stdin when no name is given.
func readInput(args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func runHash(args []string, stdout, stderr io.Writer) int {
	data, err := readInput(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	value, err := canonicalize.Parse(data)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	canonical, err := canonicalize.Canonicalize(value)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintln(stdout, string(canonical))
	fmt.Fprintln(stdout, canonicalize.HashBytes(canonical))
	return 0
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recordPath := fs.String("record", "", "path to the claim record JSON")
	textPath := fs.String("text", "", "path to the canonical document text")
	constraint := fs.String("canonicalizer", "", "semver constraint for canonicalize_version")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *recordPath == "" || *textPath == "" {
		fmt.Fprintln(stderr, "validate requires -record and -text")
		return 2
	}

	raw, err := os.ReadFile(*recordPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	text, err := os.ReadFile(*textPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	validator := claim.NewValidator()
	if *constraint != "" {
		validator, err = claim.NewValidatorWithConstraint(*constraint)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}

	if _, err := validator.ValidateJSON(raw, string(text)); err != nil {
		fmt.Fprintf(stdout, "INVALID: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "VALID")
	return 0
}

func runCompare(args []string, stdout, stderr io.Writer) int {
	data, err := readInput(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	// The input is a JSON array; each element is one execution's outputs.
	parsed, err := canonicalize.Parse(data)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	outputs, ok := parsed.([]any)
	if !ok {
		fmt.Fprintln(stderr, "compare expects a JSON array of execution outputs")
		return 2
	}

	executions := make([]consensus.Execution, len(outputs))
	for i, out := range outputs {
		executions[i] = consensus.Execution{Outputs: out}
	}

	result := consensus.Compare(executions)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if !result.Agreed {
		return 1
	}
	return 0
}

func runReview(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: datanet review <list|approve|reject> [record-id] [reason]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx := context.Background()
	st, err := newStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	composer := decision.NewComposer(st)
	reviewer := os.Getenv("DATANET_REVIEWER")
	if reviewer == "" {
		reviewer = "cli"
	}

	switch args[0] {
	case "list":
		pending, err := composer.PendingReviews(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, rec := range pending {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n",
				rec.RecordID, rec.DecisionType, rec.Author, rec.Timestamp)
		}
		return 0
	case "approve":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "review approve requires a record id")
			return 2
		}
		if err := composer.Approve(ctx, args[1], reviewer); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, "approved "+args[1])
		return 0
	case "reject":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "review reject requires a record id")
			return 2
		}
		reason := ""
		if len(args) > 2 {
			reason = args[2]
		}
		if err := composer.Reject(ctx, args[1], reviewer, reason); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, "rejected "+args[1])
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown review action: %s\n", args[0])
		return 2
	}
}
