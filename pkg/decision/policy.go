package decision

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Policy decides whether a job result is acceptable.
type Policy interface {
	Accept(result map[string]any) (bool, error)
	Version() string
}

// CELPolicy evaluates acceptance with a CEL expression over the job result,
// e.g. `result.consensus.consensus_reached && result.confidence >= 0.5`.
// Compiled programs are cached per expression.
type CELPolicy struct {
	env     *cel.Env
	expr    string
	version string

	mu    sync.RWMutex
	cache map[string]cel.Program
}

func NewCELPolicy(expr, version string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("result", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("decision: create CEL environment: %w", err)
	}
	p := &CELPolicy{
		env:     env,
		expr:    expr,
		version: version,
		cache:   make(map[string]cel.Program),
	}
	// Compile eagerly so a bad expression fails at construction.
	if _, err := p.program(expr); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CELPolicy) Version() string { return p.version }

func (p *CELPolicy) Accept(result map[string]any) (bool, error) {
	prg, err := p.program(p.expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"result": result})
	if err != nil {
		return false, fmt.Errorf("decision: CEL eval: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("decision: policy expression %q did not yield a bool", p.expr)
	}
	return allowed, nil
}

func (p *CELPolicy) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.cache[expr]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := p.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("decision: compile policy %q: %w", expr, iss.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("decision: build policy program: %w", err)
	}

	p.mu.Lock()
	p.cache[expr] = prg
	p.mu.Unlock()
	return prg, nil
}

// AcceptAll is the default policy when none is configured.
type AcceptAll struct{}

func (AcceptAll) Accept(map[string]any) (bool, error) { return true, nil }
func (AcceptAll) Version() string                     { return "accept-all" }
