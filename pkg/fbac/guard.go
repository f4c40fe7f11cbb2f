package fbac

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// guardEvaluator compiles and caches CEL guard expressions. Guards see the
// resolved access context, nothing else.
type guardEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newGuardEvaluator() (*guardEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tenant", cel.StringType),
		cel.Variable("actor", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("table", cel.StringType),
		cel.Variable("field", cel.StringType),
		cel.Variable("access", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("fbac: build guard env: %w", err)
	}
	return &guardEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// allow evaluates a guard expression against the access context. Any
// compile or evaluation failure is an error; callers deny on error.
func (g *guardEvaluator) allow(expr string, input map[string]any) (bool, error) {
	prg, err := g.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("fbac: evaluate guard: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("fbac: guard %q did not evaluate to a boolean", expr)
	}
	return b, nil
}

func (g *guardEvaluator) program(expr string) (cel.Program, error) {
	g.mu.RLock()
	prg, ok := g.programs[expr]
	g.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("fbac: compile guard: %w", issues.Err())
	}
	prg, err := g.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("fbac: build guard program: %w", err)
	}

	g.mu.Lock()
	g.programs[expr] = prg
	g.mu.Unlock()
	return prg, nil
}
