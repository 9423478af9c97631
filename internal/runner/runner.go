// Package runner executes structured programs so a project can be tested
// without generating and running target-language code.
//
// Each program of a project runs in its own goroutine against one shared
// expressions.Scope, mirroring the generated code where every diagram is a
// thread and every shared variable is global. Statements execute atomically;
// interleaving between statements is up to the Go scheduler, which is why
// Trials repeats each case.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/flowgen/internal/expressions"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

// DefaultMaxSteps bounds the statements a single program may execute.
const DefaultMaxSteps = 10000

// MaxTrials is the largest repetition count Trials accepts.
const MaxTrials = 20

// Result is the observable outcome of one run.
type Result struct {
	Outputs   []string       `json:"outputs"`
	Variables map[string]any `json:"variables"`
	Steps     int            `json:"steps"`
}

// Runner executes programs with one expression engine.
type Runner struct {
	engine   expressions.Engine
	maxSteps int
	logger   *slog.Logger
}

// New creates a Runner. maxSteps <= 0 means DefaultMaxSteps; a nil logger
// discards output.
func New(engine expressions.Engine, maxSteps int, logger *slog.Logger) *Runner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{engine: engine, maxSteps: maxSteps, logger: logger}
}

// run is the state shared by the goroutines of one Run call.
type run struct {
	r      *Runner
	scope  *expressions.Scope
	mu     sync.Mutex
	inputs []string
	out    []string
	steps  int
}

// Run executes every program concurrently until each one stops or falls off
// its end. inputs are whitespace-separated literal tokens consumed in order
// by input statements across all programs. The first failure cancels the
// remaining programs.
func (r *Runner) Run(ctx context.Context, programs []*program.Program, variables []string, inputs string) (*Result, error) {
	if len(programs) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "nothing to run")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &run{
		r:      r,
		scope:  expressions.NewScope(variables),
		inputs: strings.Fields(inputs),
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, p := range programs {
		wg.Add(1)
		go func(p *program.Program) {
			defer wg.Done()
			th := &thread{run: st, prog: p}
			if err := th.exec(ctx, p.Body); err != nil && !errors.Is(err, errStop) {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				r.logger.Debug("program failed", "diagram_id", p.DiagramID, "error", err)
			}
		}(p)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return &Result{
		Outputs:   st.out,
		Variables: st.scope.Snapshot(),
		Steps:     st.steps,
	}, nil
}

// control signals unwind nested statement lists.
type control int

const (
	flowNext control = iota
	flowBreak
	flowContinue
)

var errStop = errors.New("stop")

type thread struct {
	*run
	prog  *program.Program
	steps int
}

func (t *thread) exec(ctx context.Context, stmts []program.Stmt) error {
	_, err := t.block(ctx, stmts)
	return err
}

func (t *thread) block(ctx context.Context, stmts []program.Stmt) (control, error) {
	for _, s := range stmts {
		c, err := t.stmt(ctx, s)
		if err != nil || c != flowNext {
			return c, err
		}
	}
	return flowNext, nil
}

func (t *thread) stmt(ctx context.Context, s program.Stmt) (control, error) {
	if err := ctx.Err(); err != nil {
		return flowNext, schema.NewError(schema.ErrCodeExecution, "run cancelled").WithCause(err)
	}
	if err := t.tick(s); err != nil {
		return flowNext, err
	}

	switch s.Kind {
	case program.StmtAssign:
		return flowNext, t.scope.Update(func(vars map[string]any) error {
			v, err := t.eval(ctx, s, s.Expr, vars)
			if err != nil {
				return err
			}
			if s.Target != "" {
				vars[s.Target] = v
			}
			return nil
		})

	case program.StmtInput:
		t.mu.Lock()
		if len(t.inputs) == 0 {
			t.mu.Unlock()
			return flowNext, schema.NewErrorf(schema.ErrCodeExecution, "no input left for %q", s.Target).
				WithNode(s.NodeID)
		}
		tok := t.inputs[0]
		t.inputs = t.inputs[1:]
		t.mu.Unlock()
		return flowNext, t.scope.Update(func(vars map[string]any) error {
			vars[s.Target] = ParseLiteral(tok)
			return nil
		})

	case program.StmtOutput:
		var text string
		err := t.scope.Update(func(vars map[string]any) error {
			v, err := t.eval(ctx, s, s.Expr, vars)
			if err != nil {
				return err
			}
			text = FormatValue(v)
			return nil
		})
		if err != nil {
			return flowNext, err
		}
		t.mu.Lock()
		t.out = append(t.out, text)
		t.mu.Unlock()
		return flowNext, nil

	case program.StmtIf:
		ok, err := t.cond(ctx, s)
		if err != nil {
			return flowNext, err
		}
		if ok {
			return t.block(ctx, s.Then)
		}
		return t.block(ctx, s.Else)

	case program.StmtLoop:
		for {
			if s.Cond != "" {
				ok, err := t.cond(ctx, s)
				if err != nil {
					return flowNext, err
				}
				if !ok {
					return flowNext, nil
				}
			}
			c, err := t.block(ctx, s.Body)
			if err != nil {
				return flowNext, err
			}
			if c == flowBreak {
				return flowNext, nil
			}
			// every iteration counts, so an empty body cannot spin forever
			if err := t.tick(s); err != nil {
				return flowNext, err
			}
		}

	case program.StmtBreak:
		return flowBreak, nil
	case program.StmtContinue:
		return flowContinue, nil
	case program.StmtStop:
		return flowNext, errStop
	default:
		return flowNext, schema.NewErrorf(schema.ErrCodeExecution, "unknown statement kind %q", s.Kind).
			WithNode(s.NodeID)
	}
}

// tick counts one executed step against the limit.
func (t *thread) tick(s program.Stmt) error {
	t.steps++
	t.mu.Lock()
	t.run.steps++
	t.mu.Unlock()
	if t.steps > t.r.maxSteps {
		return schema.NewErrorf(schema.ErrCodeStepLimit,
			"program %q exceeded %d steps", t.prog.Name, t.r.maxSteps).WithNode(s.NodeID)
	}
	return nil
}

// cond evaluates the condition of an if or loop, applying Negated.
func (t *thread) cond(ctx context.Context, s program.Stmt) (bool, error) {
	var ok bool
	err := t.scope.Update(func(vars map[string]any) error {
		v, err := t.eval(ctx, s, s.Cond, vars)
		if err != nil {
			return err
		}
		b, isBool := v.(bool)
		if !isBool {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"condition %q evaluated to %T, not a boolean", s.Cond, v).WithNode(s.NodeID)
		}
		ok = b != s.Negated
		return nil
	})
	return ok, err
}

func (t *thread) eval(ctx context.Context, s program.Stmt, expression string, vars map[string]any) (any, error) {
	v, err := t.r.engine.Evaluate(ctx, expression, vars)
	if err != nil {
		var fe *schema.FlowError
		if errors.As(err, &fe) && fe.NodeID == "" {
			return nil, fe.WithNode(s.NodeID)
		}
		return nil, err
	}
	return v, nil
}

// ParseLiteral converts an input token to an int, a float64, a bool or,
// failing those, a string with surrounding quotes removed.
func ParseLiteral(tok string) any {
	if n, err := strconv.Atoi(tok); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	switch tok {
	case "true", "True":
		return true
	case "false", "False":
		return false
	}
	if unq, err := strconv.Unquote(tok); err == nil {
		return unq
	}
	return strings.Trim(tok, `'`)
}

// FormatValue renders a value the way output statements print it, matching
// the generated Python program: True, False, None, and floats that always
// carry a fraction or an exponent.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(val, 64)
	case float32:
		return formatFloat(float64(val), 32)
	default:
		return fmt.Sprint(val)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, bits)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
