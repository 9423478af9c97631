package render

import (
	"fmt"

	"github.com/rendis/flowgen/internal/program"
)

// Go renders a project as a Go main package. Shared variables are package
// level ints guarded by one mutex held for every statement; each diagram
// runs in its own goroutine. Payloads are copied verbatim, so they must be
// Go expressions over ints for the output to compile.
type Go struct{}

func (Go) Name() string      { return "go" }
func (Go) Extension() string { return ".go" }

func (g Go) Render(u Unit) ([]byte, error) {
	w := &writer{indent: "\t"}
	w.line("package main")
	w.line()
	w.line("import (")
	w.in()
	w.line(`"fmt"`)
	w.line(`"sync"`)
	w.out()
	w.line(")")
	w.line()
	w.line("var mu sync.Mutex")
	if len(u.Variables) > 0 {
		w.line()
		w.line("var (")
		w.in()
		for _, v := range u.Variables {
			w.line(v, " int")
		}
		w.out()
		w.line(")")
	}

	for i, p := range u.Programs {
		w.line()
		if p.Name != "" {
			w.line("// ", p.Name)
		}
		w.line(fmt.Sprintf("func thread%d() {", i+1))
		w.in()
		w.line("mu.Lock()")
		w.line("defer mu.Unlock()")
		if err := g.block(w, p.Body); err != nil {
			return nil, err
		}
		w.out()
		w.line("}")
	}

	w.line()
	w.line("func main() {")
	w.in()
	w.line("var wg sync.WaitGroup")
	for i := range u.Programs {
		w.line("wg.Add(1)")
		w.line(fmt.Sprintf("go func() { defer wg.Done(); thread%d() }()", i+1))
	}
	w.line("wg.Wait()")
	w.out()
	w.line("}")
	return w.bytes(), nil
}

func (g Go) block(w *writer, stmts []program.Stmt) error {
	for _, s := range stmts {
		if err := g.stmt(w, s); err != nil {
			return err
		}
	}
	return nil
}

func (g Go) stmt(w *writer, s program.Stmt) error {
	switch s.Kind {
	case program.StmtAssign:
		if s.Target == "" {
			w.line("_ = ", s.Expr)
		} else {
			w.line(s.Target, " = ", s.Expr)
		}
	case program.StmtInput:
		w.line("fmt.Scan(&", s.Target, ")")
	case program.StmtOutput:
		w.line("fmt.Println(", s.Expr, ")")
	case program.StmtIf:
		w.line("if ", goCond(s), " {")
		w.in()
		if err := g.block(w, s.Then); err != nil {
			return err
		}
		w.out()
		if len(s.Else) > 0 {
			w.line("} else {")
			w.in()
			if err := g.block(w, s.Else); err != nil {
				return err
			}
			w.out()
		}
		w.line("}")
	case program.StmtLoop:
		if s.Cond == "" {
			w.line("for {")
		} else {
			w.line("for ", goCond(s), " {")
		}
		w.in()
		// let other goroutines run between iterations
		w.line("mu.Unlock()")
		w.line("mu.Lock()")
		if err := g.block(w, s.Body); err != nil {
			return err
		}
		w.out()
		w.line("}")
	case program.StmtBreak:
		w.line("break")
	case program.StmtContinue:
		w.line("continue")
	case program.StmtStop:
		w.line("return")
	default:
		return fmt.Errorf("go: unsupported statement %q", s.Kind)
	}
	return nil
}

func goCond(s program.Stmt) string {
	if s.Negated {
		return "!(" + s.Cond + ")"
	}
	return s.Cond
}
