package render

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgen/internal/program"
)

// Python renders a project as a Python 3 module: shared variables are
// module globals initialised to 0 and every diagram runs in its own
// threading.Thread.
type Python struct{}

func (Python) Name() string      { return "python" }
func (Python) Extension() string { return ".py" }

const pythonReader = `def _read():
    tok = input()
    for conv in (int, float):
        try:
            return conv(tok)
        except ValueError:
            pass
    return tok
`

func (py Python) Render(u Unit) ([]byte, error) {
	w := &writer{indent: "    "}
	w.line("import threading")
	w.line()
	for _, v := range u.Variables {
		w.line(v, " = 0")
	}
	if len(u.Variables) > 0 {
		w.line()
	}
	w.buf.WriteString(pythonReader)

	for i, p := range u.Programs {
		w.line()
		w.line()
		if p.Name != "" {
			w.line("# ", p.Name)
		}
		w.line(fmt.Sprintf("def thread_%d():", i+1))
		w.in()
		if len(u.Variables) > 0 {
			w.line("global ", strings.Join(u.Variables, ", "))
		}
		if err := py.block(w, p.Body); err != nil {
			return nil, err
		}
		w.out()
	}

	w.line()
	w.line()
	w.line(`if __name__ == "__main__":`)
	w.in()
	names := make([]string, len(u.Programs))
	for i := range u.Programs {
		names[i] = fmt.Sprintf("threading.Thread(target=thread_%d)", i+1)
	}
	w.line("threads = [", strings.Join(names, ", "), "]")
	w.line("for t in threads:")
	w.in()
	w.line("t.start()")
	w.out()
	w.line("for t in threads:")
	w.in()
	w.line("t.join()")
	w.out()
	w.out()
	return w.bytes(), nil
}

func (py Python) block(w *writer, stmts []program.Stmt) error {
	if len(stmts) == 0 {
		w.line("pass")
		return nil
	}
	for _, s := range stmts {
		if err := py.stmt(w, s); err != nil {
			return err
		}
	}
	return nil
}

func (py Python) stmt(w *writer, s program.Stmt) error {
	switch s.Kind {
	case program.StmtAssign:
		if s.Target == "" {
			w.line(s.Expr)
		} else {
			w.line(s.Target, " = ", s.Expr)
		}
	case program.StmtInput:
		w.line(s.Target, " = _read()")
	case program.StmtOutput:
		w.line("print(", s.Expr, ")")
	case program.StmtIf:
		w.line("if ", pyCond(s), ":")
		w.in()
		if err := py.block(w, s.Then); err != nil {
			return err
		}
		w.out()
		if len(s.Else) > 0 {
			w.line("else:")
			w.in()
			if err := py.block(w, s.Else); err != nil {
				return err
			}
			w.out()
		}
	case program.StmtLoop:
		if s.Cond == "" {
			w.line("while True:")
		} else {
			w.line("while ", pyCond(s), ":")
		}
		w.in()
		if err := py.block(w, s.Body); err != nil {
			return err
		}
		w.out()
	case program.StmtBreak:
		w.line("break")
	case program.StmtContinue:
		w.line("continue")
	case program.StmtStop:
		w.line("return")
	default:
		return fmt.Errorf("python: unsupported statement %q", s.Kind)
	}
	return nil
}

func pyCond(s program.Stmt) string {
	if s.Negated {
		return "not (" + s.Cond + ")"
	}
	return s.Cond
}
