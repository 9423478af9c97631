package emitter

import (
	"strings"

	"github.com/rendis/flowgen/internal/program"
)

func trim(s string) string { return strings.TrimSpace(s) }

// trimContinue drops a continue that is the last statement executed in a
// loop body, looking through trailing if statements.
func trimContinue(body []program.Stmt) []program.Stmt {
	if len(body) == 0 {
		return body
	}
	last := &body[len(body)-1]
	switch last.Kind {
	case program.StmtContinue:
		return body[:len(body)-1]
	case program.StmtIf:
		last.Then = trimContinue(last.Then)
		last.Else = trimContinue(last.Else)
	}
	return body
}

// normalize rewrites `if c {} else {b}` into `if !c {b}` throughout stmts.
func normalize(stmts []program.Stmt) []program.Stmt {
	for i := range stmts {
		s := &stmts[i]
		s.Then = normalize(s.Then)
		s.Else = normalize(s.Else)
		s.Body = normalize(s.Body)
		if s.Kind == program.StmtIf && len(s.Then) == 0 && len(s.Else) > 0 {
			s.Then, s.Else = s.Else, nil
			s.Negated = !s.Negated
		}
	}
	return stmts
}
