// Package program defines the structured statement records produced from a
// flowchart. Renderers turn them into source text; the runner executes them.
package program

import (
	"encoding/json"
	"strings"
)

// StmtKind classifies a statement record.
type StmtKind string

const (
	StmtAssign   StmtKind = "assign"
	StmtInput    StmtKind = "input"
	StmtOutput   StmtKind = "output"
	StmtIf       StmtKind = "if"
	StmtLoop     StmtKind = "loop"
	StmtBreak    StmtKind = "break"
	StmtContinue StmtKind = "continue"
	StmtStop     StmtKind = "stop"
)

// Stmt is one statement of a structured program.
//
// Field use by kind:
//   - assign:   Target, Expr
//   - input:    Target
//   - output:   Expr
//   - if:       Cond, Negated, Then, Else, Join
//   - loop:     Cond (empty for an unconditional loop), Negated, Body
//   - break, continue, stop: no fields
type Stmt struct {
	Kind    StmtKind `json:"kind"`
	NodeID  string   `json:"node_id,omitempty"`
	Target  string   `json:"target,omitempty"`
	Expr    string   `json:"expr,omitempty"`
	Cond    string   `json:"cond,omitempty"`
	Negated bool     `json:"negated,omitempty"`
	Then    []Stmt   `json:"then,omitempty"`
	Else    []Stmt   `json:"else,omitempty"`
	Body    []Stmt   `json:"body,omitempty"`
	// Join is the node at which the arms of an if re-converge, empty when
	// they do not.
	Join string `json:"join,omitempty"`
}

// Program is the structured form of one diagram.
type Program struct {
	DiagramID string   `json:"diagram_id"`
	Name      string   `json:"name"`
	Variables []string `json:"variables"`
	Body      []Stmt   `json:"body"`
}

// JSON returns the program encoded as a generic JSON object, for jq queries
// and transports that expect map[string]any.
func (p *Program) JSON() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of statements, nested ones included.
func Count(stmts []Stmt) int {
	n := 0
	Walk(stmts, func(Stmt) { n++ })
	return n
}

// Walk calls fn for every statement in pre-order.
func Walk(stmts []Stmt, fn func(Stmt)) {
	for _, s := range stmts {
		fn(s)
		Walk(s.Then, fn)
		Walk(s.Else, fn)
		Walk(s.Body, fn)
	}
}

// Terminates reports whether control never falls off the end of stmts.
func Terminates(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	last := stmts[len(stmts)-1]
	switch last.Kind {
	case StmtBreak, StmtContinue, StmtStop:
		return true
	case StmtIf:
		return Terminates(last.Then) && Terminates(last.Else)
	default:
		return false
	}
}

// SplitAssignment splits "target = expr" at the first '=' that is not part
// of ==, !=, <= or >=. ok is false when no such '=' exists.
func SplitAssignment(payload string) (target, expr string, ok bool) {
	for i := 0; i < len(payload); i++ {
		if payload[i] != '=' {
			continue
		}
		if i+1 < len(payload) && payload[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.ContainsRune("=!<>", rune(payload[i-1])) {
			continue
		}
		return strings.TrimSpace(payload[:i]), strings.TrimSpace(payload[i+1:]), true
	}
	return "", "", false
}
