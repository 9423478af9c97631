package graph

import "fmt"

// NodeID identifies a node within one diagram.
type NodeID string

// Kind classifies a flowchart block.
type Kind string

const (
	KindStart     Kind = "start"
	KindEnd       Kind = "end"
	KindAssign    Kind = "assign"
	KindInput     Kind = "input"
	KindOutput    Kind = "output"
	KindCondition Kind = "condition"
)

// Kinds lists every node kind in declaration order.
var Kinds = []Kind{KindStart, KindEnd, KindAssign, KindInput, KindOutput, KindCondition}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the six node kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStart, KindEnd, KindAssign, KindInput, KindOutput, KindCondition:
		return true
	default:
		return false
	}
}

// Branches returns the outgoing edge labels a complete node of this kind has.
func (k Kind) Branches() []Branch {
	switch k {
	case KindEnd:
		return nil
	case KindCondition:
		return []Branch{BranchTrue, BranchFalse}
	case KindStart, KindAssign, KindInput, KindOutput:
		return []Branch{BranchNone}
	default:
		return nil
	}
}

// HasPayload reports whether nodes of this kind carry user text.
func (k Kind) HasPayload() bool {
	switch k {
	case KindAssign, KindInput, KindOutput, KindCondition:
		return true
	case KindStart, KindEnd:
		return false
	default:
		return false
	}
}

// Position is the canvas location of a node. flowgen never interprets it.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is a single block of a flowchart.
type Node struct {
	ID       NodeID
	Kind     Kind
	Payload  string
	Position Position
}

// Label returns the text a diagram renderer shows for the node.
func (n Node) Label() string {
	switch n.Kind {
	case KindStart:
		return "Start"
	case KindEnd:
		return "End"
	case KindAssign:
		return n.Payload
	case KindInput:
		return "input " + n.Payload
	case KindOutput:
		return "output " + n.Payload
	case KindCondition:
		return n.Payload + "?"
	default:
		return string(n.ID)
	}
}
