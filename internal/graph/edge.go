package graph

import "fmt"

// Branch labels an edge leaving a condition node.
type Branch string

const (
	BranchNone  Branch = ""
	BranchTrue  Branch = "true"
	BranchFalse Branch = "false"
)

// ParseBranch converts a string to a Branch.
func ParseBranch(s string) (Branch, error) {
	switch Branch(s) {
	case BranchNone, BranchTrue, BranchFalse:
		return Branch(s), nil
	default:
		return "", fmt.Errorf("unknown branch label %q", s)
	}
}

// Edge is a directed connection between two nodes. Both ends are always set:
// an edge still being dragged on a canvas is not an Edge.
type Edge struct {
	From   NodeID
	To     NodeID
	Branch Branch
}

func (e Edge) String() string {
	if e.Branch == BranchNone {
		return fmt.Sprintf("%s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("%s -[%s]-> %s", e.From, e.Branch, e.To)
}

type edgeKey struct {
	from   NodeID
	branch Branch
}
