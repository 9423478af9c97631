package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgen/internal/graph"
)

// markTag returns a short ASCII indicator for a node mark.
func markTag(m Mark) string {
	switch m {
	case MarkError:
		return "[ERR]"
	case MarkWarning:
		return "[WARN]"
	case MarkUnreachable:
		return "[DEAD]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as text: one row of boxes per level,
// followed by the branch and backward edges a row layout cannot show.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	level := make(map[string]int, len(model.Nodes))
	for i, ids := range model.Levels {
		for _, id := range ids {
			level[id] = i
		}
	}

	for i, ids := range model.Levels {
		var boxes []asciiBox
		for _, id := range ids {
			if node := findNode(model.Nodes, id); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if i < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var jumps []Edge
	for _, e := range model.Edges {
		if e.Label != "" || level[e.To] <= level[e.From] {
			jumps = append(jumps, e)
		}
	}
	if len(jumps) > 0 {
		b.WriteString("\n--- edges ---\n")
		for _, e := range jumps {
			arrow := "─→"
			if e.Label != "" {
				arrow = "─" + e.Label + "→"
			}
			fmt.Fprintf(&b, "  %s %s %s\n", e.From, arrow, e.To)
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node. Conditions get angled corners.
func makeBox(node *Node) asciiBox {
	content := []string{node.Label}
	if tag := markTag(node.Mark); tag != "" {
		content = append(content, tag)
	}

	maxLen := 0
	for _, line := range content {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	tl, tr, bl, br := "┌", "┐", "└", "┘"
	switch node.Kind {
	case graph.KindCondition:
		tl, tr, bl, br = "/", "\\", "\\", "/"
	case graph.KindStart, graph.KindEnd:
		tl, tr, bl, br = "╭", "╮", "╰", "╯"
	}

	lines := []string{tl + strings.Repeat("─", width-2) + tr}
	for _, c := range content {
		padded := c + strings.Repeat(" ", maxLen-len([]rune(c)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bl+strings.Repeat("─", width-2)+br)

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
