// Package viz renders the compilation pipeline's intermediate forms for
// diagnostics: syntax trees and typed IR as indented text or Graphviz DOT.
package viz

import (
	"fmt"
	"strings"

	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/ir"
)

// ============================================================================
// Syntax tree
// ============================================================================

// RenderAST renders a parsed expression as an indented tree, one node per
// line.
func RenderAST(n *ast.Node) string {
	var b strings.Builder
	renderAST(&b, n, 0)
	return b.String()
}

func renderAST(b *strings.Builder, n *ast.Node, depth int) {
	if n == nil {
		return
	}
	indent(b, depth)
	b.WriteString(n.Label())
	b.WriteByte('\n')
	for _, c := range n.Children {
		renderAST(b, c, depth+1)
	}
}

// ============================================================================
// Typed IR
// ============================================================================

// RenderIR renders resolved IR as an indented tree. Each line carries the
// node label and its inferred type set and cardinality.
func RenderIR(n *ir.Node) string {
	var b strings.Builder
	renderIR(&b, n, "", 0)
	return b.String()
}

func renderIR(b *strings.Builder, n *ir.Node, role string, depth int) {
	if n == nil {
		return
	}
	indent(b, depth)
	if role != "" {
		b.WriteString(role)
		b.WriteString(": ")
	}
	b.WriteString(n.Label())
	b.WriteString("  <")
	b.WriteString(n.Type.String())
	b.WriteString(">\n")
	for _, c := range irChildren(n) {
		renderIR(b, c.node, c.role, depth+1)
	}
}

type irChild struct {
	role string
	node *ir.Node
}

// irChildren enumerates a node's sub-expressions in evaluation order,
// including index expressions buried inside path segments.
func irChildren(n *ir.Node) []irChild {
	var out []irChild
	add := func(role string, c *ir.Node) {
		if c != nil {
			out = append(out, irChild{role: role, node: c})
		}
	}
	add("base", n.Base)
	for _, seg := range n.Segs {
		if seg.Kind == ir.SegIndex {
			add("index", seg.Index)
		}
	}
	add("left", n.Left)
	add("right", n.Right)
	for i, a := range n.Args {
		add(fmt.Sprintf("arg%d", i), a)
	}
	add("init", n.Init)
	add("body", n.Body)
	return out
}

// ============================================================================
// DOT
// ============================================================================

// DotIR renders resolved IR as a Graphviz digraph. Node labels carry the
// inferred types; edge labels carry the child's role.
func DotIR(n *ir.Node) string {
	var b strings.Builder
	b.WriteString("digraph fhirpath {\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n")
	next := 0
	dotIR(&b, n, &next)
	b.WriteString("}\n")
	return b.String()
}

func dotIR(b *strings.Builder, n *ir.Node, next *int) int {
	id := *next
	*next++
	fmt.Fprintf(b, "  n%d [label=%q];\n", id, n.Label()+"\\n"+n.Type.String())
	for _, c := range irChildren(n) {
		cid := dotIR(b, c.node, next)
		fmt.Fprintf(b, "  n%d -> n%d [label=%q];\n", id, cid, c.role)
	}
	return id
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}
