// Package ast defines the FHIRPath syntax tree and the lexer/parser that
// produce it. The parser is the front of the pipeline; everything after it
// (analysis, typing, compilation, execution) consumes only the Node tree.
package ast

import "fmt"

// NodeKind discriminates syntax-tree nodes.
type NodeKind int

const (
	NdEmpty    NodeKind = iota // {} literal
	NdBool                     // true / false
	NdInt                      // integer literal
	NdDec                      // decimal literal (raw text in Text)
	NdStr                      // 'string' literal
	NdDate                     // @2014-01-25 (raw body in Text)
	NdDateTime                 // @2014-01-25T14:30 (raw body in Text)
	NdTime                     // @T14:30 (raw body in Text)
	NdQuantity                 // number + unit; Children[0] = magnitude, Text = unit
	NdIdent                    // bare identifier (field or type name)
	NdVariable                 // $this, $index, $total
	NdEnvVar                   // %var or %'var'
	NdDot                      // Children: base, member
	NdIndex                    // Children: base, index expression
	NdFunction                 // free call; Text = name, Children = args
	NdInvoke                   // method call; Text = name, Children[0] = receiver, rest args
	NdBinary                   // Text = operator, Children: left, right
	NdUnary                    // Text = "-" or "+", Children: operand
	NdTypeOp                   // Text = "is" or "as", Children[0] = operand, TypeName set
	NdTypeSpec                 // qualified type name (argument position), TypeName set
)

// Node is one syntax-tree node. Literal payloads live in Text/Int/Bool; the
// analyzer converts them into runtime values.
type Node struct {
	Kind     NodeKind
	Text     string // identifier, operator, function name, literal body, unit
	Int      int64  // integer literal payload
	Bool     bool   // boolean literal payload
	TypeName string // type specifier for NdTypeOp / NdTypeSpec
	Pos      int    // byte offset in the source expression
	Children []*Node
}

// kindNames indexes NodeKind for diagnostics.
var kindNames = [...]string{
	"Empty", "Bool", "Int", "Dec", "Str", "Date", "DateTime", "Time",
	"Quantity", "Ident", "Variable", "EnvVar", "Dot", "Index", "Function",
	"Invoke", "Binary", "Unary", "TypeOp", "TypeSpec",
}

// String returns the node kind name.
func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Label renders a short human-readable description of the node for
// diagnostics and the pipeline visualizer.
func (n *Node) Label() string {
	switch n.Kind {
	case NdEmpty:
		return "{}"
	case NdBool:
		return fmt.Sprintf("bool %v", n.Bool)
	case NdInt:
		return fmt.Sprintf("int %d", n.Int)
	case NdDec:
		return "dec " + n.Text
	case NdStr:
		return fmt.Sprintf("str %q", n.Text)
	case NdDate, NdDateTime, NdTime:
		return n.Kind.String() + " @" + n.Text
	case NdQuantity:
		return fmt.Sprintf("quantity '%s'", n.Text)
	case NdIdent:
		return "ident " + n.Text
	case NdVariable:
		return "$" + n.Text
	case NdEnvVar:
		return "%" + n.Text
	case NdDot:
		return "."
	case NdIndex:
		return "[]"
	case NdFunction, NdInvoke:
		return n.Text + "()"
	case NdBinary, NdUnary:
		return "op " + n.Text
	case NdTypeOp:
		return n.Text + " " + n.TypeName
	case NdTypeSpec:
		return "type " + n.TypeName
	}
	return n.Kind.String()
}

// SyntaxError reports a malformed source expression with its byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("fhirpath: syntax error at offset %d: %s", e.Pos, e.Msg)
}

func syntaxErrf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
