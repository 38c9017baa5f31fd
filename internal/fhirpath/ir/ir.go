// Package ir holds the engine's intermediate representation and the two
// passes that produce it: the structural builder (analyzer), which turns the
// parsed syntax tree into untyped IR, and the type resolution pass, which
// annotates every node with an inferred type set and cardinality by
// consulting the schema provider and the function registry.
package ir

import (
	"strings"

	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// ============================================================================
// Node kinds
// ============================================================================

// NodeKind discriminates IR nodes.
type NodeKind int

const (
	KindLiteral NodeKind = iota
	KindVariable
	KindEnvVar
	KindPath
	KindBinary
	KindUnary
	KindCall
	KindTypeOp

	// second-order combinators: each owns a nested sub-IR evaluated once per
	// element of its source collection.
	KindWhere
	KindSelect
	KindRepeat
	KindAggregate
	KindExists
	KindAll
)

var nodeKindNames = [...]string{
	"Literal", "Variable", "EnvVar", "Path", "Binary", "Unary", "Call",
	"TypeOp", "Where", "Select", "Repeat", "Aggregate", "Exists", "All",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "?"
}

// Implicit variable slots. Named environment variables are resolved by name
// from the evaluation context rather than by slot, so runtime-injected
// variables need no registration at compile time.
const (
	SlotThis  = 0
	SlotIndex = 1
	SlotTotal = 2
)

// ============================================================================
// Operators
// ============================================================================

// Op identifies a binary or unary operator.
type Op int

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIntDiv
	OpMod
	OpConcat
	OpEq
	OpNe
	OpEquiv
	OpNEquiv
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
	OpXor
	OpImplies
	OpUnion
	OpIn
	OpContainsOp
	OpNeg
	OpPos
)

var opNames = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpIntDiv: "div",
	OpMod: "mod", OpConcat: "&", OpEq: "=", OpNe: "!=", OpEquiv: "~",
	OpNEquiv: "!~", OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">=",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpImplies: "implies",
	OpUnion: "|", OpIn: "in", OpContainsOp: "contains", OpNeg: "-", OpPos: "+",
}

func (op Op) String() string { return opNames[op] }

// ShortCircuits reports whether the operator must not evaluate its right
// operand when the left alone decides the result.
func (op Op) ShortCircuits() bool {
	return op == OpAnd || op == OpOr || op == OpImplies
}

// ============================================================================
// Path segments
// ============================================================================

// SegmentKind discriminates path segments.
type SegmentKind int

const (
	// SegField navigates a named element.
	SegField SegmentKind = iota
	// SegIndex selects one element by position; Index holds the expression.
	SegIndex
	// SegChoice navigates a polymorphic element; Variants lists the concrete
	// field names in declared type-code order. Set by the type pass.
	SegChoice
	// SegTypeAssert is a leading segment restating the context's own type:
	// a no-op descent that filters by resource type at runtime. Set by the
	// type pass.
	SegTypeAssert
)

// Segment is one step of a flattened path expression.
type Segment struct {
	Kind     SegmentKind
	Name     string
	Index    *Node    // SegIndex only
	Variants []string // SegChoice only
}

// ============================================================================
// TypeSpec
// ============================================================================

// TypeSpec is a parsed type specifier (operand of is/as/ofType).
type TypeSpec struct {
	Ns   Namespace // NsUnknown when unqualified
	Name string
}

// ParseTypeSpec interprets a (possibly qualified) specifier name.
func ParseTypeSpec(qualified string) TypeSpec {
	if rest, ok := strings.CutPrefix(qualified, "System."); ok {
		return TypeSpec{Ns: NsSystem, Name: rest}
	}
	if rest, ok := strings.CutPrefix(qualified, "FHIR."); ok {
		return TypeSpec{Ns: NsDomain, Name: rest}
	}
	return TypeSpec{Ns: NsUnknown, Name: qualified}
}

func (ts TypeSpec) String() string {
	if ts.Ns == NsUnknown {
		return ts.Name
	}
	return ts.Ns.String() + "." + ts.Name
}

// ============================================================================
// Node
// ============================================================================

// Node is one IR node. Field use by kind:
//
//	Literal:    Lit
//	Variable:   Slot, Name
//	EnvVar:     Name
//	Path:       Base (nil = ambient context), Segs
//	Binary:     Op, Left, Right
//	Unary:      Op, Base
//	Call:       Func, Base (nil for free calls), Args, Spec (type-arg calls)
//	TypeOp:     Op text in Name ("is"/"as"), Base, Spec
//	combinator: Base (source), Body, Init (aggregate only)
//
// Type is filled by the type resolution pass. SubIndex is the pre-allocated
// slot for the node's compiled sub-plan (combinator bodies, short-circuit
// right operands, lazy arguments), assigned during compilation.
type Node struct {
	Kind NodeKind
	Type ExprType

	Lit  value.Value
	Slot int
	Name string

	Base *Node
	Segs []Segment

	Op    Op
	Left  *Node
	Right *Node

	Func FuncID
	Args []*Node

	Body *Node
	Init *Node

	Spec TypeSpec

	SubIndex int
}

// Label renders a short description for diagnostics.
func (n *Node) Label() string {
	switch n.Kind {
	case KindLiteral:
		return "lit " + n.Lit.String()
	case KindVariable:
		return "$" + n.Name
	case KindEnvVar:
		return "%" + n.Name
	case KindPath:
		parts := make([]string, 0, len(n.Segs))
		for _, s := range n.Segs {
			switch s.Kind {
			case SegIndex:
				parts = append(parts, "[..]")
			case SegChoice:
				parts = append(parts, s.Name+"[x]")
			default:
				parts = append(parts, s.Name)
			}
		}
		return "path " + strings.Join(parts, ".")
	case KindBinary, KindUnary:
		return "op " + n.Op.String()
	case KindCall:
		if m := FuncByID(n.Func); m != nil {
			return m.Name + "()"
		}
		return "call?"
	case KindTypeOp:
		return n.Name + " " + n.Spec.String()
	default:
		return strings.ToLower(n.Kind.String())
	}
}
