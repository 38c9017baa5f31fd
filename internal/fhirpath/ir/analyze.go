package ir

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// Analyze is the structural builder: it turns a parsed syntax tree into
// untyped IR. It resolves function names to registry IDs, implicit variables
// to slots, flattens dotted/indexed navigation into path nodes, and
// restructures lambda-argument calls (where, select, repeat, exists, all,
// aggregate) into combinator nodes whose bodies are nested sub-IR. Pure
// transformation: no schema access, no evaluation.
func Analyze(root *ast.Node) (*Node, error) {
	return analyze(root)
}

func analyze(n *ast.Node) (*Node, error) {
	switch n.Kind {
	case ast.NdEmpty:
		return &Node{Kind: KindLiteral, Lit: value.Value{}}, nil

	case ast.NdBool:
		return &Node{Kind: KindLiteral, Lit: value.NewBoolean(n.Bool)}, nil

	case ast.NdInt:
		return &Node{Kind: KindLiteral, Lit: value.NewInteger(n.Int)}, nil

	case ast.NdDec:
		v, err := value.NewDecimalFromString(n.Text)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindLiteral, Lit: v}, nil

	case ast.NdStr:
		return &Node{Kind: KindLiteral, Lit: value.NewString(n.Text)}, nil

	case ast.NdDate:
		t, prec, err := value.ParseDate(n.Text)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindLiteral, Lit: value.NewDate(t, prec)}, nil

	case ast.NdDateTime:
		t, prec, err := value.ParseDateTime(n.Text)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindLiteral, Lit: value.NewDateTime(t, prec)}, nil

	case ast.NdTime:
		t, prec, err := value.ParseTime(n.Text)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindLiteral, Lit: value.NewTime(t, prec)}, nil

	case ast.NdQuantity:
		return analyzeQuantity(n)

	case ast.NdIdent:
		return &Node{Kind: KindPath, Segs: []Segment{{Kind: SegField, Name: n.Text}}}, nil

	case ast.NdVariable:
		slot, ok := map[string]int{"this": SlotThis, "index": SlotIndex, "total": SlotTotal}[n.Text]
		if !ok {
			return nil, &UndefinedVariableError{Name: n.Text}
		}
		return &Node{Kind: KindVariable, Slot: slot, Name: n.Text}, nil

	case ast.NdEnvVar:
		return &Node{Kind: KindEnvVar, Name: n.Text}, nil

	case ast.NdDot:
		base, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		member := n.Children[1]
		return appendSegment(base, Segment{Kind: SegField, Name: member.Text}), nil

	case ast.NdIndex:
		base, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		idx, err := analyze(n.Children[1])
		if err != nil {
			return nil, err
		}
		return appendSegment(base, Segment{Kind: SegIndex, Index: idx}), nil

	case ast.NdUnary:
		operand, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		op := OpNeg
		if n.Text == "+" {
			op = OpPos
		}
		// Fold sign into numeric literals.
		if operand.Kind == KindLiteral && op == OpNeg {
			if folded, ok := negateLiteral(operand.Lit); ok {
				return &Node{Kind: KindLiteral, Lit: folded}, nil
			}
		}
		if op == OpPos {
			return operand, nil
		}
		return &Node{Kind: KindUnary, Op: op, Base: operand}, nil

	case ast.NdBinary:
		op, ok := binaryOps[n.Text]
		if !ok {
			return nil, fmt.Errorf("fhirpath: unsupported operator %q", n.Text)
		}
		left, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := analyze(n.Children[1])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindBinary, Op: op, Left: left, Right: right}, nil

	case ast.NdTypeOp:
		base, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindTypeOp, Name: n.Text, Base: base,
			Spec: ParseTypeSpec(n.TypeName)}, nil

	case ast.NdFunction:
		return analyzeCall(nil, n.Text, n.Children)

	case ast.NdInvoke:
		recv, err := analyze(n.Children[0])
		if err != nil {
			return nil, err
		}
		return analyzeCall(recv, n.Text, n.Children[1:])

	default:
		return nil, fmt.Errorf("fhirpath: unexpected syntax node %v", n.Kind)
	}
}

var binaryOps = map[string]Op{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "div": OpIntDiv,
	"mod": OpMod, "&": OpConcat, "=": OpEq, "!=": OpNe, "~": OpEquiv,
	"!~": OpNEquiv, "<": OpLt, ">": OpGt, "<=": OpLe, ">=": OpGe,
	"and": OpAnd, "or": OpOr, "xor": OpXor, "implies": OpImplies,
	"|": OpUnion, "in": OpIn, "contains": OpContainsOp,
}

// appendSegment extends a path node, or wraps a non-path base in one.
func appendSegment(base *Node, seg Segment) *Node {
	if base.Kind == KindPath {
		segs := make([]Segment, len(base.Segs)+1)
		copy(segs, base.Segs)
		segs[len(base.Segs)] = seg
		return &Node{Kind: KindPath, Base: base.Base, Segs: segs}
	}
	return &Node{Kind: KindPath, Base: base, Segs: []Segment{seg}}
}

func analyzeQuantity(n *ast.Node) (*Node, error) {
	mag := n.Children[0]
	var d *apd.Decimal
	switch mag.Kind {
	case ast.NdInt:
		d = apd.New(mag.Int, 0)
	case ast.NdDec:
		var err error
		d, _, err = apd.NewFromString(mag.Text)
		if err != nil {
			return nil, fmt.Errorf("fhirpath: invalid quantity magnitude %q: %w", mag.Text, err)
		}
	default:
		return nil, fmt.Errorf("fhirpath: invalid quantity literal")
	}
	return &Node{Kind: KindLiteral, Lit: value.NewQuantity(d, n.Text)}, nil
}

func negateLiteral(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindInteger:
		return value.NewInteger(-v.Int()), true
	case value.KindDecimal:
		neg := new(apd.Decimal).Neg(v.Decimal())
		return value.NewDecimal(neg), true
	case value.KindQuantity:
		neg := new(apd.Decimal).Neg(v.Decimal())
		return value.NewQuantity(neg, v.Unit()), true
	}
	return value.Value{}, false
}

// analyzeCall resolves a function call and restructures lambda calls into
// combinator nodes. recv is nil for free calls, which operate on the ambient
// context.
func analyzeCall(recv *Node, name string, argNodes []*ast.Node) (*Node, error) {
	meta, err := LookupFunc(name, len(argNodes))
	if err != nil {
		return nil, err
	}

	if meta.TypeArg {
		spec, err := typeSpecArg(name, argNodes[0])
		if err != nil {
			return nil, err
		}
		switch meta.ID {
		case FnIs, FnAs:
			return &Node{Kind: KindTypeOp, Name: name, Base: recv, Spec: spec}, nil
		default: // ofType
			return &Node{Kind: KindCall, Func: meta.ID, Base: recv, Spec: spec}, nil
		}
	}

	if meta.Lambda && len(argNodes) > 0 {
		body, err := analyze(argNodes[0])
		if err != nil {
			return nil, err
		}
		node := &Node{Base: recv, Body: body}
		switch meta.ID {
		case FnWhere:
			node.Kind = KindWhere
		case FnSelect:
			node.Kind = KindSelect
		case FnRepeat:
			node.Kind = KindRepeat
		case FnExists:
			node.Kind = KindExists
		case FnAll:
			node.Kind = KindAll
		case FnAggregate:
			node.Kind = KindAggregate
			if len(argNodes) == 2 {
				init, err := analyze(argNodes[1])
				if err != nil {
					return nil, err
				}
				node.Init = init
			}
		}
		return node, nil
	}

	args := make([]*Node, len(argNodes))
	for i, a := range argNodes {
		arg, err := analyze(a)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return &Node{Kind: KindCall, Func: meta.ID, Base: recv, Args: args}, nil
}

// typeSpecArg reinterprets an argument expression as a type specifier:
// a bare identifier or a dotted identifier chain.
func typeSpecArg(fn string, arg *ast.Node) (TypeSpec, error) {
	name, ok := identChain(arg)
	if !ok {
		return TypeSpec{}, fmt.Errorf("fhirpath: %s expects a type specifier argument", fn)
	}
	return ParseTypeSpec(name), nil
}

func identChain(n *ast.Node) (string, bool) {
	switch n.Kind {
	case ast.NdIdent:
		return n.Text, true
	case ast.NdDot:
		left, ok := identChain(n.Children[0])
		if !ok {
			return "", false
		}
		right := n.Children[1]
		if right.Kind != ast.NdIdent {
			return "", false
		}
		return left + "." + right.Text, true
	}
	return "", false
}
