package ir

import (
	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// Resolver is the type resolution pass: it walks untyped IR and annotates
// every node with its inferred type set and cardinality, consulting the
// schema provider for field navigation and the function registry for call
// return types.
//
// In strict mode, navigation into a field that none of the resolvable base
// types declare fails with UnknownFieldError; in lenient mode it degrades to
// Unknown and is resolved dynamically at evaluation time. Schema lookup
// misses are never fatal either way.
type Resolver struct {
	provider schema.Provider
	strict   bool
}

// NewResolver builds a resolver over the given provider.
func NewResolver(p schema.Provider, strict bool) *Resolver {
	return &Resolver{provider: p, strict: strict}
}

// Resolve types the tree in place. baseType, when non-empty, declares the
// domain type of the ambient context.
func (r *Resolver) Resolve(root *Node, baseType string) error {
	ctx := UnknownType(One())
	if baseType != "" {
		if _, ok := r.provider.ResolveType(baseType); ok {
			ctx = ExprType{Set: NewTypeSet(Dom(baseType)), Card: One()}
		}
	}
	return r.resolve(root, ctx)
}

func (r *Resolver) resolve(n *Node, ctx ExprType) error {
	switch n.Kind {
	case KindLiteral:
		n.Type = literalType(n.Lit)
		return nil

	case KindVariable:
		switch n.Slot {
		case SlotThis:
			n.Type = ctx
		default: // $index, $total
			n.Type = SysType("Integer", One())
		}
		return nil

	case KindEnvVar:
		// Runtime-injected variables are tolerated: Unknown 0..1 rather than
		// a resolution failure.
		n.Type = UnknownType(Opt())
		return nil

	case KindPath:
		return r.resolvePath(n, ctx)

	case KindBinary:
		if err := r.resolve(n.Left, ctx); err != nil {
			return err
		}
		if err := r.resolve(n.Right, ctx); err != nil {
			return err
		}
		n.Type = r.binaryType(n.Op, n.Left.Type, n.Right.Type)
		return nil

	case KindUnary:
		if err := r.resolve(n.Base, ctx); err != nil {
			return err
		}
		n.Type = ExprType{Set: n.Base.Type.Set, Card: Opt()}
		return nil

	case KindCall:
		return r.resolveCall(n, ctx)

	case KindTypeOp:
		if err := r.resolveSource(n, ctx); err != nil {
			return err
		}
		src := r.sourceType(n, ctx)
		if n.Name == "is" {
			n.Type = BoolType()
			return nil
		}
		// A failed cast yields empty, so min is 0 and max follows the source.
		card := Cardinality{Min: 0, Max: src.Card.Max, Unbounded: src.Card.Unbounded}
		n.Type = ExprType{Set: NewTypeSet(r.specTypeName(n.Spec)), Card: card}
		return nil

	case KindWhere, KindSelect, KindRepeat, KindAggregate, KindExists, KindAll:
		return r.resolveCombinator(n, ctx)
	}
	n.Type = UnknownType(CardMany(0))
	return nil
}

// resolveSource types the optional receiver of a call/type-op node.
func (r *Resolver) resolveSource(n *Node, ctx ExprType) error {
	if n.Base == nil {
		return nil
	}
	return r.resolve(n.Base, ctx)
}

// sourceType returns the receiver type, or the ambient context for free
// calls.
func (r *Resolver) sourceType(n *Node, ctx ExprType) ExprType {
	if n.Base == nil {
		return ctx
	}
	return n.Base.Type
}

func literalType(v value.Value) ExprType {
	switch v.Kind() {
	case value.KindEmpty:
		return ExprType{Set: NewTypeSet(), Card: Zero()}
	case value.KindBoolean:
		return SysType("Boolean", One())
	case value.KindInteger:
		return SysType("Integer", One())
	case value.KindDecimal:
		return SysType("Decimal", One())
	case value.KindString:
		return SysType("String", One())
	case value.KindDate:
		return SysType("Date", One())
	case value.KindDateTime:
		return SysType("DateTime", One())
	case value.KindTime:
		return SysType("Time", One())
	case value.KindQuantity:
		return SysType("Quantity", One())
	}
	return UnknownType(One())
}

// ============================================================================
// Paths
// ============================================================================

func (r *Resolver) resolvePath(n *Node, ctx ExprType) error {
	cur := ctx
	if n.Base != nil {
		if err := r.resolve(n.Base, ctx); err != nil {
			return err
		}
		cur = n.Base.Type
	}
	for i := range n.Segs {
		seg := &n.Segs[i]
		switch seg.Kind {
		case SegIndex:
			if err := r.resolve(seg.Index, ctx); err != nil {
				return err
			}
			cur = ExprType{Set: cur.Set, Card: Opt()}
		default:
			leading := n.Base == nil && i == 0
			next, err := r.resolveField(seg, cur, leading)
			if err != nil {
				return err
			}
			cur = next
		}
	}
	n.Type = cur
	return nil
}

// resolveField types one field segment against the current type set, and
// rewrites the segment kind (choice, type-assert) as a side effect.
func (r *Resolver) resolveField(seg *Segment, cur ExprType, leading bool) (ExprType, error) {
	// A single leading segment naming a resolvable domain type restates the
	// context's own type: a type assertion, not a descent.
	if leading {
		if _, ok := r.provider.ResolveType(seg.Name); ok {
			if cur.Set.IsUnknown() || cur.Set.Contains(Dom(seg.Name)) {
				seg.Kind = SegTypeAssert
				return ExprType{Set: NewTypeSet(Dom(seg.Name)), Card: cur.Card}, nil
			}
		}
	}
	seg.Kind = SegField
	seg.Variants = nil

	if cur.Set.IsUnknown() {
		return UnknownType(cur.Card.Mul(CardMany(0))), nil
	}

	var (
		set         TypeSet
		resolvable  []string
		matched     int
		elemCard    Cardinality
		minAgreed   = true
		firstMatch  = true
		choiceNames []string
		isChoice    bool
	)
	for _, tn := range cur.Set.Names() {
		if tn.Ns != NsDomain {
			minAgreed = false
			continue
		}
		if _, ok := r.provider.ResolveType(tn.Name); !ok {
			minAgreed = false
			continue
		}
		resolvable = append(resolvable, tn.Name)
		info, ok := r.provider.ResolveElement(tn.Name, seg.Name)
		if !ok {
			minAgreed = false
			continue
		}
		matched++
		for _, code := range info.TypeCodes {
			set = set.Add(FromTypeCode(code))
		}
		// Upper bound: the maximum over all matches, since any matching
		// variant could be present at runtime.
		c := Cardinality{Min: info.Min}
		if info.Max == nil {
			c.Unbounded = true
		} else {
			c.Max = *info.Max
		}
		if firstMatch {
			elemCard = c
			firstMatch = false
		} else {
			elemCard = elemCard.MaxOf(c)
		}
		if info.IsChoice {
			isChoice = true
			for _, v := range schema.ChoiceVariants(seg.Name, info) {
				choiceNames = appendUnique(choiceNames, v)
			}
		}
	}

	if matched == 0 {
		if len(resolvable) > 0 && r.strict {
			return ExprType{}, &UnknownFieldError{Types: resolvable, Field: seg.Name}
		}
		return UnknownType(cur.Card.Mul(CardMany(0))), nil
	}
	if !minAgreed {
		elemCard.Min = 0
	}
	if isChoice {
		seg.Kind = SegChoice
		seg.Variants = choiceNames
	}
	return ExprType{Set: set, Card: cur.Card.Mul(elemCard)}, nil
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// ============================================================================
// Operators
// ============================================================================

func (r *Resolver) binaryType(op Op, l, rt ExprType) ExprType {
	switch op {
	case OpEq, OpNe, OpEquiv, OpNEquiv, OpLt, OpGt, OpLe, OpGe,
		OpAnd, OpOr, OpXor, OpImplies, OpIn, OpContainsOp:
		return BoolType()

	case OpUnion:
		return ExprType{Set: l.Set.Union(rt.Set), Card: l.Card.Add(rt.Card)}

	case OpConcat:
		return SysType("String", Opt())

	case OpAdd, OpSub, OpMul, OpDiv, OpIntDiv, OpMod:
		return arithmeticType(op, l, rt)
	}
	return UnknownType(Opt())
}

// arithmeticType applies the numeric promotion rules. Cardinality always
// collapses to 0..1: arithmetic is defined only on singletons, and a
// non-singleton operand is a runtime error, not a type error.
func arithmeticType(op Op, l, rt ExprType) ExprType {
	lNum, lDec := l.Set.OnlyNumeric()
	rNum, rDec := rt.Set.OnlyNumeric()

	if op == OpAdd && l.Set.Only(Sys("String")) && rt.Set.Only(Sys("String")) {
		return SysType("String", Opt())
	}
	// Date/time ± quantity shifts the temporal operand.
	if (op == OpAdd || op == OpSub) && rt.Set.Only(Sys("Quantity")) {
		for _, name := range []string{"Date", "DateTime", "Time"} {
			if l.Set.Only(Sys(name)) {
				return SysType(name, Opt())
			}
		}
	}
	if !lNum || !rNum {
		return UnknownType(Opt())
	}
	if op == OpDiv {
		return SysType("Decimal", Opt())
	}
	if lDec || rDec {
		return SysType("Decimal", Opt())
	}
	return SysType("Integer", Opt())
}

// ============================================================================
// Calls
// ============================================================================

func (r *Resolver) resolveCall(n *Node, ctx ExprType) error {
	if err := r.resolveSource(n, ctx); err != nil {
		return err
	}
	src := r.sourceType(n, ctx)
	for _, arg := range n.Args {
		if err := r.resolve(arg, ctx); err != nil {
			return err
		}
	}

	meta := FuncByID(n.Func)
	if meta == nil {
		n.Type = UnknownType(CardMany(0))
		return nil
	}

	// Node-specific overrides first.
	switch n.Func {
	case FnOfType:
		card := Cardinality{Min: 0, Max: src.Card.Max, Unbounded: src.Card.Unbounded}
		n.Type = ExprType{Set: NewTypeSet(r.specTypeName(n.Spec)), Card: card}
		return nil
	case FnIif:
		thenT := n.Args[1].Type
		elseT := ExprType{Set: NewTypeSet(), Card: Zero()}
		if len(n.Args) == 3 {
			elseT = n.Args[2].Type
		}
		n.Type = ExprType{Set: thenT.Set.Union(elseT.Set), Card: thenT.Card.MaxOf(elseT.Card).Filtered()}
		return nil
	}

	var set TypeSet
	switch meta.Return {
	case RetSource:
		set = src.Set
	case RetBoolean:
		set = NewTypeSet(Sys("Boolean"))
	case RetInteger:
		set = NewTypeSet(Sys("Integer"))
	case RetDecimal:
		set = NewTypeSet(Sys("Decimal"))
	case RetString:
		set = NewTypeSet(Sys("String"))
	case RetQuantity:
		set = NewTypeSet(Sys("Quantity"))
	case RetDate:
		set = NewTypeSet(Sys("Date"))
	case RetDateTime:
		set = NewTypeSet(Sys("DateTime"))
	case RetTime:
		set = NewTypeSet(Sys("Time"))
	default:
		set = UnknownSet()
	}

	var card Cardinality
	switch meta.Card {
	case CardOne:
		card = One()
	case CardSingleton:
		card = Opt()
	case CardPreserve:
		card = src.Card.Filtered()
	default:
		card = CardMany(0)
	}
	n.Type = ExprType{Set: set, Card: card}
	return nil
}

// ============================================================================
// Combinators
// ============================================================================

func (r *Resolver) resolveCombinator(n *Node, ctx ExprType) error {
	if err := r.resolveSource(n, ctx); err != nil {
		return err
	}
	src := r.sourceType(n, ctx)

	// The body runs once per source element: $this is the element type.
	elemCtx := ExprType{Set: src.Set, Card: One()}
	if n.Init != nil {
		if err := r.resolve(n.Init, ctx); err != nil {
			return err
		}
	}
	if err := r.resolve(n.Body, elemCtx); err != nil {
		return err
	}

	switch n.Kind {
	case KindWhere:
		n.Type = ExprType{Set: src.Set, Card: src.Card.Filtered()}
	case KindSelect:
		n.Type = ExprType{Set: n.Body.Type.Set, Card: src.Card.Mul(n.Body.Type.Card)}
	case KindRepeat:
		n.Type = ExprType{Set: n.Body.Type.Set.Union(src.Set), Card: CardMany(0)}
	case KindAggregate:
		n.Type = ExprType{Set: n.Body.Type.Set, Card: Opt()}
	case KindExists, KindAll:
		n.Type = BoolType()
	}
	return nil
}

// specTypeName lifts a type specifier into a namespaced name: explicit
// qualifiers win; unqualified names resolve to System when they name a
// language primitive, domain otherwise.
func (r *Resolver) specTypeName(spec TypeSpec) TypeName {
	switch spec.Ns {
	case NsSystem:
		return Sys(spec.Name)
	case NsDomain:
		return Dom(spec.Name)
	}
	switch spec.Name {
	case "Boolean", "Integer", "Decimal", "String", "Date", "DateTime", "Time", "Quantity":
		return Sys(spec.Name)
	}
	return Dom(spec.Name)
}
