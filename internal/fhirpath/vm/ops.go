package vm

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// ============================================================================
// Three-valued logic
// ============================================================================

// evalLogic implements and/or/implies with a lazily evaluated right operand.
// The right side runs only when the left alone cannot decide the result, so
// errors on the pruned side never surface.
func (m *machine) evalLogic(op ir.Op, l value.Collection, rhs func() (value.Collection, error)) (value.Collection, error) {
	lb, lknown := l.AsBool()

	switch op {
	case ir.OpAnd:
		if lknown && !lb {
			return boolCol(false), nil
		}
	case ir.OpOr:
		if lknown && lb {
			return boolCol(true), nil
		}
	case ir.OpImplies:
		if lknown && !lb {
			return boolCol(true), nil
		}
	}

	r, err := rhs()
	if err != nil {
		return value.Collection{}, err
	}
	rb, rknown := r.AsBool()

	switch op {
	case ir.OpAnd:
		switch {
		case rknown && !rb:
			return boolCol(false), nil
		case lknown && rknown:
			return boolCol(true), nil
		}
	case ir.OpOr:
		switch {
		case rknown && rb:
			return boolCol(true), nil
		case lknown && rknown:
			return boolCol(false), nil
		}
	case ir.OpImplies:
		switch {
		case rknown && rb:
			return boolCol(true), nil
		case lknown && rknown: // true implies false
			return boolCol(false), nil
		}
	}
	return value.Collection{}, nil
}

func boolCol(b bool) value.Collection {
	return value.Singleton(value.NewBoolean(b))
}

// ============================================================================
// Binary operators
// ============================================================================

func (m *machine) evalBinary(op ir.Op, l, r value.Collection) (value.Collection, error) {
	switch op {
	case ir.OpEq, ir.OpNe:
		eq, known := collectionsEqual(l, r)
		if !known {
			return value.Collection{}, nil
		}
		if op == ir.OpNe {
			eq = !eq
		}
		return boolCol(eq), nil

	case ir.OpEquiv, ir.OpNEquiv:
		eq := collectionsEquivalent(l, r)
		if op == ir.OpNEquiv {
			eq = !eq
		}
		return boolCol(eq), nil

	case ir.OpLt, ir.OpGt, ir.OpLe, ir.OpGe:
		return m.compare(op, l, r)

	case ir.OpXor:
		lb, lknown := l.AsBool()
		rb, rknown := r.AsBool()
		if !lknown || !rknown {
			return value.Collection{}, nil
		}
		return boolCol(lb != rb), nil

	case ir.OpIn:
		return membership(l, r)

	case ir.OpContainsOp:
		return membership(r, l)

	case ir.OpUnion:
		return mergeDistinct(l, r), nil

	case ir.OpConcat:
		return m.concat(l, r)

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpIntDiv, ir.OpMod:
		a, b, ok, err := arithOperands(op, l, r)
		if err != nil || !ok {
			return value.Collection{}, err
		}
		return m.arith(op, a, b)
	}
	return value.Collection{}, evalErrf("illegal operator %v", op)
}

// collectionsEqual implements =: empty on either side is indeterminate,
// otherwise ordered pairwise equality.
func collectionsEqual(l, r value.Collection) (eq, known bool) {
	if l.IsEmpty() || r.IsEmpty() {
		return false, false
	}
	if l.Len() != r.Len() {
		return false, true
	}
	for i := 0; i < l.Len(); i++ {
		if !value.Equal(l.Get(i), r.Get(i)) {
			return false, true
		}
	}
	return true, true
}

// collectionsEquivalent implements ~: always determinate, empty ~ empty is
// true, and element order does not matter.
func collectionsEquivalent(l, r value.Collection) bool {
	if l.Len() != r.Len() {
		return false
	}
	used := make([]bool, r.Len())
outer:
	for i := 0; i < l.Len(); i++ {
		for j := 0; j < r.Len(); j++ {
			if !used[j] && value.Equivalent(l.Get(i), r.Get(j)) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func (m *machine) compare(op ir.Op, l, r value.Collection) (value.Collection, error) {
	if l.IsEmpty() || r.IsEmpty() {
		return value.Collection{}, nil
	}
	if l.Len() > 1 || r.Len() > 1 {
		return value.Collection{}, typeErrf(op.String(), "singleton operands required")
	}
	cmp, ok, err := value.CompareValues(l.Get(0), r.Get(0), m.conv)
	if err != nil {
		return value.Collection{}, &TypeError{Op: op.String(), Msg: err.Error()}
	}
	if !ok {
		return value.Collection{}, nil
	}
	var b bool
	switch op {
	case ir.OpLt:
		b = cmp < 0
	case ir.OpGt:
		b = cmp > 0
	case ir.OpLe:
		b = cmp <= 0
	case ir.OpGe:
		b = cmp >= 0
	}
	return boolCol(b), nil
}

func membership(needle, haystack value.Collection) (value.Collection, error) {
	if needle.IsEmpty() {
		return value.Collection{}, nil
	}
	if needle.Len() > 1 {
		return value.Collection{}, typeErrf("in", "left operand must be a singleton, got %d elements", needle.Len())
	}
	return boolCol(haystack.Contains(needle.Get(0))), nil
}

// mergeDistinct implements |: both sides concatenated, duplicates removed,
// first occurrence order preserved.
func mergeDistinct(l, r value.Collection) value.Collection {
	var out value.Collection
	add := func(c value.Collection) {
		for i := 0; i < c.Len(); i++ {
			if !out.Contains(c.Get(i)) {
				out = out.Append(c.Get(i))
			}
		}
	}
	add(l)
	add(r)
	return out
}

// concat implements &: empty operands read as the empty string.
func (m *machine) concat(l, r value.Collection) (value.Collection, error) {
	ls, err := concatOperand(l)
	if err != nil {
		return value.Collection{}, err
	}
	rs, err := concatOperand(r)
	if err != nil {
		return value.Collection{}, err
	}
	return value.Singleton(value.NewString(ls + rs)), nil
}

func concatOperand(c value.Collection) (string, error) {
	if c.IsEmpty() {
		return "", nil
	}
	if c.Len() > 1 || c.Get(0).Kind() != value.KindString {
		return "", typeErrf("&", "operands must be single strings, got %s", c)
	}
	return c.Get(0).Str(), nil
}

// ============================================================================
// Arithmetic
// ============================================================================

// arithOperands unwraps the operands: empty on either side propagates as
// empty (ok=false), multi-element operands are type errors.
func arithOperands(op ir.Op, l, r value.Collection) (a, b value.Value, ok bool, err error) {
	if l.IsEmpty() || r.IsEmpty() {
		return value.Value{}, value.Value{}, false, nil
	}
	if l.Len() > 1 || r.Len() > 1 {
		return value.Value{}, value.Value{}, false,
			typeErrf(op.String(), "singleton operands required")
	}
	return l.Get(0), r.Get(0), true, nil
}

func (m *machine) arith(op ir.Op, a, b value.Value) (value.Collection, error) {
	ak, bk := a.Kind(), b.Kind()

	// String + is concatenation with strict empty propagation.
	if op == ir.OpAdd && ak == value.KindString && bk == value.KindString {
		return value.Singleton(value.NewString(a.Str() + b.Str())), nil
	}

	if isNumberKind(ak) && isNumberKind(bk) {
		return numericArith(op, a, b)
	}

	if isTemporalKind(ak) && bk == value.KindQuantity && (op == ir.OpAdd || op == ir.OpSub) {
		return temporalShift(op, a, b)
	}

	if ak == value.KindQuantity || bk == value.KindQuantity {
		return m.quantityArith(op, a, b)
	}

	return value.Collection{}, typeErrf(op.String(), "cannot apply to %s and %s", ak, bk)
}

func isNumberKind(k value.Kind) bool {
	return k == value.KindInteger || k == value.KindDecimal
}

func isTemporalKind(k value.Kind) bool {
	return k == value.KindDate || k == value.KindDateTime || k == value.KindTime
}

func numericArith(op ir.Op, a, b value.Value) (value.Collection, error) {
	bothInt := a.Kind() == value.KindInteger && b.Kind() == value.KindInteger

	if bothInt && op != ir.OpDiv {
		x, y := a.Int(), b.Int()
		switch op {
		case ir.OpAdd:
			return value.Singleton(value.NewInteger(x + y)), nil
		case ir.OpSub:
			return value.Singleton(value.NewInteger(x - y)), nil
		case ir.OpMul:
			return value.Singleton(value.NewInteger(x * y)), nil
		case ir.OpIntDiv:
			if y == 0 {
				return value.Collection{}, nil
			}
			return value.Singleton(value.NewInteger(x / y)), nil
		case ir.OpMod:
			if y == 0 {
				return value.Collection{}, nil
			}
			return value.Singleton(value.NewInteger(x % y)), nil
		}
	}

	ad, bd := widenDecimal(a), widenDecimal(b)
	dctx := value.DecimalContext()
	res := new(apd.Decimal)
	var err error
	switch op {
	case ir.OpAdd:
		_, err = dctx.Add(res, ad, bd)
	case ir.OpSub:
		_, err = dctx.Sub(res, ad, bd)
	case ir.OpMul:
		_, err = dctx.Mul(res, ad, bd)
	case ir.OpDiv:
		if bd.IsZero() {
			return value.Collection{}, nil
		}
		_, err = dctx.Quo(res, ad, bd)
	case ir.OpIntDiv:
		if bd.IsZero() {
			return value.Collection{}, nil
		}
		_, err = dctx.QuoInteger(res, ad, bd)
		if err == nil {
			i, convErr := res.Int64()
			if convErr == nil {
				return value.Singleton(value.NewInteger(i)), nil
			}
		}
	case ir.OpMod:
		if bd.IsZero() {
			return value.Collection{}, nil
		}
		_, err = dctx.Rem(res, ad, bd)
	}
	if err != nil {
		return value.Collection{}, evalErrf("%s: %v", op, err)
	}
	return value.Singleton(value.NewDecimal(res)), nil
}

func widenDecimal(v value.Value) *apd.Decimal {
	if v.Kind() == value.KindInteger {
		return apd.New(v.Int(), 0)
	}
	return v.Decimal()
}

func negDec(d *apd.Decimal) *apd.Decimal {
	return new(apd.Decimal).Neg(d)
}

// quantityArith covers quantity±quantity with unit conversion and
// quantity×÷scalar scaling.
func (m *machine) quantityArith(op ir.Op, a, b value.Value) (value.Collection, error) {
	dctx := value.DecimalContext()

	if a.Kind() == value.KindQuantity && b.Kind() == value.KindQuantity {
		switch op {
		case ir.OpAdd, ir.OpSub:
			bv, ok := m.conv.Convert(b.Decimal(), b.Unit(), a.Unit())
			if !ok {
				return value.Collection{}, invalidOpf(op.String(),
					"incompatible units %q and %q", a.Unit(), b.Unit())
			}
			res := new(apd.Decimal)
			var err error
			if op == ir.OpAdd {
				_, err = dctx.Add(res, a.Decimal(), bv)
			} else {
				_, err = dctx.Sub(res, a.Decimal(), bv)
			}
			if err != nil {
				return value.Collection{}, evalErrf("%s: %v", op, err)
			}
			return value.Singleton(value.NewQuantity(res, a.Unit())), nil
		case ir.OpDiv:
			if b.Decimal().IsZero() {
				return value.Collection{}, nil
			}
			if a.Unit() == b.Unit() {
				res := new(apd.Decimal)
				if _, err := dctx.Quo(res, a.Decimal(), b.Decimal()); err != nil {
					return value.Collection{}, evalErrf("/: %v", err)
				}
				return value.Singleton(value.NewDecimal(res)), nil
			}
		}
		return value.Collection{}, typeErrf(op.String(), "unsupported quantity operation")
	}

	// quantity with scalar
	q, s := a, b
	if b.Kind() == value.KindQuantity {
		q, s = b, a
	}
	if !isNumberKind(s.Kind()) {
		return value.Collection{}, typeErrf(op.String(), "cannot apply to %s and %s", a.Kind(), b.Kind())
	}
	sd := widenDecimal(s)
	res := new(apd.Decimal)
	switch op {
	case ir.OpMul:
		if _, err := dctx.Mul(res, q.Decimal(), sd); err != nil {
			return value.Collection{}, evalErrf("*: %v", err)
		}
	case ir.OpDiv:
		if a.Kind() != value.KindQuantity {
			return value.Collection{}, typeErrf("/", "cannot divide %s by quantity", a.Kind())
		}
		if sd.IsZero() {
			return value.Collection{}, nil
		}
		if _, err := dctx.Quo(res, q.Decimal(), sd); err != nil {
			return value.Collection{}, evalErrf("/: %v", err)
		}
	default:
		return value.Collection{}, typeErrf(op.String(), "cannot apply to %s and %s", a.Kind(), b.Kind())
	}
	return value.Singleton(value.NewQuantity(res, q.Unit())), nil
}

// calendarUnits maps calendar-duration unit words to shift functions.
var calendarUnits = map[string]func(t time.Time, n int64) time.Time{
	"year":        func(t time.Time, n int64) time.Time { return t.AddDate(int(n), 0, 0) },
	"month":       func(t time.Time, n int64) time.Time { return t.AddDate(0, int(n), 0) },
	"week":        func(t time.Time, n int64) time.Time { return t.AddDate(0, 0, int(n)*7) },
	"day":         func(t time.Time, n int64) time.Time { return t.AddDate(0, 0, int(n)) },
	"hour":        func(t time.Time, n int64) time.Time { return t.Add(time.Duration(n) * time.Hour) },
	"minute":      func(t time.Time, n int64) time.Time { return t.Add(time.Duration(n) * time.Minute) },
	"second":      func(t time.Time, n int64) time.Time { return t.Add(time.Duration(n) * time.Second) },
	"millisecond": func(t time.Time, n int64) time.Time { return t.Add(time.Duration(n) * time.Millisecond) },
}

// temporalShift implements date/dateTime/time ± calendar quantity. Fractional
// magnitudes truncate toward zero, per calendar-duration semantics.
func temporalShift(op ir.Op, t, q value.Value) (value.Collection, error) {
	shift, ok := calendarUnits[q.Unit()]
	if !ok {
		return value.Collection{}, invalidOpf(op.String(), "not a calendar unit: %q", q.Unit())
	}
	n, err := truncInt(q.Decimal())
	if err != nil {
		return value.Collection{}, invalidOpf(op.String(), "magnitude out of range")
	}
	if op == ir.OpSub {
		n = -n
	}
	shifted := shift(t.Time(), n)
	switch t.Kind() {
	case value.KindDate:
		return value.Singleton(value.NewDate(shifted, t.Prec())), nil
	case value.KindDateTime:
		return value.Singleton(value.NewDateTime(shifted, t.Prec())), nil
	default:
		return value.Singleton(value.NewTime(shifted, t.Prec())), nil
	}
}

func truncInt(d *apd.Decimal) (int64, error) {
	dctx := *value.DecimalContext()
	dctx.Rounding = apd.RoundDown
	trunc := new(apd.Decimal)
	if _, err := dctx.RoundToIntegralValue(trunc, d); err != nil {
		return 0, err
	}
	return trunc.Int64()
}
