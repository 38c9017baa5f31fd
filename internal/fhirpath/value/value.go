// Package value implements the FHIRPath runtime value model: an immutable
// tagged-union Value, an ordered Collection optimized for the 0–1 element
// case, and lazily-materialized views over shared parsed documents.
package value

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// ============================================================================
// Kinds
// ============================================================================

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindBoolean
	KindInteger
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindTime
	KindQuantity
	KindObject // materialized keyed map of collections
	KindLazy   // unmaterialized node of a shared document
)

// String returns the FHIRPath system type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindBoolean:
		return "Boolean"
	case KindInteger:
		return "Integer"
	case KindDecimal:
		return "Decimal"
	case KindString:
		return "String"
	case KindDate:
		return "Date"
	case KindDateTime:
		return "DateTime"
	case KindTime:
		return "Time"
	case KindQuantity:
		return "Quantity"
	case KindObject:
		return "Object"
	case KindLazy:
		return "Lazy"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// decCtx is the shared apd context for decimal arithmetic. 34 significant
// digits matches IEEE 754 decimal128, comfortably beyond what FHIR data
// carries.
var decCtx = apd.BaseContext.WithPrecision(34)

// DecimalContext returns the apd context used for all decimal arithmetic in
// the engine. Callers must not mutate the returned context.
func DecimalContext() *apd.Context { return decCtx }

// ============================================================================
// Value
// ============================================================================

// Value is an immutable FHIRPath runtime value. The zero Value is the empty
// value. Values are safe to copy and to share across goroutines; none of the
// referenced backing structures are mutated after construction.
type Value struct {
	kind Kind

	b    bool
	i    int64
	d    *apd.Decimal
	s    string // string payload; unit for quantities
	t    time.Time
	prec Precision

	obj  *ObjectNode
	lazy *LazyNode
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the empty value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// NewBoolean returns a boolean value.
func NewBoolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// NewInteger returns a 64-bit integer value.
func NewInteger(i int64) Value { return Value{kind: KindInteger, i: i} }

// NewDecimal returns a decimal value. The apd.Decimal is owned by the Value
// and must not be mutated afterwards.
func NewDecimal(d *apd.Decimal) Value { return Value{kind: KindDecimal, d: d} }

// NewDecimalFromString parses a decimal literal.
func NewDecimalFromString(s string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("value: parse decimal %q: %w", s, err)
	}
	return NewDecimal(d), nil
}

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// NewDate returns a date value with an explicit precision (year..day).
func NewDate(t time.Time, p Precision) Value {
	return Value{kind: KindDate, t: t, prec: p}
}

// NewDateTime returns a date-time value with an explicit precision.
func NewDateTime(t time.Time, p Precision) Value {
	return Value{kind: KindDateTime, t: t, prec: p}
}

// NewTime returns a time-of-day value with an explicit precision.
func NewTime(t time.Time, p Precision) Value {
	return Value{kind: KindTime, t: t, prec: p}
}

// NewQuantity returns a quantity value: an arbitrary-precision magnitude plus
// a unit string.
func NewQuantity(d *apd.Decimal, unit string) Value {
	return Value{kind: KindQuantity, d: d, s: unit}
}

// NewObject returns a materialized object value over the given node.
func NewObject(o *ObjectNode) Value { return Value{kind: KindObject, obj: o} }

// NewLazy returns an unmaterialized reference to a node of a shared document.
func NewLazy(n *LazyNode) Value { return Value{kind: KindLazy, lazy: n} }

// Bool returns the boolean payload. Valid only for KindBoolean.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Valid only for KindInteger.
func (v Value) Int() int64 { return v.i }

// Decimal returns the decimal payload. Valid for KindDecimal and
// KindQuantity.
func (v Value) Decimal() *apd.Decimal { return v.d }

// Str returns the string payload. Valid only for KindString.
func (v Value) Str() string { return v.s }

// Unit returns the unit string of a quantity.
func (v Value) Unit() string { return v.s }

// Time returns the temporal payload. Valid for the three temporal kinds.
func (v Value) Time() time.Time { return v.t }

// Prec returns the precision tag of a temporal value.
func (v Value) Prec() Precision { return v.prec }

// Object returns the materialized object node, or nil.
func (v Value) Object() *ObjectNode { return v.obj }

// Lazy returns the lazy document node, or nil.
func (v Value) Lazy() *LazyNode { return v.lazy }

// ============================================================================
// Navigation
// ============================================================================

// Field navigates into a named child of v. Absent structure yields the empty
// collection, never an error: FHIRPath treats missing fields as missing
// values. Array-valued children are flattened into the result collection.
func (v Value) Field(name string) Collection {
	switch v.kind {
	case KindLazy:
		return v.lazy.Field(name)
	case KindObject:
		return v.obj.Fields[name]
	default:
		return Collection{}
	}
}

// FieldNames returns the child field names of an object-like value in
// document order, or nil for scalars. Lazy values answer without full
// materialization.
func (v Value) FieldNames() []string {
	switch v.kind {
	case KindLazy:
		return v.lazy.FieldNames()
	case KindObject:
		return v.obj.Names
	default:
		return nil
	}
}

// TypeName returns the domain type name of an object-like value when the
// backing document declares one (the resourceType key), else "".
func (v Value) TypeName() string {
	c := v.Field("resourceType")
	if c.Len() == 1 && c.Get(0).kind == KindString {
		return c.Get(0).s
	}
	return ""
}

// ============================================================================
// Materialization
// ============================================================================

// Materialize forces a lazy value into its Object representation. It is
// idempotent: materializing a non-lazy value returns it unchanged, and the
// result is equal (under the identity equality contract) to the lazy
// original, because both carry the same backing document and path.
func (v Value) Materialize() Value {
	if v.kind != KindLazy {
		return v
	}
	return NewObject(v.lazy.materialize())
}

// ============================================================================
// Equality & hashing
// ============================================================================

// Equal reports variant-aware equality between two values.
//
// Object and lazy values compare by identity of their shared backing store
// (same document pointer and same navigation path), never by deep structural
// comparison; set operations over large documents never deep-traverse. A
// lazy value and its
// materialized counterpart are equal. Free-standing objects (no backing
// document) compare by node pointer.
func Equal(a, b Value) bool {
	an, ap := a.backing()
	bn, bp := b.backing()
	if an != nil || bn != nil {
		return an == bn && ap.Equal(bp)
	}
	if a.kind == KindObject || b.kind == KindObject {
		return a.obj != nil && a.obj == b.obj
	}
	switch {
	case a.isNumber() && b.isNumber():
		ad, bd := a.asDecimal(), b.asDecimal()
		return ad.Cmp(bd) == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindEmpty:
		return true
	case KindBoolean:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindDate, KindDateTime, KindTime:
		return a.prec == b.prec && a.t.Equal(b.t)
	case KindQuantity:
		return a.s == b.s && a.d.Cmp(b.d) == 0
	}
	return false
}

// Equivalent reports FHIRPath equivalence (~): like Equal but
// case-insensitive and whitespace-normalizing for strings, and ignoring
// trailing decimal zeros (already true of Cmp-based numeric equality).
func Equivalent(a, b Value) bool {
	if a.kind == KindString && b.kind == KindString {
		return normalizeEquivString(a.s) == normalizeEquivString(b.s)
	}
	return Equal(a, b)
}

func normalizeEquivString(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// backing returns the shared document and path for document-backed values.
func (v Value) backing() (*Document, Path) {
	switch v.kind {
	case KindLazy:
		return v.lazy.doc, v.lazy.path
	case KindObject:
		if v.obj.doc != nil {
			return v.obj.doc, v.obj.path
		}
	}
	return nil, nil
}

func (v Value) isNumber() bool {
	return v.kind == KindInteger || v.kind == KindDecimal
}

// asDecimal widens an integer or decimal to apd form.
func (v Value) asDecimal() *apd.Decimal {
	if v.kind == KindInteger {
		return apd.New(v.i, 0)
	}
	return v.d
}

// Hash returns a hash consistent with Equal: values for which Equal returns
// true hash identically.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	if doc, path := v.backing(); doc != nil {
		fmt.Fprintf(h, "doc:%p:%s", doc, path.String())
		return h.Sum64()
	}
	switch v.kind {
	case KindEmpty:
		h.Write([]byte{0})
	case KindBoolean:
		if v.b {
			fmt.Fprint(h, "b:1")
		} else {
			fmt.Fprint(h, "b:0")
		}
	case KindInteger, KindDecimal:
		// Integers and equal-valued decimals must collide.
		d := v.asDecimal()
		reduced := new(apd.Decimal)
		reduced.Reduce(d)
		fmt.Fprintf(h, "n:%s", reduced.Text('f'))
	case KindString:
		fmt.Fprintf(h, "s:%s", v.s)
	case KindDate, KindDateTime, KindTime:
		fmt.Fprintf(h, "t:%d:%d:%d", v.kind, v.prec, v.t.UnixNano())
	case KindQuantity:
		reduced := new(apd.Decimal)
		reduced.Reduce(v.d)
		fmt.Fprintf(h, "q:%s:%s", reduced.Text('f'), v.s)
	case KindObject:
		fmt.Fprintf(h, "o:%p", v.obj)
	}
	return h.Sum64()
}

// ============================================================================
// Rendering
// ============================================================================

// String renders a debug/display form of the value.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "{}"
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindDecimal:
		return v.d.Text('f')
	case KindString:
		return v.s
	case KindDate:
		return formatTemporal(v.t, v.prec, KindDate)
	case KindDateTime:
		return formatTemporal(v.t, v.prec, KindDateTime)
	case KindTime:
		return formatTemporal(v.t, v.prec, KindTime)
	case KindQuantity:
		return fmt.Sprintf("%s '%s'", v.d.Text('f'), v.s)
	case KindObject:
		return fmt.Sprintf("Object(%d fields)", len(v.obj.Fields))
	case KindLazy:
		return fmt.Sprintf("Lazy(%s)", v.lazy.path.String())
	}
	return "?"
}
