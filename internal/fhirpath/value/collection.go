package value

import "strings"

// inlineCap is the number of elements a Collection stores inline before
// spilling to a shared buffer. FHIRPath results are overwhelmingly empty or
// singleton; four covers small name/telecom arrays without allocation.
const inlineCap = 4

// Collection is an ordered, duplicate-permitting sequence of Values.
// FHIRPath has no null: "no value" is the empty Collection.
//
// Small collections are stored inline in the struct. Above inlineCap the
// elements move to a shared descriptor so copying a large Collection is
// O(1). Only the view whose own length equals the descriptor's current
// length may extend it in place; extending bumps the descriptor, so every
// other view branching from the same state copies exactly once on its next
// append. Elements below the descriptor length are never rewritten.
//
// The zero Collection is empty and ready to use. Collections are value
// types: pass and return by value.
type Collection struct {
	n      int
	inline [inlineCap]Value
	shared *sharedBuf // spilled representation; nil while inline
}

// sharedBuf is the spilled backing store, shared between every view of one
// collection state. vals only grows and indices below len(vals) are
// immutable, so views with smaller lengths read stable prefixes.
type sharedBuf struct {
	vals []Value
}

// Singleton returns a one-element collection. The empty value produces an
// empty collection, preserving the no-null invariant.
func Singleton(v Value) Collection {
	if v.IsEmpty() {
		return Collection{}
	}
	var c Collection
	c.inline[0] = v
	c.n = 1
	return c
}

// NewCollection builds a collection from values in order, skipping empties.
func NewCollection(vals ...Value) Collection {
	var c Collection
	for _, v := range vals {
		c = c.Append(v)
	}
	return c
}

// Len returns the number of elements.
func (c Collection) Len() int { return c.n }

// IsEmpty reports whether the collection has no elements.
func (c Collection) IsEmpty() bool { return c.n == 0 }

// Get returns the i-th element. i must be in [0, Len).
func (c Collection) Get(i int) Value {
	if c.shared != nil {
		return c.shared.vals[i]
	}
	return c.inline[i]
}

// Append returns c extended with v. Empty values are dropped. The receiver
// remains valid: any number of views may branch from one state, the first
// to append extends the shared store in place, and each of the others
// copies its prefix exactly once.
func (c Collection) Append(v Value) Collection {
	if v.IsEmpty() {
		return c
	}
	if c.shared == nil {
		if c.n < inlineCap {
			c.inline[c.n] = v
			c.n++
			return c
		}
		// Spill: inline moves to a fresh descriptor.
		buf := make([]Value, c.n, c.n*2)
		copy(buf, c.inline[:c.n])
		c.shared = &sharedBuf{vals: buf}
	}
	if len(c.shared.vals) != c.n {
		// Another view already extended this state: copy-on-write once.
		buf := make([]Value, c.n, c.n*2)
		copy(buf, c.shared.vals[:c.n])
		c.shared = &sharedBuf{vals: buf}
	}
	c.shared.vals = append(c.shared.vals, v)
	c.n++
	return c
}

// AppendAll returns c extended with every element of other, in order.
func (c Collection) AppendAll(other Collection) Collection {
	for i := 0; i < other.n; i++ {
		c = c.Append(other.Get(i))
	}
	return c
}

// Clone returns an independent view of c in O(1). Every copy of a Collection
// is already an independent view under the descriptor-length rule; Clone
// exists to make divergence points explicit at call sites.
func (c Collection) Clone() Collection {
	return c
}

// Slice returns the sub-collection [from, to).
func (c Collection) Slice(from, to int) Collection {
	if from < 0 {
		from = 0
	}
	if to > c.n {
		to = c.n
	}
	var out Collection
	for i := from; i < to; i++ {
		out = out.Append(c.Get(i))
	}
	return out
}

// Contains reports whether any element equals v under the Value equality
// contract.
func (c Collection) Contains(v Value) bool {
	for i := 0; i < c.n; i++ {
		if Equal(c.Get(i), v) {
			return true
		}
	}
	return false
}

// Values returns the elements as a fresh slice.
func (c Collection) Values() []Value {
	out := make([]Value, c.n)
	for i := 0; i < c.n; i++ {
		out[i] = c.Get(i)
	}
	return out
}

// AsBool applies the FHIRPath singleton-boolean coercion under three-valued
// logic: empty → unknown (known=false); a single boolean → its value; any
// other non-empty collection → true.
func (c Collection) AsBool() (b, known bool) {
	if c.n == 0 {
		return false, false
	}
	if c.n == 1 && c.Get(0).Kind() == KindBoolean {
		return c.Get(0).Bool(), true
	}
	return true, true
}

// String renders the collection for diagnostics.
func (c Collection) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < c.n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Get(i).String())
	}
	sb.WriteByte(']')
	return sb.String()
}
