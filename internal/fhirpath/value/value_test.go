package value

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func mustParseJSON(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := ParseJSON([]byte(src))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	return doc
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	if err != nil {
		t.Fatalf("apd.NewFromString(%q): %v", s, err)
	}
	return d
}

const patientJSON = `{
	"resourceType": "Patient",
	"id": "pt-1",
	"active": true,
	"birthDate": "1990-03-15",
	"name": [
		{"use": "official", "family": "Smith", "given": ["John", "J"]},
		{"use": "nickname", "given": ["Johnny"]}
	],
	"multipleBirthInteger": 2
}`

// ---------------------------------------------------------------------------
// lazy navigation
// ---------------------------------------------------------------------------

func TestLazyFieldNavigation(t *testing.T) {
	doc := mustParseJSON(t, patientJSON)
	root := doc.Root()

	names := root.Field("name")
	if names.Len() != 2 {
		t.Fatalf("name: want 2 elements, got %d", names.Len())
	}
	given := names.Get(0).Field("given")
	if given.Len() != 2 {
		t.Fatalf("given: want 2 elements, got %d", given.Len())
	}
	if got := given.Get(0).Str(); got != "John" {
		t.Errorf("given[0] = %q, want John", got)
	}

	// Absent structure is empty, not an error.
	if got := root.Field("nonexistent"); got.Len() != 0 {
		t.Errorf("missing field: want empty, got %v", got)
	}
	if got := given.Get(0).Field("anything"); got.Len() != 0 {
		t.Errorf("field on scalar: want empty, got %v", got)
	}
}

func TestScalarExtractionWithoutMaterialization(t *testing.T) {
	doc := mustParseJSON(t, patientJSON)
	root := doc.Root()

	active := root.Field("active")
	if active.Len() != 1 || active.Get(0).Kind() != KindBoolean || !active.Get(0).Bool() {
		t.Fatalf("active: want single true boolean, got %v", active)
	}
	mb := root.Field("multipleBirthInteger")
	if mb.Len() != 1 || mb.Get(0).Kind() != KindInteger || mb.Get(0).Int() != 2 {
		t.Fatalf("multipleBirthInteger: want integer 2, got %v", mb)
	}
}

// ---------------------------------------------------------------------------
// materialization
// ---------------------------------------------------------------------------

func TestMaterializeIdempotent(t *testing.T) {
	doc := mustParseJSON(t, patientJSON)
	lazy := doc.Root().Field("name").Get(0)

	once := lazy.Materialize()
	twice := once.Materialize()

	if once.Kind() != KindObject {
		t.Fatalf("Materialize kind = %v, want Object", once.Kind())
	}
	if !Equal(once, twice) {
		t.Error("Materialize is not idempotent under the equality contract")
	}
	if !Equal(lazy, once) {
		t.Error("materialized value must equal its lazy original")
	}
	if got := once.Field("family").Get(0).Str(); got != "Smith" {
		t.Errorf("materialized family = %q, want Smith", got)
	}
}

// ---------------------------------------------------------------------------
// equality contract
// ---------------------------------------------------------------------------

func TestIdentityEquality(t *testing.T) {
	doc := mustParseJSON(t, patientJSON)
	other := mustParseJSON(t, patientJSON)

	a := doc.Root().Field("name").Get(0)
	b := doc.Root().Field("name").Get(0)
	c := other.Root().Field("name").Get(0)

	if !Equal(a, b) {
		t.Error("same document, same path: want equal")
	}
	// Structurally identical but different backing store: identity equality
	// deliberately reports unequal.
	if Equal(a, c) {
		t.Error("different documents: identity equality must report unequal")
	}
	if a.Hash() != b.Hash() {
		t.Error("equal values must hash identically")
	}
}

func TestScalarEquality(t *testing.T) {
	if !Equal(NewInteger(2), NewDecimal(dec(t, "2.0"))) {
		t.Error("2 and 2.0 must be equal")
	}
	if Equal(NewString("a"), NewString("b")) {
		t.Error("distinct strings equal")
	}
	if !Equivalent(NewString("Hello  World"), NewString("hello world")) {
		t.Error("equivalence must normalize case and whitespace")
	}
	q1 := NewQuantity(dec(t, "5"), "mg")
	q2 := NewQuantity(dec(t, "5.0"), "mg")
	if !Equal(q1, q2) {
		t.Error("quantities with equal magnitude and unit must be equal")
	}
}

// ---------------------------------------------------------------------------
// collections
// ---------------------------------------------------------------------------

func TestCollectionInlineAndSpill(t *testing.T) {
	var c Collection
	for i := int64(0); i < 10; i++ {
		c = c.Append(NewInteger(i))
	}
	if c.Len() != 10 {
		t.Fatalf("Len = %d, want 10", c.Len())
	}
	for i := 0; i < 10; i++ {
		if c.Get(i).Int() != int64(i) {
			t.Fatalf("Get(%d) = %d", i, c.Get(i).Int())
		}
	}
}

func TestCollectionCopyOnWrite(t *testing.T) {
	var a Collection
	for i := int64(0); i < 8; i++ {
		a = a.Append(NewInteger(i))
	}
	b := a.Clone()
	a = a.Append(NewInteger(100))
	b = b.Append(NewInteger(200))

	if a.Len() != 9 || b.Len() != 9 {
		t.Fatalf("lens = %d, %d, want 9, 9", a.Len(), b.Len())
	}
	if a.Get(8).Int() != 100 || b.Get(8).Int() != 200 {
		t.Error("clone divergence leaked between collections")
	}
	for i := 0; i < 8; i++ {
		if a.Get(i).Int() != int64(i) || b.Get(i).Int() != int64(i) {
			t.Fatalf("shared prefix corrupted at %d", i)
		}
	}
}

func TestCollectionSiblingAppends(t *testing.T) {
	// Two appends branching from the same spilled value must not share a
	// backing slot, even without an explicit Clone.
	var c Collection
	for i := int64(0); i < 9; i++ {
		c = c.Append(NewInteger(i))
	}
	a := c.Append(NewInteger(100))
	b := c.Append(NewInteger(200))

	if a.Get(9).Int() != 100 {
		t.Errorf("a.Get(9) = %d, want 100 (overwritten by sibling append)", a.Get(9).Int())
	}
	if b.Get(9).Int() != 200 {
		t.Errorf("b.Get(9) = %d, want 200", b.Get(9).Int())
	}
	if c.Len() != 9 {
		t.Errorf("receiver length changed to %d", c.Len())
	}
	for i := 0; i < 9; i++ {
		if a.Get(i).Int() != int64(i) || b.Get(i).Int() != int64(i) || c.Get(i).Int() != int64(i) {
			t.Fatalf("shared prefix corrupted at %d", i)
		}
	}

	// Deeper fan-out from an already-extended view.
	a2 := a.Append(NewInteger(300))
	a3 := a.Append(NewInteger(400))
	if a2.Get(10).Int() != 300 || a3.Get(10).Int() != 400 {
		t.Errorf("second-level siblings = %d, %d, want 300, 400",
			a2.Get(10).Int(), a3.Get(10).Int())
	}
	if a.Get(9).Int() != 100 {
		t.Error("extending a view corrupted its parent")
	}
}

func TestCollectionAsBool(t *testing.T) {
	if _, known := (Collection{}).AsBool(); known {
		t.Error("empty collection must be unknown")
	}
	if b, known := Singleton(NewBoolean(false)).AsBool(); !known || b {
		t.Error("single false must be known false")
	}
	if b, known := Singleton(NewString("x")).AsBool(); !known || !b {
		t.Error("single non-boolean must coerce to true")
	}
}

// ---------------------------------------------------------------------------
// temporal precision
// ---------------------------------------------------------------------------

func TestTemporalPrecisionComparison(t *testing.T) {
	y2010, p1, err := ParseDate("2010")
	if err != nil {
		t.Fatal(err)
	}
	m201005, p2, err := ParseDate("2010-05")
	if err != nil {
		t.Fatal(err)
	}
	d2011, p3, err := ParseDate("2011-01-01")
	if err != nil {
		t.Fatal(err)
	}

	a := NewDate(y2010, p1)
	b := NewDate(m201005, p2)
	c := NewDate(d2011, p3)

	if _, ok := CompareTemporal(a, b); ok {
		t.Error("2010 vs 2010-05: want indeterminate")
	}
	if cmp, ok := CompareTemporal(a, c); !ok || cmp >= 0 {
		t.Errorf("2010 vs 2011-01-01: want determinate <, got cmp=%d ok=%v", cmp, ok)
	}
}

// ---------------------------------------------------------------------------
// quantities
// ---------------------------------------------------------------------------

func TestQuantityUnitConversion(t *testing.T) {
	a := NewQuantity(dec(t, "1"), "g")
	b := NewQuantity(dec(t, "1000"), "mg")
	cmp, ok, err := CompareValues(a, b, DefaultConverter())
	if err != nil || !ok {
		t.Fatalf("CompareValues: ok=%v err=%v", ok, err)
	}
	if cmp != 0 {
		t.Errorf("1 g vs 1000 mg: cmp = %d, want 0", cmp)
	}

	if _, _, err := CompareValues(a, NewQuantity(dec(t, "1"), "s"), DefaultConverter()); err == nil {
		t.Error("g vs s: want incomparable units error")
	}
}
