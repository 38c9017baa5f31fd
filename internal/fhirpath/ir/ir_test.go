package ir

import (
	"errors"
	"testing"

	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

func mustAnalyze(t *testing.T, expr string) *Node {
	t.Helper()
	root, err := ast.Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	n, err := Analyze(root)
	if err != nil {
		t.Fatalf("analyze %q: %v", expr, err)
	}
	return n
}

func mustResolve(t *testing.T, expr, baseType string, strict bool) *Node {
	t.Helper()
	n := mustAnalyze(t, expr)
	r := NewResolver(schema.NewRegistry(), strict)
	if err := r.Resolve(n, baseType); err != nil {
		t.Fatalf("resolve %q: %v", expr, err)
	}
	return n
}

// ============================================================================
// Analyzer
// ============================================================================

func TestAnalyzePathFlattening(t *testing.T) {
	n := mustAnalyze(t, "name.given[0]")
	if n.Kind != KindPath {
		t.Fatalf("kind = %v, want Path", n.Kind)
	}
	if n.Base != nil {
		t.Fatalf("base = %v, want ambient context", n.Base.Label())
	}
	if len(n.Segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(n.Segs))
	}
	if n.Segs[0].Name != "name" || n.Segs[1].Name != "given" {
		t.Errorf("segment names = %q, %q", n.Segs[0].Name, n.Segs[1].Name)
	}
	if n.Segs[2].Kind != SegIndex || n.Segs[2].Index.Kind != KindLiteral {
		t.Errorf("third segment is not a literal index")
	}
}

func TestAnalyzeFoldsNegativeLiterals(t *testing.T) {
	n := mustAnalyze(t, "-5")
	if n.Kind != KindLiteral || n.Lit.Kind() != value.KindInteger || n.Lit.Int() != -5 {
		t.Fatalf("got %s, want literal -5", n.Label())
	}
	n = mustAnalyze(t, "-2.5")
	if n.Kind != KindLiteral || n.Lit.Kind() != value.KindDecimal {
		t.Fatalf("got %s, want decimal literal", n.Label())
	}
	if n.Lit.Decimal().String() != "-2.5" {
		t.Errorf("decimal = %s, want -2.5", n.Lit.Decimal())
	}
}

func TestAnalyzeCombinators(t *testing.T) {
	n := mustAnalyze(t, "name.where(use = 'official')")
	if n.Kind != KindWhere {
		t.Fatalf("kind = %v, want Where", n.Kind)
	}
	if n.Base == nil || n.Base.Kind != KindPath {
		t.Fatalf("source is not a path")
	}
	if n.Body == nil || n.Body.Kind != KindBinary || n.Body.Op != OpEq {
		t.Fatalf("body is not an equality")
	}

	n = mustAnalyze(t, "value.aggregate($total + $this, 0)")
	if n.Kind != KindAggregate {
		t.Fatalf("kind = %v, want Aggregate", n.Kind)
	}
	if n.Init == nil || n.Init.Kind != KindLiteral {
		t.Fatalf("aggregate init missing")
	}
}

func TestAnalyzeOfType(t *testing.T) {
	n := mustAnalyze(t, "value.ofType(Quantity)")
	if n.Kind != KindCall || n.Func != FnOfType {
		t.Fatalf("got %s, want ofType call", n.Label())
	}
	if n.Spec.Name != "Quantity" {
		t.Errorf("spec = %v, want Quantity", n.Spec)
	}

	n = mustAnalyze(t, "value.ofType(System.Integer)")
	if n.Spec.Ns != NsSystem || n.Spec.Name != "Integer" {
		t.Errorf("spec = %v, want System.Integer", n.Spec)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	mustErr := func(expr string, target any) {
		t.Helper()
		root, err := ast.Parse(expr)
		if err != nil {
			t.Fatalf("parse %q: %v", expr, err)
		}
		_, err = Analyze(root)
		if err == nil {
			t.Fatalf("analyze %q: expected error", expr)
		}
		if !errors.As(err, target) {
			t.Errorf("analyze %q: error %v is not %T", expr, err, target)
		}
	}
	var unknownFn *UnknownFunctionError
	mustErr("frobnicate()", &unknownFn)
	var arity *ArityMismatchError
	mustErr("first(1)", &arity)
	var undef *UndefinedVariableError
	mustErr("$foo", &undef)
}

// ============================================================================
// Type resolution
// ============================================================================

func TestResolvePathTypes(t *testing.T) {
	n := mustResolve(t, "Patient.name.given", "Patient", true)
	if !n.Type.Set.Only(Sys("String")) {
		t.Errorf("type set = %v, want System.String", n.Type.Set)
	}
	if !n.Type.Card.Unbounded || n.Type.Card.Min != 0 {
		t.Errorf("cardinality = %v, want 0..*", n.Type.Card)
	}
	if n.Segs[0].Kind != SegTypeAssert {
		t.Errorf("leading segment kind = %v, want type assert", n.Segs[0].Kind)
	}
	if n.Segs[1].Kind != SegField {
		t.Errorf("name segment kind = %v, want field", n.Segs[1].Kind)
	}
}

func TestResolveChoiceExpansion(t *testing.T) {
	n := mustResolve(t, "Observation.value", "Observation", true)
	seg := n.Segs[1]
	if seg.Kind != SegChoice {
		t.Fatalf("segment kind = %v, want choice", seg.Kind)
	}
	found := false
	for _, v := range seg.Variants {
		if v == "valueQuantity" {
			found = true
		}
	}
	if !found {
		t.Errorf("variants %v missing valueQuantity", seg.Variants)
	}
	if !n.Type.Set.Contains(Sys("Quantity")) || !n.Type.Set.Contains(Sys("String")) {
		t.Errorf("type set = %v, want Quantity and String members", n.Type.Set)
	}
	if n.Type.Card.Unbounded || n.Type.Card.Max != 1 {
		t.Errorf("cardinality = %v, want 0..1", n.Type.Card)
	}
}

func TestResolveUnknownField(t *testing.T) {
	n := mustAnalyze(t, "Patient.frobnicate")
	strict := NewResolver(schema.NewRegistry(), true)
	err := strict.Resolve(n, "Patient")
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("strict resolve: err = %v, want UnknownFieldError", err)
	}
	if unknown.Field != "frobnicate" {
		t.Errorf("field = %q", unknown.Field)
	}

	lenient := NewResolver(schema.NewRegistry(), false)
	if err := lenient.Resolve(n, "Patient"); err != nil {
		t.Fatalf("lenient resolve: %v", err)
	}
	if !n.Type.Set.IsUnknown() {
		t.Errorf("lenient type set = %v, want Unknown", n.Type.Set)
	}
}

func TestResolveOperatorTypes(t *testing.T) {
	tests := []struct {
		expr string
		set  TypeName
		card Cardinality
	}{
		{"1 + 2", Sys("Integer"), Opt()},
		{"1 + 2.5", Sys("Decimal"), Opt()},
		{"7 / 2", Sys("Decimal"), Opt()},
		{"'a' & 'b'", Sys("String"), Opt()},
		{"name.given = 'x'", Sys("Boolean"), One()},
		{"active and true", Sys("Boolean"), One()},
	}
	for _, tc := range tests {
		n := mustResolve(t, tc.expr, "Patient", true)
		if !n.Type.Set.Only(tc.set) {
			t.Errorf("%q: type set = %v, want %v", tc.expr, n.Type.Set, tc.set)
		}
		if n.Type.Card != tc.card {
			t.Errorf("%q: cardinality = %v, want %v", tc.expr, n.Type.Card, tc.card)
		}
	}
}

func TestResolveUnionAddsCardinality(t *testing.T) {
	n := mustResolve(t, "name.given | name.family", "Patient", true)
	if !n.Type.Set.Only(Sys("String")) {
		t.Errorf("type set = %v, want System.String", n.Type.Set)
	}
	if !n.Type.Card.Unbounded {
		t.Errorf("cardinality = %v, want unbounded", n.Type.Card)
	}
}

func TestResolveCallTypes(t *testing.T) {
	n := mustResolve(t, "name.first()", "Patient", true)
	if !n.Type.Set.Only(Dom("HumanName")) {
		t.Errorf("first(): type set = %v, want FHIR.HumanName", n.Type.Set)
	}
	if n.Type.Card != Opt() {
		t.Errorf("first(): cardinality = %v, want 0..1", n.Type.Card)
	}

	n = mustResolve(t, "name.count()", "Patient", true)
	if !n.Type.Set.Only(Sys("Integer")) || n.Type.Card != One() {
		t.Errorf("count(): type = %v", n.Type)
	}

	n = mustResolve(t, "Observation.value.ofType(Quantity)", "Observation", true)
	if !n.Type.Set.Only(Sys("Quantity")) {
		t.Errorf("ofType: type set = %v, want Quantity", n.Type.Set)
	}
	if n.Type.Card != Opt() {
		t.Errorf("ofType: cardinality = %v, want 0..1", n.Type.Card)
	}
}

func TestResolveIifUnionsBranches(t *testing.T) {
	n := mustResolve(t, "iif(active, 1, 'fallback')", "Patient", true)
	if !n.Type.Set.Contains(Sys("Integer")) || !n.Type.Set.Contains(Sys("String")) {
		t.Errorf("type set = %v, want Integer and String", n.Type.Set)
	}
	if n.Type.Card != Opt() {
		t.Errorf("cardinality = %v, want 0..1", n.Type.Card)
	}
}

func TestResolveCombinatorContext(t *testing.T) {
	n := mustResolve(t, "name.where(use = 'official')", "Patient", true)
	if !n.Type.Set.Only(Dom("HumanName")) {
		t.Errorf("where: type set = %v, want FHIR.HumanName", n.Type.Set)
	}
	if !n.Type.Card.Unbounded || n.Type.Card.Min != 0 {
		t.Errorf("where: cardinality = %v, want 0..*", n.Type.Card)
	}

	n = mustResolve(t, "name.select(given)", "Patient", true)
	if !n.Type.Set.Only(Sys("String")) {
		t.Errorf("select: type set = %v, want System.String", n.Type.Set)
	}
	if !n.Type.Card.Unbounded {
		t.Errorf("select: cardinality = %v, want unbounded", n.Type.Card)
	}

	n = mustResolve(t, "name.given.exists()", "Patient", true)
	if !n.Type.Set.Only(Sys("Boolean")) || n.Type.Card != One() {
		t.Errorf("exists: type = %v", n.Type)
	}
}

func TestResolveTypeOperators(t *testing.T) {
	n := mustResolve(t, "active is Boolean", "Patient", true)
	if !n.Type.Set.Only(Sys("Boolean")) || n.Type.Card != One() {
		t.Errorf("is: type = %v", n.Type)
	}

	n = mustResolve(t, "deceased as Boolean", "Patient", true)
	if !n.Type.Set.Only(Sys("Boolean")) {
		t.Errorf("as: type set = %v, want System.Boolean", n.Type.Set)
	}
	if n.Type.Card != Opt() {
		t.Errorf("as: cardinality = %v, want 0..1", n.Type.Card)
	}
}

func TestResolveEnvVarIsDynamic(t *testing.T) {
	n := mustResolve(t, "%context", "Patient", true)
	if !n.Type.Set.IsUnknown() || n.Type.Card != Opt() {
		t.Errorf("type = %v, want Unknown 0..1", n.Type)
	}
}

func TestFunctionRegistry(t *testing.T) {
	m, err := LookupFunc("where", 1)
	if err != nil {
		t.Fatalf("lookup where: %v", err)
	}
	if !m.Lambda || m.ID != FnWhere {
		t.Errorf("where meta = %+v", m)
	}
	if _, err := LookupFunc("substring", 3); err == nil {
		t.Error("substring/3 accepted, want arity error")
	}
	if got := len(Functions()); got != len(funcTable) {
		t.Errorf("Functions() returned %d entries, want %d", got, len(funcTable))
	}
}
