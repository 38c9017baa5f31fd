package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

const patientJSON = `{
	"resourceType": "Patient",
	"active": true,
	"name": [
		{"use": "official", "family": "Doe", "given": ["John", "Q"]},
		{"use": "nickname", "given": ["Jack"]}
	],
	"birthDate": "1980-03-15",
	"deceasedBoolean": false
}`

const observationJSON = `{
	"resourceType": "Observation",
	"status": "final",
	"valueQuantity": {"value": 6.3, "unit": "mmol/L"},
	"extension": [
		{"url": "http://example.org/flag", "valueBoolean": true},
		{"url": "http://example.org/other", "valueString": "x"}
	]
}`

func compileExpr(t *testing.T, expr, baseType string) *Plan {
	t.Helper()
	root, err := ast.Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	node, err := ir.Analyze(root)
	if err != nil {
		t.Fatalf("analyze %q: %v", expr, err)
	}
	resolver := ir.NewResolver(schema.NewRegistry(), false)
	if err := resolver.Resolve(node, baseType); err != nil {
		t.Fatalf("resolve %q: %v", expr, err)
	}
	plan, err := Compile(node, expr)
	if err != nil {
		t.Fatalf("compile %q: %v", expr, err)
	}
	return plan
}

func evalExpr(t *testing.T, doc, baseType, expr string) value.Collection {
	t.Helper()
	out, err := tryEval(t, doc, baseType, expr)
	if err != nil {
		t.Fatalf("eval %q: %v", expr, err)
	}
	return out
}

func tryEval(t *testing.T, doc, baseType, expr string) (value.Collection, error) {
	t.Helper()
	plan := compileExpr(t, expr, baseType)
	var input value.Collection
	if doc != "" {
		d, err := value.ParseJSON([]byte(doc))
		if err != nil {
			t.Fatalf("parse document: %v", err)
		}
		input = value.Singleton(d.Root())
	}
	return plan.Eval(input, nil)
}

func wantString(t *testing.T, c value.Collection, want string) {
	t.Helper()
	if c.Len() != 1 || c.Get(0).Kind() != value.KindString || c.Get(0).Str() != want {
		t.Fatalf("got %s, want %q", c, want)
	}
}

func wantInt(t *testing.T, c value.Collection, want int64) {
	t.Helper()
	if c.Len() != 1 || c.Get(0).Kind() != value.KindInteger || c.Get(0).Int() != want {
		t.Fatalf("got %s, want %d", c, want)
	}
}

func wantBool(t *testing.T, c value.Collection, want bool) {
	t.Helper()
	if c.Len() != 1 || c.Get(0).Kind() != value.KindBoolean || c.Get(0).Bool() != want {
		t.Fatalf("got %s, want %v", c, want)
	}
}

func wantEmpty(t *testing.T, c value.Collection) {
	t.Helper()
	if !c.IsEmpty() {
		t.Fatalf("got %s, want empty", c)
	}
}

// ============================================================================
// Navigation
// ============================================================================

func TestEvalPathNavigation(t *testing.T) {
	wantString(t, evalExpr(t, patientJSON, "Patient", "Patient.name.given.first()"), "John")
	wantString(t, evalExpr(t, patientJSON, "Patient", "name[0].family"), "Doe")
	wantInt(t, evalExpr(t, patientJSON, "Patient", "name.given.count()"), 3)
	wantEmpty(t, evalExpr(t, patientJSON, "Patient", "name[5].family"))
	wantEmpty(t, evalExpr(t, patientJSON, "Patient", "telecom"))
}

func TestEvalTypeFilterGuardsResourceType(t *testing.T) {
	// A Patient-rooted expression applied to an Observation yields nothing.
	wantEmpty(t, evalExpr(t, observationJSON, "", "Patient.name"))
	wantBool(t, evalExpr(t, patientJSON, "Patient", "Patient.active"), true)
}

func TestEvalChoiceNavigation(t *testing.T) {
	// The stem navigates to the concrete variant, and only that variant.
	out := evalExpr(t, observationJSON, "Observation", "Observation.value")
	if out.Len() != 1 {
		t.Fatalf("value = %s, want one element", out)
	}
	wantBool(t, evalExpr(t, observationJSON, "Observation", "Observation.value.value = 6.3"), true)

	// Lenient fallback without schema context resolves the stem dynamically.
	wantBool(t, evalExpr(t, observationJSON, "", "value.value = 6.3"), true)

	wantBool(t, evalExpr(t, patientJSON, "Patient", "deceased = false"), true)
}

func TestEvalIndexerErrors(t *testing.T) {
	_, err := tryEval(t, patientJSON, "Patient", "name['x']")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TypeError", err)
	}
}

// ============================================================================
// Operators
// ============================================================================

func TestEvalArithmetic(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "2 + 3 * 4"), 14)
	wantInt(t, evalExpr(t, "", "", "7 div 2"), 3)
	wantInt(t, evalExpr(t, "", "", "7 mod 2"), 1)
	wantEmpty(t, evalExpr(t, "", "", "1 / 0"))
	wantEmpty(t, evalExpr(t, "", "", "5 div 0"))

	out := evalExpr(t, "", "", "7 / 2")
	if out.Len() != 1 || out.Get(0).Kind() != value.KindDecimal {
		t.Fatalf("7 / 2 = %s, want decimal", out)
	}
	if out.Get(0).Decimal().Text('f') != "3.5" {
		t.Fatalf("7 / 2 = %s, want 3.5", out)
	}

	wantString(t, evalExpr(t, "", "", "'foo' + 'bar'"), "foobar")
	wantString(t, evalExpr(t, "", "", "'a' & {}"), "a")
	wantEmpty(t, evalExpr(t, "", "", "'a' + {}"))
}

func TestEvalShortCircuitPrunesRightSide(t *testing.T) {
	// The right operand divides by zero; the left decides the result alone.
	wantBool(t, evalExpr(t, "", "", "false and (1/0 > 0)"), false)
	wantBool(t, evalExpr(t, "", "", "true or (1/0 > 0)"), true)
	wantBool(t, evalExpr(t, "", "", "false implies (1/0 > 0)"), true)
}

func TestEvalThreeValuedLogic(t *testing.T) {
	wantEmpty(t, evalExpr(t, "", "", "{} and true"))
	wantBool(t, evalExpr(t, "", "", "{} and false"), false)
	wantBool(t, evalExpr(t, "", "", "{} or true"), true)
	wantEmpty(t, evalExpr(t, "", "", "{} or false"))
	wantEmpty(t, evalExpr(t, "", "", "true and {}"))
	wantBool(t, evalExpr(t, "", "", "true xor false"), true)
	wantEmpty(t, evalExpr(t, "", "", "true xor {}"))
}

func TestEvalEquality(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "2 = 2.0"), true)
	wantBool(t, evalExpr(t, "", "", "1 != 2"), true)
	wantEmpty(t, evalExpr(t, "", "", "{} = 1"))
	wantBool(t, evalExpr(t, "", "", "{} ~ {}"), true)
	wantBool(t, evalExpr(t, "", "", "'Hello  World' ~ 'hello world'"), true)
	wantBool(t, evalExpr(t, "", "", "'a' !~ 'b'"), true)
	wantBool(t, evalExpr(t, "", "", "(1 | 2) = (1 | 2)"), true)
}

func TestEvalTemporalComparison(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "@2010-05 = @2010-05"), true)
	wantBool(t, evalExpr(t, "", "", "@2012 > @2010-05"), true)
	// Shared prefix with differing precision is indeterminate.
	wantEmpty(t, evalExpr(t, "", "", "@2010 < @2010-05"))
	wantEmpty(t, evalExpr(t, "", "", "@2010 = @2010-05"))
}

func TestEvalQuantityComparison(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "1 'g' > 500 'mg'"), true)
	wantBool(t, evalExpr(t, "", "", "1 'g' <= 1000 'mg'"), true)
	wantBool(t, evalExpr(t, "", "", "(1 'g' + 200 'mg') >= 1.2 'g'"), true)
}

func TestEvalMembership(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "2 in (1 | 2 | 3)"), true)
	wantBool(t, evalExpr(t, "", "", "(1 | 2 | 3) contains 4"), false)
	wantEmpty(t, evalExpr(t, "", "", "{} in (1 | 2)"))
}

func TestEvalUnionDeduplicates(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 2 | 3).count()"), 3)
	wantInt(t, evalExpr(t, patientJSON, "Patient", "(name.given | name.given).count()"), 3)
}

// ============================================================================
// Functions
// ============================================================================

func TestEvalSubsetting(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 3).tail().first()"), 2)
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 3).skip(1).count()"), 2)
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 3).take(2).last()"), 2)
	wantEmpty(t, evalExpr(t, "", "", "{}.first()"))
	wantInt(t, evalExpr(t, "", "", "(5).single()"), 5)

	_, err := tryEval(t, patientJSON, "Patient", "name.single()")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("single() on 2 elements: err = %v, want TypeError", err)
	}

	_, err = tryEval(t, "", "", "(1 | 2).skip(-1)")
	var ie *InvalidOperationError
	if !errors.As(err, &ie) {
		t.Fatalf("skip(-1): err = %v, want InvalidOperationError", err)
	}
}

func TestEvalIntersectExclude(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 3).intersect(2 | 3 | 4).count()"), 2)
	wantEmpty(t, evalExpr(t, "", "", "(1 | 2).intersect({})"))
	// exclude keeps duplicate survivors; combine keeps duplicates outright.
	wantInt(t, evalExpr(t, "", "", "(1 | 2).combine(1 | 2).exclude(2).count()"), 2)
	wantInt(t, evalExpr(t, "", "", "(1 | 2).combine(2 | 3).count()"), 4)
}

func TestEvalCombinators(t *testing.T) {
	wantString(t, evalExpr(t, patientJSON, "Patient",
		"name.where(use = 'official').family"), "Doe")
	wantInt(t, evalExpr(t, patientJSON, "Patient",
		"name.select(given.count()).first()"), 2)
	wantBool(t, evalExpr(t, patientJSON, "Patient",
		"name.exists(use = 'nickname')"), true)
	wantBool(t, evalExpr(t, patientJSON, "Patient",
		"name.all(given.exists())"), true)
	wantInt(t, evalExpr(t, "", "", "(1 | 2 | 3).aggregate($total + $this, 0)"), 6)
	wantInt(t, evalExpr(t, patientJSON, "Patient",
		"name.select($index).last()"), 1)
}

func TestEvalRepeatReachesFixpoint(t *testing.T) {
	doc := `{"item": [{"linkId": "a", "item": [{"linkId": "b", "item": [{"linkId": "c"}]}]}]}`
	wantInt(t, evalExpr(t, doc, "", "repeat(item).count()"), 3)
}

func TestEvalIif(t *testing.T) {
	wantString(t, evalExpr(t, "", "", "iif(true, 'yes', 'no')"), "yes")
	wantString(t, evalExpr(t, "", "", "iif(false, 'yes', 'no')"), "no")
	wantEmpty(t, evalExpr(t, "", "", "iif(false, 'yes')"))
	wantString(t, evalExpr(t, "", "", "iif({}, 'yes', 'no')"), "no")
	// The unselected branch must not run.
	wantInt(t, evalExpr(t, "", "", "iif(true, 1, (1 | 2).single())"), 1)

	_, err := tryEval(t, "", "", "iif('x', 1, 2)")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("non-boolean condition: err = %v, want TypeError", err)
	}
}

func TestEvalStringFunctions(t *testing.T) {
	wantString(t, evalExpr(t, "", "", "'hello'.upper()"), "HELLO")
	wantString(t, evalExpr(t, "", "", "'Hello World'.substring(0, 5)"), "Hello")
	wantEmpty(t, evalExpr(t, "", "", "'abc'.substring(10)"))
	wantInt(t, evalExpr(t, "", "", "'hello'.indexOf('ll')"), 2)
	wantBool(t, evalExpr(t, "", "", "'hello'.startsWith('he')"), true)
	wantBool(t, evalExpr(t, "", "", "'hello'.matches('^h.*o$')"), true)
	wantString(t, evalExpr(t, "", "", "'a,b,c'.split(',').join('-')"), "a-b-c")
	wantInt(t, evalExpr(t, "", "", "'a,b'.split(',').count()"), 2)
	wantString(t, evalExpr(t, "", "", "'  x '.trim()"), "x")
	wantString(t, evalExpr(t, "", "", "'banana'.replace('a', 'o')"), "bonono")
	wantInt(t, evalExpr(t, "", "", "'hello'.length()"), 5)
	wantInt(t, evalExpr(t, "", "", "'abc'.toChars().count()"), 3)
}

func TestEvalStringFunctionsMultibyte(t *testing.T) {
	// Positions and lengths count characters, not bytes.
	wantInt(t, evalExpr(t, "", "", "'héllo'.length()"), 5)
	wantString(t, evalExpr(t, "", "", "'héllo'.substring(1, 1)"), "é")
	wantString(t, evalExpr(t, "", "", "'héllo'.substring(2)"), "llo")
	wantInt(t, evalExpr(t, "", "", "'héllo'.indexOf('llo')"), 2)
	wantInt(t, evalExpr(t, "", "", "'日本語'.length()"), 3)
	wantString(t, evalExpr(t, "", "", "'日本語'.substring(1, 1)"), "本")
	wantInt(t, evalExpr(t, "", "", "'日本語'.indexOf('語')"), 2)
	wantEmpty(t, evalExpr(t, "", "", "'日本語'.substring(3)"))
	wantInt(t, evalExpr(t, "", "", "'héllo'.toChars().count()"), 5)
}

func TestEvalMathFunctions(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "(-5).abs()"), 5)
	wantInt(t, evalExpr(t, "", "", "2.5.ceiling()"), 3)
	wantInt(t, evalExpr(t, "", "", "2.5.floor()"), 2)
	wantInt(t, evalExpr(t, "", "", "(-2.5).truncate()"), -2)
	wantInt(t, evalExpr(t, "", "", "2.power(10)"), 1024)
	wantEmpty(t, evalExpr(t, "", "", "(-1).sqrt()"))
	wantEmpty(t, evalExpr(t, "", "", "(-1.5).ln()"))

	out := evalExpr(t, "", "", "2.333.round(2)")
	if out.Get(0).Decimal().Text('f') != "2.33" {
		t.Fatalf("round = %s, want 2.33", out)
	}
	out = evalExpr(t, "", "", "16.sqrt()")
	if out.Get(0).Decimal().Cmp(widenDecimal(value.NewInteger(4))) != 0 {
		t.Fatalf("sqrt = %s, want 4", out)
	}
}

func TestEvalConversions(t *testing.T) {
	wantInt(t, evalExpr(t, "", "", "'123'.toInteger()"), 123)
	wantEmpty(t, evalExpr(t, "", "", "'abc'.toInteger()"))
	wantBool(t, evalExpr(t, "", "", "'abc'.convertsToInteger()"), false)
	wantBool(t, evalExpr(t, "", "", "1.convertsToBoolean()"), true)
	wantBool(t, evalExpr(t, "", "", "'true'.toBoolean()"), true)
	wantString(t, evalExpr(t, "", "", "42.toString()"), "42")
	wantBool(t, evalExpr(t, "", "", "'2010-05'.toDate() = @2010-05"), true)
	wantBool(t, evalExpr(t, "", "", "'5 mg'.toQuantity('g') = 0.005 'g'"), true)
}

func TestEvalTypeOperations(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "1 is Integer"), true)
	wantBool(t, evalExpr(t, "", "", "1 is System.Decimal"), false)
	wantBool(t, evalExpr(t, "", "", "(1 as Integer) = 1"), true)
	wantEmpty(t, evalExpr(t, "", "", "1 as String"))
	wantInt(t, evalExpr(t, "", "", "(1 'g' | 2 | 'x').ofType(Quantity).count()"), 1)
	wantBool(t, evalExpr(t, patientJSON, "Patient", "$this is Patient"), true)
}

func TestEvalExistence(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "{}.empty()"), true)
	wantBool(t, evalExpr(t, patientJSON, "Patient", "name.exists()"), true)
	wantBool(t, evalExpr(t, "", "", "(true | false).anyTrue()"), true)
	wantBool(t, evalExpr(t, "", "", "(true.combine(true)).allTrue()"), true)
	wantBool(t, evalExpr(t, "", "", "(1 | 2).subsetOf(1 | 2 | 3)"), true)
	wantBool(t, evalExpr(t, "", "", "(1 | 2 | 3).supersetOf(1 | 2)"), true)
	wantBool(t, evalExpr(t, "", "", "(1 | 2).isDistinct()"), true)
	wantBool(t, evalExpr(t, "", "", "(1).combine(1).isDistinct()"), false)
	wantBool(t, evalExpr(t, "", "", "(1 = 1).not()"), false)
}

// ============================================================================
// Navigation builtins & environment
// ============================================================================

func TestEvalChildrenAndDescendants(t *testing.T) {
	doc := `{"a": {"b": {"c": 1}}, "d": 2}`
	wantInt(t, evalExpr(t, doc, "", "children().count()"), 2)
	wantInt(t, evalExpr(t, doc, "", "descendants().count()"), 4)
}

func TestEvalExtension(t *testing.T) {
	wantBool(t, evalExpr(t, observationJSON, "Observation",
		"extension('http://example.org/flag').value = true"), true)
	wantEmpty(t, evalExpr(t, observationJSON, "Observation",
		"extension('http://example.org/missing')"))
}

func TestEvalEnvironmentVariables(t *testing.T) {
	wantString(t, evalExpr(t, "", "", "%ucum"), "http://unitsofmeasure.org")
	wantBool(t, evalExpr(t, patientJSON, "Patient", "%context.active"), true)

	plan := compileExpr(t, "%threshold > 2", "")
	out, err := plan.Eval(value.Collection{}, &Context{
		Env: map[string]value.Collection{
			"threshold": value.Singleton(value.NewInteger(5)),
		},
	})
	if err != nil {
		t.Fatalf("eval with injected variable: %v", err)
	}
	wantBool(t, out, true)

	_, err = tryEval(t, "", "", "%undefinedVar")
	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("undefined variable: err = %v, want EvalError", err)
	}
}

func TestEvalTemporalArithmetic(t *testing.T) {
	wantBool(t, evalExpr(t, "", "", "@2010-01-01 + 1 year = @2011-01-01"), true)
	wantBool(t, evalExpr(t, "", "", "@2010-03-15 - 1 month = @2010-02-15"), true)
	wantBool(t, evalExpr(t, "", "", "@2010-01-01T10:00 + 90 minutes = @2010-01-01T11:30"), true)
}

func TestDisassembleListsSubPlans(t *testing.T) {
	plan := compileExpr(t, "name.where(use = 'official')", "Patient")
	text := plan.Disassemble()
	if text == "" {
		t.Fatal("empty disassembly")
	}
	for _, want := range []string{"where", "sub 0", "field"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}
}
