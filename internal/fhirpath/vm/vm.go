package vm

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// ============================================================================
// Evaluation context
// ============================================================================

// Context carries per-evaluation state. The zero value is usable: no custom
// variables, the built-in unit converter, no trace logging.
type Context struct {
	// Env holds host-injected %variables by bare name (no % prefix).
	Env map[string]value.Collection
	// Converter resolves quantity unit conversions. Nil selects the built-in
	// metric-prefix converter.
	Converter value.UnitConverter
	// Logger receives trace() output. Nil disables tracing.
	Logger *zerolog.Logger
	// Now fixes the instant returned by now()/today()/timeOfDay(); the zero
	// time means the wall clock, sampled once per evaluation.
	Now time.Time
}

// wellKnownEnv are the environment variables every evaluation provides.
var wellKnownEnv = map[string]string{
	"ucum":  "http://unitsofmeasure.org",
	"sct":   "http://snomed.info/sct",
	"loinc": "http://loinc.org",
}

// ============================================================================
// Machine
// ============================================================================

// frame is the per-element binding environment of a (sub-)plan run.
type frame struct {
	this  value.Collection
	index value.Collection
	total value.Collection
}

type machine struct {
	ctx  *Context
	conv value.UnitConverter
	now  time.Time
	root value.Collection
}

// Eval executes the plan against the input collection.
func (p *Plan) Eval(input value.Collection, ctx *Context) (value.Collection, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	m := &machine{ctx: ctx, conv: ctx.Converter, now: ctx.Now, root: input}
	if m.conv == nil {
		m.conv = value.DefaultConverter()
	}
	if m.now.IsZero() {
		m.now = time.Now()
	}
	return m.run(p, frame{this: input})
}

// run executes one plan with the given frame. Sub-plans recurse through here
// with their own frames; the operand stack is local to each run.
func (m *machine) run(p *Plan, f frame) (value.Collection, error) {
	stack := make([]value.Collection, 0, 8)
	push := func(c value.Collection) { stack = append(stack, c) }
	pop := func() value.Collection {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return c
	}

	for _, ins := range p.Code {
		switch ins.Op {
		case opNop:

		case opConst:
			push(value.Singleton(p.Consts[ins.A]))

		case opThis:
			push(f.this)

		case opIndex:
			push(f.index)

		case opTotal:
			push(f.total)

		case opEnv:
			c, err := m.envVar(p.Names[ins.A])
			if err != nil {
				return value.Collection{}, err
			}
			push(c)

		case opField:
			src := pop()
			var out value.Collection
			for i := 0; i < src.Len(); i++ {
				out = out.AppendAll(fieldDynamic(src.Get(i), p.Names[ins.A]))
			}
			push(out)

		case opChoice:
			src := pop()
			variants := p.Choices[ins.A]
			var out value.Collection
			for i := 0; i < src.Len(); i++ {
				// Choice elements are exclusive: the first present variant is
				// the value, remaining variants are not consulted.
				for _, variant := range variants {
					if c := src.Get(i).Field(variant); c.Len() > 0 {
						out = out.AppendAll(c)
						break
					}
				}
			}
			push(out)

		case opTypeFilter:
			src := pop()
			name := p.Names[ins.A]
			var out value.Collection
			for i := 0; i < src.Len(); i++ {
				v := src.Get(i)
				switch tn := v.TypeName(); tn {
				case name:
					out = out.Append(v)
				case "":
					// Untagged nodes cannot be disproven; keep object-likes.
					if v.FieldNames() != nil || v.Kind() == value.KindLazy {
						out = out.Append(v)
					}
				}
			}
			push(out)

		case opSubscript:
			idx := pop()
			src := pop()
			out, err := subscript(src, idx)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opBinary:
			r := pop()
			l := pop()
			out, err := m.evalBinary(ir.Op(ins.A), l, r)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opLogic:
			l := pop()
			out, err := m.evalLogic(ir.Op(ins.A), l, func() (value.Collection, error) {
				return m.run(p.Subs[ins.B], f)
			})
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opNeg:
			src := pop()
			out, err := negate(src)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opIs:
			src := pop()
			if src.Len() > 1 {
				return value.Collection{}, typeErrf("is", "singleton required, got %d elements", src.Len())
			}
			if src.IsEmpty() {
				push(value.Collection{})
				break
			}
			push(value.Singleton(value.NewBoolean(matchesType(src.Get(0), p.Types[ins.A]))))

		case opAs, opOfType:
			src := pop()
			spec := p.Types[ins.A]
			var out value.Collection
			for i := 0; i < src.Len(); i++ {
				if matchesType(src.Get(i), spec) {
					out = out.Append(src.Get(i))
				}
			}
			push(out)

		case opCall:
			argc := int(ins.B)
			args := make([]value.Collection, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			recv := pop()
			out, err := m.callBuiltin(ir.FuncID(ins.A), recv, args)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opIif:
			cond := pop()
			out, err := m.evalIif(p, cond, ins.A, ins.B, f)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opWhere, opSelect, opRepeat, opExists, opAll:
			src := pop()
			out, err := m.evalCombinator(ins.Op, p.Subs[ins.A], src)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		case opAggregate:
			src := pop()
			var total value.Collection
			if ins.B == 1 {
				total = pop()
			}
			out, err := m.evalAggregate(p.Subs[ins.A], src, total)
			if err != nil {
				return value.Collection{}, err
			}
			push(out)

		default:
			return value.Collection{}, evalErrf("illegal opcode %v", ins.Op)
		}
	}

	if len(stack) != 1 {
		return value.Collection{}, evalErrf("plan left %d values on the stack", len(stack))
	}
	return stack[0], nil
}

// ============================================================================
// Environment variables
// ============================================================================

func (m *machine) envVar(name string) (value.Collection, error) {
	if c, ok := m.ctx.Env[name]; ok {
		return c, nil
	}
	switch name {
	case "context", "resource", "rootResource":
		return m.root, nil
	}
	if url, ok := wellKnownEnv[name]; ok {
		return value.Singleton(value.NewString(url)), nil
	}
	if rest, ok := strings.CutPrefix(name, "vs-"); ok {
		return value.Singleton(value.NewString("http://hl7.org/fhir/ValueSet/" + rest)), nil
	}
	if rest, ok := strings.CutPrefix(name, "ext-"); ok {
		return value.Singleton(value.NewString("http://hl7.org/fhir/StructureDefinition/" + rest)), nil
	}
	return value.Collection{}, evalErrf("undefined environment variable %%%s", name)
}

// ============================================================================
// Navigation helpers
// ============================================================================

// fieldDynamic navigates a named field, falling back to a choice-variant scan
// when the direct name is absent: a field name extended by a capitalized type
// code is the concrete form of a polymorphic element, so the stem resolves
// dynamically even when no schema typed the path.
func fieldDynamic(v value.Value, name string) value.Collection {
	if c := v.Field(name); c.Len() > 0 {
		return c
	}
	for _, fn := range v.FieldNames() {
		if len(fn) > len(name) && strings.HasPrefix(fn, name) &&
			fn[len(name)] >= 'A' && fn[len(name)] <= 'Z' {
			return v.Field(fn)
		}
	}
	return value.Collection{}
}

func subscript(src, idx value.Collection) (value.Collection, error) {
	if idx.IsEmpty() || src.IsEmpty() {
		return value.Collection{}, nil
	}
	if idx.Len() > 1 || idx.Get(0).Kind() != value.KindInteger {
		return value.Collection{}, typeErrf("indexer", "index must be a single integer, got %s", idx)
	}
	i := int(idx.Get(0).Int())
	if i < 0 || i >= src.Len() {
		return value.Collection{}, nil
	}
	return value.Singleton(src.Get(i)), nil
}

func negate(src value.Collection) (value.Collection, error) {
	if src.IsEmpty() {
		return value.Collection{}, nil
	}
	if src.Len() > 1 {
		return value.Collection{}, typeErrf("unary -", "singleton required, got %d elements", src.Len())
	}
	v := src.Get(0)
	switch v.Kind() {
	case value.KindInteger:
		return value.Singleton(value.NewInteger(-v.Int())), nil
	case value.KindDecimal:
		return value.Singleton(value.NewDecimal(negDec(v.Decimal()))), nil
	case value.KindQuantity:
		return value.Singleton(value.NewQuantity(negDec(v.Decimal()), v.Unit())), nil
	}
	return value.Collection{}, typeErrf("unary -", "cannot negate %s", v.Kind())
}

// ============================================================================
// Type tests
// ============================================================================

// matchesType implements the runtime semantics of is/as/ofType.
func matchesType(v value.Value, spec ir.TypeSpec) bool {
	name := spec.Name
	if spec.Ns != ir.NsDomain {
		if kindMatchesSystem(v.Kind(), name) {
			return true
		}
		if spec.Ns == ir.NsSystem {
			return false
		}
	}
	// Domain tests: resource-tagged nodes match by declared type; domain
	// primitive codes match the corresponding scalar kind.
	if tn := v.TypeName(); tn != "" {
		return tn == name
	}
	if k, ok := domainPrimitiveKinds[name]; ok {
		return v.Kind() == k
	}
	return false
}

func kindMatchesSystem(k value.Kind, name string) bool {
	switch name {
	case "Boolean":
		return k == value.KindBoolean
	case "Integer":
		return k == value.KindInteger
	case "Decimal":
		return k == value.KindDecimal
	case "String":
		return k == value.KindString
	case "Date":
		return k == value.KindDate
	case "DateTime":
		return k == value.KindDateTime
	case "Time":
		return k == value.KindTime
	case "Quantity":
		return k == value.KindQuantity
	}
	return false
}

var domainPrimitiveKinds = map[string]value.Kind{
	"boolean": value.KindBoolean, "integer": value.KindInteger,
	"positiveInt": value.KindInteger, "unsignedInt": value.KindInteger,
	"decimal": value.KindDecimal, "string": value.KindString,
	"code": value.KindString, "id": value.KindString, "uri": value.KindString,
	"url": value.KindString, "canonical": value.KindString,
	"markdown": value.KindString, "base64Binary": value.KindString,
	"oid": value.KindString, "uuid": value.KindString,
	"date": value.KindDate, "dateTime": value.KindDateTime,
	"instant": value.KindDateTime, "time": value.KindTime,
}

// ============================================================================
// Combinators
// ============================================================================

func (m *machine) evalCombinator(op Opcode, body *Plan, src value.Collection) (value.Collection, error) {
	switch op {
	case opWhere:
		var out value.Collection
		for i := 0; i < src.Len(); i++ {
			res, err := m.runElement(body, src.Get(i), i)
			if err != nil {
				return value.Collection{}, err
			}
			if b, known := res.AsBool(); known && b {
				out = out.Append(src.Get(i))
			}
		}
		return out, nil

	case opSelect:
		var out value.Collection
		for i := 0; i < src.Len(); i++ {
			res, err := m.runElement(body, src.Get(i), i)
			if err != nil {
				return value.Collection{}, err
			}
			out = out.AppendAll(res)
		}
		return out, nil

	case opRepeat:
		return m.evalRepeat(body, src)

	case opExists:
		for i := 0; i < src.Len(); i++ {
			res, err := m.runElement(body, src.Get(i), i)
			if err != nil {
				return value.Collection{}, err
			}
			if b, known := res.AsBool(); known && b {
				return value.Singleton(value.NewBoolean(true)), nil
			}
		}
		return value.Singleton(value.NewBoolean(false)), nil

	case opAll:
		for i := 0; i < src.Len(); i++ {
			res, err := m.runElement(body, src.Get(i), i)
			if err != nil {
				return value.Collection{}, err
			}
			if b, known := res.AsBool(); !known || !b {
				return value.Singleton(value.NewBoolean(false)), nil
			}
		}
		return value.Singleton(value.NewBoolean(true)), nil
	}
	return value.Collection{}, evalErrf("illegal combinator %v", op)
}

// evalRepeat applies the body transitively, collecting each newly seen item
// until a fixpoint. Seen-ness uses the value equality contract, so document
// nodes dedup by identity and cycles terminate.
func (m *machine) evalRepeat(body *Plan, src value.Collection) (value.Collection, error) {
	var out value.Collection
	work := src
	for work.Len() > 0 {
		var next value.Collection
		for i := 0; i < work.Len(); i++ {
			res, err := m.runElement(body, work.Get(i), i)
			if err != nil {
				return value.Collection{}, err
			}
			for j := 0; j < res.Len(); j++ {
				if !out.Contains(res.Get(j)) {
					out = out.Append(res.Get(j))
					next = next.Append(res.Get(j))
				}
			}
		}
		work = next
	}
	return out, nil
}

func (m *machine) evalAggregate(body *Plan, src, total value.Collection) (value.Collection, error) {
	for i := 0; i < src.Len(); i++ {
		res, err := m.run(body, frame{
			this:  value.Singleton(src.Get(i)),
			index: value.Singleton(value.NewInteger(int64(i))),
			total: total,
		})
		if err != nil {
			return value.Collection{}, err
		}
		total = res
	}
	return total, nil
}

// runElement runs a body plan with one source element as the focus.
func (m *machine) runElement(body *Plan, el value.Value, i int) (value.Collection, error) {
	return m.run(body, frame{
		this:  value.Singleton(el),
		index: value.Singleton(value.NewInteger(int64(i))),
	})
}

func (m *machine) evalIif(p *Plan, cond value.Collection, thenSub, elseSub int32, f frame) (value.Collection, error) {
	if cond.Len() > 1 {
		return value.Collection{}, typeErrf("iif", "condition must be a singleton, got %d elements", cond.Len())
	}
	if cond.Len() == 1 && cond.Get(0).Kind() != value.KindBoolean {
		return value.Collection{}, typeErrf("iif", "condition must be boolean, got %s", cond.Get(0).Kind())
	}
	if b, known := cond.AsBool(); known && b {
		return m.run(p.Subs[thenSub], f)
	}
	if elseSub < 0 {
		return value.Collection{}, nil
	}
	return m.run(p.Subs[elseSub], f)
}
