// Package fhirpath is the embedding surface of the expression engine: an
// Engine that compiles FHIRPath expressions into reusable Plans through a
// concurrent plan cache, and an Expression handle for evaluating them against
// parsed resources.
package fhirpath

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
	"github.com/ehr/fhirpath/internal/fhirpath/vm"
)

// Error taxonomy, re-exported so hosts match with errors.As against this
// package alone.
type (
	SyntaxError            = ast.SyntaxError
	UnknownFunctionError   = ir.UnknownFunctionError
	ArityMismatchError     = ir.ArityMismatchError
	UndefinedVariableError = ir.UndefinedVariableError
	UnknownFieldError      = ir.UnknownFieldError
	TypeError              = vm.TypeError
	InvalidOperationError  = vm.InvalidOperationError
	EvalError              = vm.EvalError
)

// defaultPlanCacheSize bounds the compiled-plan cache when no option is set.
const defaultPlanCacheSize = 256

// ============================================================================
// Engine
// ============================================================================

// Engine compiles and evaluates FHIRPath expressions. It is safe for
// concurrent use; compiled plans are cached per (expression, base type) with
// at most one in-flight compilation per key.
type Engine struct {
	provider schema.Provider
	strict   bool
	maxPlans int
	logger   zerolog.Logger
	conv     value.UnitConverter

	mu    sync.Mutex
	plans map[planKey]*planEntry
	order []planKey
}

type planKey struct {
	expr     string
	baseType string
}

// planEntry is a cache slot. ready is closed when compilation finishes;
// concurrent callers for the same key block on it instead of compiling again.
type planEntry struct {
	ready chan struct{}
	expr  *Expression
	err   error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSchema supplies the type provider consulted during type resolution.
func WithSchema(p schema.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithStrictTypes makes navigation into undeclared fields a compile error
// instead of degrading to dynamic resolution.
func WithStrictTypes(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// WithPlanCacheSize bounds the number of cached plans. Zero disables caching.
func WithPlanCacheSize(n int) Option {
	return func(e *Engine) { e.maxPlans = n }
}

// WithLogger attaches a logger; compilation and evaluation emit debug events
// and trace() output flows through it.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithUnitConverter replaces the built-in metric-prefix quantity converter.
func WithUnitConverter(c value.UnitConverter) Option {
	return func(e *Engine) { e.conv = c }
}

// New builds an engine. Without options it uses the seeded schema registry,
// lenient typing and a disabled logger.
func New(opts ...Option) *Engine {
	e := &Engine{
		provider: schema.NewRegistry(),
		maxPlans: defaultPlanCacheSize,
		logger:   zerolog.Nop(),
		plans:    make(map[planKey]*planEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile returns the plan for expr evaluated against resources of baseType
// (which may be empty for untyped evaluation). Results are cached; concurrent
// callers with the same key share one compilation. Failed compilations are
// not cached.
func (e *Engine) Compile(expr, baseType string) (*Expression, error) {
	if e.maxPlans <= 0 {
		return e.compile(expr, baseType)
	}
	key := planKey{expr: expr, baseType: baseType}

	e.mu.Lock()
	if ent, ok := e.plans[key]; ok {
		e.mu.Unlock()
		<-ent.ready
		return ent.expr, ent.err
	}
	ent := &planEntry{ready: make(chan struct{})}
	e.plans[key] = ent
	e.order = append(e.order, key)
	e.evictLocked()
	e.mu.Unlock()

	ent.expr, ent.err = e.compile(expr, baseType)
	close(ent.ready)

	if ent.err != nil {
		e.mu.Lock()
		if e.plans[key] == ent {
			delete(e.plans, key)
		}
		e.mu.Unlock()
	}
	return ent.expr, ent.err
}

// evictLocked drops the oldest completed entries above the cache bound.
// In-flight entries are never evicted; their callers hold references.
func (e *Engine) evictLocked() {
	for len(e.plans) > e.maxPlans && len(e.order) > 0 {
		evicted := false
		for i, key := range e.order {
			ent, ok := e.plans[key]
			if !ok {
				e.order = append(e.order[:i], e.order[i+1:]...)
				evicted = true
				break
			}
			select {
			case <-ent.ready:
				delete(e.plans, key)
				e.order = append(e.order[:i], e.order[i+1:]...)
				evicted = true
			default:
				continue
			}
			break
		}
		if !evicted {
			return
		}
	}
}

// compile runs the full pipeline: parse, analyze, resolve, lower.
func (e *Engine) compile(expr, baseType string) (*Expression, error) {
	started := time.Now()

	root, err := ast.Parse(expr)
	if err != nil {
		return nil, err
	}
	node, err := ir.Analyze(root)
	if err != nil {
		return nil, err
	}
	resolver := ir.NewResolver(e.provider, e.strict)
	if err := resolver.Resolve(node, baseType); err != nil {
		return nil, err
	}
	plan, err := vm.Compile(node, expr)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("expr", expr).
		Str("base_type", baseType).
		Dur("elapsed", time.Since(started)).
		Msg("compiled fhirpath expression")

	return &Expression{engine: e, plan: plan, source: expr, baseType: baseType, typed: node.Type}, nil
}

// ============================================================================
// Evaluation
// ============================================================================

// EvalOption adjusts one evaluation.
type EvalOption func(*vm.Context)

// WithVariable injects an environment variable (%name) for the evaluation.
func WithVariable(name string, c value.Collection) EvalOption {
	return func(ctx *vm.Context) {
		if ctx.Env == nil {
			ctx.Env = make(map[string]value.Collection)
		}
		ctx.Env[name] = c
	}
}

// WithNow pins the instant observed by now(), today() and timeOfDay().
func WithNow(t time.Time) EvalOption {
	return func(ctx *vm.Context) { ctx.Now = t }
}

// Evaluate parses a JSON resource, compiles expr against its declared
// resource type and evaluates it.
func (e *Engine) Evaluate(resource []byte, expr string, opts ...EvalOption) (value.Collection, error) {
	doc, err := value.ParseJSON(resource)
	if err != nil {
		return value.Collection{}, err
	}
	input := value.Singleton(doc.Root())
	baseType := ""
	if input.Len() == 1 {
		baseType = input.Get(0).TypeName()
	}
	compiled, err := e.Compile(expr, baseType)
	if err != nil {
		return value.Collection{}, err
	}
	return compiled.Evaluate(input, opts...)
}

// EvaluateBoolean evaluates expr and applies singleton-boolean coercion:
// empty is false, a lone boolean is itself, any other non-empty result is
// true.
func (e *Engine) EvaluateBoolean(resource []byte, expr string, opts ...EvalOption) (bool, error) {
	out, err := e.Evaluate(resource, expr, opts...)
	if err != nil {
		return false, err
	}
	b, known := out.AsBool()
	return known && b, nil
}

// EvaluateString evaluates expr and renders the first result, or "" for an
// empty result.
func (e *Engine) EvaluateString(resource []byte, expr string, opts ...EvalOption) (string, error) {
	out, err := e.Evaluate(resource, expr, opts...)
	if err != nil {
		return "", err
	}
	if out.IsEmpty() {
		return "", nil
	}
	return out.Get(0).String(), nil
}

// ============================================================================
// Expression
// ============================================================================

// Expression is a compiled, reusable, concurrency-safe evaluation plan.
type Expression struct {
	engine   *Engine
	plan     *vm.Plan
	source   string
	baseType string
	typed    ir.ExprType
}

// Source returns the original expression text.
func (x *Expression) Source() string { return x.source }

// ResultType returns the statically inferred type and cardinality.
func (x *Expression) ResultType() ir.ExprType { return x.typed }

// Explain renders the compiled plan as a bytecode listing.
func (x *Expression) Explain() string { return x.plan.Disassemble() }

// Evaluate runs the plan against an input collection.
func (x *Expression) Evaluate(input value.Collection, opts ...EvalOption) (value.Collection, error) {
	ctx := &vm.Context{
		Converter: x.engine.conv,
		Logger:    &x.engine.logger,
	}
	for _, opt := range opts {
		opt(ctx)
	}

	started := time.Now()
	out, err := x.plan.Eval(input, ctx)

	if e := x.engine.logger.Debug(); e.Enabled() {
		e.Str("eval_id", uuid.NewString()).
			Str("expr", x.source).
			Int("result_count", out.Len()).
			Dur("elapsed", time.Since(started)).
			Err(err).
			Msg("evaluated fhirpath expression")
	}
	return out, err
}

// EvaluateResource runs the plan against a parsed document root.
func (x *Expression) EvaluateResource(doc *value.Document, opts ...EvalOption) (value.Collection, error) {
	return x.Evaluate(value.Singleton(doc.Root()), opts...)
}
