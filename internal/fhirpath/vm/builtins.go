package vm

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/apd/v3"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// callBuiltin dispatches an eager builtin. Lambda functions and iif never
// reach here; the compiler lowers them to dedicated opcodes.
func (m *machine) callBuiltin(id ir.FuncID, recv value.Collection, args []value.Collection) (value.Collection, error) {
	switch id {
	// --- existence ---------------------------------------------------------
	case ir.FnEmpty:
		return boolCol(recv.IsEmpty()), nil
	case ir.FnExists:
		return boolCol(!recv.IsEmpty()), nil
	case ir.FnAll:
		return everyBool("all", recv, true)
	case ir.FnAllTrue:
		return everyBool("allTrue", recv, true)
	case ir.FnAllFalse:
		return everyBool("allFalse", recv, false)
	case ir.FnAnyTrue:
		return someBool("anyTrue", recv, true)
	case ir.FnAnyFalse:
		return someBool("anyFalse", recv, false)
	case ir.FnSubsetOf:
		return boolCol(isSubset(recv, args[0])), nil
	case ir.FnSupersetOf:
		return boolCol(isSubset(args[0], recv)), nil
	case ir.FnCount:
		return value.Singleton(value.NewInteger(int64(recv.Len()))), nil
	case ir.FnDistinct:
		return distinct(recv), nil
	case ir.FnIsDistinct:
		return boolCol(distinct(recv).Len() == recv.Len()), nil

	// --- subsetting --------------------------------------------------------
	case ir.FnSingle:
		if recv.Len() > 1 {
			return value.Collection{}, typeErrf("single", "collection has %d elements", recv.Len())
		}
		return recv, nil
	case ir.FnFirst:
		if recv.IsEmpty() {
			return value.Collection{}, nil
		}
		return value.Singleton(recv.Get(0)), nil
	case ir.FnLast:
		if recv.IsEmpty() {
			return value.Collection{}, nil
		}
		return value.Singleton(recv.Get(recv.Len() - 1)), nil
	case ir.FnTail:
		return recv.Slice(1, recv.Len()), nil
	case ir.FnSkip:
		n, ok, err := intArg("skip", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		if n < 0 {
			return value.Collection{}, invalidOpf("skip", "negative count %d", n)
		}
		return recv.Slice(int(n), recv.Len()), nil
	case ir.FnTake:
		n, ok, err := intArg("take", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		if n < 0 {
			return value.Collection{}, invalidOpf("take", "negative count %d", n)
		}
		return recv.Slice(0, int(n)), nil
	case ir.FnIntersect:
		return intersect(recv, args[0]), nil
	case ir.FnExclude:
		return exclude(recv, args[0]), nil

	// --- combining ---------------------------------------------------------
	case ir.FnUnion:
		return mergeDistinct(recv, args[0]), nil
	case ir.FnCombine:
		return recv.Clone().AppendAll(args[0]), nil

	// --- conversion --------------------------------------------------------
	case ir.FnToBoolean:
		return convertSingleton("toBoolean", recv, toBoolean)
	case ir.FnConvertsToBoolean:
		return convertsTo("convertsToBoolean", recv, toBoolean)
	case ir.FnToInteger:
		return convertSingleton("toInteger", recv, toInteger)
	case ir.FnConvertsToInteger:
		return convertsTo("convertsToInteger", recv, toInteger)
	case ir.FnToDecimal:
		return convertSingleton("toDecimal", recv, toDecimal)
	case ir.FnConvertsToDecimal:
		return convertsTo("convertsToDecimal", recv, toDecimal)
	case ir.FnToString:
		return convertSingleton("toString", recv, toStringValue)
	case ir.FnConvertsToString:
		return convertsTo("convertsToString", recv, toStringValue)
	case ir.FnToQuantity:
		return m.toQuantity(recv, args)
	case ir.FnConvertsToQuantity:
		out, err := m.toQuantity(recv, args)
		if err != nil || recv.IsEmpty() {
			return value.Collection{}, err
		}
		return boolCol(!out.IsEmpty()), nil
	case ir.FnToDate:
		return convertSingleton("toDate", recv, toDate)
	case ir.FnConvertsToDate:
		return convertsTo("convertsToDate", recv, toDate)
	case ir.FnToDateTime:
		return convertSingleton("toDateTime", recv, toDateTime)
	case ir.FnConvertsToDateTime:
		return convertsTo("convertsToDateTime", recv, toDateTime)
	case ir.FnToTime:
		return convertSingleton("toTime", recv, toTime)
	case ir.FnConvertsToTime:
		return convertsTo("convertsToTime", recv, toTime)

	// --- strings -----------------------------------------------------------
	case ir.FnIndexOf, ir.FnSubstring, ir.FnStartsWith, ir.FnEndsWith,
		ir.FnContains, ir.FnUpper, ir.FnLower, ir.FnReplace, ir.FnMatches,
		ir.FnReplaceMatches, ir.FnLength, ir.FnToChars, ir.FnSplit,
		ir.FnJoin, ir.FnTrim:
		return stringBuiltin(id, recv, args)

	// --- math --------------------------------------------------------------
	case ir.FnAbs, ir.FnCeiling, ir.FnExp, ir.FnFloor, ir.FnLn, ir.FnLog,
		ir.FnPower, ir.FnRound, ir.FnSqrt, ir.FnTruncate:
		return mathBuiltin(id, recv, args)

	// --- navigation --------------------------------------------------------
	case ir.FnChildren:
		return children(recv), nil
	case ir.FnDescendants:
		return descendants(recv), nil
	case ir.FnExtension:
		return extension(recv, args[0])

	// --- utility -----------------------------------------------------------
	case ir.FnTrace:
		return m.trace(recv, args[0])
	case ir.FnNow:
		return value.Singleton(value.NewDateTime(m.now, value.PrecMillisecond)), nil
	case ir.FnToday:
		return value.Singleton(value.NewDate(m.now, value.PrecDay)), nil
	case ir.FnTimeOfDay:
		return value.Singleton(value.NewTime(m.now, value.PrecMillisecond)), nil
	case ir.FnNot:
		if recv.IsEmpty() {
			return value.Collection{}, nil
		}
		if recv.Len() > 1 {
			return value.Collection{}, typeErrf("not", "singleton required, got %d elements", recv.Len())
		}
		b, _ := recv.AsBool()
		return boolCol(!b), nil
	case ir.FnHasValue:
		if recv.Len() != 1 {
			return boolCol(false), nil
		}
		k := recv.Get(0).Kind()
		return boolCol(k != value.KindObject && k != value.KindLazy), nil
	}
	return value.Collection{}, evalErrf("no runtime for function id %d", id)
}

// ============================================================================
// Existence helpers
// ============================================================================

// everyBool reports whether every element is the boolean want; empty input
// vacuously satisfies.
func everyBool(op string, c value.Collection, want bool) (value.Collection, error) {
	for i := 0; i < c.Len(); i++ {
		v := c.Get(i)
		if v.Kind() != value.KindBoolean {
			return value.Collection{}, typeErrf(op, "element %d is %s, not boolean", i, v.Kind())
		}
		if v.Bool() != want {
			return boolCol(false), nil
		}
	}
	return boolCol(true), nil
}

func someBool(op string, c value.Collection, want bool) (value.Collection, error) {
	for i := 0; i < c.Len(); i++ {
		v := c.Get(i)
		if v.Kind() != value.KindBoolean {
			return value.Collection{}, typeErrf(op, "element %d is %s, not boolean", i, v.Kind())
		}
		if v.Bool() == want {
			return boolCol(true), nil
		}
	}
	return boolCol(false), nil
}

func isSubset(sub, super value.Collection) bool {
	for i := 0; i < sub.Len(); i++ {
		if !super.Contains(sub.Get(i)) {
			return false
		}
	}
	return true
}

func distinct(c value.Collection) value.Collection {
	var out value.Collection
	for i := 0; i < c.Len(); i++ {
		if !out.Contains(c.Get(i)) {
			out = out.Append(c.Get(i))
		}
	}
	return out
}

// intersect keeps elements of l also present in r, de-duplicated. An empty
// side short-circuits to empty.
func intersect(l, r value.Collection) value.Collection {
	if l.IsEmpty() || r.IsEmpty() {
		return value.Collection{}
	}
	var out value.Collection
	for i := 0; i < l.Len(); i++ {
		if r.Contains(l.Get(i)) && !out.Contains(l.Get(i)) {
			out = out.Append(l.Get(i))
		}
	}
	return out
}

// exclude removes elements present in r, keeping duplicates among survivors.
func exclude(l, r value.Collection) value.Collection {
	var out value.Collection
	for i := 0; i < l.Len(); i++ {
		if !r.Contains(l.Get(i)) {
			out = out.Append(l.Get(i))
		}
	}
	return out
}

// ============================================================================
// Conversions
// ============================================================================

// convertSingleton applies a scalar conversion to a 0..1 receiver. A failed
// conversion yields empty, never an error.
func convertSingleton(op string, recv value.Collection, conv func(value.Value) (value.Value, bool)) (value.Collection, error) {
	if recv.IsEmpty() {
		return value.Collection{}, nil
	}
	if recv.Len() > 1 {
		return value.Collection{}, typeErrf(op, "singleton required, got %d elements", recv.Len())
	}
	out, ok := conv(recv.Get(0))
	if !ok {
		return value.Collection{}, nil
	}
	return value.Singleton(out), nil
}

func convertsTo(op string, recv value.Collection, conv func(value.Value) (value.Value, bool)) (value.Collection, error) {
	if recv.IsEmpty() {
		return value.Collection{}, nil
	}
	if recv.Len() > 1 {
		return value.Collection{}, typeErrf(op, "singleton required, got %d elements", recv.Len())
	}
	_, ok := conv(recv.Get(0))
	return boolCol(ok), nil
}

func toBoolean(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindBoolean:
		return v, true
	case value.KindInteger:
		switch v.Int() {
		case 1:
			return value.NewBoolean(true), true
		case 0:
			return value.NewBoolean(false), true
		}
	case value.KindDecimal:
		if one := apd.New(1, 0); v.Decimal().Cmp(one) == 0 {
			return value.NewBoolean(true), true
		}
		if v.Decimal().IsZero() {
			return value.NewBoolean(false), true
		}
	case value.KindString:
		switch strings.ToLower(v.Str()) {
		case "true", "t", "yes", "y", "1", "1.0":
			return value.NewBoolean(true), true
		case "false", "f", "no", "n", "0", "0.0":
			return value.NewBoolean(false), true
		}
	}
	return value.Value{}, false
}

func toInteger(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindInteger:
		return v, true
	case value.KindBoolean:
		if v.Bool() {
			return value.NewInteger(1), true
		}
		return value.NewInteger(0), true
	case value.KindString:
		if i, err := strconv.ParseInt(v.Str(), 10, 64); err == nil {
			return value.NewInteger(i), true
		}
	}
	return value.Value{}, false
}

func toDecimal(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindDecimal:
		return v, true
	case value.KindInteger:
		return value.NewDecimal(apd.New(v.Int(), 0)), true
	case value.KindBoolean:
		if v.Bool() {
			return value.NewDecimal(apd.New(1, 0)), true
		}
		return value.NewDecimal(apd.New(0, 0)), true
	case value.KindString:
		if out, err := value.NewDecimalFromString(v.Str()); err == nil {
			return out, true
		}
	}
	return value.Value{}, false
}

func toStringValue(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindObject, value.KindLazy, value.KindEmpty:
		return value.Value{}, false
	case value.KindString:
		return v, true
	default:
		return value.NewString(v.String()), true
	}
}

func toDate(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindDate:
		return v, true
	case value.KindDateTime:
		p := v.Prec()
		if p > value.PrecDay {
			p = value.PrecDay
		}
		return value.NewDate(v.Time(), p), true
	case value.KindString:
		if t, p, err := value.ParseDate(v.Str()); err == nil {
			return value.NewDate(t, p), true
		}
	}
	return value.Value{}, false
}

func toDateTime(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindDateTime:
		return v, true
	case value.KindDate:
		return value.NewDateTime(v.Time(), v.Prec()), true
	case value.KindString:
		if t, p, err := value.ParseDateTime(v.Str()); err == nil {
			return value.NewDateTime(t, p), true
		}
	}
	return value.Value{}, false
}

func toTime(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindTime:
		return v, true
	case value.KindString:
		if t, p, err := value.ParseTime(v.Str()); err == nil {
			return value.NewTime(t, p), true
		}
	}
	return value.Value{}, false
}

var quantityLiteralRe = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)\s*(?:'([^']+)'|([a-zA-Z]+))?$`)

// toQuantity converts the receiver to a quantity, optionally converting to
// the unit named by the argument.
func (m *machine) toQuantity(recv value.Collection, args []value.Collection) (value.Collection, error) {
	if recv.IsEmpty() {
		return value.Collection{}, nil
	}
	if recv.Len() > 1 {
		return value.Collection{}, typeErrf("toQuantity", "singleton required, got %d elements", recv.Len())
	}
	var q value.Value
	switch v := recv.Get(0); v.Kind() {
	case value.KindQuantity:
		q = v
	case value.KindInteger, value.KindDecimal:
		q = value.NewQuantity(widenDecimal(v), "1")
	case value.KindString:
		match := quantityLiteralRe.FindStringSubmatch(strings.TrimSpace(v.Str()))
		if match == nil {
			return value.Collection{}, nil
		}
		d, _, err := apd.NewFromString(match[1])
		if err != nil {
			return value.Collection{}, nil
		}
		unit := match[2]
		if unit == "" {
			unit = match[3]
		}
		if unit == "" {
			unit = "1"
		}
		q = value.NewQuantity(d, unit)
	default:
		return value.Collection{}, nil
	}

	if len(args) == 1 {
		unit, ok, err := stringArg("toQuantity", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		conv, convOK := m.conv.Convert(q.Decimal(), q.Unit(), unit)
		if !convOK {
			return value.Collection{}, nil
		}
		q = value.NewQuantity(conv, unit)
	}
	return value.Singleton(q), nil
}

// ============================================================================
// Navigation builtins
// ============================================================================

// children returns every immediate child value of each element, in field
// name order.
func children(c value.Collection) value.Collection {
	var out value.Collection
	for i := 0; i < c.Len(); i++ {
		v := c.Get(i)
		for _, name := range v.FieldNames() {
			if name == "resourceType" {
				continue
			}
			out = out.AppendAll(v.Field(name))
		}
	}
	return out
}

// descendants is the transitive closure of children, excluding the input
// elements themselves.
func descendants(c value.Collection) value.Collection {
	var out value.Collection
	work := c
	for work.Len() > 0 {
		next := children(work)
		var fresh value.Collection
		for i := 0; i < next.Len(); i++ {
			if !out.Contains(next.Get(i)) {
				out = out.Append(next.Get(i))
				fresh = fresh.Append(next.Get(i))
			}
		}
		work = fresh
	}
	return out
}

// extension filters each element's extension children by url.
func extension(c value.Collection, urlArg value.Collection) (value.Collection, error) {
	url, ok, err := stringArg("extension", urlArg)
	if err != nil || !ok {
		return value.Collection{}, err
	}
	var out value.Collection
	for i := 0; i < c.Len(); i++ {
		exts := c.Get(i).Field("extension")
		for j := 0; j < exts.Len(); j++ {
			u := exts.Get(j).Field("url")
			if u.Len() == 1 && u.Get(0).Kind() == value.KindString && u.Get(0).Str() == url {
				out = out.Append(exts.Get(j))
			}
		}
	}
	return out, nil
}

// ============================================================================
// Utility builtins
// ============================================================================

func (m *machine) trace(recv value.Collection, nameArg value.Collection) (value.Collection, error) {
	name, ok, err := stringArg("trace", nameArg)
	if err != nil {
		return value.Collection{}, err
	}
	if ok && m.ctx.Logger != nil {
		m.ctx.Logger.Debug().
			Str("trace", name).
			Int("count", recv.Len()).
			Str("value", recv.String()).
			Msg("fhirpath trace")
	}
	return recv, nil
}

// ============================================================================
// Argument helpers
// ============================================================================

func intArg(op string, c value.Collection) (int64, bool, error) {
	if c.IsEmpty() {
		return 0, false, nil
	}
	if c.Len() > 1 || c.Get(0).Kind() != value.KindInteger {
		return 0, false, typeErrf(op, "expected a single integer argument, got %s", c)
	}
	return c.Get(0).Int(), true, nil
}

func stringArg(op string, c value.Collection) (string, bool, error) {
	if c.IsEmpty() {
		return "", false, nil
	}
	if c.Len() > 1 || c.Get(0).Kind() != value.KindString {
		return "", false, typeErrf(op, "expected a single string argument, got %s", c)
	}
	return c.Get(0).Str(), true, nil
}

// reCache memoizes compiled patterns for matches/replaceMatches.
var reCache sync.Map // string -> *regexp.Regexp

func compilePattern(op, pattern string) (*regexp.Regexp, error) {
	if cached, ok := reCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, invalidOpf(op, "invalid pattern %q: %v", pattern, err)
	}
	reCache.Store(pattern, re)
	return re, nil
}
