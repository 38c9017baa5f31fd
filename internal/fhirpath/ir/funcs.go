package ir

// The function registry is the single source of truth for built-in
// functions: the analyzer checks existence and arity against it, the type
// resolution pass takes return types and cardinality classes from it, and
// the VM dispatches on the numeric FuncID.

// FuncID is the stable numeric identity of a built-in function.
type FuncID int

const (
	FnInvalid FuncID = iota

	// existence
	FnEmpty
	FnExists
	FnAll
	FnAllTrue
	FnAnyTrue
	FnAllFalse
	FnAnyFalse
	FnSubsetOf
	FnSupersetOf
	FnCount
	FnDistinct
	FnIsDistinct

	// filtering & projection
	FnWhere
	FnSelect
	FnRepeat
	FnOfType

	// subsetting
	FnSingle
	FnFirst
	FnLast
	FnTail
	FnSkip
	FnTake
	FnIntersect
	FnExclude

	// combining
	FnUnion
	FnCombine

	// conversion
	FnIif
	FnToBoolean
	FnConvertsToBoolean
	FnToInteger
	FnConvertsToInteger
	FnToDecimal
	FnConvertsToDecimal
	FnToString
	FnConvertsToString
	FnToQuantity
	FnConvertsToQuantity
	FnToDate
	FnConvertsToDate
	FnToDateTime
	FnConvertsToDateTime
	FnToTime
	FnConvertsToTime

	// strings
	FnIndexOf
	FnSubstring
	FnStartsWith
	FnEndsWith
	FnContains
	FnUpper
	FnLower
	FnReplace
	FnMatches
	FnReplaceMatches
	FnLength
	FnToChars
	FnSplit
	FnJoin
	FnTrim

	// math
	FnAbs
	FnCeiling
	FnExp
	FnFloor
	FnLn
	FnLog
	FnPower
	FnRound
	FnSqrt
	FnTruncate

	// navigation
	FnChildren
	FnDescendants
	FnExtension

	// utility
	FnTrace
	FnNow
	FnToday
	FnTimeOfDay
	FnNot
	FnHasValue
	FnAggregate

	// type operations (function form of is/as)
	FnIs
	FnAs

	fnMax // sentinel
)

// ReturnKind classifies a function's static result type.
type ReturnKind uint8

const (
	RetUnknown ReturnKind = iota
	RetBoolean
	RetInteger
	RetDecimal
	RetString
	RetQuantity
	RetDate
	RetDateTime
	RetTime
	RetSource // passes the input type set through
)

// CardClass classifies a function's static result cardinality.
type CardClass uint8

const (
	CardPreserve   CardClass = iota // input cardinality, min lowered to 0
	CardSingleton                   // 0..1
	CardOne                         // exactly 1..1
	CardCollection                  // 0..*
)

// FuncMeta is the registry entry for one built-in.
type FuncMeta struct {
	ID       FuncID
	Name     string
	MinArity int
	MaxArity int
	Category string
	Return   ReturnKind
	Card     CardClass
	// Lambda marks functions whose argument is a per-element sub-expression;
	// the analyzer restructures these into combinator nodes.
	Lambda bool
	// LazyArgs marks functions whose arguments must not be evaluated
	// eagerly (iif); the compiler emits them as sub-plans.
	LazyArgs bool
	// TypeArg marks functions taking a type specifier argument.
	TypeArg bool
}

var funcTable = []FuncMeta{
	{ID: FnEmpty, Name: "empty", Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnExists, Name: "exists", MaxArity: 1, Category: "existence", Return: RetBoolean, Card: CardOne, Lambda: true},
	{ID: FnAll, Name: "all", MaxArity: 1, Category: "existence", Return: RetBoolean, Card: CardOne, Lambda: true},
	{ID: FnAllTrue, Name: "allTrue", Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnAnyTrue, Name: "anyTrue", Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnAllFalse, Name: "allFalse", Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnAnyFalse, Name: "anyFalse", Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnSubsetOf, Name: "subsetOf", MinArity: 1, MaxArity: 1, Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnSupersetOf, Name: "supersetOf", MinArity: 1, MaxArity: 1, Category: "existence", Return: RetBoolean, Card: CardOne},
	{ID: FnCount, Name: "count", Category: "existence", Return: RetInteger, Card: CardOne},
	{ID: FnDistinct, Name: "distinct", Category: "existence", Return: RetSource, Card: CardPreserve},
	{ID: FnIsDistinct, Name: "isDistinct", Category: "existence", Return: RetBoolean, Card: CardOne},

	{ID: FnWhere, Name: "where", MinArity: 1, MaxArity: 1, Category: "filtering", Return: RetSource, Card: CardPreserve, Lambda: true},
	{ID: FnSelect, Name: "select", MinArity: 1, MaxArity: 1, Category: "filtering", Return: RetUnknown, Card: CardCollection, Lambda: true},
	{ID: FnRepeat, Name: "repeat", MinArity: 1, MaxArity: 1, Category: "filtering", Return: RetUnknown, Card: CardCollection, Lambda: true},
	{ID: FnOfType, Name: "ofType", MinArity: 1, MaxArity: 1, Category: "filtering", Return: RetSource, Card: CardPreserve, TypeArg: true},

	{ID: FnSingle, Name: "single", Category: "subsetting", Return: RetSource, Card: CardSingleton},
	{ID: FnFirst, Name: "first", Category: "subsetting", Return: RetSource, Card: CardSingleton},
	{ID: FnLast, Name: "last", Category: "subsetting", Return: RetSource, Card: CardSingleton},
	{ID: FnTail, Name: "tail", Category: "subsetting", Return: RetSource, Card: CardPreserve},
	{ID: FnSkip, Name: "skip", MinArity: 1, MaxArity: 1, Category: "subsetting", Return: RetSource, Card: CardPreserve},
	{ID: FnTake, Name: "take", MinArity: 1, MaxArity: 1, Category: "subsetting", Return: RetSource, Card: CardPreserve},
	{ID: FnIntersect, Name: "intersect", MinArity: 1, MaxArity: 1, Category: "subsetting", Return: RetSource, Card: CardPreserve},
	{ID: FnExclude, Name: "exclude", MinArity: 1, MaxArity: 1, Category: "subsetting", Return: RetSource, Card: CardPreserve},

	{ID: FnUnion, Name: "union", MinArity: 1, MaxArity: 1, Category: "combining", Return: RetUnknown, Card: CardCollection},
	{ID: FnCombine, Name: "combine", MinArity: 1, MaxArity: 1, Category: "combining", Return: RetUnknown, Card: CardCollection},

	{ID: FnIif, Name: "iif", MinArity: 2, MaxArity: 3, Category: "conversion", Return: RetUnknown, Card: CardCollection, LazyArgs: true},
	{ID: FnToBoolean, Name: "toBoolean", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnConvertsToBoolean, Name: "convertsToBoolean", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToInteger, Name: "toInteger", Category: "conversion", Return: RetInteger, Card: CardSingleton},
	{ID: FnConvertsToInteger, Name: "convertsToInteger", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToDecimal, Name: "toDecimal", Category: "conversion", Return: RetDecimal, Card: CardSingleton},
	{ID: FnConvertsToDecimal, Name: "convertsToDecimal", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToString, Name: "toString", Category: "conversion", Return: RetString, Card: CardSingleton},
	{ID: FnConvertsToString, Name: "convertsToString", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToQuantity, Name: "toQuantity", MaxArity: 1, Category: "conversion", Return: RetQuantity, Card: CardSingleton},
	{ID: FnConvertsToQuantity, Name: "convertsToQuantity", MaxArity: 1, Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToDate, Name: "toDate", Category: "conversion", Return: RetDate, Card: CardSingleton},
	{ID: FnConvertsToDate, Name: "convertsToDate", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToDateTime, Name: "toDateTime", Category: "conversion", Return: RetDateTime, Card: CardSingleton},
	{ID: FnConvertsToDateTime, Name: "convertsToDateTime", Category: "conversion", Return: RetBoolean, Card: CardSingleton},
	{ID: FnToTime, Name: "toTime", Category: "conversion", Return: RetTime, Card: CardSingleton},
	{ID: FnConvertsToTime, Name: "convertsToTime", Category: "conversion", Return: RetBoolean, Card: CardSingleton},

	{ID: FnIndexOf, Name: "indexOf", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetInteger, Card: CardSingleton},
	{ID: FnSubstring, Name: "substring", MinArity: 1, MaxArity: 2, Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnStartsWith, Name: "startsWith", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetBoolean, Card: CardSingleton},
	{ID: FnEndsWith, Name: "endsWith", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetBoolean, Card: CardSingleton},
	{ID: FnContains, Name: "contains", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetBoolean, Card: CardSingleton},
	{ID: FnUpper, Name: "upper", Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnLower, Name: "lower", Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnReplace, Name: "replace", MinArity: 2, MaxArity: 2, Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnMatches, Name: "matches", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetBoolean, Card: CardSingleton},
	{ID: FnReplaceMatches, Name: "replaceMatches", MinArity: 2, MaxArity: 2, Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnLength, Name: "length", Category: "strings", Return: RetInteger, Card: CardSingleton},
	{ID: FnToChars, Name: "toChars", Category: "strings", Return: RetString, Card: CardCollection},
	{ID: FnSplit, Name: "split", MinArity: 1, MaxArity: 1, Category: "strings", Return: RetString, Card: CardCollection},
	{ID: FnJoin, Name: "join", MaxArity: 1, Category: "strings", Return: RetString, Card: CardSingleton},
	{ID: FnTrim, Name: "trim", Category: "strings", Return: RetString, Card: CardSingleton},

	{ID: FnAbs, Name: "abs", Category: "math", Return: RetSource, Card: CardSingleton},
	{ID: FnCeiling, Name: "ceiling", Category: "math", Return: RetInteger, Card: CardSingleton},
	{ID: FnExp, Name: "exp", Category: "math", Return: RetDecimal, Card: CardSingleton},
	{ID: FnFloor, Name: "floor", Category: "math", Return: RetInteger, Card: CardSingleton},
	{ID: FnLn, Name: "ln", Category: "math", Return: RetDecimal, Card: CardSingleton},
	{ID: FnLog, Name: "log", MinArity: 1, MaxArity: 1, Category: "math", Return: RetDecimal, Card: CardSingleton},
	{ID: FnPower, Name: "power", MinArity: 1, MaxArity: 1, Category: "math", Return: RetSource, Card: CardSingleton},
	{ID: FnRound, Name: "round", MaxArity: 1, Category: "math", Return: RetDecimal, Card: CardSingleton},
	{ID: FnSqrt, Name: "sqrt", Category: "math", Return: RetDecimal, Card: CardSingleton},
	{ID: FnTruncate, Name: "truncate", Category: "math", Return: RetInteger, Card: CardSingleton},

	{ID: FnChildren, Name: "children", Category: "navigation", Return: RetUnknown, Card: CardCollection},
	{ID: FnDescendants, Name: "descendants", Category: "navigation", Return: RetUnknown, Card: CardCollection},
	{ID: FnExtension, Name: "extension", MinArity: 1, MaxArity: 1, Category: "navigation", Return: RetUnknown, Card: CardCollection},

	{ID: FnTrace, Name: "trace", MinArity: 1, MaxArity: 1, Category: "utility", Return: RetSource, Card: CardPreserve},
	{ID: FnNow, Name: "now", Category: "utility", Return: RetDateTime, Card: CardOne},
	{ID: FnToday, Name: "today", Category: "utility", Return: RetDate, Card: CardOne},
	{ID: FnTimeOfDay, Name: "timeOfDay", Category: "utility", Return: RetTime, Card: CardOne},
	{ID: FnNot, Name: "not", Category: "utility", Return: RetBoolean, Card: CardSingleton},
	{ID: FnHasValue, Name: "hasValue", Category: "utility", Return: RetBoolean, Card: CardOne},
	{ID: FnAggregate, Name: "aggregate", MinArity: 1, MaxArity: 2, Category: "utility", Return: RetUnknown, Card: CardSingleton, Lambda: true},

	{ID: FnIs, Name: "is", MinArity: 1, MaxArity: 1, Category: "types", Return: RetBoolean, Card: CardOne, TypeArg: true},
	{ID: FnAs, Name: "as", MinArity: 1, MaxArity: 1, Category: "types", Return: RetSource, Card: CardPreserve, TypeArg: true},
}

// funcsByName and funcsByID are built once at init.
var (
	funcsByName = make(map[string]*FuncMeta, len(funcTable))
	funcsByID   [fnMax]*FuncMeta
)

func init() {
	for i := range funcTable {
		m := &funcTable[i]
		funcsByName[m.Name] = m
		funcsByID[m.ID] = m
	}
}

// LookupFunc resolves a function by name and validates the argument count.
func LookupFunc(name string, argc int) (*FuncMeta, error) {
	m, ok := funcsByName[name]
	if !ok {
		return nil, &UnknownFunctionError{Name: name}
	}
	if argc < m.MinArity || argc > m.MaxArity {
		return nil, &ArityMismatchError{Name: name, Got: argc, Min: m.MinArity, Max: m.MaxArity}
	}
	return m, nil
}

// FuncByID returns the registry entry for a function ID.
func FuncByID(id FuncID) *FuncMeta {
	if id <= FnInvalid || id >= fnMax {
		return nil
	}
	return funcsByID[id]
}

// Functions returns the full registry in declaration order, for the CLI and
// the pipeline visualizer.
func Functions() []FuncMeta {
	out := make([]FuncMeta, len(funcTable))
	copy(out, funcTable)
	return out
}
