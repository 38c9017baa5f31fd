package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// stringBuiltin dispatches the string function family. The receiver must be
// empty (propagates) or a single string; element counts above one and
// non-string receivers are type errors.
func stringBuiltin(id ir.FuncID, recv value.Collection, args []value.Collection) (value.Collection, error) {
	meta := ir.FuncByID(id)

	// join operates on the whole collection rather than a singleton.
	if id == ir.FnJoin {
		return join(recv, args)
	}

	if recv.IsEmpty() {
		return value.Collection{}, nil
	}
	if recv.Len() > 1 {
		return value.Collection{}, typeErrf(meta.Name, "singleton required, got %d elements", recv.Len())
	}
	v := recv.Get(0)
	if v.Kind() != value.KindString {
		return value.Collection{}, typeErrf(meta.Name, "requires a string, got %s", v.Kind())
	}
	s := v.Str()

	switch id {
	// Strings are character sequences: positions and lengths count runes,
	// not bytes.
	case ir.FnLength:
		return value.Singleton(value.NewInteger(int64(utf8.RuneCountInString(s)))), nil

	case ir.FnUpper:
		return value.Singleton(value.NewString(strings.ToUpper(s))), nil

	case ir.FnLower:
		return value.Singleton(value.NewString(strings.ToLower(s))), nil

	case ir.FnTrim:
		return value.Singleton(value.NewString(strings.TrimSpace(s))), nil

	case ir.FnToChars:
		var out value.Collection
		for _, r := range s {
			out = out.Append(value.NewString(string(r)))
		}
		return out, nil

	case ir.FnIndexOf:
		sub, ok, err := stringArg("indexOf", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		idx := int64(-1)
		if i := strings.Index(s, sub); i >= 0 {
			idx = int64(utf8.RuneCountInString(s[:i]))
		}
		return value.Singleton(value.NewInteger(idx)), nil

	case ir.FnStartsWith:
		sub, ok, err := stringArg("startsWith", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		return boolCol(strings.HasPrefix(s, sub)), nil

	case ir.FnEndsWith:
		sub, ok, err := stringArg("endsWith", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		return boolCol(strings.HasSuffix(s, sub)), nil

	case ir.FnContains:
		sub, ok, err := stringArg("contains", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		return boolCol(strings.Contains(s, sub)), nil

	case ir.FnSubstring:
		return substring(s, args)

	case ir.FnReplace:
		pat, ok, err := stringArg("replace", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		sub, ok, err := stringArg("replace", args[1])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		return value.Singleton(value.NewString(strings.ReplaceAll(s, pat, sub))), nil

	case ir.FnMatches:
		pat, ok, err := stringArg("matches", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		re, err := compilePattern("matches", pat)
		if err != nil {
			return value.Collection{}, err
		}
		return boolCol(re.MatchString(s)), nil

	case ir.FnReplaceMatches:
		pat, ok, err := stringArg("replaceMatches", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		sub, ok, err := stringArg("replaceMatches", args[1])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		re, err := compilePattern("replaceMatches", pat)
		if err != nil {
			return value.Collection{}, err
		}
		return value.Singleton(value.NewString(re.ReplaceAllString(s, sub))), nil

	case ir.FnSplit:
		sep, ok, err := stringArg("split", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		var out value.Collection
		for _, part := range strings.Split(s, sep) {
			out = out.Append(value.NewString(part))
		}
		return out, nil
	}
	return value.Collection{}, evalErrf("no runtime for string function %s", meta.Name)
}

// substring implements substring(start [, length]) over rune positions: a
// start outside the string yields empty, and length is clamped to the
// remainder.
func substring(s string, args []value.Collection) (value.Collection, error) {
	start, ok, err := intArg("substring", args[0])
	if err != nil || !ok {
		return value.Collection{}, err
	}
	runes := []rune(s)
	if start < 0 || start >= int64(len(runes)) {
		return value.Collection{}, nil
	}
	end := int64(len(runes))
	if len(args) == 2 {
		n, lok, err := intArg("substring", args[1])
		if err != nil {
			return value.Collection{}, err
		}
		if !lok {
			return value.Collection{}, nil
		}
		if n < 0 {
			return value.Collection{}, nil
		}
		if start+n < end {
			end = start + n
		}
	}
	return value.Singleton(value.NewString(string(runes[start:end]))), nil
}

// join concatenates a collection of strings with an optional separator.
func join(recv value.Collection, args []value.Collection) (value.Collection, error) {
	sep := ""
	if len(args) == 1 {
		s, ok, err := stringArg("join", args[0])
		if err != nil {
			return value.Collection{}, err
		}
		if ok {
			sep = s
		}
	}
	parts := make([]string, 0, recv.Len())
	for i := 0; i < recv.Len(); i++ {
		v := recv.Get(i)
		if v.Kind() != value.KindString {
			return value.Collection{}, typeErrf("join", "element %d is %s, not string", i, v.Kind())
		}
		parts = append(parts, v.Str())
	}
	return value.Singleton(value.NewString(strings.Join(parts, sep))), nil
}
