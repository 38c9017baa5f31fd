package value

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// UnitConverter is the narrow capability the engine needs from a units
// library: convert a magnitude between two unit strings. Implementations
// must be safe for concurrent use. A full UCUM engine can be plugged in by
// the host; the engine itself only calls Convert.
type UnitConverter interface {
	// Convert returns v expressed in toUnit, or ok=false when the units are
	// not commensurable (or not understood).
	Convert(v *apd.Decimal, fromUnit, toUnit string) (*apd.Decimal, bool)
}

// prefixConverter is the built-in converter: identical units convert as-is,
// and standard metric prefixes on a shared stem are scaled decimally. It
// covers the units that dominate clinical data (mg/g/kg, mL/L, mm/cm/m)
// without a UCUM dependency.
type prefixConverter struct{}

// DefaultConverter returns the built-in prefix-scaling unit converter.
func DefaultConverter() UnitConverter { return prefixConverter{} }

// prefixScale maps metric prefixes to their power of ten.
var prefixScale = map[string]int32{
	"k": 3, "h": 2, "da": 1, "": 0,
	"d": -1, "c": -2, "m": -3, "u": -6, "n": -9, "p": -12,
}

// splitUnit separates a metric prefix from its stem, e.g. "mg" → ("m", "g").
func splitUnit(u string) (prefix, stem string, ok bool) {
	stems := []string{"g", "m", "s", "L", "l", "mol"}
	for _, st := range stems {
		if !strings.HasSuffix(u, st) {
			continue
		}
		p := strings.TrimSuffix(u, st)
		if _, known := prefixScale[p]; known {
			return p, st, true
		}
	}
	return "", "", false
}

func (prefixConverter) Convert(v *apd.Decimal, fromUnit, toUnit string) (*apd.Decimal, bool) {
	if fromUnit == toUnit {
		return v, true
	}
	fp, fs, fok := splitUnit(fromUnit)
	tp, ts, tok := splitUnit(toUnit)
	if !fok || !tok || fs != ts {
		return nil, false
	}
	shift := prefixScale[fp] - prefixScale[tp]
	out := new(apd.Decimal).Set(v)
	out.Exponent += shift
	return out, true
}

// CompareValues orders two values for the relational operators. It promotes
// integers to decimals, converts quantity units through conv, and applies
// precision-aware temporal ordering. ok=false means the comparison is
// indeterminate (empty result); a non-nil error means the operand types are
// not comparable at all.
func CompareValues(a, b Value, conv UnitConverter) (cmp int, ok bool, err error) {
	switch {
	case a.isNumber() && b.isNumber():
		return a.asDecimal().Cmp(b.asDecimal()), true, nil
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.s, b.s), true, nil
	case a.kind == KindQuantity && b.kind == KindQuantity:
		if conv == nil {
			conv = DefaultConverter()
		}
		bv, convOK := conv.Convert(b.d, b.s, a.s)
		if !convOK {
			return 0, false, fmt.Errorf("value: incomparable units %q and %q", a.s, b.s)
		}
		return a.d.Cmp(bv), true, nil
	case (a.kind == KindDate || a.kind == KindDateTime) &&
		(b.kind == KindDate || b.kind == KindDateTime):
		c, determinate := CompareTemporal(a, b)
		return c, determinate, nil
	case a.kind == KindTime && b.kind == KindTime:
		c, determinate := CompareTemporal(a, b)
		return c, determinate, nil
	}
	return 0, false, fmt.Errorf("value: cannot compare %s with %s", a.kind, b.kind)
}
