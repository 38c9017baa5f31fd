package vm

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// mathBuiltin dispatches the math function family. The receiver must be
// empty (propagates) or a single number; domain violations (sqrt of a
// negative, ln of zero) yield empty rather than errors.
func mathBuiltin(id ir.FuncID, recv value.Collection, args []value.Collection) (value.Collection, error) {
	meta := ir.FuncByID(id)
	if recv.IsEmpty() {
		return value.Collection{}, nil
	}
	if recv.Len() > 1 {
		return value.Collection{}, typeErrf(meta.Name, "singleton required, got %d elements", recv.Len())
	}
	v := recv.Get(0)

	if id == ir.FnAbs && v.Kind() == value.KindQuantity {
		return value.Singleton(value.NewQuantity(absDec(v.Decimal()), v.Unit())), nil
	}
	if !isNumberKind(v.Kind()) {
		return value.Collection{}, typeErrf(meta.Name, "requires a number, got %s", v.Kind())
	}

	dctx := value.DecimalContext()

	switch id {
	case ir.FnAbs:
		if v.Kind() == value.KindInteger {
			n := v.Int()
			if n < 0 {
				n = -n
			}
			return value.Singleton(value.NewInteger(n)), nil
		}
		return value.Singleton(value.NewDecimal(absDec(v.Decimal()))), nil

	case ir.FnCeiling, ir.FnFloor:
		if v.Kind() == value.KindInteger {
			return recv, nil
		}
		res := new(apd.Decimal)
		var err error
		if id == ir.FnCeiling {
			_, err = dctx.Ceil(res, v.Decimal())
		} else {
			_, err = dctx.Floor(res, v.Decimal())
		}
		if err != nil {
			return value.Collection{}, nil
		}
		return intResult(res)

	case ir.FnTruncate:
		if v.Kind() == value.KindInteger {
			return recv, nil
		}
		n, err := truncInt(v.Decimal())
		if err != nil {
			return value.Collection{}, nil
		}
		return value.Singleton(value.NewInteger(n)), nil

	case ir.FnExp:
		res := new(apd.Decimal)
		if _, err := dctx.Exp(res, widenDecimal(v)); err != nil {
			return value.Collection{}, nil
		}
		return value.Singleton(value.NewDecimal(res)), nil

	case ir.FnLn:
		res := new(apd.Decimal)
		if _, err := dctx.Ln(res, widenDecimal(v)); err != nil {
			return value.Collection{}, nil
		}
		return value.Singleton(value.NewDecimal(res)), nil

	case ir.FnLog:
		base, ok, err := numberArg("log", args[0])
		if err != nil || !ok {
			return value.Collection{}, err
		}
		lnX, lnBase := new(apd.Decimal), new(apd.Decimal)
		if _, err := dctx.Ln(lnX, widenDecimal(v)); err != nil {
			return value.Collection{}, nil
		}
		if _, err := dctx.Ln(lnBase, base); err != nil || lnBase.IsZero() {
			return value.Collection{}, nil
		}
		res := new(apd.Decimal)
		if _, err := dctx.Quo(res, lnX, lnBase); err != nil {
			return value.Collection{}, nil
		}
		return value.Singleton(value.NewDecimal(res)), nil

	case ir.FnPower:
		return power(v, args[0])

	case ir.FnSqrt:
		if v.Kind() == value.KindDecimal && v.Decimal().Negative {
			return value.Collection{}, nil
		}
		if v.Kind() == value.KindInteger && v.Int() < 0 {
			return value.Collection{}, nil
		}
		res := new(apd.Decimal)
		if _, err := dctx.Sqrt(res, widenDecimal(v)); err != nil {
			return value.Collection{}, nil
		}
		return value.Singleton(value.NewDecimal(res)), nil

	case ir.FnRound:
		return round(v, args)
	}
	return value.Collection{}, evalErrf("no runtime for math function %s", meta.Name)
}

func absDec(d *apd.Decimal) *apd.Decimal {
	return new(apd.Decimal).Abs(d)
}

// intResult narrows an integral decimal to an Integer value.
func intResult(d *apd.Decimal) (value.Collection, error) {
	n, err := d.Int64()
	if err != nil {
		return value.Singleton(value.NewDecimal(d)), nil
	}
	return value.Singleton(value.NewInteger(n)), nil
}

func numberArg(op string, c value.Collection) (*apd.Decimal, bool, error) {
	if c.IsEmpty() {
		return nil, false, nil
	}
	if c.Len() > 1 || !isNumberKind(c.Get(0).Kind()) {
		return nil, false, typeErrf(op, "expected a single number argument, got %s", c)
	}
	return widenDecimal(c.Get(0)), true, nil
}

// power keeps integer results integral: an integer base with a non-negative
// integer exponent yields an Integer; everything else yields Decimal. A
// negative base with a fractional exponent has no real result and yields
// empty.
func power(v value.Value, expArg value.Collection) (value.Collection, error) {
	if expArg.IsEmpty() {
		return value.Collection{}, nil
	}
	if expArg.Len() > 1 || !isNumberKind(expArg.Get(0).Kind()) {
		return value.Collection{}, typeErrf("power", "expected a single number argument, got %s", expArg)
	}
	e := expArg.Get(0)

	res := new(apd.Decimal)
	if _, err := value.DecimalContext().Pow(res, widenDecimal(v), widenDecimal(e)); err != nil {
		return value.Collection{}, nil
	}
	if v.Kind() == value.KindInteger && e.Kind() == value.KindInteger && e.Int() >= 0 {
		return intResult(res)
	}
	return value.Singleton(value.NewDecimal(res)), nil
}

// round implements round([precision]) with half-away-from-zero rounding at
// the given number of decimal places.
func round(v value.Value, args []value.Collection) (value.Collection, error) {
	prec := int64(0)
	if len(args) == 1 {
		n, ok, err := intArg("round", args[0])
		if err != nil {
			return value.Collection{}, err
		}
		if ok {
			if n < 0 {
				return value.Collection{}, invalidOpf("round", "negative precision %d", n)
			}
			prec = n
		}
	}
	dctx := *value.DecimalContext()
	dctx.Rounding = apd.RoundHalfUp
	res := new(apd.Decimal)
	if _, err := dctx.Quantize(res, widenDecimal(v), int32(-prec)); err != nil {
		return value.Collection{}, nil
	}
	return value.Singleton(value.NewDecimal(res)), nil
}
