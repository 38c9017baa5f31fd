package vm

import (
	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// Compile lowers a typed IR tree into an executable Plan. The tree must have
// been through the analyzer; type resolution is optional (unresolved trees
// compile to fully dynamic navigation).
func Compile(root *ir.Node, expr string) (*Plan, error) {
	c := &compiler{plan: &Plan{Expr: expr}}
	if err := c.compile(root); err != nil {
		return nil, err
	}
	return c.plan, nil
}

type compiler struct {
	plan *Plan
}

func (c *compiler) emit(op Opcode, a, b int32) {
	c.plan.Code = append(c.plan.Code, Instr{Op: op, A: a, B: b})
}

func (c *compiler) addConst(v value.Value) int32 {
	c.plan.Consts = append(c.plan.Consts, v)
	return int32(len(c.plan.Consts) - 1)
}

func (c *compiler) addName(s string) int32 {
	for i, existing := range c.plan.Names {
		if existing == s {
			return int32(i)
		}
	}
	c.plan.Names = append(c.plan.Names, s)
	return int32(len(c.plan.Names) - 1)
}

func (c *compiler) addChoice(variants []string) int32 {
	c.plan.Choices = append(c.plan.Choices, variants)
	return int32(len(c.plan.Choices) - 1)
}

func (c *compiler) addType(spec ir.TypeSpec) int32 {
	for i, existing := range c.plan.Types {
		if existing == spec {
			return int32(i)
		}
	}
	c.plan.Types = append(c.plan.Types, spec)
	return int32(len(c.plan.Types) - 1)
}

// addSub compiles a nested expression into its own plan.
func (c *compiler) addSub(n *ir.Node) (int32, error) {
	sub, err := Compile(n, "")
	if err != nil {
		return 0, err
	}
	c.plan.Subs = append(c.plan.Subs, sub)
	return int32(len(c.plan.Subs) - 1), nil
}

// compile emits instructions leaving the node's result on the stack.
func (c *compiler) compile(n *ir.Node) error {
	switch n.Kind {
	case ir.KindLiteral:
		c.emit(opConst, c.addConst(n.Lit), 0)
		return nil

	case ir.KindVariable:
		switch n.Slot {
		case ir.SlotIndex:
			c.emit(opIndex, 0, 0)
		case ir.SlotTotal:
			c.emit(opTotal, 0, 0)
		default:
			c.emit(opThis, 0, 0)
		}
		return nil

	case ir.KindEnvVar:
		c.emit(opEnv, c.addName(n.Name), 0)
		return nil

	case ir.KindPath:
		if err := c.compileReceiver(n.Base); err != nil {
			return err
		}
		for i := range n.Segs {
			if err := c.compileSegment(&n.Segs[i]); err != nil {
				return err
			}
		}
		return nil

	case ir.KindBinary:
		if err := c.compile(n.Left); err != nil {
			return err
		}
		if n.Op.ShortCircuits() {
			sub, err := c.addSub(n.Right)
			if err != nil {
				return err
			}
			c.emit(opLogic, int32(n.Op), sub)
			return nil
		}
		if err := c.compile(n.Right); err != nil {
			return err
		}
		c.emit(opBinary, int32(n.Op), 0)
		return nil

	case ir.KindUnary:
		if err := c.compile(n.Base); err != nil {
			return err
		}
		c.emit(opNeg, 0, 0)
		return nil

	case ir.KindTypeOp:
		if err := c.compileReceiver(n.Base); err != nil {
			return err
		}
		op := opIs
		if n.Name == "as" {
			op = opAs
		}
		c.emit(op, c.addType(n.Spec), 0)
		return nil

	case ir.KindCall:
		return c.compileCall(n)

	case ir.KindWhere, ir.KindSelect, ir.KindRepeat,
		ir.KindAggregate, ir.KindExists, ir.KindAll:
		return c.compileCombinator(n)
	}
	return evalErrf("cannot compile node %v", n.Kind)
}

// compileReceiver pushes the receiver collection, defaulting to the focus.
func (c *compiler) compileReceiver(base *ir.Node) error {
	if base == nil {
		c.emit(opThis, 0, 0)
		return nil
	}
	return c.compile(base)
}

func (c *compiler) compileSegment(seg *ir.Segment) error {
	switch seg.Kind {
	case ir.SegIndex:
		if err := c.compile(seg.Index); err != nil {
			return err
		}
		c.emit(opSubscript, 0, 0)
	case ir.SegChoice:
		c.emit(opChoice, c.addChoice(seg.Variants), 0)
	case ir.SegTypeAssert:
		c.emit(opTypeFilter, c.addName(seg.Name), 0)
	default:
		c.emit(opField, c.addName(seg.Name), 0)
	}
	return nil
}

func (c *compiler) compileCall(n *ir.Node) error {
	switch n.Func {
	case ir.FnIif:
		// Condition is eager; branches must not evaluate unless selected.
		if err := c.compile(n.Args[0]); err != nil {
			return err
		}
		thenSub, err := c.addSub(n.Args[1])
		if err != nil {
			return err
		}
		elseSub := int32(-1)
		if len(n.Args) == 3 {
			elseSub, err = c.addSub(n.Args[2])
			if err != nil {
				return err
			}
		}
		c.emit(opIif, thenSub, elseSub)
		return nil

	case ir.FnOfType:
		if err := c.compileReceiver(n.Base); err != nil {
			return err
		}
		c.emit(opOfType, c.addType(n.Spec), 0)
		return nil
	}

	if err := c.compileReceiver(n.Base); err != nil {
		return err
	}
	for _, arg := range n.Args {
		if err := c.compile(arg); err != nil {
			return err
		}
	}
	c.emit(opCall, int32(n.Func), int32(len(n.Args)))
	return nil
}

func (c *compiler) compileCombinator(n *ir.Node) error {
	if n.Kind == ir.KindAggregate && n.Init != nil {
		if err := c.compile(n.Init); err != nil {
			return err
		}
	}
	if err := c.compileReceiver(n.Base); err != nil {
		return err
	}
	sub, err := c.addSub(n.Body)
	if err != nil {
		return err
	}
	var op Opcode
	switch n.Kind {
	case ir.KindWhere:
		op = opWhere
	case ir.KindSelect:
		op = opSelect
	case ir.KindRepeat:
		op = opRepeat
	case ir.KindExists:
		op = opExists
	case ir.KindAll:
		op = opAll
	case ir.KindAggregate:
		op = opAggregate
	}
	hasInit := int32(0)
	if n.Kind == ir.KindAggregate && n.Init != nil {
		hasInit = 1
	}
	c.emit(op, sub, hasInit)
	return nil
}
