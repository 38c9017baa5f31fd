// Package vm holds the back half of the engine: the compiler that lowers
// typed IR into a flat bytecode Plan, and the stack machine that executes a
// Plan against a document. Plans are immutable once compiled and safe for
// concurrent evaluation; all per-evaluation state lives in the machine.
package vm

import (
	"fmt"
	"strings"

	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// ============================================================================
// Instruction encoding
// ============================================================================

// Opcode identifies one VM operation.
type Opcode uint8

const (
	opNop Opcode = iota

	// pushes
	opConst // push consts[a] as a collection
	opThis  // push the focus collection
	opIndex // push $index
	opTotal // push $total
	opEnv   // push environment variable Names[a]

	// navigation
	opField      // pop c; push field Names[a] of every element
	opChoice     // pop c; push the present variant of Choices[a] per element
	opTypeFilter // pop c; keep elements whose declared type is Names[a]
	opSubscript  // pop index, pop c; push the indexed element

	// operators
	opBinary // pop r, pop l; push Op(a) result
	opLogic  // pop l; rhs is Subs[b]; push short-circuit Op(a) result
	opNeg    // pop c; push arithmetic negation

	// type operations
	opIs     // pop c; push singleton type test against Types[a]
	opAs     // pop c; push elements cast to Types[a]
	opOfType // pop c; push elements matching Types[a]

	// calls
	opCall // pop b args then receiver; dispatch builtin FuncID(a)
	opIif  // pop cond; then = Subs[a], else = Subs[b] (b = -1 when absent)

	// combinators: pop source, run Subs[a] per element
	opWhere
	opSelect
	opRepeat
	opExists
	opAll
	opAggregate // b = 1 when an init value was pushed before the source
)

var opcodeNames = [...]string{
	"nop", "const", "this", "index", "total", "env",
	"field", "choice", "typefilter", "subscript",
	"binary", "logic", "neg",
	"is", "as", "oftype",
	"call", "iif",
	"where", "select", "repeat", "exists", "all", "aggregate",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instr is one packed instruction: an opcode plus two operand slots whose
// meaning depends on the opcode.
type Instr struct {
	Op   Opcode
	A, B int32
}

// ============================================================================
// Plans
// ============================================================================

// Plan is a compiled expression: a flat instruction sequence plus its operand
// pools. Combinator bodies, short-circuit right operands and iif branches are
// compiled as nested sub-plans executed per element with their own focus.
type Plan struct {
	// Expr is the source text, kept for diagnostics and logging.
	Expr string

	Code    []Instr
	Consts  []value.Value
	Names   []string
	Choices [][]string
	Types   []ir.TypeSpec
	Subs    []*Plan
}

// Disassemble renders the plan (and its sub-plans) as a human-readable
// listing, one instruction per line.
func (p *Plan) Disassemble() string {
	var sb strings.Builder
	p.disasm(&sb, "plan", "")
	return sb.String()
}

func (p *Plan) disasm(sb *strings.Builder, label, indent string) {
	fmt.Fprintf(sb, "%s%s:\n", indent, label)
	for i, ins := range p.Code {
		fmt.Fprintf(sb, "%s  %3d  %-10s", indent, i, ins.Op)
		switch ins.Op {
		case opConst:
			fmt.Fprintf(sb, " %s", p.Consts[ins.A])
		case opEnv, opField, opTypeFilter:
			fmt.Fprintf(sb, " %s", p.Names[ins.A])
		case opChoice:
			fmt.Fprintf(sb, " %s", strings.Join(p.Choices[ins.A], "|"))
		case opBinary:
			fmt.Fprintf(sb, " %s", ir.Op(ins.A))
		case opLogic:
			fmt.Fprintf(sb, " %s sub=%d", ir.Op(ins.A), ins.B)
		case opIs, opAs, opOfType:
			fmt.Fprintf(sb, " %s", p.Types[ins.A])
		case opCall:
			if m := ir.FuncByID(ir.FuncID(ins.A)); m != nil {
				fmt.Fprintf(sb, " %s/%d", m.Name, ins.B)
			}
		case opIif:
			fmt.Fprintf(sb, " then=%d else=%d", ins.A, ins.B)
		case opWhere, opSelect, opRepeat, opExists, opAll, opAggregate:
			fmt.Fprintf(sb, " sub=%d", ins.A)
		}
		sb.WriteByte('\n')
	}
	for i, sub := range p.Subs {
		sub.disasm(sb, fmt.Sprintf("sub %d", i), indent+"  ")
	}
}
