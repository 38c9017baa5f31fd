package vm

import "fmt"

// TypeError reports a value of the wrong shape reaching an operation at
// runtime: a non-singleton where a singleton is required, a non-boolean
// condition, an operand kind an operator does not accept.
type TypeError struct {
	Op  string
	Msg string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("fhirpath: %s: %s", e.Op, e.Msg)
}

func typeErrf(op, format string, args ...any) error {
	return &TypeError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidOperationError reports an operation invoked with arguments outside
// its defined domain, such as a negative count passed to skip or take.
type InvalidOperationError struct {
	Op  string
	Msg string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("fhirpath: %s: %s", e.Op, e.Msg)
}

func invalidOpf(op, format string, args ...any) error {
	return &InvalidOperationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// EvalError reports a failure of the evaluation machinery itself: an
// undefined environment variable, a malformed plan, an unconvertible unit.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return "fhirpath: " + e.Msg
}

func evalErrf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}
