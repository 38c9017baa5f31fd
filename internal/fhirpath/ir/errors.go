package ir

import "fmt"

// UnknownFunctionError reports a call to a function the registry does not
// know. Surfaced by the analyzer; always fatal to compilation.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("fhirpath: unknown function %q", e.Name)
}

// ArityMismatchError reports a call with the wrong number of arguments.
type ArityMismatchError struct {
	Name     string
	Got      int
	Min, Max int
}

func (e *ArityMismatchError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("fhirpath: %s expects %d argument(s), got %d", e.Name, e.Min, e.Got)
	}
	return fmt.Sprintf("fhirpath: %s expects %d..%d arguments, got %d", e.Name, e.Min, e.Max, e.Got)
}

// UndefinedVariableError reports a reference to an implicit variable that
// does not exist ($ names other than this/index/total).
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("fhirpath: undefined variable $%s", e.Name)
}

// UnknownFieldError reports, in strict mode only, navigation into a field
// that none of the resolvable base types declare.
type UnknownFieldError struct {
	Types []string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("fhirpath: unknown field %q on %v", e.Field, e.Types)
}
