// Package schema answers the engine's two questions about the data model:
// "does type T exist" and "does type T have element E, with what types and
// cardinality". The in-memory Registry implementation is loaded from FHIR
// StructureDefinition resources (snapshot elements) or registered
// programmatically; absence is always a valid, non-error answer.
package schema

import "strings"

// ElementInfo describes one declared element of a type.
type ElementInfo struct {
	// TypeCodes are the declared datatype codes. A choice element lists every
	// permitted code.
	TypeCodes []string
	// Min is the declared minimum cardinality.
	Min uint32
	// Max is the declared maximum cardinality; nil means unbounded (*).
	Max *uint32
	// IsChoice marks a polymorphic element (path ending in [x]); the data
	// carries one concretely-named variant field per type code.
	IsChoice bool
}

// TypeDefinition is the engine-facing view of a structure definition.
type TypeDefinition struct {
	Name     string
	URL      string
	Kind     string // primitive-type, complex-type, resource, logical
	BaseType string
	// Elements maps field name (choice fields by their stem, without [x]) to
	// their declared info.
	Elements map[string]ElementInfo
}

// Provider resolves type and element declarations. Implementations must be
// safe for concurrent use; lookups are expected to be cheap and repeatable.
type Provider interface {
	// ResolveType fetches a named type definition.
	ResolveType(name string) (*TypeDefinition, bool)
	// ResolveElement looks up field on typeName, following the base-type
	// chain. The field may be a choice stem ("value") or an expanded choice
	// variant ("valueQuantity"); variants resolve to the single matching
	// type code.
	ResolveElement(typeName, field string) (*ElementInfo, bool)
}

// ChoiceVariant builds the concrete field name for one type code of a choice
// element: stem + type code with its first letter capitalized.
func ChoiceVariant(stem, code string) string {
	if code == "" {
		return stem
	}
	return stem + strings.ToUpper(code[:1]) + code[1:]
}

// ChoiceVariants expands a choice element into its concrete field names, in
// declared type-code order.
func ChoiceVariants(stem string, info *ElementInfo) []string {
	out := make([]string, 0, len(info.TypeCodes))
	for _, code := range info.TypeCodes {
		out = append(out, ChoiceVariant(stem, code))
	}
	return out
}

// MaxOne returns a pointer to a max cardinality of one, the common bound for
// scalar elements.
func MaxOne() *uint32 { v := uint32(1); return &v }
