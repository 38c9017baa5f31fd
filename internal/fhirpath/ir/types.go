package ir

import (
	"fmt"
	"strings"
)

// ============================================================================
// Namespaces and type names
// ============================================================================

// Namespace tags where a type name lives: the language's System primitives,
// the schema's domain model, or unresolved.
type Namespace uint8

const (
	NsSystem Namespace = iota
	NsDomain
	NsUnknown
)

func (ns Namespace) String() string {
	switch ns {
	case NsSystem:
		return "System"
	case NsDomain:
		return "FHIR"
	default:
		return "?"
	}
}

// TypeName is a namespaced type name.
type TypeName struct {
	Ns   Namespace
	Name string
}

// Sys builds a System-namespace type name.
func Sys(name string) TypeName { return TypeName{Ns: NsSystem, Name: name} }

// Dom builds a domain-namespace type name.
func Dom(name string) TypeName { return TypeName{Ns: NsDomain, Name: name} }

func (t TypeName) String() string { return t.Ns.String() + "." + t.Name }

// systemPrimitives maps the domain primitive type codes onto their System
// counterparts for operator typing.
var systemPrimitives = map[string]string{
	"boolean": "Boolean", "integer": "Integer", "positiveInt": "Integer",
	"unsignedInt": "Integer", "decimal": "Decimal", "string": "String",
	"code": "String", "id": "String", "markdown": "String", "uri": "String",
	"url": "String", "canonical": "String", "oid": "String", "uuid": "String",
	"base64Binary": "String", "xhtml": "String", "date": "Date",
	"dateTime": "DateTime", "instant": "DateTime", "time": "Time",
	"Quantity": "Quantity",
}

// FromTypeCode converts a schema type code into a TypeName, lifting FHIR
// primitives into the System namespace.
func FromTypeCode(code string) TypeName {
	if sys, ok := systemPrimitives[code]; ok {
		return Sys(sys)
	}
	return Dom(code)
}

// ============================================================================
// Type sets
// ============================================================================

// TypeSet is the set of possible static types of an expression, or Unknown
// when inference could not narrow further.
type TypeSet struct {
	names   []TypeName
	unknown bool
}

// UnknownSet returns the Unknown type set.
func UnknownSet() TypeSet { return TypeSet{unknown: true} }

// NewTypeSet builds a set from the given names, de-duplicated.
func NewTypeSet(names ...TypeName) TypeSet {
	var s TypeSet
	for _, n := range names {
		s = s.Add(n)
	}
	return s
}

// IsUnknown reports whether the set is Unknown.
func (s TypeSet) IsUnknown() bool { return s.unknown }

// Names returns the member names. Nil for Unknown sets.
func (s TypeSet) Names() []TypeName { return s.names }

// Add returns s with name included. Adding to Unknown keeps Unknown.
func (s TypeSet) Add(name TypeName) TypeSet {
	if s.unknown {
		return s
	}
	for _, existing := range s.names {
		if existing == name {
			return s
		}
	}
	out := make([]TypeName, len(s.names)+1)
	copy(out, s.names)
	out[len(s.names)] = name
	return TypeSet{names: out}
}

// Union returns the set union. Unknown absorbs.
func (s TypeSet) Union(other TypeSet) TypeSet {
	if s.unknown || other.unknown {
		return UnknownSet()
	}
	out := s
	for _, n := range other.names {
		out = out.Add(n)
	}
	return out
}

// Contains reports membership.
func (s TypeSet) Contains(name TypeName) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Only reports whether every member is exactly name (and the set is known
// and non-empty).
func (s TypeSet) Only(name TypeName) bool {
	if s.unknown || len(s.names) == 0 {
		return false
	}
	for _, n := range s.names {
		if n != name {
			return false
		}
	}
	return true
}

// OnlyNumeric reports whether every member is System.Integer or
// System.Decimal, and whether any member is Decimal.
func (s TypeSet) OnlyNumeric() (numeric, anyDecimal bool) {
	if s.unknown || len(s.names) == 0 {
		return false, false
	}
	for _, n := range s.names {
		switch n {
		case Sys("Integer"):
		case Sys("Decimal"):
			anyDecimal = true
		default:
			return false, false
		}
	}
	return true, anyDecimal
}

func (s TypeSet) String() string {
	if s.unknown {
		return "Unknown"
	}
	if len(s.names) == 0 {
		return "∅"
	}
	parts := make([]string, len(s.names))
	for i, n := range s.names {
		parts[i] = n.String()
	}
	return strings.Join(parts, "|")
}

// ============================================================================
// Cardinality
// ============================================================================

// Cardinality is the {min, max} occurrence bound of an expression.
type Cardinality struct {
	Min       uint32
	Max       uint32
	Unbounded bool
}

// Card builds a bounded cardinality.
func Card(min, max uint32) Cardinality { return Cardinality{Min: min, Max: max} }

// CardMany builds an unbounded cardinality with the given minimum.
func CardMany(min uint32) Cardinality { return Cardinality{Min: min, Unbounded: true} }

// One is the 1..1 cardinality.
func One() Cardinality { return Card(1, 1) }

// Opt is the 0..1 cardinality.
func Opt() Cardinality { return Card(0, 1) }

// Zero is the 0..0 cardinality of the empty literal.
func Zero() Cardinality { return Card(0, 0) }

// Mul composes sequential navigation: ranges multiply.
func (c Cardinality) Mul(other Cardinality) Cardinality {
	out := Cardinality{Min: c.Min * other.Min}
	if c.Unbounded || other.Unbounded {
		// 0 × unbounded is still 0.
		if (c.Max == 0 && !c.Unbounded) || (other.Max == 0 && !other.Unbounded) {
			return Cardinality{Min: out.Min, Max: 0}
		}
		out.Unbounded = true
		return out
	}
	out.Max = c.Max * other.Max
	return out
}

// Add composes union/combination: bounds add.
func (c Cardinality) Add(other Cardinality) Cardinality {
	out := Cardinality{Min: c.Min + other.Min}
	if c.Unbounded || other.Unbounded {
		out.Unbounded = true
		return out
	}
	out.Max = c.Max + other.Max
	return out
}

// Filtered lowers the minimum to zero, preserving the maximum.
func (c Cardinality) Filtered() Cardinality {
	c.Min = 0
	return c
}

// MaxOf returns the larger of the two maxima.
func (c Cardinality) MaxOf(other Cardinality) Cardinality {
	out := Cardinality{Min: c.Min}
	if other.Min < out.Min {
		out.Min = other.Min
	}
	if c.Unbounded || other.Unbounded {
		out.Unbounded = true
		return out
	}
	out.Max = c.Max
	if other.Max > out.Max {
		out.Max = other.Max
	}
	return out
}

func (c Cardinality) String() string {
	if c.Unbounded {
		return fmt.Sprintf("%d..*", c.Min)
	}
	return fmt.Sprintf("%d..%d", c.Min, c.Max)
}

// ============================================================================
// ExprType
// ============================================================================

// ExprType is the static type of an IR node: a type set plus a cardinality
// range.
type ExprType struct {
	Set  TypeSet
	Card Cardinality
}

// UnknownType returns Unknown with the given cardinality.
func UnknownType(card Cardinality) ExprType {
	return ExprType{Set: UnknownSet(), Card: card}
}

// SysType returns a singleton System type with the given cardinality.
func SysType(name string, card Cardinality) ExprType {
	return ExprType{Set: NewTypeSet(Sys(name)), Card: card}
}

// BoolType is the fixed type of comparisons and logical operators.
func BoolType() ExprType { return SysType("Boolean", One()) }

func (t ExprType) String() string {
	return t.Set.String() + " " + t.Card.String()
}
