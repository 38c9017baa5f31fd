package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ============================================================================
// StructureDefinition wire model
// ============================================================================

// StructureDefinition is the subset of the FHIR R4 resource the registry
// consumes.
type StructureDefinition struct {
	ResourceType   string             `json:"resourceType"`
	URL            string             `json:"url"`
	Name           string             `json:"name"`
	Kind           string             `json:"kind"` // primitive-type, complex-type, resource, logical
	Abstract       bool               `json:"abstract"`
	Type           string             `json:"type"`
	BaseDefinition string             `json:"baseDefinition,omitempty"`
	Derivation     string             `json:"derivation,omitempty"`
	Snapshot       *StructureSnapshot `json:"snapshot,omitempty"`
}

// StructureSnapshot carries the fully-resolved element list.
type StructureSnapshot struct {
	Element []ElementDefinition `json:"element"`
}

// ElementDefinition is one snapshot element.
type ElementDefinition struct {
	ID   string        `json:"id,omitempty"`
	Path string        `json:"path"`
	Min  *uint32       `json:"min,omitempty"`
	Max  string        `json:"max,omitempty"` // "1", "*", ...
	Type []ElementType `json:"type,omitempty"`
}

// ElementType declares one permitted datatype for an element.
type ElementType struct {
	Code string `json:"code"`
}

// ============================================================================
// Registry
// ============================================================================

// Registry is a thread-safe in-memory Provider backed by registered type
// definitions. A fresh Registry is pre-seeded with the base FHIR R4 types
// the engine's own tests and default deployments rely on; hosts layer their
// package content on top with Register or LoadStructureDefinition.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeDefinition
}

// NewRegistry creates a registry seeded with the built-in base definitions.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*TypeDefinition)}
	seedBaseTypes(r)
	return r
}

// NewEmptyRegistry creates a registry with no definitions at all, for hosts
// that supply a complete package.
func NewEmptyRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeDefinition)}
}

// Register adds or replaces a type definition.
func (r *Registry) Register(def *TypeDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Name] = def
}

// ResolveType implements Provider.
func (r *Registry) ResolveType(name string) (*TypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	return def, ok
}

// ResolveElement implements Provider: direct elements first, then expanded
// choice variant names, then the base-type chain.
func (r *Registry) ResolveElement(typeName, field string) (*ElementInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for typeName != "" {
		def, ok := r.types[typeName]
		if !ok {
			return nil, false
		}
		if info, ok := def.Elements[field]; ok {
			out := info
			return &out, true
		}
		// Expanded choice variants: valueQuantity matches the value[x]
		// element narrowed to the one code.
		for stem, info := range def.Elements {
			if !info.IsChoice {
				continue
			}
			for _, code := range info.TypeCodes {
				if ChoiceVariant(stem, code) == field {
					return &ElementInfo{
						TypeCodes: []string{code},
						Min:       0,
						Max:       info.Max,
						IsChoice:  false,
					}, true
				}
			}
		}
		typeName = def.BaseType
	}
	return nil, false
}

// LoadStructureDefinition registers the type described by a
// StructureDefinition JSON document. Only snapshot elements are consumed;
// differential-only definitions are rejected so a half-built type can never
// shadow a complete one.
func (r *Registry) LoadStructureDefinition(data []byte) error {
	var sd StructureDefinition
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("schema: parse StructureDefinition: %w", err)
	}
	if sd.ResourceType != "StructureDefinition" {
		return fmt.Errorf("schema: resourceType %q is not StructureDefinition", sd.ResourceType)
	}
	if sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
		return fmt.Errorf("schema: %s has no snapshot elements", sd.Name)
	}

	name := sd.Type
	if name == "" {
		name = sd.Name
	}
	defs := map[string]*TypeDefinition{
		name: {
			Name:     name,
			URL:      sd.URL,
			Kind:     sd.Kind,
			BaseType: baseTypeName(sd.BaseDefinition),
			Elements: make(map[string]ElementInfo),
		},
	}

	for _, el := range sd.Snapshot.Element {
		parent, field, ok := splitElementPath(el.Path)
		if !ok {
			continue // the root element itself
		}
		owner, exists := defs[parent]
		if !exists {
			// Nested (backbone) element group: synthesize a path-scoped type.
			owner = &TypeDefinition{
				Name:     parent,
				Kind:     "complex-type",
				BaseType: "BackboneElement",
				Elements: make(map[string]ElementInfo),
			}
			defs[parent] = owner
		}
		owner.Elements[strings.TrimSuffix(field, "[x]")] = elementInfo(el)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for n, def := range defs {
		r.types[n] = def
	}
	return nil
}

// splitElementPath splits "Patient.contact.name" into parent
// "Patient.contact" and field "name". Root paths have no parent.
func splitElementPath(path string) (parent, field string, ok bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

// elementInfo converts a snapshot element into engine form. Backbone
// elements are typed by their own dotted path so navigation through them
// resolves against the synthesized group type.
func elementInfo(el ElementDefinition) ElementInfo {
	info := ElementInfo{
		IsChoice: strings.HasSuffix(el.Path, "[x]"),
	}
	if el.Min != nil {
		info.Min = *el.Min
	}
	switch el.Max {
	case "", "*":
		info.Max = nil
	default:
		if n, err := strconv.ParseUint(el.Max, 10, 32); err == nil {
			m := uint32(n)
			info.Max = &m
		}
	}
	for _, t := range el.Type {
		code := t.Code
		if code == "BackboneElement" || code == "Element" {
			code = el.Path // path-scoped group type
		}
		info.TypeCodes = append(info.TypeCodes, code)
	}
	return info
}

// baseTypeName extracts the type name from a baseDefinition canonical URL.
func baseTypeName(url string) string {
	if url == "" {
		return ""
	}
	i := strings.LastIndexByte(url, '/')
	return url[i+1:]
}
