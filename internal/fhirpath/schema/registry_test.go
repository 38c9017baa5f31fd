package schema

import "testing"

func TestResolveElementDirect(t *testing.T) {
	r := NewRegistry()

	info, ok := r.ResolveElement("Patient", "name")
	if !ok {
		t.Fatal("Patient.name not resolved")
	}
	if len(info.TypeCodes) != 1 || info.TypeCodes[0] != "HumanName" {
		t.Errorf("Patient.name types = %v, want [HumanName]", info.TypeCodes)
	}
	if info.Max != nil {
		t.Error("Patient.name should be unbounded")
	}
}

func TestResolveElementBaseChain(t *testing.T) {
	r := NewRegistry()

	// id is declared on Resource, inherited through DomainResource.
	info, ok := r.ResolveElement("Patient", "id")
	if !ok {
		t.Fatal("Patient.id not resolved through base chain")
	}
	if info.TypeCodes[0] != "id" {
		t.Errorf("Patient.id type = %v, want id", info.TypeCodes)
	}

	if _, ok := r.ResolveElement("Patient", "nonExistentField"); ok {
		t.Error("unknown field resolved")
	}
	if _, ok := r.ResolveElement("NoSuchType", "id"); ok {
		t.Error("unknown type resolved")
	}
}

func TestResolveChoiceElement(t *testing.T) {
	r := NewRegistry()

	stem, ok := r.ResolveElement("Observation", "value")
	if !ok || !stem.IsChoice {
		t.Fatalf("Observation.value: want choice element, got %+v ok=%v", stem, ok)
	}

	variant, ok := r.ResolveElement("Observation", "valueQuantity")
	if !ok {
		t.Fatal("Observation.valueQuantity not resolved")
	}
	if variant.IsChoice || len(variant.TypeCodes) != 1 || variant.TypeCodes[0] != "Quantity" {
		t.Errorf("valueQuantity = %+v, want single Quantity", variant)
	}

	if _, ok := r.ResolveElement("Observation", "valueHumanName"); ok {
		t.Error("undeclared choice variant resolved")
	}
}

func TestChoiceVariantNaming(t *testing.T) {
	if got := ChoiceVariant("deceased", "boolean"); got != "deceasedBoolean" {
		t.Errorf("ChoiceVariant = %q, want deceasedBoolean", got)
	}
	if got := ChoiceVariant("value", "CodeableConcept"); got != "valueCodeableConcept" {
		t.Errorf("ChoiceVariant = %q, want valueCodeableConcept", got)
	}
}

func TestLoadStructureDefinition(t *testing.T) {
	r := NewEmptyRegistry()
	sd := `{
		"resourceType": "StructureDefinition",
		"url": "http://hl7.org/fhir/StructureDefinition/Specimen",
		"name": "Specimen",
		"kind": "resource",
		"type": "Specimen",
		"baseDefinition": "http://hl7.org/fhir/StructureDefinition/DomainResource",
		"snapshot": {"element": [
			{"path": "Specimen", "min": 0, "max": "*"},
			{"path": "Specimen.status", "min": 0, "max": "1", "type": [{"code": "code"}]},
			{"path": "Specimen.collection", "min": 0, "max": "1", "type": [{"code": "BackboneElement"}]},
			{"path": "Specimen.collection.collected[x]", "min": 0, "max": "1",
			 "type": [{"code": "dateTime"}, {"code": "Period"}]}
		]}
	}`
	if err := r.LoadStructureDefinition([]byte(sd)); err != nil {
		t.Fatalf("LoadStructureDefinition: %v", err)
	}

	def, ok := r.ResolveType("Specimen")
	if !ok {
		t.Fatal("Specimen not registered")
	}
	if def.BaseType != "DomainResource" {
		t.Errorf("BaseType = %q, want DomainResource", def.BaseType)
	}

	coll, ok := r.ResolveElement("Specimen", "collection")
	if !ok || coll.TypeCodes[0] != "Specimen.collection" {
		t.Fatalf("Specimen.collection = %+v ok=%v, want path-scoped type", coll, ok)
	}
	collected, ok := r.ResolveElement("Specimen.collection", "collectedDateTime")
	if !ok || collected.TypeCodes[0] != "dateTime" {
		t.Errorf("collectedDateTime = %+v ok=%v", collected, ok)
	}
}

func TestLoadStructureDefinitionRejectsDifferentialOnly(t *testing.T) {
	r := NewEmptyRegistry()
	err := r.LoadStructureDefinition([]byte(`{
		"resourceType": "StructureDefinition",
		"name": "X", "kind": "resource", "type": "X"
	}`))
	if err == nil {
		t.Error("definition without snapshot must be rejected")
	}
}
