package schema

// Built-in seed definitions: the FHIR R4 primitives plus the resources and
// datatypes the engine's default deployment exercises. Hosts replace or
// extend these by loading package StructureDefinitions.

// primitiveTypes are registered with no elements; navigation into them
// terminates.
var primitiveTypes = []string{
	"boolean", "integer", "string", "decimal", "uri", "url", "canonical",
	"base64Binary", "instant", "date", "dateTime", "time", "code", "oid",
	"id", "markdown", "unsignedInt", "positiveInt", "uuid", "xhtml",
}

// el is shorthand for building seed elements.
func el(min uint32, max *uint32, codes ...string) ElementInfo {
	return ElementInfo{TypeCodes: codes, Min: min, Max: max}
}

// choice is shorthand for building seed choice elements.
func choice(codes ...string) ElementInfo {
	return ElementInfo{TypeCodes: codes, Min: 0, Max: MaxOne(), IsChoice: true}
}

func seedBaseTypes(r *Registry) {
	for _, p := range primitiveTypes {
		r.types[p] = &TypeDefinition{Name: p, Kind: "primitive-type"}
	}

	one := MaxOne()

	r.types["Element"] = &TypeDefinition{
		Name: "Element", Kind: "complex-type",
		Elements: map[string]ElementInfo{
			"id":        el(0, one, "string"),
			"extension": el(0, nil, "Extension"),
		},
	}
	r.types["BackboneElement"] = &TypeDefinition{
		Name: "BackboneElement", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"modifierExtension": el(0, nil, "Extension"),
		},
	}
	r.types["Resource"] = &TypeDefinition{
		Name: "Resource", Kind: "resource",
		Elements: map[string]ElementInfo{
			"id":            el(0, one, "id"),
			"meta":          el(0, one, "Meta"),
			"implicitRules": el(0, one, "uri"),
			"language":      el(0, one, "code"),
		},
	}
	r.types["DomainResource"] = &TypeDefinition{
		Name: "DomainResource", Kind: "resource", BaseType: "Resource",
		Elements: map[string]ElementInfo{
			"text":              el(0, one, "Narrative"),
			"contained":         el(0, nil, "Resource"),
			"extension":         el(0, nil, "Extension"),
			"modifierExtension": el(0, nil, "Extension"),
		},
	}

	// --- datatypes -------------------------------------------------------

	r.types["Extension"] = &TypeDefinition{
		Name: "Extension", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"url": el(1, one, "uri"),
			"value": choice("boolean", "integer", "decimal", "string", "uri",
				"code", "date", "dateTime", "Quantity", "CodeableConcept",
				"Coding", "Reference", "Period", "Identifier"),
		},
	}
	r.types["Narrative"] = &TypeDefinition{
		Name: "Narrative", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"status": el(1, one, "code"),
			"div":    el(1, one, "xhtml"),
		},
	}
	r.types["Meta"] = &TypeDefinition{
		Name: "Meta", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"versionId":   el(0, one, "id"),
			"lastUpdated": el(0, one, "instant"),
			"source":      el(0, one, "uri"),
			"profile":     el(0, nil, "canonical"),
			"security":    el(0, nil, "Coding"),
			"tag":         el(0, nil, "Coding"),
		},
	}
	r.types["HumanName"] = &TypeDefinition{
		Name: "HumanName", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"use":    el(0, one, "code"),
			"text":   el(0, one, "string"),
			"family": el(0, one, "string"),
			"given":  el(0, nil, "string"),
			"prefix": el(0, nil, "string"),
			"suffix": el(0, nil, "string"),
			"period": el(0, one, "Period"),
		},
	}
	r.types["ContactPoint"] = &TypeDefinition{
		Name: "ContactPoint", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"system": el(0, one, "code"),
			"value":  el(0, one, "string"),
			"use":    el(0, one, "code"),
			"rank":   el(0, one, "positiveInt"),
			"period": el(0, one, "Period"),
		},
	}
	r.types["Address"] = &TypeDefinition{
		Name: "Address", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"use":        el(0, one, "code"),
			"type":       el(0, one, "code"),
			"text":       el(0, one, "string"),
			"line":       el(0, nil, "string"),
			"city":       el(0, one, "string"),
			"district":   el(0, one, "string"),
			"state":      el(0, one, "string"),
			"postalCode": el(0, one, "string"),
			"country":    el(0, one, "string"),
			"period":     el(0, one, "Period"),
		},
	}
	r.types["Identifier"] = &TypeDefinition{
		Name: "Identifier", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"use":      el(0, one, "code"),
			"type":     el(0, one, "CodeableConcept"),
			"system":   el(0, one, "uri"),
			"value":    el(0, one, "string"),
			"period":   el(0, one, "Period"),
			"assigner": el(0, one, "Reference"),
		},
	}
	r.types["Period"] = &TypeDefinition{
		Name: "Period", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"start": el(0, one, "dateTime"),
			"end":   el(0, one, "dateTime"),
		},
	}
	r.types["Coding"] = &TypeDefinition{
		Name: "Coding", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"system":       el(0, one, "uri"),
			"version":      el(0, one, "string"),
			"code":         el(0, one, "code"),
			"display":      el(0, one, "string"),
			"userSelected": el(0, one, "boolean"),
		},
	}
	r.types["CodeableConcept"] = &TypeDefinition{
		Name: "CodeableConcept", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"coding": el(0, nil, "Coding"),
			"text":   el(0, one, "string"),
		},
	}
	r.types["Quantity"] = &TypeDefinition{
		Name: "Quantity", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"value":      el(0, one, "decimal"),
			"comparator": el(0, one, "code"),
			"unit":       el(0, one, "string"),
			"system":     el(0, one, "uri"),
			"code":       el(0, one, "code"),
		},
	}
	r.types["Range"] = &TypeDefinition{
		Name: "Range", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"low":  el(0, one, "Quantity"),
			"high": el(0, one, "Quantity"),
		},
	}
	r.types["Ratio"] = &TypeDefinition{
		Name: "Ratio", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"numerator":   el(0, one, "Quantity"),
			"denominator": el(0, one, "Quantity"),
		},
	}
	r.types["SampledData"] = &TypeDefinition{
		Name: "SampledData", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"origin":     el(1, one, "Quantity"),
			"period":     el(1, one, "decimal"),
			"factor":     el(0, one, "decimal"),
			"lowerLimit": el(0, one, "decimal"),
			"upperLimit": el(0, one, "decimal"),
			"dimensions": el(1, one, "positiveInt"),
			"data":       el(0, one, "string"),
		},
	}
	r.types["Reference"] = &TypeDefinition{
		Name: "Reference", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"reference":  el(0, one, "string"),
			"type":       el(0, one, "uri"),
			"identifier": el(0, one, "Identifier"),
			"display":    el(0, one, "string"),
		},
	}
	r.types["Annotation"] = &TypeDefinition{
		Name: "Annotation", Kind: "complex-type", BaseType: "Element",
		Elements: map[string]ElementInfo{
			"author": choice("Reference", "string"),
			"time":   el(0, one, "dateTime"),
			"text":   el(1, one, "markdown"),
		},
	}

	// --- resources -------------------------------------------------------

	r.types["Patient"] = &TypeDefinition{
		Name: "Patient", Kind: "resource", BaseType: "DomainResource",
		Elements: map[string]ElementInfo{
			"identifier":           el(0, nil, "Identifier"),
			"active":               el(0, one, "boolean"),
			"name":                 el(0, nil, "HumanName"),
			"telecom":              el(0, nil, "ContactPoint"),
			"gender":               el(0, one, "code"),
			"birthDate":            el(0, one, "date"),
			"deceased":             choice("boolean", "dateTime"),
			"address":              el(0, nil, "Address"),
			"maritalStatus":        el(0, one, "CodeableConcept"),
			"multipleBirth":        choice("boolean", "integer"),
			"contact":              el(0, nil, "Patient.contact"),
			"communication":        el(0, nil, "Patient.communication"),
			"generalPractitioner":  el(0, nil, "Reference"),
			"managingOrganization": el(0, one, "Reference"),
			"link":                 el(0, nil, "Patient.link"),
		},
	}
	r.types["Patient.contact"] = &TypeDefinition{
		Name: "Patient.contact", Kind: "complex-type", BaseType: "BackboneElement",
		Elements: map[string]ElementInfo{
			"relationship": el(0, nil, "CodeableConcept"),
			"name":         el(0, one, "HumanName"),
			"telecom":      el(0, nil, "ContactPoint"),
			"address":      el(0, one, "Address"),
			"gender":       el(0, one, "code"),
			"organization": el(0, one, "Reference"),
			"period":       el(0, one, "Period"),
		},
	}
	r.types["Patient.communication"] = &TypeDefinition{
		Name: "Patient.communication", Kind: "complex-type", BaseType: "BackboneElement",
		Elements: map[string]ElementInfo{
			"language":  el(1, one, "CodeableConcept"),
			"preferred": el(0, one, "boolean"),
		},
	}
	r.types["Patient.link"] = &TypeDefinition{
		Name: "Patient.link", Kind: "complex-type", BaseType: "BackboneElement",
		Elements: map[string]ElementInfo{
			"other": el(1, one, "Reference"),
			"type":  el(1, one, "code"),
		},
	}
	r.types["Observation"] = &TypeDefinition{
		Name: "Observation", Kind: "resource", BaseType: "DomainResource",
		Elements: map[string]ElementInfo{
			"identifier":       el(0, nil, "Identifier"),
			"basedOn":          el(0, nil, "Reference"),
			"partOf":           el(0, nil, "Reference"),
			"status":           el(1, one, "code"),
			"category":         el(0, nil, "CodeableConcept"),
			"code":             el(1, one, "CodeableConcept"),
			"subject":          el(0, one, "Reference"),
			"encounter":        el(0, one, "Reference"),
			"effective":        choice("dateTime", "Period", "Timing", "instant"),
			"issued":           el(0, one, "instant"),
			"performer":        el(0, nil, "Reference"),
			"value": choice("Quantity", "CodeableConcept", "string", "boolean",
				"integer", "Range", "Ratio", "SampledData", "time", "dateTime",
				"Period"),
			"dataAbsentReason": el(0, one, "CodeableConcept"),
			"interpretation":   el(0, nil, "CodeableConcept"),
			"note":             el(0, nil, "Annotation"),
			"bodySite":         el(0, one, "CodeableConcept"),
			"method":           el(0, one, "CodeableConcept"),
			"referenceRange":   el(0, nil, "Observation.referenceRange"),
			"component":        el(0, nil, "Observation.component"),
		},
	}
	r.types["Observation.referenceRange"] = &TypeDefinition{
		Name: "Observation.referenceRange", Kind: "complex-type", BaseType: "BackboneElement",
		Elements: map[string]ElementInfo{
			"low":       el(0, one, "Quantity"),
			"high":      el(0, one, "Quantity"),
			"type":      el(0, one, "CodeableConcept"),
			"appliesTo": el(0, nil, "CodeableConcept"),
			"age":       el(0, one, "Range"),
			"text":      el(0, one, "string"),
		},
	}
	r.types["Observation.component"] = &TypeDefinition{
		Name: "Observation.component", Kind: "complex-type", BaseType: "BackboneElement",
		Elements: map[string]ElementInfo{
			"code": el(1, one, "CodeableConcept"),
			"value": choice("Quantity", "CodeableConcept", "string", "boolean",
				"integer", "Range", "Ratio", "SampledData", "time", "dateTime",
				"Period"),
			"dataAbsentReason": el(0, one, "CodeableConcept"),
			"interpretation":   el(0, nil, "CodeableConcept"),
			"referenceRange":   el(0, nil, "Observation.referenceRange"),
		},
	}
}
