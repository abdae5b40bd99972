// Package validator evaluates FHIRPath constraint invariants against a
// resource. It does not perform structural validation (cardinality,
// slicing, terminology bindings, or reference resolution) — those concerns
// belong to a full StructureDefinition-driven validator, out of scope here
// (spec §1 Non-goals). What it does provide is a real backend for the
// FHIRPath conformsTo() function (spec §4.6.10): given a profile's
// constraint expressions, it compiles and evaluates them against the
// resource and reports which ones hold.
//
// Usage:
//
//	profiles := validator.ProfileMap{
//	    "http://hl7.org/fhir/StructureDefinition/Patient": {
//	        ResourceType: "Patient",
//	        Constraints: []validator.Constraint{
//	            {Key: "pat-1", Severity: "error", Expression: "contact.all(name.exists() or telecom.exists())"},
//	        },
//	    },
//	}
//	cv := validator.NewConstraintValidator(profiles)
//	ok, err := cv.Validate(ctx, patientJSON, "http://hl7.org/fhir/StructureDefinition/Patient")
//
// Wire it into FHIRPath evaluation with fhirpath.WithValidationProvider(cv).
package validator
