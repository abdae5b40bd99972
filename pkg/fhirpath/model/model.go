// Package model defines the ModelProvider abstraction (spec §4.3): the
// engine's only window onto FHIR type/schema information. Schema
// acquisition and parsing are out of scope; this package defines the
// contract and a minimal System-types-only implementation sufficient for
// non-polymorphic navigation.
package model

// ElementType describes one element of a parent type, as reported by a
// ModelProvider. A choice element (`value[x]`) reports every concrete member
// in Union.
type ElementType struct {
	Name         string
	Type         string
	IsCollection bool
	Union        []string // concrete type names for choice/polymorphic elements
}

// Element is one child of a type, as enumerated by EnumerateChildren.
type Element struct {
	Name string
	Type string
}

// Provider resolves type and element information from FHIR schemas across
// versions. The engine must function correctly for non-polymorphic
// navigation using only the minimal SystemProvider below; a full FHIR-aware
// provider is supplied by the caller.
type Provider interface {
	// TypeOfResource reads the resourceType field convention and returns the
	// declared type name, e.g. "Patient".
	TypeOfResource(json []byte) (string, bool)

	// ElementType resolves the type of parentType.elementName, including
	// choice-type enumeration for `value[x]`-style polymorphic elements.
	ElementType(parentType, elementName string) (ElementType, bool)

	// IsSubtype covers FHIR inheritance and System-type hierarchy.
	IsSubtype(sub, super string) bool

	// EnumerateChildren powers children() and the analyzer's union
	// inference.
	EnumerateChildren(typeName string) []Element
}

// systemHierarchy captures the small, fixed System.* type lattice that every
// provider must honor regardless of FHIR-awareness (spec §4.3: "correctness
// must not depend on [a FHIR-aware provider] for non-polymorphic
// navigation").
var systemHierarchy = map[string]string{
	"System.Integer":  "System.Decimal",
	"System.Decimal":  "System.Any",
	"System.String":   "System.Any",
	"System.Boolean":  "System.Any",
	"System.Date":     "System.Any",
	"System.DateTime": "System.Any",
	"System.Time":     "System.Any",
	"System.Quantity": "System.Any",
}

// SystemProvider is a minimal ModelProvider that only knows the System.*
// primitive hierarchy and reads resourceType structurally. It has no
// knowledge of FHIR StructureDefinitions: ElementType and EnumerateChildren
// always report "unknown" (ok=false / empty), which is the correct,
// spec-compliant answer for a provider with no schema loaded — the
// evaluator does not require element type information to navigate JSON, it
// only uses it to resolve choice-type (`value[x]`) ambiguity.
type SystemProvider struct{}

// NewSystemProvider returns the default mock ModelProvider.
func NewSystemProvider() *SystemProvider { return &SystemProvider{} }

// TypeOfResource is unimplemented at this level; the evaluator reads
// resourceType directly off the JSON via types.ObjectValue and does not
// depend on the model provider for it.
func (SystemProvider) TypeOfResource([]byte) (string, bool) { return "", false }

// ElementType reports no schema knowledge.
func (SystemProvider) ElementType(string, string) (ElementType, bool) { return ElementType{}, false }

// IsSubtype only knows the System.* numeric/primitive widening lattice.
func (SystemProvider) IsSubtype(sub, super string) bool {
	if sub == super {
		return true
	}
	for cur := sub; cur != ""; {
		parent, ok := systemHierarchy[cur]
		if !ok {
			return false
		}
		if parent == super {
			return true
		}
		cur = parent
	}
	return false
}

// EnumerateChildren reports no schema knowledge.
func (SystemProvider) EnumerateChildren(string) []Element { return nil }
