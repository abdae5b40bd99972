// Package validator provides the FHIRPath-constraint half of FHIR resource
// validation. Full profile validation (cardinality, slicing, terminology
// bindings, bundle assembly) is out of scope here — the engine consumes a
// ModelProvider/ValidationProvider-shaped abstraction rather than owning a
// StructureDefinition-driven validator (spec §1 Non-goals, §9 Open Question
// (i)). What remains is the piece spec §9 actually names: evaluating
// `constraint.expression` FHIRPath strings against a resource so that
// conformsTo() has something real to delegate to.
package validator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// Constraint is a single FHIRPath invariant extracted from a
// StructureDefinition (the `constraint` element of an ElementDefinition).
// Only the fields a lite evaluator needs survive the trim.
type Constraint struct {
	// Key is the unique constraint identifier (e.g., "ele-1", "pat-1").
	Key string
	// Severity is "error" or "warning".
	Severity string
	// Human is the human-readable description shown on failure.
	Human string
	// Expression is the FHIRPath invariant to evaluate.
	Expression string
}

// Profile groups the constraints that apply to one resource type or
// profile URL. A real StructureDefinitionProvider would derive this by
// walking a loaded snapshot; callers supply it directly here.
type Profile struct {
	URL          string
	ResourceType string
	Constraints  []Constraint
}

// ProfileSource resolves a profile URL to its constraint set. Implementations
// typically wrap a StructureDefinition cache; tests can use a plain map.
type ProfileSource interface {
	// Get returns the Profile for url, or ok=false if unknown.
	Get(ctx context.Context, url string) (Profile, bool)
}

// ProfileMap is the simplest ProfileSource: a static map keyed by URL.
type ProfileMap map[string]Profile

// Get implements ProfileSource.
func (m ProfileMap) Get(_ context.Context, url string) (Profile, bool) {
	p, ok := m[url]
	return p, ok
}

// ConstraintViolation describes one failed or warned constraint.
type ConstraintViolation struct {
	Key        string
	Severity   string
	Human      string
	Expression string
}

// ConstraintValidator evaluates FHIRPath constraints against a resource
// without requiring a full StructureDefinition-driven validator. It
// implements eval.ValidationProvider (and fhirpath.ValidationProvider,
// the same shape) so it can be wired directly into conformsTo() via
// fhirpath.WithValidationProvider — and, critically, it does so using an
// evaluator with no ValidationProvider of its own configured, which breaks
// the conformsTo -> ValidationProvider -> conformsTo reentrancy cycle
// spec §9 warns about.
type ConstraintValidator struct {
	profiles  ProfileSource
	exprCache *expressionCache
}

// NewConstraintValidator creates a ConstraintValidator backed by profiles.
func NewConstraintValidator(profiles ProfileSource) *ConstraintValidator {
	return &ConstraintValidator{
		profiles:  profiles,
		exprCache: newExpressionCache(1000),
	}
}

// Validate implements the ValidationProvider shape consumed by
// conformsTo(): true if resource satisfies every error-severity constraint
// declared on the profile named by profileURL. Warning-severity
// constraints never fail validation.
func (v *ConstraintValidator) Validate(ctx context.Context, resource []byte, profileURL string) (bool, error) {
	violations, err := v.Evaluate(ctx, resource, profileURL)
	if err != nil {
		return false, err
	}
	for _, viol := range violations {
		if viol.Severity == "error" {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate runs every constraint declared on profileURL against resource
// and returns the ones that did not hold.
func (v *ConstraintValidator) Evaluate(ctx context.Context, resource []byte, profileURL string) ([]ConstraintViolation, error) {
	profile, ok := v.profiles.Get(ctx, profileURL)
	if !ok {
		return nil, fmt.Errorf("unknown profile: %s", profileURL)
	}

	var violations []ConstraintViolation
	for _, c := range profile.Constraints {
		ok, err := v.evaluateConstraint(resource, profile.ResourceType, c)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.Key, err)
		}
		if !ok {
			violations = append(violations, ConstraintViolation{
				Key: c.Key, Severity: c.Severity, Human: c.Human, Expression: c.Expression,
			})
		}
	}
	return violations, nil
}

// evaluateConstraint compiles (with caching) and evaluates one constraint
// expression against resource, treating the result per FHIRPath's
// isTruthy rule (empty -> false, singleton boolean -> its value, otherwise
// -> true, e.g. a non-empty `all()` result).
func (v *ConstraintValidator) evaluateConstraint(resource []byte, resourceType string, c Constraint) (bool, error) {
	fullExpr := c.Expression
	if !strings.HasPrefix(fullExpr, resourceType) {
		fullExpr = fmt.Sprintf("%s.%s", resourceType, fullExpr)
	}

	expr, ok := v.exprCache.get(fullExpr)
	if !ok {
		var err error
		expr, err = fhirpath.Compile(fullExpr)
		if err != nil {
			return false, fmt.Errorf("compile error: %w", err)
		}
		v.exprCache.set(fullExpr, expr)
	}

	result, err := expr.Evaluate(resource)
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	return isTruthy(result), nil
}

// isTruthy determines if a FHIRPath result is truthy for constraint
// evaluation. Per spec: empty = false, single boolean = its value,
// otherwise = true.
func isTruthy(result types.Collection) bool {
	if result.Empty() {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

// NoopValidationProvider never rejects: Validate always returns true. Used
// when conformsTo() should be permissive in the absence of loaded profiles.
type NoopValidationProvider struct{}

// Validate always succeeds.
func (NoopValidationProvider) Validate(context.Context, []byte, string) (bool, error) {
	return true, nil
}

// expressionCache is a simple thread-safe cache for compiled FHIRPath
// expressions, avoiding recompilation of the same constraint across many
// resources.
type expressionCache struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
	limit int
}

func newExpressionCache(limit int) *expressionCache {
	return &expressionCache{cache: make(map[string]*fhirpath.Expression), limit: limit}
}

func (c *expressionCache) get(expr string) (*fhirpath.Expression, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	compiled, ok := c.cache[expr]
	return compiled, ok
}

func (c *expressionCache) set(expr string, compiled *fhirpath.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= c.limit {
		c.cache = make(map[string]*fhirpath.Expression)
	}
	c.cache[expr] = compiled
}
