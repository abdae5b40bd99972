package fhirpath

import (
	"fmt"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/diagnostics"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/parser"
)

// compile parses a FHIRPath expression into a compiled Expression using the
// hand-rolled lexer/parser (spec invariant 1: parse totality). Any
// error-severity diagnostic fails compilation; warnings/hints are retained
// on the Expression for later inspection.
func compile(expr string) (*Expression, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	result := parser.Parse(expr)

	var errDiags []diagnostics.Diagnostic
	for _, d := range result.Diagnostics {
		if d.Severity == diagnostics.SeverityError {
			errDiags = append(errDiags, d)
		}
	}
	if len(errDiags) > 0 {
		return nil, fmt.Errorf("%s", diagnostics.FormatHuman(expr, errDiags))
	}

	return &Expression{
		source:      expr,
		tree:        result.Root,
		diagnostics: result.Diagnostics,
	}, nil
}
