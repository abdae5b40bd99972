// Package diagnostics defines source spans and diagnostic records shared by
// the lexer, parser, and analyzer.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Position is a line/column location, both 1-based.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a half-open byte range [Start, End) in the source text, plus the
// line/column of each end for human-readable reporting.
type Span struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	StartPos Position `json:"startPos"`
	EndPos   Position `json:"endPos"`
}

// Covers reports whether the span covers byte offset pos.
func (s Span) Covers(pos int) bool {
	return pos >= s.Start && pos < s.End
}

// Join returns the smallest span covering both s and other.
func (s Span) Join(other Span) Span {
	joined := s
	if other.Start < joined.Start {
		joined.Start = other.Start
		joined.StartPos = other.StartPos
	}
	if other.End > joined.End {
		joined.End = other.End
		joined.EndPos = other.EndPos
	}
	return joined
}

// Severity classifies a diagnostic's impact.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Code is a stable diagnostic identifier, e.g. "E007".
type Code string

// Parser diagnostic codes (spec §4.2).
const (
	CodeUnexpectedToken Code = "E001"
	CodeExpectedExpr    Code = "E002"
	CodeUnmatchedParen  Code = "E003"
	CodeInvalidLiteral  Code = "E004"
	CodeInvalidEscape   Code = "E005"
)

// Analyzer diagnostic codes (spec §4.5).
const (
	CodeUnknownFunction  Code = "E101"
	CodeWrongArity       Code = "E102"
	CodeTypeMismatch     Code = "E103"
	CodePropertyNotFound Code = "E104"
	CodeInvalidOfType    Code = "E105"
	CodeImpossibleCast   Code = "E106"
)

// Suggestion is a candidate fix attached to a Diagnostic.
type Suggestion struct {
	Message     string `json:"message"`
	Replacement string `json:"replacement,omitempty"`
}

// Diagnostic describes one parse, analysis, or lint finding.
type Diagnostic struct {
	Code        Code         `json:"code"`
	Severity    Severity     `json:"severity"`
	Message     string       `json:"message"`
	Span        Span         `json:"span"`
	Related     []Span       `json:"related,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// New builds a Diagnostic with no related spans or suggestions.
func New(code Code, severity Severity, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	}
}

// WithSuggestion returns a copy of d with a suggestion appended.
func (d Diagnostic) WithSuggestion(message, replacement string) Diagnostic {
	d.Suggestions = append(append([]Suggestion{}, d.Suggestions...), Suggestion{Message: message, Replacement: replacement})
	return d
}

// WithRelated returns a copy of d with a related span appended.
func (d Diagnostic) WithRelated(span Span) Diagnostic {
	d.Related = append(append([]Span{}, d.Related...), span)
	return d
}

// FormatHuman renders diagnostics as multi-line text with a caret underline
// beneath the offending source line.
func FormatHuman(source string, diags []Diagnostic) string {
	lines := strings.Split(source, "\n")
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "%s: %s [%s]\n", d.Severity, d.Message, d.Code)
		lineIdx := d.Span.StartPos.Line - 1
		if lineIdx >= 0 && lineIdx < len(lines) {
			line := lines[lineIdx]
			fmt.Fprintf(&b, "  %s\n", line)
			col := d.Span.StartPos.Column - 1
			if col < 0 {
				col = 0
			}
			width := d.Span.End - d.Span.Start
			if width < 1 {
				width = 1
			}
			b.WriteString("  ")
			b.WriteString(strings.Repeat(" ", col))
			b.WriteString(strings.Repeat("^", width))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatJSON renders diagnostics as a stable JSON array.
func FormatJSON(diags []Diagnostic) ([]byte, error) {
	if diags == nil {
		diags = []Diagnostic{}
	}
	return json.Marshal(diags)
}
