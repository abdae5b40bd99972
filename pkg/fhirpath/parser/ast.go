// Package parser implements a hand-written recursive-descent, Pratt-style
// parser for the FHIRPath grammar, producing an immutable, span-annotated
// AST. It replaces a generated-parser approach: every node variant here maps
// 1:1 onto a grammar production the evaluator must walk.
package parser

import "github.com/robertoaraneda/gofhir/pkg/fhirpath/diagnostics"

// Node is the sum type over every FHIRPath AST production. Implementations
// are exhaustively matched by type switch in the analyzer and evaluator
// rather than by virtual dispatch, per the "sum types over inheritance"
// design choice.
type Node interface {
	Span() diagnostics.Span
	node()
}

type base struct {
	span diagnostics.Span
}

func (b base) Span() diagnostics.Span { return b.span }
func (base) node()                    {}

// LiteralKind distinguishes the typed literal forms.
type LiteralKind int

const (
	LitBoolean LiteralKind = iota
	LitInteger
	LitDecimal
	LitString
	LitDate
	LitDateTime
	LitTime
	LitQuantity
	LitEmpty
)

// Literal is a typed constant: booleans, numbers, strings, dates, times, and
// quantities (number plus UCUM or calendar-duration unit).
type Literal struct {
	base
	Kind LiteralKind
	Text string // raw/normalized literal text, e.g. "42", "3.14", "2020-01-01"
	Unit string // for LitQuantity only
	CalendarDuration bool
}

// Identifier is a bare name resolved against the current focus ($this).
type Identifier struct {
	base
	Name string
}

// VarRefKind distinguishes the special variable forms.
type VarRefKind int

const (
	VarThis VarRefKind = iota
	VarIndex
	VarTotal
	VarExternal // %name, including %context, %resource, %ucum, user-defined
)

// VariableRef is `$this`, `$index`, `$total`, or `%name`.
type VariableRef struct {
	base
	Kind VarRefKind
	Name string // populated for VarExternal
}

// MemberAccess is `parent.name`.
type MemberAccess struct {
	base
	Parent Node
	Name   string
}

// Indexer is `parent[index]`.
type Indexer struct {
	base
	Parent Node
	Index  Node
}

// FunctionCall is a call to a named function. InvocationBase is non-nil for
// method-style calls (`x.f(a)` normalizes to FunctionCall{Name:"f", Args:[a],
// InvocationBase: x}); it is nil for bare calls (`f(a)`), which evaluate
// against the current $this.
type FunctionCall struct {
	base
	Name           string
	Args           []Node
	InvocationBase Node
}

// BinaryOp is a binary operator application. Op is one of:
// "implies" "or" "xor" "and" "in" "contains" "=" "!=" "~" "!~"
// "<" ">" "<=" ">=" "+" "-" "*" "/" "div" "mod" "&" "is" "as".
type BinaryOp struct {
	base
	Op    string
	Left  Node
	Right Node
}

// UnaryOp is a prefix operator application: "+", "-", or "not".
type UnaryOp struct {
	base
	Op      string
	Operand Node
}

// TypeSpec is a two-level type name (namespace defaults per context).
type TypeSpec struct {
	Namespace string // "System" or "FHIR", empty if unspecified
	Name      string
}

// String renders the type specifier as it would appear in source.
func (t TypeSpec) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsExpr is `expr is TypeSpec`.
type IsExpr struct {
	base
	Expr Node
	Type TypeSpec
}

// AsExpr is `expr as TypeSpec`.
type AsExpr struct {
	base
	Expr Node
	Type TypeSpec
}

// TypeLiteral is a bare type specifier used as a value, e.g. the right side
// of `ofType(Patient)`.
type TypeLiteral struct {
	base
	Type TypeSpec
}

// Union is the flattened n-ary application of `|`.
type Union struct {
	base
	Exprs []Node
}

// ErrorNode stands in for a subtree the parser could not make sense of. Its
// presence means evaluation must refuse to run (spec §4.2's "error nodes").
type ErrorNode struct {
	base
	Message string
}

func newBase(span diagnostics.Span) base { return base{span: span} }
