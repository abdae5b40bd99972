// Package analyzer performs optional static analysis over a parsed
// FHIRPath AST: per-node type annotations, union-type tracking for choice
// elements, and diagnostics for unknown functions, wrong arity, unresolved
// properties, and impossible casts. Operand type mismatches are not
// reported (no diagnostic uses CodeTypeMismatch). It never mutates
// the AST (spec invariant "AST immutability") and the evaluator does not
// require its output to run.
package analyzer

import (
	"sort"
	"strings"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/diagnostics"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/eval"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/model"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/parser"
)

// TypeAnnotation records what the analyzer could infer about one AST node.
type TypeAnnotation struct {
	DeclaredType string
	IsCollection bool
	// UnionMembers holds the possible concrete types for a choice element
	// (value[x]) or a children()/descendants() result.
	UnionMembers []string
}

// Annotations is a side-table from AST node identity to its inferred type.
// Keyed by the node's pointer identity, never by value, so two structurally
// identical nodes in different positions get independent entries.
type Annotations map[parser.Node]TypeAnnotation

// Get returns the annotation for a node, if the analyzer produced one.
func (a Annotations) Get(n parser.Node) (TypeAnnotation, bool) {
	t, ok := a[n]
	return t, ok
}

// FuncArity describes the declared argument-count bounds for a registered
// function, consulted when validating a FunctionCall node.
type FuncArity struct {
	MinArgs int
	MaxArgs int
}

// FuncRegistry is the subset of eval's function registry the analyzer needs
// to validate calls without depending on eval.FuncImpl itself.
type FuncRegistry interface {
	Get(name string) (eval.FuncDef, bool)
}

// Analyzer walks an AST against a model provider and function registry.
type Analyzer struct {
	provider model.Provider
	funcs    FuncRegistry
	anns     Annotations
	diags    []diagnostics.Diagnostic
}

// New creates an Analyzer. provider may be nil, in which case element and
// subtype lookups degrade to "unknown" rather than failing.
func New(provider model.Provider, funcs FuncRegistry) *Analyzer {
	return &Analyzer{
		provider: provider,
		funcs:    funcs,
		anns:     make(Annotations),
	}
}

// Analyze walks root starting from rootType (the declared type of the
// evaluation's initial input, e.g. "Patient"; pass "" if unknown) and
// returns the accumulated annotations and diagnostics.
func Analyze(root parser.Node, provider model.Provider, funcs FuncRegistry, rootType string) (Annotations, []diagnostics.Diagnostic) {
	a := New(provider, funcs)
	a.walk(root, TypeAnnotation{DeclaredType: rootType, IsCollection: rootType == ""})
	return a.anns, a.diags
}

func (a *Analyzer) emit(code diagnostics.Code, span diagnostics.Span, format string, args ...interface{}) {
	a.diags = append(a.diags, diagnostics.New(code, diagnostics.SeverityWarning, span, format, args...))
}

func (a *Analyzer) annotate(n parser.Node, t TypeAnnotation) TypeAnnotation {
	a.anns[n] = t
	return t
}

// walk infers the type of n given that it is evaluated with `this` of type
// ctxType, and records an annotation for n.
func (a *Analyzer) walk(n parser.Node, ctxType TypeAnnotation) TypeAnnotation {
	if n == nil {
		return a.annotate(n, TypeAnnotation{})
	}

	switch node := n.(type) {
	case *parser.Literal:
		return a.annotate(n, a.literalType(node))

	case *parser.Identifier:
		return a.annotate(n, a.memberType(ctxType, node.Name, node.Span()))

	case *parser.VariableRef:
		switch node.Kind {
		case parser.VarThis:
			return a.annotate(n, ctxType)
		case parser.VarIndex, parser.VarTotal:
			return a.annotate(n, TypeAnnotation{DeclaredType: "System.Integer"})
		default:
			return a.annotate(n, TypeAnnotation{DeclaredType: "", IsCollection: true})
		}

	case *parser.MemberAccess:
		parentType := a.walk(node.Parent, ctxType)
		return a.annotate(n, a.memberType(parentType, node.Name, node.Span()))

	case *parser.Indexer:
		parentType := a.walk(node.Parent, ctxType)
		a.walk(node.Index, ctxType)
		return a.annotate(n, TypeAnnotation{DeclaredType: parentType.DeclaredType, IsCollection: false})

	case *parser.FunctionCall:
		return a.walkFunctionCall(node, ctxType)

	case *parser.BinaryOp:
		return a.walkBinaryOp(node, ctxType)

	case *parser.UnaryOp:
		operandType := a.walk(node.Operand, ctxType)
		if node.Op == "not" {
			return a.annotate(n, TypeAnnotation{DeclaredType: "System.Boolean"})
		}
		return a.annotate(n, operandType)

	case *parser.IsExpr:
		a.walk(node.Expr, ctxType)
		a.checkTypeReachable(node.Type.String(), ctxType, node.Span())
		return a.annotate(n, TypeAnnotation{DeclaredType: "System.Boolean"})

	case *parser.AsExpr:
		exprType := a.walk(node.Expr, ctxType)
		a.checkTypeReachable(node.Type.String(), exprType, node.Span())
		return a.annotate(n, TypeAnnotation{DeclaredType: node.Type.String()})

	case *parser.Union:
		var members []string
		for _, expr := range node.Exprs {
			t := a.walk(expr, ctxType)
			members = append(members, t.DeclaredType)
		}
		return a.annotate(n, TypeAnnotation{IsCollection: true, UnionMembers: dedupStrings(members)})

	case *parser.TypeLiteral:
		return a.annotate(n, TypeAnnotation{DeclaredType: node.Type.String()})

	case *parser.ErrorNode:
		return a.annotate(n, TypeAnnotation{})

	default:
		return a.annotate(n, TypeAnnotation{})
	}
}

func (a *Analyzer) literalType(n *parser.Literal) TypeAnnotation {
	switch n.Kind {
	case parser.LitBoolean:
		return TypeAnnotation{DeclaredType: "System.Boolean"}
	case parser.LitInteger:
		return TypeAnnotation{DeclaredType: "System.Integer"}
	case parser.LitDecimal:
		return TypeAnnotation{DeclaredType: "System.Decimal"}
	case parser.LitString:
		return TypeAnnotation{DeclaredType: "System.String"}
	case parser.LitDate:
		return TypeAnnotation{DeclaredType: "System.Date"}
	case parser.LitDateTime:
		return TypeAnnotation{DeclaredType: "System.DateTime"}
	case parser.LitTime:
		return TypeAnnotation{DeclaredType: "System.Time"}
	case parser.LitQuantity:
		return TypeAnnotation{DeclaredType: "System.Quantity"}
	default:
		return TypeAnnotation{IsCollection: true}
	}
}

// memberType resolves the element "name" off a value of type parent,
// consulting the model provider for choice-element unions and emitting
// PropertyNotFound when the provider confidently says the element does not
// exist on a known type.
func (a *Analyzer) memberType(parent TypeAnnotation, name string, span diagnostics.Span) TypeAnnotation {
	if a.provider == nil || parent.DeclaredType == "" {
		return TypeAnnotation{IsCollection: true}
	}

	// An identifier matching the receiver's own (super)type, e.g. the
	// leading "Patient" in "Patient.name", is the resource-type filter
	// navigateMember special-cases at evaluation time, not a member
	// lookup: it resolves to the receiver itself.
	if name == parent.DeclaredType || a.provider.IsSubtype(parent.DeclaredType, name) {
		return parent
	}

	et, ok := a.provider.ElementType(parent.DeclaredType, name)
	if !ok {
		suggestion := a.suggestProperty(parent.DeclaredType, name)
		d := diagnostics.New(diagnostics.CodePropertyNotFound, diagnostics.SeverityWarning, span,
			"unknown property %q on type %s", name, parent.DeclaredType)
		if suggestion != "" {
			d = d.WithSuggestion("did you mean "+suggestion+"?", suggestion)
		}
		a.diags = append(a.diags, d)
		return TypeAnnotation{IsCollection: true}
	}

	if et.Union != nil {
		return TypeAnnotation{IsCollection: et.IsCollection, UnionMembers: et.Union}
	}
	return TypeAnnotation{DeclaredType: et.Type, IsCollection: et.IsCollection}
}

// suggestProperty finds the closest-matching sibling element name by
// Levenshtein distance, used to annotate PropertyNotFound diagnostics.
func (a *Analyzer) suggestProperty(typeName, name string) string {
	if a.provider == nil {
		return ""
	}
	children := a.provider.EnumerateChildren(typeName)
	best := ""
	bestDist := -1
	for _, c := range children {
		d := levenshtein(strings.ToLower(name), strings.ToLower(c.Name))
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c.Name
		}
	}
	if bestDist >= 0 && bestDist <= 3 {
		return best
	}
	return ""
}

func (a *Analyzer) walkFunctionCall(node *parser.FunctionCall, ctxType TypeAnnotation) TypeAnnotation {
	input := ctxType
	if node.InvocationBase != nil {
		input = a.walk(node.InvocationBase, ctxType)
	}

	if a.funcs != nil {
		if fn, ok := a.funcs.Get(node.Name); ok {
			argc := len(node.Args)
			if argc < fn.MinArgs || (fn.MaxArgs >= 0 && argc > fn.MaxArgs) {
				a.emit(diagnostics.CodeWrongArity, node.Span(),
					"function %q expects between %d and %d arguments, got %d", node.Name, fn.MinArgs, fn.MaxArgs, argc)
			}
		} else if !isLambdaIntrinsic(node.Name) {
			a.emit(diagnostics.CodeUnknownFunction, node.Span(), "unknown function %q", node.Name)
		}
	}

	// Lambda-form arguments are evaluated with `this` rebound to the
	// element type of input, matching the evaluator's per-element dispatch
	// for where/select/all/exists/repeat/aggregate.
	elemType := input
	elemType.IsCollection = false
	for i, arg := range node.Args {
		if isTypeNameArg(node.Name, i) {
			continue
		}
		a.walk(arg, elemType)
	}

	switch node.Name {
	case "where", "repeat":
		return TypeAnnotation{DeclaredType: input.DeclaredType, IsCollection: true, UnionMembers: input.UnionMembers}
	case "select":
		return TypeAnnotation{IsCollection: true}
	case "exists", "all", "hasValue", "isDistinct", "not", "convertsToBoolean", "convertsToInteger", "convertsToDecimal", "convertsToString":
		return TypeAnnotation{DeclaredType: "System.Boolean"}
	case "count":
		return TypeAnnotation{DeclaredType: "System.Integer"}
	case "first", "last", "single":
		return TypeAnnotation{DeclaredType: input.DeclaredType}
	case "ofType":
		if len(node.Args) == 1 {
			typeName := extractTypeName(node.Args[0])
			a.checkOfType(typeName, input, node.Span())
			return TypeAnnotation{DeclaredType: typeName, IsCollection: true}
		}
		return TypeAnnotation{IsCollection: true}
	case "children", "descendants":
		return TypeAnnotation{IsCollection: true, UnionMembers: []string{"*"}}
	default:
		return TypeAnnotation{IsCollection: true}
	}
}

// isLambdaIntrinsic reports whether name is one of the function names the
// evaluator special-cases before reaching the registry (it still wants
// arity-checked, but these aren't necessarily present in every FuncRegistry
// stub used in tests).
func isLambdaIntrinsic(name string) bool {
	switch name {
	case "where", "exists", "all", "select", "is", "as", "ofType", "iif", "repeat", "aggregate":
		return true
	default:
		return false
	}
}

// isTypeNameArg reports whether argument index i of function name is a bare
// type-name token (is/as/ofType's sole argument), which should not be
// walked as an expression against the element context.
func isTypeNameArg(name string, i int) bool {
	return i == 0 && (name == "is" || name == "as" || name == "ofType")
}

func extractTypeName(expr parser.Node) string {
	switch n := expr.(type) {
	case *parser.Identifier:
		return n.Name
	case *parser.MemberAccess:
		if parent, ok := n.Parent.(*parser.Identifier); ok {
			return parent.Name + "." + n.Name
		}
		return n.Name
	case *parser.TypeLiteral:
		return n.Type.String()
	default:
		return ""
	}
}

// checkOfType and checkTypeReachable both validate that typeName is
// reachable from the inferred receiver type, emitting InvalidOfType /
// ImpossibleCast respectively when the provider confidently says otherwise.
func (a *Analyzer) checkOfType(typeName string, receiver TypeAnnotation, span diagnostics.Span) {
	if typeName == "" {
		a.emit(diagnostics.CodeInvalidOfType, span, "ofType() requires a type name")
		return
	}
	if !a.typeReachable(typeName, receiver) {
		a.emit(diagnostics.CodeInvalidOfType, span, "type %s is not reachable from %s", typeName, receiver.describe())
	}
}

func (a *Analyzer) checkTypeReachable(typeName string, receiver TypeAnnotation, span diagnostics.Span) {
	if typeName == "" || a.provider == nil || receiver.DeclaredType == "" {
		return
	}
	if !a.typeReachable(typeName, receiver) {
		a.emit(diagnostics.CodeImpossibleCast, span, "type %s is never compatible with %s", typeName, receiver.describe())
	}
}

func (a *Analyzer) typeReachable(typeName string, receiver TypeAnnotation) bool {
	if a.provider == nil {
		return true
	}
	if len(receiver.UnionMembers) > 0 {
		for _, m := range receiver.UnionMembers {
			if m == "*" || m == typeName || a.provider.IsSubtype(m, typeName) || a.provider.IsSubtype(typeName, m) {
				return true
			}
		}
		return false
	}
	if receiver.DeclaredType == "" {
		return true
	}
	return a.provider.IsSubtype(receiver.DeclaredType, typeName) || a.provider.IsSubtype(typeName, receiver.DeclaredType)
}

func (t TypeAnnotation) describe() string {
	if len(t.UnionMembers) > 0 {
		return "{" + strings.Join(t.UnionMembers, "|") + "}"
	}
	if t.DeclaredType == "" {
		return "unknown"
	}
	return t.DeclaredType
}

// walkBinaryOp infers the result type of an operator application, widening
// Integer+Decimal to Decimal and distinguishing `&`'s always-string result
// from `+`'s type-dependent one (spec §4.5 "Operators").
func (a *Analyzer) walkBinaryOp(node *parser.BinaryOp, ctxType TypeAnnotation) TypeAnnotation {
	left := a.walk(node.Left, ctxType)
	right := a.walk(node.Right, ctxType)

	switch node.Op {
	case "and", "or", "xor", "implies", "in", "contains", "=", "!=", "~", "!~", "<", ">", "<=", ">=":
		return TypeAnnotation{DeclaredType: "System.Boolean"}
	case "&":
		return TypeAnnotation{DeclaredType: "System.String"}
	case "+", "-", "*", "/":
		return widenNumeric(left, right)
	case "div", "mod":
		return TypeAnnotation{DeclaredType: "System.Integer"}
	default:
		return TypeAnnotation{}
	}
}

func widenNumeric(left, right TypeAnnotation) TypeAnnotation {
	if left.DeclaredType == "System.String" || right.DeclaredType == "System.String" {
		return TypeAnnotation{DeclaredType: "System.String"}
	}
	if left.DeclaredType == "System.Decimal" || right.DeclaredType == "System.Decimal" {
		return TypeAnnotation{DeclaredType: "System.Decimal"}
	}
	if left.DeclaredType == "System.Quantity" || right.DeclaredType == "System.Quantity" {
		return TypeAnnotation{DeclaredType: "System.Quantity"}
	}
	return TypeAnnotation{DeclaredType: "System.Integer"}
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// levenshtein computes edit distance for PropertyNotFound suggestions.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			min := curr[j-1] + 1
			if prev[j]+1 < min {
				min = prev[j] + 1
			}
			if prev[j-1]+cost < min {
				min = prev[j-1] + cost
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
