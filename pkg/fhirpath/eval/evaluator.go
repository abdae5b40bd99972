package eval

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/parser"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
)

// defaultRepeatDepthLimit bounds repeat()'s fixed-point iteration when the
// context carries no "repeat_depth_limit" (spec invariant 9).
const defaultRepeatDepthLimit = 1000

// FuncImpl is the signature for function implementations.
type FuncImpl func(ctx *Context, input types.Collection, args []interface{}) (types.Collection, error)

// FuncDef defines a FHIRPath function.
type FuncDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      FuncImpl
}

// FuncRegistry is an interface for function lookup.
type FuncRegistry interface {
	Get(name string) (FuncDef, bool)
}

// Resolver handles FHIR reference resolution.
type Resolver interface {
	Resolve(ctx context.Context, reference string) ([]byte, error)
}

// ValidationProvider is consulted by conformsTo() (spec §4.6.10). Declared
// here rather than imported from pkg/validator to avoid an import cycle:
// pkg/validator already imports pkg/fhirpath to evaluate constraint
// expressions, so pkg/validator's ConstraintValidator implements this
// interface structurally instead of the evaluator depending on it directly.
type ValidationProvider interface {
	Validate(ctx context.Context, resource []byte, profileURL string) (bool, error)
}

// Evaluator walks a parser.Node AST against a Context, dispatching by type
// switch rather than visitor methods.
type Evaluator struct {
	ctx   *Context
	funcs FuncRegistry
}

// Context holds the evaluation state.
type Context struct {
	root      types.Collection
	this      types.Collection
	index     int
	total     types.Value
	variables map[string]types.Collection
	limits    map[string]int
	goCtx     context.Context
	resolver  Resolver
	validator ValidationProvider
}

// NewContext creates a new evaluation context.
// Automatically sets %resource and %context to the root resource for FHIR constraint evaluation.
// Per FHIRPath spec:
//   - %resource: the root resource being evaluated
//   - %context: the original node passed to the evaluation engine (same as %resource for top-level evaluation)
//   - %ucum: the UCUM code system URL
func NewContext(resource []byte) *Context {
	//nolint:errcheck // Empty collection is acceptable for invalid JSON in context creation
	root, _ := types.JSONToCollection(resource)

	// Initialize variables map with %resource and %context pointing to root
	// %resource is required by FHIR constraints like bdl-3, bdl-4
	// %context represents the evaluation context (same as root for top-level evaluation)
	variables := make(map[string]types.Collection)
	variables["resource"] = root
	variables["context"] = root
	variables["ucum"] = types.Collection{types.NewString("http://unitsofmeasure.org")}

	return &Context{
		root:      root,
		this:      root,
		variables: variables,
		limits:    make(map[string]int),
		goCtx:     context.Background(),
	}
}

// SetLimit sets a limit value (e.g., maxDepth, maxCollectionSize, repeat_depth_limit).
func (c *Context) SetLimit(name string, value int) {
	if c.limits == nil {
		c.limits = make(map[string]int)
	}
	c.limits[name] = value
}

// GetLimit gets a limit value.
func (c *Context) GetLimit(name string) int {
	if c.limits == nil {
		return 0
	}
	return c.limits[name]
}

// SetContext sets the Go context for cancellation.
func (c *Context) SetContext(ctx context.Context) {
	c.goCtx = ctx
}

// Context returns the Go context.
func (c *Context) Context() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

// SetResolver sets the reference resolver.
func (c *Context) SetResolver(r Resolver) {
	c.resolver = r
}

// GetResolver returns the reference resolver.
func (c *Context) GetResolver() Resolver {
	return c.resolver
}

// SetValidationProvider sets the conformsTo() backend.
func (c *Context) SetValidationProvider(v ValidationProvider) {
	c.validator = v
}

// GetValidationProvider returns the conformsTo() backend, if any.
func (c *Context) GetValidationProvider() (ValidationProvider, bool) {
	return c.validator, c.validator != nil
}

// CheckCancellation checks if the context has been canceled.
func (c *Context) CheckCancellation() error {
	if c.goCtx == nil {
		return nil
	}
	select {
	case <-c.goCtx.Done():
		return CancelledError()
	default:
		return nil
	}
}

// CheckCollectionSize validates that a collection doesn't exceed the maximum size.
// Returns an error if the collection is too large.
func (c *Context) CheckCollectionSize(col types.Collection) error {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return NewEvalError(ErrInvalidExpression,
			"collection size %d exceeds maximum allowed %d", len(col), maxSize)
	}
	return nil
}

// EnforceCollectionLimit truncates a collection if it exceeds the maximum size.
// Returns the (possibly truncated) collection and whether truncation occurred.
func (c *Context) EnforceCollectionLimit(col types.Collection) (types.Collection, bool) {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return col[:maxSize], true
	}
	return col, false
}

// Root returns the root collection.
func (c *Context) Root() types.Collection {
	return c.root
}

// This returns the current $this value.
func (c *Context) This() types.Collection {
	return c.this
}

// WithThis returns a new context with the given $this value.
func (c *Context) WithThis(this types.Collection) *Context {
	newCtx := *c
	newCtx.this = this
	return &newCtx
}

// WithIndex returns a new context with the given $index value.
func (c *Context) WithIndex(index int) *Context {
	newCtx := *c
	newCtx.index = index
	return &newCtx
}

// SetVariable sets an external variable.
func (c *Context) SetVariable(name string, value types.Collection) {
	c.variables[name] = value
}

// GetVariable gets an external variable.
func (c *Context) GetVariable(name string) (types.Collection, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// NewEvaluator creates a new evaluator with the given context and function registry.
func NewEvaluator(ctx *Context, funcs FuncRegistry) *Evaluator {
	return &Evaluator{ctx: ctx, funcs: funcs}
}

// Evaluate evaluates a parsed AST and returns the resulting collection.
func (e *Evaluator) Evaluate(root parser.Node) (types.Collection, error) {
	return e.eval(root)
}

// eval dispatches on the concrete node type. Every case returns
// (types.Collection, error) directly rather than via an interface{} union,
// since the AST no longer forces an antlr.ParseTree-shaped Visit signature.
func (e *Evaluator) eval(node parser.Node) (types.Collection, error) {
	if node == nil {
		return types.Collection{}, nil
	}
	if err := e.ctx.CheckCancellation(); err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *parser.ErrorNode:
		return nil, ParseError(n.Message)
	case *parser.Literal:
		return e.evalLiteral(n)
	case *parser.Identifier:
		return e.navigateMember(e.ctx.This(), n.Name), nil
	case *parser.VariableRef:
		return e.evalVariableRef(n)
	case *parser.MemberAccess:
		return e.evalMemberAccess(n)
	case *parser.Indexer:
		return e.evalIndexer(n)
	case *parser.FunctionCall:
		return e.evalFunctionCall(n)
	case *parser.BinaryOp:
		return e.evalBinaryOp(n)
	case *parser.UnaryOp:
		return e.evalUnaryOp(n)
	case *parser.IsExpr:
		return e.evalIsExpr(n)
	case *parser.AsExpr:
		return e.evalAsExpr(n)
	case *parser.Union:
		return e.evalUnion(n)
	case *parser.TypeLiteral:
		// A bare type specifier used as a value has no runtime representation;
		// is()/as()/ofType() read TypeSpec off the node directly instead of
		// evaluating it.
		return types.Collection{}, nil
	default:
		return nil, NewEvalError(ErrInvalidExpression, "unsupported expression node")
	}
}

func (e *Evaluator) evalLiteral(n *parser.Literal) (types.Collection, error) {
	switch n.Kind {
	case parser.LitEmpty:
		return types.Collection{}, nil
	case parser.LitBoolean:
		return types.Collection{types.NewBoolean(n.Text == "true")}, nil
	case parser.LitInteger:
		i, err := parser.ParseInt(n.Text)
		if err != nil {
			return nil, ParseError("invalid integer: " + n.Text)
		}
		return types.Collection{types.NewInteger(i)}, nil
	case parser.LitDecimal:
		d, err := types.NewDecimal(n.Text)
		if err != nil {
			return nil, ParseError("invalid number: " + n.Text)
		}
		return types.Collection{d}, nil
	case parser.LitString:
		return types.Collection{types.NewString(n.Text)}, nil
	case parser.LitDate:
		d, err := types.NewDate(n.Text)
		if err != nil {
			return nil, ParseError("invalid date: " + n.Text)
		}
		return types.Collection{d}, nil
	case parser.LitDateTime:
		dt, err := types.NewDateTime(n.Text)
		if err != nil {
			return nil, ParseError("invalid datetime: " + n.Text)
		}
		return types.Collection{dt}, nil
	case parser.LitTime:
		t, err := types.NewTime(n.Text)
		if err != nil {
			return nil, ParseError("invalid time: " + n.Text)
		}
		return types.Collection{t}, nil
	case parser.LitQuantity:
		val, err := decimal.NewFromString(n.Text)
		if err != nil {
			return nil, ParseError("invalid quantity: " + n.Text)
		}
		return types.Collection{types.NewQuantityFromDecimal(val, n.Unit)}, nil
	default:
		return types.Collection{}, nil
	}
}

func (e *Evaluator) evalVariableRef(n *parser.VariableRef) (types.Collection, error) {
	switch n.Kind {
	case parser.VarThis:
		return e.ctx.This(), nil
	case parser.VarIndex:
		return types.Collection{types.NewInteger(int64(e.ctx.index))}, nil
	case parser.VarTotal:
		if e.ctx.total != nil {
			return types.Collection{e.ctx.total}, nil
		}
		return types.Collection{}, nil
	case parser.VarExternal:
		if value, ok := e.ctx.GetVariable(n.Name); ok {
			return value, nil
		}
		return nil, UnknownVariableError(n.Name)
	default:
		return types.Collection{}, nil
	}
}

func (e *Evaluator) evalMemberAccess(n *parser.MemberAccess) (types.Collection, error) {
	base, err := e.eval(n.Parent)
	if err != nil {
		return nil, err
	}
	return e.navigateMember(base, n.Name), nil
}

func (e *Evaluator) evalIndexer(n *parser.Indexer) (types.Collection, error) {
	base, err := e.eval(n.Parent)
	if err != nil {
		return nil, err
	}
	idxCol, err := e.eval(n.Index)
	if err != nil {
		return nil, err
	}
	if idxCol.Empty() {
		return types.Collection{}, nil
	}
	idx, ok := idxCol[0].(types.Integer)
	if !ok {
		return nil, TypeError("Integer", idxCol[0].Type(), "indexer")
	}
	i := int(idx.Value())
	if i < 0 || i >= len(base) {
		return types.Collection{}, nil
	}
	return types.Collection{base[i]}, nil
}

func (e *Evaluator) evalUnaryOp(n *parser.UnaryOp) (types.Collection, error) {
	if n.Op == "not" {
		col, err := e.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		return Not(col), nil
	}

	col, err := e.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	if col.Empty() {
		return col, nil
	}
	if len(col) != 1 {
		return nil, SingletonError(len(col))
	}
	if n.Op == "-" {
		negated, err := Negate(col[0])
		if err != nil {
			return nil, err
		}
		return types.Collection{negated}, nil
	}
	return col, nil
}

func (e *Evaluator) evalUnion(n *parser.Union) (types.Collection, error) {
	var result types.Collection
	for i, expr := range n.Exprs {
		col, err := e.eval(expr)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = col
			continue
		}
		result = Union(result, col)
	}
	return result, nil
}

func (e *Evaluator) evalIsExpr(n *parser.IsExpr) (types.Collection, error) {
	left, err := e.eval(n.Expr)
	if err != nil {
		return nil, err
	}
	if left.Empty() {
		return types.Collection{}, nil
	}
	if len(left) != 1 {
		return nil, SingletonError(len(left))
	}
	return types.Collection{types.NewBoolean(TypeMatches(left[0].Type(), n.Type.Name))}, nil
}

func (e *Evaluator) evalAsExpr(n *parser.AsExpr) (types.Collection, error) {
	left, err := e.eval(n.Expr)
	if err != nil {
		return nil, err
	}
	if left.Empty() {
		return types.Collection{}, nil
	}
	if len(left) != 1 {
		return nil, SingletonError(len(left))
	}
	if TypeMatches(left[0].Type(), n.Type.Name) {
		return left, nil
	}
	return types.Collection{}, nil
}

func (e *Evaluator) evalBinaryOp(n *parser.BinaryOp) (types.Collection, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "and":
		return And(left, right), nil
	case "or":
		return Or(left, right), nil
	case "xor":
		return Xor(left, right), nil
	case "implies":
		return Implies(left, right), nil
	case "in":
		return In(left, right), nil
	case "contains":
		return Contains(left, right), nil
	case "=":
		return Equal(left, right), nil
	case "!=":
		return NotEqual(left, right), nil
	case "~":
		return Equivalent(left, right), nil
	case "!~":
		return NotEquivalent(left, right), nil
	case "&":
		return Concatenate(left, right), nil
	case "<", ">", "<=", ">=":
		return e.evalComparison(n.Op, left, right)
	case "+", "-", "*", "/", "div", "mod":
		return e.evalArithmetic(n.Op, left, right)
	default:
		return nil, NewEvalError(ErrInvalidOperation, "unknown operator %q", n.Op)
	}
}

func (e *Evaluator) evalComparison(op string, left, right types.Collection) (types.Collection, error) {
	if left.Empty() || right.Empty() {
		return types.Collection{}, nil
	}
	if len(left) != 1 || len(right) != 1 {
		return nil, SingletonError(len(left) + len(right))
	}
	switch op {
	case "<":
		return LessThan(left[0], right[0])
	case "<=":
		return LessOrEqual(left[0], right[0])
	case ">":
		return GreaterThan(left[0], right[0])
	case ">=":
		return GreaterOrEqual(left[0], right[0])
	default:
		return types.Collection{}, nil
	}
}

func (e *Evaluator) evalArithmetic(op string, left, right types.Collection) (types.Collection, error) {
	if op == "&" {
		return Concatenate(left, right), nil
	}
	if left.Empty() || right.Empty() {
		return types.Collection{}, nil
	}
	if len(left) != 1 || len(right) != 1 {
		return nil, SingletonError(len(left) + len(right))
	}
	var result types.Value
	var err error
	switch op {
	case "+":
		result, err = Add(left[0], right[0])
	case "-":
		result, err = Subtract(left[0], right[0])
	case "*":
		result, err = Multiply(left[0], right[0])
	case "/":
		result, err = Divide(left[0], right[0])
	case "div":
		result, err = IntegerDivide(left[0], right[0])
	case "mod":
		result, err = Modulo(left[0], right[0])
	}
	if err != nil {
		// Quantities with incompatible dimensions add/subtract to empty.
		if _, ok := left[0].(types.Quantity); ok && (op == "+" || op == "-") {
			if _, ok := right[0].(types.Quantity); ok {
				return types.Collection{}, nil
			}
		}
		return nil, err
	}
	return types.Collection{result}, nil
}

// evalFunctionCall resolves the function, validates arity, and either routes
// to a lambda-special-cased evaluator (where/select/... need the unevaluated
// argument node, not its value) or evaluates arguments eagerly and calls the
// registered FuncImpl.
func (e *Evaluator) evalFunctionCall(n *parser.FunctionCall) (types.Collection, error) {
	fn, ok := e.funcs.Get(n.Name)
	if !ok {
		return nil, FunctionNotFoundError(n.Name)
	}

	argCount := len(n.Args)
	if argCount < fn.MinArgs {
		return nil, InvalidArgumentsError(n.Name, fn.MinArgs, argCount)
	}
	if fn.MaxArgs >= 0 && argCount > fn.MaxArgs {
		return nil, InvalidArgumentsError(n.Name, fn.MaxArgs, argCount)
	}

	input := e.ctx.This()
	if n.InvocationBase != nil {
		base, err := e.eval(n.InvocationBase)
		if err != nil {
			return nil, err
		}
		input = base
	}

	oldThis := e.ctx.this
	e.ctx.this = input
	defer func() { e.ctx.this = oldThis }()

	switch n.Name {
	case "where":
		if argCount > 0 {
			return e.evalWhere(input, n.Args[0])
		}
	case "exists":
		if argCount > 0 {
			return e.evalExists(input, n.Args[0])
		}
	case "all":
		if argCount > 0 {
			return e.evalAll(input, n.Args[0])
		}
	case "select":
		if argCount > 0 {
			return e.evalSelect(input, n.Args[0])
		}
	case "repeat":
		if argCount > 0 {
			return e.evalRepeat(input, n.Args[0])
		}
	case "aggregate":
		return e.evalAggregate(input, n.Args)
	case "is":
		if argCount > 0 {
			return e.evalIsFunction(input, n.Args[0])
		}
	case "as":
		if argCount > 0 {
			return e.evalAsFunction(input, n.Args[0])
		}
	case "ofType":
		if argCount > 0 {
			return e.evalOfType(input, n.Args[0])
		}
	case "iif":
		if argCount >= 2 {
			return e.evalIif(n.Args)
		}
	}

	args := make([]interface{}, argCount)
	for i, argExpr := range n.Args {
		col, err := e.eval(argExpr)
		if err != nil {
			return nil, err
		}
		args[i] = col
	}

	return fn.Fn(e.ctx, input, args)
}

// evalWhere evaluates the where() function with per-element criteria.
func (e *Evaluator) evalWhere(input types.Collection, criteria parser.Node) (types.Collection, error) {
	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return nil, err
	}

	result := types.Collection{}
	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return nil, err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i
		col, err := e.eval(criteria)
		e.ctx.this, e.ctx.index = oldThis, oldIndex
		if err != nil {
			return nil, err
		}

		if !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				result = append(result, item)
			}
		}
	}
	return result, nil
}

// evalExists evaluates exists() with optional criteria.
func (e *Evaluator) evalExists(input types.Collection, criteria parser.Node) (types.Collection, error) {
	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return nil, err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i
		col, err := e.eval(criteria)
		e.ctx.this, e.ctx.index = oldThis, oldIndex
		if err != nil {
			return nil, err
		}

		if !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				return types.Collection{types.NewBoolean(true)}, nil
			}
		}
	}
	return types.Collection{types.NewBoolean(false)}, nil
}

// evalAll evaluates all() - true if every element matches criteria.
func (e *Evaluator) evalAll(input types.Collection, criteria parser.Node) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{types.NewBoolean(true)}, nil
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return nil, err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i
		col, err := e.eval(criteria)
		e.ctx.this, e.ctx.index = oldThis, oldIndex
		if err != nil {
			return nil, err
		}

		if col.Empty() {
			return types.Collection{types.NewBoolean(false)}, nil
		}
		if b, ok := col[0].(types.Boolean); ok && !b.Bool() {
			return types.Collection{types.NewBoolean(false)}, nil
		}
	}
	return types.Collection{types.NewBoolean(true)}, nil
}

// evalSelect evaluates select() - projects and flattens each element.
func (e *Evaluator) evalSelect(input types.Collection, projection parser.Node) (types.Collection, error) {
	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return nil, err
	}

	result := types.Collection{}
	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return nil, err
			}
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i
		col, err := e.eval(projection)
		e.ctx.this, e.ctx.index = oldThis, oldIndex
		if err != nil {
			return nil, err
		}

		result = append(result, col...)
		if err := e.ctx.CheckCollectionSize(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// evalRepeat evaluates repeat() by repeatedly applying criteria to the
// newest frontier of results until it stops producing anything unseen,
// bounded by "repeat_depth_limit" (spec invariant 9).
func (e *Evaluator) evalRepeat(input types.Collection, criteria parser.Node) (types.Collection, error) {
	limit := e.ctx.GetLimit("repeat_depth_limit")
	if limit <= 0 {
		limit = defaultRepeatDepthLimit
	}

	seen := types.Collection{}
	frontier := input
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= limit {
			return nil, RepeatDepthExceededError(limit)
		}
		if err := e.ctx.CheckCancellation(); err != nil {
			return nil, err
		}

		var next types.Collection
		for i, item := range frontier {
			oldThis, oldIndex := e.ctx.this, e.ctx.index
			e.ctx.this = types.Collection{item}
			e.ctx.index = i
			col, err := e.eval(criteria)
			e.ctx.this, e.ctx.index = oldThis, oldIndex
			if err != nil {
				return nil, err
			}

			for _, v := range col {
				if seen.Contains(v) {
					continue
				}
				seen = append(seen, v)
				next = append(next, v)
			}
		}
		frontier = next
	}
	return seen, nil
}

// evalAggregate evaluates aggregate() as a fold over input, with $total
// threaded between iterations (spec §4.6.3).
func (e *Evaluator) evalAggregate(input types.Collection, args []parser.Node) (types.Collection, error) {
	if len(args) < 1 {
		return nil, ArityError("aggregate", 1, len(args))
	}

	var total types.Value
	if len(args) > 1 {
		initCol, err := e.eval(args[1])
		if err != nil {
			return nil, err
		}
		if v, ok := initCol.First(); ok {
			total = v
		}
	}

	oldTotal := e.ctx.total
	defer func() { e.ctx.total = oldTotal }()

	for i, item := range input {
		if err := e.ctx.CheckCancellation(); err != nil {
			return nil, err
		}

		oldThis, oldIndex := e.ctx.this, e.ctx.index
		e.ctx.this = types.Collection{item}
		e.ctx.index = i
		e.ctx.total = total
		col, err := e.eval(args[0])
		e.ctx.this, e.ctx.index = oldThis, oldIndex
		if err != nil {
			return nil, err
		}

		if v, ok := col.First(); ok {
			total = v
		} else {
			total = nil
		}
	}

	if total == nil {
		return types.Collection{}, nil
	}
	return types.Collection{total}, nil
}

// evalIsFunction evaluates is(Type) as a function call.
func (e *Evaluator) evalIsFunction(input types.Collection, typeExpr parser.Node) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}
	if len(input) != 1 {
		return nil, SingletonError(len(input))
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return nil, InvalidArgumentsError("is", 1, 0)
	}

	return types.Collection{types.NewBoolean(TypeMatches(input[0].Type(), typeName))}, nil
}

// evalAsFunction evaluates as(Type) as a function call.
func (e *Evaluator) evalAsFunction(input types.Collection, typeExpr parser.Node) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}
	if len(input) != 1 {
		return nil, SingletonError(len(input))
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return nil, InvalidArgumentsError("as", 1, 0)
	}

	if TypeMatches(input[0].Type(), typeName) {
		return input, nil
	}
	return types.Collection{}, nil
}

// evalOfType evaluates ofType() - filters the collection by type.
func (e *Evaluator) evalOfType(input types.Collection, typeExpr parser.Node) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return nil, InvalidArgumentsError("ofType", 1, 0)
	}

	result := types.Collection{}
	for _, item := range input {
		if TypeMatches(item.Type(), typeName) {
			result = append(result, item)
		}
	}
	return result, nil
}

// extractTypeName extracts a type name from a type-name argument node. The
// parser never constructs parser.TypeLiteral for function-call-form type
// arguments (is(Patient), as(Patient), ofType(Patient)); they arrive as a
// plain Identifier or a dotted MemberAccess (FHIR.Patient, System.String).
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

// evalIif evaluates iif() with lazy evaluation: only the matching branch is
// evaluated, so the unselected branch's errors never surface.
// Signature: iif(criterion, true-result [, otherwise-result])
func (e *Evaluator) evalIif(args []parser.Node) (types.Collection, error) {
	if len(args) < 2 {
		return nil, InvalidArgumentsError("iif", 2, len(args))
	}

	criterionCol, err := e.eval(args[0])
	if err != nil {
		return nil, err
	}

	criterion := false
	if !criterionCol.Empty() {
		if b, ok := criterionCol[0].(types.Boolean); ok {
			criterion = b.Bool()
		}
	}

	if criterion {
		return e.eval(args[1])
	}
	if len(args) > 2 {
		return e.eval(args[2])
	}
	return types.Collection{}, nil
}

// nonDomainResources contains FHIR resources that inherit directly from Resource,
// not from DomainResource. All other resources inherit from DomainResource.
var nonDomainResources = map[string]bool{
	"Bundle":     true,
	"Binary":     true,
	"Parameters": true,
}

// IsDomainResource returns true if the given resource type inherits from DomainResource.
// Bundle, Binary, and Parameters inherit directly from Resource, not DomainResource.
func IsDomainResource(resourceType string) bool {
	return !nonDomainResources[resourceType]
}

// IsSubtypeOf checks if actualType is a subtype of (or equal to) baseType.
// This handles the FHIR type hierarchy:
//
//	Resource
//	  └── DomainResource
//	        ├── Patient
//	        ├── Observation
//	        └── ... (most resources)
//	  └── Bundle, Binary, Parameters (directly inherit from Resource)
func IsSubtypeOf(actualType, baseType string) bool {
	if actualType == baseType {
		return true
	}
	if strings.EqualFold(actualType, baseType) {
		return true
	}

	if baseType == "Resource" || strings.EqualFold(baseType, "resource") {
		return isPossibleResourceType(actualType)
	}

	if baseType == "DomainResource" || strings.EqualFold(baseType, "domainresource") {
		return isPossibleResourceType(actualType) && IsDomainResource(actualType)
	}

	return false
}

// isPossibleResourceType checks if the type looks like a FHIR resource type.
// Resource types are PascalCase and are not primitive types.
func isPossibleResourceType(typeName string) bool {
	if typeName == "" {
		return false
	}

	primitiveTypes := map[string]bool{
		"Boolean": true, "String": true, "Integer": true, "Decimal": true,
		"Date": true, "DateTime": true, "Time": true, "Quantity": true,
		"Object": true,
	}
	if primitiveTypes[typeName] {
		return false
	}

	return typeName[0] >= 'A' && typeName[0] <= 'Z'
}

// TypeMatches checks if actualType matches the requested typeName.
// Handles case-insensitive comparison and FHIR type aliases.
func TypeMatches(actualType, typeName string) bool {
	if actualType == typeName {
		return true
	}

	actualLower := strings.ToLower(actualType)
	typeNameLower := strings.ToLower(typeName)

	if actualLower == typeNameLower {
		return true
	}

	if IsSubtypeOf(actualType, typeName) {
		return true
	}

	// FHIR primitive type mappings (FHIR uses lowercase, FHIRPath uses PascalCase)
	fhirToFHIRPath := map[string]string{
		"boolean":        "Boolean",
		"string":         "String",
		"integer":        "Integer",
		"decimal":        "Decimal",
		"date":           "Date",
		"datetime":       "DateTime",
		"time":           "Time",
		"instant":        "DateTime",
		"uri":            "String",
		"url":            "String",
		"canonical":      "String",
		"base64binary":   "String",
		"code":           "String",
		"id":             "String",
		"markdown":       "String",
		"oid":            "String",
		"uuid":           "String",
		"positiveint":    "Integer",
		"unsignedint":    "Integer",
		"integer64":      "Integer",
		"quantity":       "Quantity",
		"simplequantity": "Quantity",
		"age":            "Quantity",
		"count":          "Quantity",
		"distance":       "Quantity",
		"duration":       "Quantity",
		"money":          "Quantity",
	}

	if fhirPathType, ok := fhirToFHIRPath[typeNameLower]; ok {
		if actualType == fhirPathType {
			return true
		}
	}

	if fhirPathType, ok := fhirToFHIRPath[actualLower]; ok {
		if fhirPathType == typeName || strings.EqualFold(fhirPathType, typeName) {
			return true
		}
	}

	// System type namespace handling (FHIR.* and System.*)
	if strings.HasPrefix(typeNameLower, "system.") {
		systemType := typeName[7:]
		if strings.EqualFold(actualType, systemType) {
			return true
		}
	}

	if strings.HasPrefix(typeNameLower, "fhir.") {
		fhirType := typeName[5:]
		if strings.EqualFold(actualType, fhirType) {
			return true
		}
	}

	return false
}

// polymorphicTypeSuffixes contains all FHIR type suffixes for polymorphic elements (value[x] pattern).
// These are used to resolve element names like "value" to "valueQuantity", "valueString", etc.
var polymorphicTypeSuffixes = []string{
	// Primitive types
	"Boolean", "Integer", "Integer64", "Decimal", "String", "Code", "Id", "Uri", "Url", "Canonical",
	"Base64Binary", "Instant", "Date", "DateTime", "Time", "Oid", "Uuid", "Markdown", "PositiveInt", "UnsignedInt",
	// Complex types
	"Quantity", "CodeableConcept", "Coding", "Range", "Period", "Ratio", "RatioRange",
	"Identifier", "Reference", "Attachment", "HumanName", "Address", "ContactPoint",
	"Timing", "Signature", "Annotation", "SampledData", "Age", "Distance", "Duration",
	"Count", "Money", "MoneyQuantity", "SimpleQuantity",
	// Special types
	"Meta", "Dosage", "ContactDetail", "Contributor", "DataRequirement", "Expression",
	"ParameterDefinition", "RelatedArtifact", "TriggerDefinition", "UsageContext",
}

// navigateMember navigates to a member of objects in the collection.
// Supports FHIR polymorphic elements (value[x] pattern) by automatically
// resolving element names like "value" to their typed variants.
func (e *Evaluator) navigateMember(input types.Collection, name string) types.Collection {
	result := types.Collection{}

	for _, item := range input {
		obj, ok := item.(*types.ObjectValue)
		if !ok {
			continue
		}

		// Check if name matches resourceType (for FHIR resources)
		if IsSubtypeOf(obj.Type(), name) {
			result = append(result, obj)
			continue
		}

		// Try direct field access first
		children := obj.GetCollection(name)
		if len(children) > 0 {
			result = append(result, children...)
			continue
		}

		// If direct access failed, try polymorphic element resolution
		polymorphicChildren := e.resolvePolymorphicField(obj, name)
		result = append(result, polymorphicChildren...)
	}

	return result
}

// resolvePolymorphicField attempts to resolve a polymorphic FHIR element.
// For example, accessing "value" will search for "valueQuantity", "valueString", etc.
func (e *Evaluator) resolvePolymorphicField(obj *types.ObjectValue, name string) types.Collection {
	result := types.Collection{}

	for _, suffix := range polymorphicTypeSuffixes {
		fieldName := name + suffix
		children := obj.GetCollection(fieldName)
		if len(children) > 0 {
			result = append(result, children...)
			return result
		}
	}

	return result
}
