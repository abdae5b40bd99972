package parser

import (
	"strconv"
	"strings"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/diagnostics"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/lexer"
)

// Result is the total output of Parse: an AST (possibly containing ErrorNode
// subtrees) and a deterministic diagnostic list. Parse never panics and
// never returns a nil root.
type Result struct {
	Root        Node
	Diagnostics []diagnostics.Diagnostic
}

// Parse tokenizes and parses source, implementing spec invariant 1 (parse
// totality): it always returns some AST plus a diagnostic list.
func Parse(source string) Result {
	p := &parser{lex: lexer.New(source), source: source}
	p.advance()
	root := p.parseExpression()
	if p.cur.Kind != lexer.EOF {
		span := p.cur.Span
		p.errorf(span, diagnostics.CodeUnexpectedToken, "unexpected trailing token %q", p.cur.Text)
		root = &ErrorNode{base: newBase(root.Span().Join(span)), Message: "trailing input after expression"}
	}
	diags := append(append([]diagnostics.Diagnostic{}, p.lex.Diagnostics()...), p.diags...)
	return Result{Root: root, Diagnostics: diags}
}

type parser struct {
	lex    *lexer.Lexer
	source string
	cur    lexer.Token
	prev   lexer.Token
	diags  []diagnostics.Diagnostic
}

func (p *parser) advance() {
	p.prev = p.cur
	p.cur = p.lex.Next()
}

func (p *parser) errorf(span diagnostics.Span, code diagnostics.Code, format string, args ...any) {
	p.diags = append(p.diags, diagnostics.New(code, diagnostics.SeverityError, span, format, args...))
}

func (p *parser) expect(k lexer.Kind, desc string) (lexer.Token, bool) {
	if p.cur.Kind != k {
		p.errorf(p.cur.Span, diagnostics.CodeUnexpectedToken, "expected %s, got %q", desc, p.cur.Text)
		return p.cur, false
	}
	tok := p.cur
	p.advance()
	return tok, true
}

func errNodeHere(p *parser, message string) Node {
	return &ErrorNode{base: newBase(p.cur.Span), Message: message}
}

// parseExpression is the entry point: the lowest-precedence level, implies.
func (p *parser) parseExpression() Node {
	return p.parseImplies()
}

func (p *parser) parseImplies() Node {
	left := p.parseOrXor()
	for p.cur.Kind == lexer.Keyword && p.cur.Text == "implies" {
		p.advance()
		right := p.parseOrXor()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: "implies", Left: left, Right: right}
	}
	return left
}

func (p *parser) parseOrXor() Node {
	left := p.parseAnd()
	for p.cur.Kind == lexer.Keyword && (p.cur.Text == "or" || p.cur.Text == "xor") {
		op := p.cur.Text
		p.advance()
		right := p.parseAnd()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAnd() Node {
	left := p.parseMembership()
	for p.cur.Kind == lexer.Keyword && p.cur.Text == "and" {
		p.advance()
		right := p.parseMembership()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: "and", Left: left, Right: right}
	}
	return left
}

func (p *parser) parseMembership() Node {
	left := p.parseEquality()
	for p.cur.Kind == lexer.Keyword && (p.cur.Text == "in" || p.cur.Text == "contains") {
		op := p.cur.Text
		p.advance()
		right := p.parseEquality()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseEquality() Node {
	left := p.parseComparison()
	for {
		var op string
		switch p.cur.Kind {
		case lexer.Eq:
			op = "="
		case lexer.Neq:
			op = "!="
		case lexer.Equiv:
			op = "~"
		case lexer.NotEquiv:
			op = "!~"
		default:
			return left
		}
		p.advance()
		right := p.parseComparison()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseComparison() Node {
	left := p.parseUnion()
	for {
		var op string
		switch p.cur.Kind {
		case lexer.Lt:
			op = "<"
		case lexer.Gt:
			op = ">"
		case lexer.Lte:
			op = "<="
		case lexer.Gte:
			op = ">="
		default:
			return left
		}
		p.advance()
		right := p.parseUnion()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnion() Node {
	first := p.parseAdditive()
	if p.cur.Kind != lexer.Pipe {
		return first
	}
	exprs := []Node{first}
	span := first.Span()
	for p.cur.Kind == lexer.Pipe {
		p.advance()
		next := p.parseAdditive()
		span = span.Join(next.Span())
		exprs = append(exprs, next)
	}
	return &Union{base: newBase(span), Exprs: exprs}
}

func (p *parser) parseAdditive() Node {
	left := p.parseMultiplicative()
	for {
		var op string
		switch p.cur.Kind {
		case lexer.Plus:
			op = "+"
		case lexer.Minus:
			op = "-"
		case lexer.Amp:
			op = "&"
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() Node {
	left := p.parseIsAs()
	for {
		var op string
		switch {
		case p.cur.Kind == lexer.Star:
			op = "*"
		case p.cur.Kind == lexer.Slash:
			op = "/"
		case p.cur.Kind == lexer.Keyword && p.cur.Text == "div":
			op = "div"
		case p.cur.Kind == lexer.Keyword && p.cur.Text == "mod":
			op = "mod"
		default:
			return left
		}
		p.advance()
		right := p.parseIsAs()
		left = &BinaryOp{base: newBase(left.Span().Join(right.Span())), Op: op, Left: left, Right: right}
	}
}

// parseIsAs handles the `expr is Type` / `expr as Type` postfix-ish forms,
// which bind tighter than arithmetic but looser than unary per spec §4.2.
func (p *parser) parseIsAs() Node {
	left := p.parseUnary()
	for p.cur.Kind == lexer.Keyword && (p.cur.Text == "is" || p.cur.Text == "as") {
		op := p.cur.Text
		p.advance()
		ts := p.parseTypeSpec()
		span := left.Span().Join(p.prev.Span)
		if op == "is" {
			left = &IsExpr{base: newBase(span), Expr: left, Type: ts}
		} else {
			left = &AsExpr{base: newBase(span), Expr: left, Type: ts}
		}
	}
	return left
}

func (p *parser) parseTypeSpec() TypeSpec {
	first, ok := p.expect(lexer.Identifier, "type name")
	if !ok {
		return TypeSpec{Name: "Error"}
	}
	name := first.Value
	if p.cur.Kind == lexer.Dot {
		p.advance()
		second, ok := p.expect(lexer.Identifier, "type name")
		if ok {
			return TypeSpec{Namespace: name, Name: second.Value}
		}
	}
	return TypeSpec{Name: name}
}

func (p *parser) parseUnary() Node {
	switch {
	case p.cur.Kind == lexer.Plus:
		start := p.cur.Span
		p.advance()
		operand := p.parseUnary()
		return &UnaryOp{base: newBase(start.Join(operand.Span())), Op: "+", Operand: operand}
	case p.cur.Kind == lexer.Minus:
		start := p.cur.Span
		p.advance()
		operand := p.parseUnary()
		return &UnaryOp{base: newBase(start.Join(operand.Span())), Op: "-", Operand: operand}
	case p.cur.Kind == lexer.Keyword && p.cur.Text == "not":
		start := p.cur.Span
		p.advance()
		operand := p.parseUnary()
		return &UnaryOp{base: newBase(start.Join(operand.Span())), Op: "not", Operand: operand}
	default:
		return p.parsePostfix()
	}
}

func (p *parser) parsePostfix() Node {
	expr := p.parsePrimary()
	for {
		switch p.cur.Kind {
		case lexer.Dot:
			p.advance()
			expr = p.parseMemberOrCall(expr)
		case lexer.LBracket:
			start := expr.Span()
			p.advance()
			idx := p.parseExpression()
			end, _ := p.expect(lexer.RBracket, "']'")
			expr = &Indexer{base: newBase(start.Join(end.Span)), Parent: expr, Index: idx}
		default:
			return expr
		}
	}
}

// parseMemberOrCall parses the segment after a '.': either a bare member name
// or a method-style function call, normalizing the latter so the receiver is
// available as InvocationBase.
func (p *parser) parseMemberOrCall(base_ Node) Node {
	if p.cur.Kind != lexer.Identifier && p.cur.Kind != lexer.Keyword {
		p.errorf(p.cur.Span, diagnostics.CodeExpectedExpr, "expected member name after '.'")
		return &ErrorNode{base: newBase(base_.Span().Join(p.cur.Span)), Message: "expected member name"}
	}
	name := p.cur.Value
	if name == "" {
		name = p.cur.Text
	}
	nameSpan := p.cur.Span
	p.advance()
	if p.cur.Kind == lexer.LParen {
		p.advance()
		args := p.parseArgList()
		end, _ := p.expect(lexer.RParen, "')'")
		return &FunctionCall{
			base:           newBase(base_.Span().Join(end.Span)),
			Name:           name,
			Args:           args,
			InvocationBase: base_,
		}
	}
	return &MemberAccess{base: newBase(base_.Span().Join(nameSpan)), Parent: base_, Name: name}
}

func (p *parser) parseArgList() []Node {
	var args []Node
	if p.cur.Kind == lexer.RParen {
		return args
	}
	args = append(args, p.parseExpression())
	for p.cur.Kind == lexer.Comma {
		p.advance()
		args = append(args, p.parseExpression())
	}
	return args
}

func (p *parser) parsePrimary() Node {
	switch p.cur.Kind {
	case lexer.IntegerLiteral:
		return p.parseNumericOrQuantity(LitInteger)
	case lexer.DecimalLiteral:
		return p.parseNumericOrQuantity(LitDecimal)
	case lexer.StringLiteral:
		tok := p.cur
		p.advance()
		return &Literal{base: newBase(tok.Span), Kind: LitString, Text: tok.Value}
	case lexer.DateLiteral:
		tok := p.cur
		p.advance()
		return &Literal{base: newBase(tok.Span), Kind: LitDate, Text: tok.Value}
	case lexer.DateTimeLiteral:
		tok := p.cur
		p.advance()
		return &Literal{base: newBase(tok.Span), Kind: LitDateTime, Text: tok.Value}
	case lexer.TimeLiteral:
		tok := p.cur
		p.advance()
		return &Literal{base: newBase(tok.Span), Kind: LitTime, Text: tok.Value}
	case lexer.ThisVar:
		tok := p.cur
		p.advance()
		return &VariableRef{base: newBase(tok.Span), Kind: VarThis}
	case lexer.IndexVar:
		tok := p.cur
		p.advance()
		return &VariableRef{base: newBase(tok.Span), Kind: VarIndex}
	case lexer.TotalVar:
		tok := p.cur
		p.advance()
		return &VariableRef{base: newBase(tok.Span), Kind: VarTotal}
	case lexer.ExternalConstant:
		tok := p.cur
		p.advance()
		return &VariableRef{base: newBase(tok.Span), Kind: VarExternal, Name: tok.Value}
	case lexer.LParen:
		p.advance()
		inner := p.parseExpression()
		p.expect(lexer.RParen, "')'")
		return inner
	case lexer.LBrace:
		start := p.cur.Span
		p.advance()
		end, _ := p.expect(lexer.RBrace, "'}'")
		return &Literal{base: newBase(start.Join(end.Span)), Kind: LitEmpty}
	case lexer.Keyword:
		switch p.cur.Text {
		case "true", "false":
			tok := p.cur
			p.advance()
			return &Literal{base: newBase(tok.Span), Kind: LitBoolean, Text: tok.Text}
		default:
			// Keywords (and/or/div/mod/...) may also be used as identifiers
			// in member/function position per the FHIRPath grammar.
			return p.parseIdentifierOrCall()
		}
	case lexer.Identifier:
		return p.parseIdentifierOrCall()
	default:
		span := p.cur.Span
		p.errorf(span, diagnostics.CodeExpectedExpr, "expected expression, got %q", p.cur.Text)
		if p.cur.Kind != lexer.EOF {
			p.advance()
		}
		return &ErrorNode{base: newBase(span), Message: "expected expression"}
	}
}

func (p *parser) parseIdentifierOrCall() Node {
	tok := p.cur
	name := tok.Value
	if name == "" {
		name = tok.Text
	}
	p.advance()
	if p.cur.Kind == lexer.LParen {
		p.advance()
		args := p.parseArgList()
		end, _ := p.expect(lexer.RParen, "')'")
		return &FunctionCall{base: newBase(tok.Span.Join(end.Span)), Name: name, Args: args}
	}
	return &Identifier{base: newBase(tok.Span), Name: name}
}

// parseNumericOrQuantity parses a number literal, then checks whether it is
// immediately followed by a unit (string literal or bare calendar-duration
// word), turning it into a LitQuantity.
func (p *parser) parseNumericOrQuantity(kind LiteralKind) Node {
	tok := p.cur
	p.advance()
	lit := &Literal{base: newBase(tok.Span), Kind: kind, Text: tok.Text}
	switch {
	case p.cur.Kind == lexer.StringLiteral:
		unitTok := p.cur
		p.advance()
		return &Literal{
			base: newBase(tok.Span.Join(unitTok.Span)),
			Kind: LitQuantity, Text: tok.Text, Unit: unitTok.Value,
		}
	case p.cur.Kind == lexer.Identifier && isCalendarDurationWord(p.cur.Value):
		unitTok := p.cur
		p.advance()
		return &Literal{
			base: newBase(tok.Span.Join(unitTok.Span)),
			Kind: LitQuantity, Text: tok.Text, Unit: normalizeCalendarUnit(unitTok.Value), CalendarDuration: true,
		}
	default:
		return lit
	}
}

var calendarDurationWords = map[string]bool{
	"year": true, "years": true, "month": true, "months": true,
	"week": true, "weeks": true, "day": true, "days": true,
	"hour": true, "hours": true, "minute": true, "minutes": true,
	"second": true, "seconds": true, "millisecond": true, "milliseconds": true,
}

func isCalendarDurationWord(s string) bool { return calendarDurationWords[strings.ToLower(s)] }

func normalizeCalendarUnit(s string) string { return strings.TrimSuffix(strings.ToLower(s), "s") }

// ParseInt is a small helper funcs/eval packages use to decode Literal.Text
// for integer literals without re-depending on strconv at every call site.
func ParseInt(text string) (int64, error) {
	return strconv.ParseInt(text, 10, 64)
}
