package lexer

import "github.com/robertoaraneda/gofhir/pkg/fhirpath/diagnostics"

// Kind classifies a lexical token.
type Kind int

const (
	EOF Kind = iota
	Identifier
	DelimitedIdentifier // `like this`
	Keyword

	IntegerLiteral
	DecimalLiteral
	StringLiteral
	DateLiteral     // @2020-01-01
	DateTimeLiteral // @2020-01-01T10:00:00Z
	TimeLiteral     // @T10:00:00
	QuantityLiteral // handled by the parser from Number + unit tokens; lexer emits Number then Unit separately

	ThisVar  // $this
	IndexVar // $index
	TotalVar // $total
	ExternalConstant // %name or %"quoted name"

	// Punctuation
	Dot
	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Comma
	Plus
	Minus
	Star
	Slash
	Percent
	Amp
	Pipe
	Eq
	Neq
	Equiv
	NotEquiv
	Lt
	Gt
	Lte
	Gte
)

// keywords that parse as operators/literals rather than identifiers.
var Keywords = map[string]Kind{
	"and":     Keyword,
	"or":      Keyword,
	"xor":     Keyword,
	"implies": Keyword,
	"not":     Keyword,
	"is":      Keyword,
	"as":      Keyword,
	"in":      Keyword,
	"contains": Keyword,
	"div":     Keyword,
	"mod":     Keyword,
	"true":    Keyword,
	"false":   Keyword,
}

// Token is one lexical unit with its source span.
type Token struct {
	Kind  Kind
	Text  string // raw source text (for identifiers/keywords: as written)
	Value string // decoded value (for strings: unescaped; for literals: normalized)
	Span  diagnostics.Span
}

func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Identifier:
		return "Identifier"
	case DelimitedIdentifier:
		return "DelimitedIdentifier"
	case Keyword:
		return "Keyword"
	case IntegerLiteral:
		return "IntegerLiteral"
	case DecimalLiteral:
		return "DecimalLiteral"
	case StringLiteral:
		return "StringLiteral"
	case DateLiteral:
		return "DateLiteral"
	case DateTimeLiteral:
		return "DateTimeLiteral"
	case TimeLiteral:
		return "TimeLiteral"
	case ThisVar:
		return "$this"
	case IndexVar:
		return "$index"
	case TotalVar:
		return "$total"
	case ExternalConstant:
		return "ExternalConstant"
	default:
		return "Punctuation"
	}
}
