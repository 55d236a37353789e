// Package token defines the lexical tokens of DAX formula expressions.
//
// The token set is deliberately small: every operator shares the Operator
// kind and is told apart by its Text, and keywords such as VAR and RETURN
// arrive as identifiers so the parser can decide what they mean in context.
package token

import "fmt"

// Kind is the lexical class of a token.
type Kind int

//nolint:revive // kind names follow the formula grammar, not Go naming
const (
	EOF Kind = iota
	Illegal

	Identifier    // Sales, VAR, RETURN, x
	TableRef      // 'Sales Table'
	ColumnRef     // Sales[Amount], 'Sales'[Amount], [Total], Sales.Amount
	FunctionName  // SUM in SUM(
	NumberLiteral // 1, 2.5, 1e10
	StringLiteral // "text"
	Operator      // + - * / ^ & = == <> < > <= >= && ||
	LParen        // (
	RParen        // )
	Comma         // ,
)

var kindNames = map[Kind]string{
	EOF:           "EOF",
	Illegal:       "ILLEGAL",
	Identifier:    "identifier",
	TableRef:      "table reference",
	ColumnRef:     "column reference",
	FunctionName:  "function name",
	NumberLiteral: "number",
	StringLiteral: "string",
	Operator:      "operator",
	LParen:        "(",
	RParen:        ")",
	Comma:         ",",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Token is a single lexical token.
//
// For ColumnRef tokens Table and Column carry the two halves of the
// reference; Table is empty for a bare [Measure] reference. For
// StringLiteral and TableRef tokens Text holds the unquoted value.
type Token struct {
	Kind   Kind
	Text   string
	Table  string
	Column string
	Pos    Position // first byte of the token
	End    Position // first byte after the token
}

// String renders the token for error messages.
func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "end of expression"
	case ColumnRef:
		if t.Table == "" {
			return fmt.Sprintf("[%s]", t.Column)
		}
		return fmt.Sprintf("%s[%s]", t.Table, t.Column)
	case StringLiteral:
		return fmt.Sprintf("%q", t.Text)
	case TableRef:
		return fmt.Sprintf("'%s'", t.Text)
	case LParen, RParen, Comma:
		return fmt.Sprintf("%q", t.Kind.String())
	default:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	}
}

// Is reports whether the token has the given kind and, for operators and
// identifiers, the given text (compared case-insensitively).
func (t Token) Is(kind Kind, text string) bool {
	if t.Kind != kind {
		return false
	}
	return text == "" || equalFold(t.Text, text)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// IsOperator reports whether the token is one of the given operators.
func (t Token) IsOperator(ops ...string) bool {
	if t.Kind != Operator {
		return false
	}
	for _, op := range ops {
		if t.Text == op {
			return true
		}
	}
	return false
}
