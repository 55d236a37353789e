package dax

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/token"
)

// Lexer tokenizes DAX expression text.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.Reset()
	return l
}

// Reset rewinds the lexer to the start of its input.
func (l *Lexer) Reset() {
	l.pos = 0
	l.readPos = 0
	l.ch = 0
	l.line = 1
	l.col = 0
	l.readChar()
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' && l.readPos > 0 {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) eof() bool {
	return l.pos >= len(l.input)
}

// currentPos returns the current position.
func (l *Lexer) currentPos() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *Lexer) errorf(pos token.Position, format string, args ...any) *LexError {
	return &LexError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Next returns the next token. At the end of input it returns an EOF token
// for every further call.
func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{Kind: token.Illegal, Pos: err.Pos}, err
	}

	tok, err := l.next(l.currentPos())
	tok.End = l.currentPos()
	return tok, err
}

func (l *Lexer) next(pos token.Position) (token.Token, error) {
	if l.eof() {
		return token.Token{Kind: token.EOF, Pos: pos}, nil
	}

	switch l.ch {
	case '(':
		return l.single(token.LParen, pos), nil
	case ')':
		return l.single(token.RParen, pos), nil
	case ',':
		return l.single(token.Comma, pos), nil
	case '"':
		s, err := l.readQuoted('"', pos, ErrUnterminatedString)
		if err != nil {
			return token.Token{Kind: token.Illegal, Pos: pos}, err
		}
		return token.Token{Kind: token.StringLiteral, Text: s, Pos: pos}, nil
	case '\'':
		name, err := l.readQuoted('\'', pos, ErrUnterminatedTable)
		if err != nil {
			return token.Token{Kind: token.Illegal, Pos: pos}, err
		}
		if l.ch == '[' {
			return l.columnRef(name, pos)
		}
		return token.Token{Kind: token.TableRef, Text: name, Pos: pos}, nil
	case '[':
		return l.columnRef("", pos)
	case '`':
		return l.identifierToken(pos)
	}

	switch {
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return token.Token{Kind: token.NumberLiteral, Text: l.readNumber(), Pos: pos}, nil
	case isIdentStart(l.ch):
		return l.identifierToken(pos)
	}

	return l.operator(pos)
}

func (l *Lexer) single(kind token.Kind, pos token.Position) token.Token {
	tok := token.Token{Kind: kind, Text: string(l.ch), Pos: pos}
	l.readChar()
	return tok
}

// identifierToken reads an identifier and decides whether it starts a
// column reference (Table[Col], Table.Col), a function call or stands alone.
func (l *Lexer) identifierToken(pos token.Position) (token.Token, error) {
	name, err := l.readNamePart(pos)
	if err != nil {
		return token.Token{Kind: token.Illegal, Pos: pos}, err
	}

	switch {
	case l.ch == '[':
		return l.columnRef(name, pos)
	case l.ch == '.' && (isIdentStart(l.peekChar()) || l.peekChar() == '`'):
		l.readChar() // skip '.'
		column, err := l.readNamePart(l.currentPos())
		if err != nil {
			return token.Token{Kind: token.Illegal, Pos: pos}, err
		}
		return token.Token{Kind: token.ColumnRef, Text: l.input[pos.Offset:l.pos], Table: name, Column: column, Pos: pos}, nil
	case l.ch == '(' && !isReserved(name):
		return token.Token{Kind: token.FunctionName, Text: name, Pos: pos}, nil
	default:
		return token.Token{Kind: token.Identifier, Text: name, Pos: pos}, nil
	}
}

// readNamePart reads a plain identifier or a backquoted one (`Net Amount`).
func (l *Lexer) readNamePart(pos token.Position) (string, error) {
	if l.ch == '`' {
		return l.readQuoted('`', pos, ErrUnterminatedBracket)
	}
	start := l.pos
	for !l.eof() && isIdentChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos], nil
}

// columnRef reads a [Column] suffix; l.ch must be '['.
func (l *Lexer) columnRef(table string, pos token.Position) (token.Token, error) {
	bracketPos := l.currentPos()
	l.readChar() // skip '['

	var col strings.Builder
	for {
		if l.eof() {
			return token.Token{Kind: token.Illegal, Pos: bracketPos}, l.errorf(bracketPos, ErrUnterminatedBracket)
		}
		if l.ch == ']' {
			if l.peekChar() == ']' {
				col.WriteByte(']')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip ']'
			break
		}
		col.WriteByte(l.ch)
		l.readChar()
	}

	column := strings.TrimSpace(col.String())
	if column == "" {
		return token.Token{Kind: token.Illegal, Pos: bracketPos}, l.errorf(bracketPos, ErrEmptyColumnReference)
	}
	return token.Token{
		Kind:   token.ColumnRef,
		Text:   l.input[pos.Offset:l.pos],
		Table:  table,
		Column: column,
		Pos:    pos,
	}, nil
}

// operator reads an operator token or reports an illegal character.
func (l *Lexer) operator(pos token.Position) (token.Token, error) {
	var op string
	switch l.ch {
	case '+', '-', '*', '/', '^':
		op = string(l.ch)
	case '&':
		op = "&"
		if l.peekChar() == '&' {
			op = "&&"
		}
	case '|':
		if l.peekChar() != '|' {
			return token.Token{Kind: token.Illegal, Text: "|", Pos: pos}, l.errorf(pos, ErrIllegalCharacter, "|")
		}
		op = "||"
	case '=':
		op = "="
		if l.peekChar() == '=' {
			op = "=="
		}
	case '<':
		switch l.peekChar() {
		case '=':
			op = "<="
		case '>':
			op = "<>"
		default:
			op = "<"
		}
	case '>':
		op = ">"
		if l.peekChar() == '=' {
			op = ">="
		}
	default:
		ch := string(l.ch)
		return token.Token{Kind: token.Illegal, Text: ch, Pos: pos}, l.errorf(pos, ErrIllegalCharacter, ch)
	}

	for range op {
		l.readChar()
	}
	return token.Token{Kind: token.Operator, Text: op, Pos: pos}, nil
}

// skipWhitespaceAndComments skips whitespace, // and -- line comments and
// /* */ block comments.
func (l *Lexer) skipWhitespaceAndComments() *LexError {
	for {
		for !l.eof() && isSpace(l.ch) {
			l.readChar()
		}

		switch {
		case l.ch == '/' && l.peekChar() == '/', l.ch == '-' && l.peekChar() == '-':
			for !l.eof() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.currentPos()
			l.readChar() // skip '/'
			l.readChar() // skip '*'
			for {
				if l.eof() {
					return l.errorf(start, ErrUnterminatedComment)
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
		default:
			return nil
		}
	}
}

// readQuoted reads a literal delimited by quote, where a doubled quote
// stands for the quote character itself.
func (l *Lexer) readQuoted(quote byte, start token.Position, unterminated string) (string, error) {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.eof() {
			return "", l.errorf(start, "%s", unterminated)
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				result.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing quote
			return result.String(), nil
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar() // skip 'e' or 'E'
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.input[start:l.pos]
}

// reserved words never start a function call even when followed by "(".
var reserved = map[string]bool{
	"VAR":    true,
	"RETURN": true,
}

func isReserved(name string) bool {
	return reserved[strings.ToUpper(name)]
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isIdentStart accepts ASCII letters, underscore and any non-ASCII byte so
// UTF-8 encoded names pass through intact.
func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_' || ch >= 0x80
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// Tokenize returns all tokens of input, ending with an EOF token.
func Tokenize(input string) ([]token.Token, error) {
	l := NewLexer(input)
	var tokens []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			return tokens, nil
		}
	}
}
