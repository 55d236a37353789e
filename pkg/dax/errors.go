package dax

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/daxport/pkg/token"
)

// LexError reports malformed input at a byte offset.
type LexError struct {
	Pos     token.Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexer error at line %d, column %d (offset %d): %s", e.Pos.Line, e.Pos.Column, e.Pos.Offset, e.Message)
}

// ParseError represents a grammar violation with position information.
type ParseError struct {
	Pos     token.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// ErrStackLimitExceeded is matched by errors.Is for every StackLimitError.
var ErrStackLimitExceeded = errors.New("stack limit exceeded")

// StackLimitError is returned when an expression nests deeper than the
// parser's configured limit.
type StackLimitError struct {
	Pos   token.Position
	Limit int
}

func (e *StackLimitError) Error() string {
	return fmt.Sprintf("stack limit exceeded at line %d, column %d: expression nests deeper than %d levels", e.Pos.Line, e.Pos.Column, e.Limit)
}

// Unwrap lets errors.Is(err, ErrStackLimitExceeded) match.
func (e *StackLimitError) Unwrap() error {
	return ErrStackLimitExceeded
}

// Common error messages
const (
	ErrUnexpectedToken      = "unexpected %s, expected %s"
	ErrUnexpectedInExpr     = "unexpected %s in expression"
	ErrTrailingInput        = "unexpected %s after end of expression"
	ErrArity                = "%s expects %s, got %d"
	ErrUnterminatedString   = "unterminated string literal"
	ErrUnterminatedTable    = "unterminated quoted table name"
	ErrUnterminatedBracket  = "unterminated column reference"
	ErrUnterminatedComment  = "unterminated block comment"
	ErrIllegalCharacter     = "illegal character %q"
	ErrEmptyColumnReference = "empty column reference"
)
