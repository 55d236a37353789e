package dax

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/token"
)

// DefaultMaxDepth bounds expression nesting when no WithMaxDepth option is given.
const DefaultMaxDepth = 256

// ArityChecker validates argument counts for functions the parser does not
// know itself. It returns a description of the expected count when got is
// out of range. Unknown names must report ok.
type ArityChecker interface {
	CheckArity(name string, got int) (want string, ok bool)
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth sets the nesting limit. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// WithArityChecker makes the parser enforce argument counts of known functions.
func WithArityChecker(c ArityChecker) Option {
	return func(p *Parser) {
		p.arity = c
	}
}

// Parser builds an expression tree from a token slice.
type Parser struct {
	tokens   []token.Token
	pos      int
	token    token.Token // current token
	peek     token.Token // lookahead token
	err      error
	depth    int
	maxDepth int
	arity    ArityChecker
}

// NewParser creates a parser over tokens. A trailing EOF token is added when
// the slice does not end with one.
func NewParser(tokens []token.Token, opts ...Option) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != token.EOF {
		var end token.Position
		if len(tokens) > 0 {
			end = tokens[len(tokens)-1].End
		}
		tokens = append(tokens[:len(tokens):len(tokens)], token.Token{Kind: token.EOF, Pos: end, End: end})
	}
	p := &Parser{
		tokens:   tokens,
		pos:      -1,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.nextToken()
	return p
}

// Parse tokenizes and parses a single expression.
func Parse(src string, opts ...Option) (Expr, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, opts...).Parse()
}

// Parse parses the whole token stream as one expression.
func (p *Parser) Parse() (Expr, error) {
	expr := p.parseExpression()
	if p.err == nil && !p.check(token.EOF) {
		p.addError(fmt.Sprintf(ErrTrailingInput, p.token))
	}
	if p.err != nil {
		return nil, p.err
	}
	return expr, nil
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.token = p.tokens[p.pos]
	p.peek = p.tokens[min(p.pos+1, len(p.tokens)-1)]
}

// check returns true if the current token is of the given kind.
func (p *Parser) check(k token.Kind) bool {
	return p.token.Kind == k
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(k token.Kind) bool {
	if p.check(k) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise records an error.
func (p *Parser) expect(k token.Kind, what string) bool {
	if p.check(k) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, what))
	return false
}

// addError records a parse error at the current token. Only the first
// error is kept.
func (p *Parser) addError(msg string) {
	p.addErrorAt(p.token.Pos, msg)
}

func (p *Parser) addErrorAt(pos token.Position, msg string) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{Pos: pos, Message: msg}
}

// enter increments the nesting depth and fails once it passes the limit.
func (p *Parser) enter() bool {
	p.depth++
	if p.depth > p.maxDepth {
		if p.err == nil {
			p.err = &StackLimitError{Pos: p.token.Pos, Limit: p.maxDepth}
		}
		return false
	}
	return true
}

func (p *Parser) leave() {
	p.depth--
}

// ---------- Expressions ----------

// Operator precedence, lowest first.
const (
	precNone = iota
	precOr
	precAnd
	precNot
	precComparison
	precConcat
	precAdditive
	precMultiplicative
	precPower
	precUnary
)

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() Expr {
	return p.parseExpressionWithPrecedence(precOr)
}

// parseExpressionWithPrecedence parses a prefix expression followed by
// infix operators binding at least as tightly as minPrecedence. Only nested
// operands count toward the depth limit; a flat chain such as a + b + c is
// built iteratively.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Expr {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	left := p.parsePrefixExpr()
	for left != nil && p.err == nil {
		if p.token.Is(token.Identifier, "IS") && precComparison >= minPrecedence {
			left = p.parseIsNull(left)
			continue
		}

		prec := p.infixPrecedence()
		if prec == precNone || prec < minPrecedence {
			break
		}

		op := operatorText(p.token)
		p.nextToken()
		right := p.parseExpressionWithPrecedence(prec + 1)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			base:  base{span: token.Span{Start: left.Span().Start, End: right.Span().End}},
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
	if p.err != nil {
		return nil
	}
	return left
}

// parseIsNull parses the IS [NOT] NULL suffix of operand.
func (p *Parser) parseIsNull(operand Expr) Expr {
	p.nextToken() // IS
	not := false
	if p.token.Is(token.Identifier, "NOT") {
		not = true
		p.nextToken()
	}
	end := p.token
	if !end.Is(token.Identifier, "NULL") {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, end, "NULL"))
		return nil
	}
	p.nextToken()
	return &IsNullExpr{
		base:    base{span: token.Span{Start: operand.Span().Start, End: end.End}},
		Operand: operand,
		Not:     not,
	}
}

// infixPrecedence returns the binding power of the current token as an
// infix operator, or precNone.
func (p *Parser) infixPrecedence() int {
	tok := p.token
	switch tok.Kind {
	case token.Operator:
		switch tok.Text {
		case "||":
			return precOr
		case "&&":
			return precAnd
		case "=", "==", "<>", "<", ">", "<=", ">=":
			return precComparison
		case "&":
			return precConcat
		case "+", "-":
			return precAdditive
		case "*", "/":
			return precMultiplicative
		case "^":
			return precPower
		}
	case token.Identifier, token.FunctionName:
		// Word operators let already-translated SQL parse again.
		switch {
		case tok.Is(tok.Kind, "OR"):
			return precOr
		case tok.Is(tok.Kind, "AND"):
			return precAnd
		}
	}
	return precNone
}

// operatorText normalizes word operators to upper case.
func operatorText(tok token.Token) string {
	if tok.Kind == token.Operator {
		return tok.Text
	}
	return strings.ToUpper(tok.Text)
}

// parsePrefixExpr parses unary operators and primary expressions.
func (p *Parser) parsePrefixExpr() Expr {
	start := p.token
	switch {
	case start.IsOperator("-", "+"):
		p.nextToken()
		operand := p.parseExpressionWithPrecedence(precUnary)
		if operand == nil {
			return nil
		}
		return &UnaryExpr{
			base:    base{span: token.Span{Start: start.Pos, End: operand.Span().End}},
			Op:      start.Text,
			Operand: operand,
		}

	case start.Is(token.Identifier, "NOT"):
		p.nextToken()
		operand := p.parseExpressionWithPrecedence(precComparison)
		if operand == nil {
			return nil
		}
		return &UnaryExpr{
			base:    base{span: token.Span{Start: start.Pos, End: operand.Span().End}},
			Op:      "NOT",
			Operand: operand,
		}

	default:
		return p.parsePrimary()
	}
}

// parsePrimary parses literals, references, calls, groups and VAR blocks.
func (p *Parser) parsePrimary() Expr {
	tok := p.token
	span := token.Span{Start: tok.Pos, End: tok.End}

	switch tok.Kind {
	case token.NumberLiteral:
		p.nextToken()
		return &Literal{base: base{span: span}, Kind: LiteralNumber, Value: tok.Text}

	case token.StringLiteral:
		p.nextToken()
		return &Literal{base: base{span: span}, Kind: LiteralString, Value: tok.Text}

	case token.ColumnRef:
		p.nextToken()
		return &ColumnRef{base: base{span: span}, Table: tok.Table, Column: tok.Column}

	case token.TableRef:
		p.nextToken()
		return &TableRef{base: base{span: span}, Name: tok.Text}

	case token.FunctionName:
		return p.parseCall()

	case token.LParen:
		p.nextToken()
		inner := p.parseExpression()
		if inner == nil {
			return nil
		}
		end := p.token
		if !p.expect(token.RParen, `")"`) {
			return nil
		}
		return &ParenExpr{base: base{span: token.Span{Start: tok.Pos, End: end.End}}, Inner: inner}

	case token.Identifier:
		switch strings.ToUpper(tok.Text) {
		case "VAR":
			return p.parseVarBlock()
		case "RETURN":
			p.addError(fmt.Sprintf(ErrUnexpectedInExpr, tok))
			return nil
		case "CASE":
			return p.parseCase()
		case "INTERVAL":
			if p.peek.Kind == token.NumberLiteral {
				return p.parseInterval()
			}
		}
		// SUM (x): whitespace between name and paren.
		if p.peek.Kind == token.LParen {
			return p.parseCall()
		}
		if tok.Is(token.Identifier, "TRUE") || tok.Is(token.Identifier, "FALSE") {
			p.nextToken()
			return &Literal{base: base{span: span}, Kind: LiteralBool, Value: strings.ToUpper(tok.Text)}
		}
		if tok.Is(token.Identifier, "NULL") {
			p.nextToken()
			return &Literal{base: base{span: span}, Kind: LiteralBlank, Value: "BLANK"}
		}
		p.nextToken()
		return &Ident{base: base{span: span}, Name: tok.Text}
	}

	if tok.Kind == token.EOF {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, tok, "an expression"))
		return nil
	}
	p.addError(fmt.Sprintf(ErrUnexpectedInExpr, tok))
	return nil
}

// parseCall parses NAME ( [arg {, arg}] ). The SQL forms EXTRACT(part FROM x),
// COUNT(DISTINCT x) and COUNT(*) are accepted too.
func (p *Parser) parseCall() Expr {
	nameTok := p.token
	name := strings.ToUpper(nameTok.Text)
	p.nextToken()
	if !p.expect(token.LParen, `"("`) {
		return nil
	}

	if name == "EXTRACT" && p.check(token.Identifier) && p.peek.Is(token.Identifier, "FROM") {
		return p.parseExtract(nameTok)
	}

	distinct := false
	if p.token.Is(token.Identifier, "DISTINCT") {
		switch p.peek.Kind {
		case token.ColumnRef, token.Identifier, token.FunctionName, token.TableRef:
			distinct = true
			p.nextToken()
		}
	}

	var args []Expr
	if !p.check(token.RParen) {
		for {
			var arg Expr
			if p.token.IsOperator("*") && p.peek.Kind == token.RParen {
				arg = &Star{base: base{span: token.Span{Start: p.token.Pos, End: p.token.End}}}
				p.nextToken()
			} else {
				arg = p.parseExpression()
			}
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.match(token.Comma) {
				break
			}
		}
	}

	end := p.token
	if !p.expect(token.RParen, `"," or ")"`) {
		return nil
	}

	if distinct && len(args) != 1 {
		p.addErrorAt(nameTok.Pos, fmt.Sprintf(ErrArity, name+"(DISTINCT ...)", ArityText(1, 1), len(args)))
		return nil
	}
	if !p.checkArity(nameTok, name, len(args)) {
		return nil
	}

	b := base{span: token.Span{Start: nameTok.Pos, End: end.End}}
	switch {
	case name == "IF":
		return &IfExpr{base: b, Cond: args[0], Then: args[1], Else: args[2]}
	case len(args) == 0 && (name == "TRUE" || name == "FALSE"):
		return &Literal{base: b, Kind: LiteralBool, Value: name}
	case len(args) == 0 && name == "BLANK":
		return &Literal{base: b, Kind: LiteralBlank, Value: name}
	}
	return &FuncCall{base: b, Name: name, RawName: nameTok.Text, Args: args, Distinct: distinct}
}

// parseExtract parses the rest of EXTRACT(part FROM source); the opening
// parenthesis is already consumed.
func (p *Parser) parseExtract(nameTok token.Token) Expr {
	part := strings.ToUpper(p.token.Text)
	p.nextToken() // part
	p.nextToken() // FROM

	source := p.parseExpression()
	if source == nil {
		return nil
	}
	end := p.token
	if !p.expect(token.RParen, `")"`) {
		return nil
	}
	return &ExtractExpr{
		base:   base{span: token.Span{Start: nameTok.Pos, End: end.End}},
		Part:   part,
		Source: source,
	}
}

// parseInterval parses INTERVAL value unit.
func (p *Parser) parseInterval() Expr {
	start := p.token
	p.nextToken() // INTERVAL
	value := p.token.Text
	p.nextToken()

	unit := p.token
	if !p.check(token.Identifier) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, unit, "interval unit"))
		return nil
	}
	p.nextToken()
	return &IntervalExpr{
		base:  base{span: token.Span{Start: start.Pos, End: unit.End}},
		Value: value,
		Unit:  strings.ToUpper(unit.Text),
	}
}

// parseCase parses CASE [operand] WHEN cond THEN result {WHEN ...} [ELSE e] END.
func (p *Parser) parseCase() Expr {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.token
	p.nextToken() // CASE

	c := &CaseExpr{}
	if !p.token.Is(token.Identifier, "WHEN") {
		if c.Operand = p.parseExpression(); c.Operand == nil {
			return nil
		}
	}

	for p.token.Is(token.Identifier, "WHEN") {
		p.nextToken()
		cond := p.parseExpression()
		if cond == nil {
			return nil
		}
		if !p.token.Is(token.Identifier, "THEN") {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, "THEN"))
			return nil
		}
		p.nextToken()
		result := p.parseExpression()
		if result == nil {
			return nil
		}
		c.Whens = append(c.Whens, WhenClause{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, "WHEN"))
		return nil
	}

	if p.token.Is(token.Identifier, "ELSE") {
		p.nextToken()
		if c.Else = p.parseExpression(); c.Else == nil {
			return nil
		}
	}

	end := p.token
	if !end.Is(token.Identifier, "END") {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, end, "END"))
		return nil
	}
	p.nextToken()
	c.base = base{span: token.Span{Start: start.Pos, End: end.End}}
	return c
}

// grammarArity lists the functions whose argument count is part of the
// grammar itself.
var grammarArity = map[string][2]int{
	"IF":        {3, 3},
	"AND":       {2, 2},
	"OR":        {2, 2},
	"NOT":       {1, 1},
	"FILTER":    {2, 2},
	"CALCULATE": {1, -1},
}

func (p *Parser) checkArity(nameTok token.Token, name string, got int) bool {
	if r, ok := grammarArity[name]; ok {
		if got < r[0] || (r[1] >= 0 && got > r[1]) {
			p.addErrorAt(nameTok.Pos, fmt.Sprintf(ErrArity, name, ArityText(r[0], r[1]), got))
			return false
		}
		return true
	}
	if p.arity == nil {
		return true
	}
	if want, ok := p.arity.CheckArity(name, got); !ok {
		p.addErrorAt(nameTok.Pos, fmt.Sprintf(ErrArity, name, want, got))
		return false
	}
	return true
}

// ArityText describes an argument count range; max < 0 means unbounded.
func ArityText(minArgs, maxArgs int) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", n)
	}
	switch {
	case maxArgs < 0:
		return "at least " + plural(minArgs)
	case minArgs == maxArgs:
		return "exactly " + plural(minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", minArgs, maxArgs)
	}
}

// parseVarBlock parses VAR name = init {VAR name = init} RETURN body into
// nested bindings, the first VAR outermost.
func (p *Parser) parseVarBlock() Expr {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.token
	p.nextToken() // VAR

	if !p.check(token.Identifier) || isReserved(p.token.Text) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, "variable name"))
		return nil
	}
	name := p.token.Text
	p.nextToken()

	if !p.token.IsOperator("=") {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, `"="`))
		return nil
	}
	p.nextToken()

	init := p.parseExpression()
	if init == nil {
		return nil
	}

	var body Expr
	switch {
	case p.token.Is(token.Identifier, "VAR"):
		body = p.parseVarBlock()
	case p.token.Is(token.Identifier, "RETURN"):
		p.nextToken()
		body = p.parseExpression()
	default:
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token, "VAR or RETURN"))
		return nil
	}
	if body == nil {
		return nil
	}

	return &VarBinding{
		base: base{span: token.Span{Start: start.Pos, End: body.Span().End}},
		Name: name,
		Init: init,
		Body: body,
	}
}
