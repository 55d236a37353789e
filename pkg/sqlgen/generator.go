// Package sqlgen emits Databricks SQL for a parsed DAX expression.
//
// Generation is a single walk over the tree: every node is visited once
// and rewritten through the rule registry, so the output of one rule is
// never matched again by another. Identical trees always yield identical
// text.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/token"
)

// Output is the result of generating one expression.
type Output struct {
	SQL string
	// Warnings name approximations a reviewer must check.
	Warnings []string
	// Related lists tables reached through RELATED, in first-use order.
	Related []string
}

// Error reports a construct the generator could not emit.
type Error struct {
	Pos     token.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Generator turns expression trees into SQL using a rule registry.
type Generator struct {
	registry *rules.Registry
}

// New creates a generator. A nil registry means rules.Default().
func New(reg *rules.Registry) *Generator {
	if reg == nil {
		reg = rules.Default()
	}
	return &Generator{registry: reg}
}

// Generate emits SQL for e. src is the text e was parsed from; it is used
// to document variable bindings and may be empty.
func (g *Generator) Generate(e dax.Expr, src string) (Output, error) {
	w := &walker{registry: g.registry, src: src}
	sql, err := w.expr(e, nil)
	if err != nil {
		return Output{}, err
	}
	return Output{SQL: sql, Warnings: w.warnings, Related: w.related}, nil
}

// Generate emits SQL for e with the default registry.
func Generate(e dax.Expr, src string) (Output, error) {
	return New(nil).Generate(e, src)
}

// env is one link of the lexical variable scope chain.
type env struct {
	name   string
	sql    string
	parent *env
}

// lookup resolves name to its bound SQL; the innermost binding wins.
func (e *env) lookup(name string) (string, bool) {
	for s := e; s != nil; s = s.parent {
		if strings.EqualFold(s.name, name) {
			return s.sql, true
		}
	}
	return "", false
}

type walker struct {
	registry *rules.Registry
	src      string
	warnings []string
	related  []string
}

func (w *walker) warn(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}

func (w *walker) errorf(n dax.Node, format string, args ...any) error {
	return &Error{Pos: n.Span().Start, Message: fmt.Sprintf(format, args...)}
}

func (w *walker) expr(e dax.Expr, scope *env) (string, error) {
	switch n := e.(type) {
	case *dax.Literal:
		return literal(n), nil

	case *dax.ColumnRef:
		if n.Table == "" {
			w.warn("[%s]: measure reference emitted as column %s; resolve the measure", n.Column, QuoteIdent(n.Column))
			return QuoteIdent(n.Column), nil
		}
		return QualifiedName(n.Table, n.Column), nil

	case *dax.TableRef:
		return QuoteIdent(n.Name), nil

	case *dax.Ident:
		if sql, ok := scope.lookup(n.Name); ok {
			return sql, nil
		}
		return QuoteIdent(n.Name), nil

	case *dax.ParenExpr:
		inner, err := w.expr(n.Inner, scope)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	case *dax.UnaryExpr:
		operand, err := w.expr(n.Operand, scope)
		if err != nil {
			return "", err
		}
		operand = callOperand(n.Operand, operand)
		switch {
		case n.Op == "NOT":
			return "NOT " + operand, nil
		case strings.HasPrefix(operand, "-"), strings.HasPrefix(operand, "+"):
			// "--" would start a line comment.
			return n.Op + " " + operand, nil
		}
		return n.Op + operand, nil

	case *dax.BinaryExpr:
		return w.binary(n, scope)

	case *dax.IfExpr:
		return w.call(n, "IF", []dax.Expr{n.Cond, n.Then, n.Else}, scope)

	case *dax.FuncCall:
		return w.call(n, n.Name, n.Args, scope)

	case *dax.VarBinding:
		return w.varBinding(n, scope)

	case *dax.CaseExpr:
		return w.caseExpr(n, scope)

	case *dax.ExtractExpr:
		source, err := w.expr(n.Source, scope)
		if err != nil {
			return "", err
		}
		return "EXTRACT(" + n.Part + " FROM " + source + ")", nil

	case *dax.IntervalExpr:
		return "INTERVAL " + n.Value + " " + n.Unit, nil

	case *dax.IsNullExpr:
		operand, err := w.expr(n.Operand, scope)
		if err != nil {
			return "", err
		}
		if n.Not {
			return callOperand(n.Operand, operand) + " IS NOT NULL", nil
		}
		return callOperand(n.Operand, operand) + " IS NULL", nil

	case *dax.Star:
		return "*", nil

	default:
		return "", fmt.Errorf("generate: unexpected node %T", e)
	}
}

func (w *walker) binary(n *dax.BinaryExpr, scope *env) (string, error) {
	left, err := w.expr(n.Left, scope)
	if err != nil {
		return "", err
	}
	right, err := w.expr(n.Right, scope)
	if err != nil {
		return "", err
	}

	switch n.Op {
	case "&":
		return rules.Call("CONCAT", left, right), nil
	case "^":
		return rules.Call("POWER", left, right), nil
	}
	return callOperand(n.Left, left) + " " + sqlOperator(n.Op) + " " + callOperand(n.Right, right), nil
}

// callOperand parenthesizes the output of a call when its rule emitted more
// than one operand, so NOT (x) or a FILTER BY clause keeps its meaning
// inside an operator expression.
func callOperand(e dax.Expr, sql string) string {
	switch e.(type) {
	case *dax.FuncCall, *dax.IfExpr:
		if !rules.SingleOperand(sql) {
			return "(" + sql + ")"
		}
	}
	return sql
}

func (w *walker) caseExpr(n *dax.CaseExpr, scope *env) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")
	if n.Operand != nil {
		operand, err := w.expr(n.Operand, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + operand)
	}
	for _, when := range n.Whens {
		cond, err := w.expr(when.Cond, scope)
		if err != nil {
			return "", err
		}
		result, err := w.expr(when.Result, scope)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", cond, result)
	}
	if n.Else != nil {
		e, err := w.expr(n.Else, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(" ELSE " + e)
	}
	b.WriteString(" END")
	return b.String(), nil
}

func sqlOperator(op string) string {
	switch op {
	case "&&":
		return "AND"
	case "||":
		return "OR"
	case "==":
		return "="
	default:
		return op
	}
}

func (w *walker) args(raw []dax.Expr, scope *env) ([]string, error) {
	out := make([]string, len(raw))
	for i, a := range raw {
		s, err := w.expr(a, scope)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (w *walker) call(n dax.Expr, name string, raw []dax.Expr, scope *env) (string, error) {
	if c, denied := w.registry.Denied(name); denied {
		return "", w.errorf(n, "%s has no SQL equivalent (%s)", name, c)
	}

	distinct := false
	if fc, ok := n.(*dax.FuncCall); ok && fc.Distinct {
		distinct = true
	}

	rule, ok := w.registry.Lookup(name)
	if !ok {
		args, err := w.args(raw, scope)
		if err != nil {
			return "", err
		}
		if distinct {
			args[0] = "DISTINCT " + args[0]
		}
		w.warn("%s: unsupported function passed through unchanged", name)
		return rules.BlockComment("unsupported function: "+name) + " " + rules.Call(name, args...), nil
	}

	if !rule.Accepts(len(raw)) {
		return "", w.errorf(n, dax.ErrArity, name, rule.Arity(), len(raw))
	}

	var args []string
	if rule.Kind != rules.Comment {
		var err error
		if args, err = w.args(raw, scope); err != nil {
			return "", err
		}
		if distinct {
			args[0] = "DISTINCT " + args[0]
		}
	}

	sql, err := rule.Apply(args, raw)
	if err != nil {
		return "", w.errorf(n, "%v", err)
	}

	switch rule.Kind {
	case rules.Annotated, rules.Comment:
		w.warn("%s: %s", dax.Format(n), rule.Note)
	}
	if name == "RELATED" {
		if ref, ok := dax.Unparen(raw[0]).(*dax.ColumnRef); ok && ref.Table != "" {
			w.addRelated(ref.Table)
		}
	}
	return sql, nil
}

func (w *walker) addRelated(table string) {
	for _, t := range w.related {
		if strings.EqualFold(t, table) {
			return
		}
	}
	w.related = append(w.related, table)
}

// varBinding inlines the initializer wherever the body names the variable
// and documents the original binding in a leading comment.
func (w *walker) varBinding(n *dax.VarBinding, scope *env) (string, error) {
	init, err := w.expr(n.Init, scope)
	if err != nil {
		return "", err
	}
	init = rules.Operand(init, n.Init)

	body, err := w.expr(n.Body, &env{name: n.Name, sql: init, parent: scope})
	if err != nil {
		return "", err
	}
	return rules.BlockComment("VAR "+n.Name+" = "+w.sourceText(n.Init)) + " " + body, nil
}

// sourceText returns the original text of e with whitespace collapsed, or
// its canonical form when the source is not available.
func (w *walker) sourceText(e dax.Expr) string {
	text := e.Span().Text(w.src)
	if text == "" {
		text = dax.Format(e)
	}
	return strings.Join(strings.Fields(text), " ")
}

func literal(n *dax.Literal) string {
	switch n.Kind {
	case dax.LiteralString:
		return QuoteString(n.Value)
	case dax.LiteralBlank:
		return "NULL"
	default:
		return n.Value
	}
}
