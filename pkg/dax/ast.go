package dax

import "github.com/leapstack-labs/daxport/pkg/token"

// Node is implemented by every AST node.
type Node interface {
	Span() token.Span
}

// Expr is a DAX expression node.
type Expr interface {
	Node
	exprNode()
}

// LiteralKind classifies a literal value.
type LiteralKind int

// Literal kinds.
const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralBlank
)

// String returns the literal kind name.
func (k LiteralKind) String() string {
	switch k {
	case LiteralNumber:
		return "number"
	case LiteralString:
		return "string"
	case LiteralBool:
		return "bool"
	case LiteralBlank:
		return "blank"
	default:
		return "unknown"
	}
}

type base struct {
	span token.Span
}

// Span returns the source range covered by the node.
func (b base) Span() token.Span { return b.span }

// Literal is a number, string, boolean or blank literal. Value holds the
// number text as written, the unquoted string, TRUE/FALSE, or BLANK.
type Literal struct {
	base
	Kind  LiteralKind
	Value string
}

// ColumnRef is a Table[Column] reference. Table is empty for a bare [Name]
// reference, which in DAX usually names a measure.
type ColumnRef struct {
	base
	Table  string
	Column string
}

// TableRef is a quoted table name used on its own, e.g. 'Sales Table'.
type TableRef struct {
	base
	Name string
}

// Ident is a bare identifier: a variable reference, an unquoted table name
// passed as an argument, or a date unit such as MONTH in DATEADD.
type Ident struct {
	base
	Name string
}

// FuncCall is a function invocation. Name is upper-cased; RawName keeps
// the spelling from the source. Distinct marks the SQL aggregate form
// COUNT(DISTINCT x).
type FuncCall struct {
	base
	Name     string
	RawName  string
	Args     []Expr
	Distinct bool
}

// IfExpr is IF(cond, then, else).
type IfExpr struct {
	base
	Cond Expr
	Then Expr
	Else Expr
}

// BinaryExpr is an infix operation. Op is the operator as written
// (&&, ||, AND, OR, =, ==, <>, &, ^, ...).
type BinaryExpr struct {
	base
	Op    string
	Left  Expr
	Right Expr
}

// UnaryExpr is a prefix operation: -x, +x or NOT x.
type UnaryExpr struct {
	base
	Op      string
	Operand Expr
}

// VarBinding is VAR Name = Init RETURN Body. A block with several VARs
// parses into nested bindings, the first VAR outermost.
type VarBinding struct {
	base
	Name string
	Init Expr
	Body Expr
}

// ParenExpr is an explicitly parenthesized expression.
type ParenExpr struct {
	base
	Inner Expr
}

// The nodes below only occur in expressions already written in SQL form,
// such as the output of a previous translation.

// WhenClause is one WHEN cond THEN result arm of a CaseExpr.
type WhenClause struct {
	Cond   Expr
	Result Expr
}

// CaseExpr is a SQL CASE expression. Operand is nil for the searched form.
type CaseExpr struct {
	base
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

// ExtractExpr is EXTRACT(Part FROM Source).
type ExtractExpr struct {
	base
	Part   string
	Source Expr
}

// IntervalExpr is INTERVAL Value Unit.
type IntervalExpr struct {
	base
	Value string
	Unit  string
}

// IsNullExpr is Operand IS [NOT] NULL.
type IsNullExpr struct {
	base
	Operand Expr
	Not     bool
}

// Star is the * argument of COUNT(*).
type Star struct {
	base
}

func (*Literal) exprNode()    {}
func (*ColumnRef) exprNode()  {}
func (*TableRef) exprNode()   {}
func (*Ident) exprNode()      {}
func (*FuncCall) exprNode()   {}
func (*IfExpr) exprNode()     {}
func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}
func (*VarBinding) exprNode() {}
func (*ParenExpr) exprNode()  {}
func (*CaseExpr) exprNode()     {}
func (*ExtractExpr) exprNode()  {}
func (*IntervalExpr) exprNode() {}
func (*IsNullExpr) exprNode()   {}
func (*Star) exprNode()         {}

// Children returns the direct sub-expressions of e in source order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *FuncCall:
		return n.Args
	case *IfExpr:
		return []Expr{n.Cond, n.Then, n.Else}
	case *BinaryExpr:
		return []Expr{n.Left, n.Right}
	case *UnaryExpr:
		return []Expr{n.Operand}
	case *VarBinding:
		return []Expr{n.Init, n.Body}
	case *ParenExpr:
		return []Expr{n.Inner}
	case *CaseExpr:
		var out []Expr
		if n.Operand != nil {
			out = append(out, n.Operand)
		}
		for _, w := range n.Whens {
			out = append(out, w.Cond, w.Result)
		}
		if n.Else != nil {
			out = append(out, n.Else)
		}
		return out
	case *ExtractExpr:
		return []Expr{n.Source}
	case *IsNullExpr:
		return []Expr{n.Operand}
	default:
		return nil
	}
}

// Walk visits e and its descendants in post-order: every child before its
// parent, siblings left to right.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
	fn(e)
}

// Unparen strips any number of enclosing ParenExpr nodes.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			return e
		}
		e = p.Inner
	}
}
