package dax

import (
	"bytes"
	"fmt"
	"strings"
)

const indentSize = 2

// Format renders e as canonical single-line DAX. Names are kept as written,
// function names are upper-cased and optional whitespace is normalized.
func Format(e Expr) string {
	var buf bytes.Buffer
	formatExpr(&buf, e)
	return buf.String()
}

func formatExpr(buf *bytes.Buffer, e Expr) {
	switch n := e.(type) {
	case nil:
	case *Literal:
		switch n.Kind {
		case LiteralString:
			buf.WriteString(QuoteString(n.Value))
		case LiteralBlank:
			buf.WriteString("BLANK()")
		default:
			buf.WriteString(n.Value)
		}
	case *ColumnRef:
		buf.WriteString(FormatColumnRef(n.Table, n.Column))
	case *TableRef:
		buf.WriteString(quoteTable(n.Name))
	case *Ident:
		buf.WriteString(n.Name)
	case *FuncCall:
		if n.Distinct && len(n.Args) == 1 {
			buf.WriteString(n.Name + "(DISTINCT ")
			formatExpr(buf, n.Args[0])
			buf.WriteByte(')')
			break
		}
		formatCall(buf, n.Name, n.Args)
	case *IfExpr:
		formatCall(buf, "IF", []Expr{n.Cond, n.Then, n.Else})
	case *BinaryExpr:
		formatExpr(buf, n.Left)
		buf.WriteByte(' ')
		buf.WriteString(n.Op)
		buf.WriteByte(' ')
		formatExpr(buf, n.Right)
	case *UnaryExpr:
		buf.WriteString(n.Op)
		if n.Op == "NOT" {
			buf.WriteByte(' ')
		}
		formatExpr(buf, n.Operand)
	case *VarBinding:
		buf.WriteString("VAR ")
		buf.WriteString(n.Name)
		buf.WriteString(" = ")
		formatExpr(buf, n.Init)
		if _, nested := n.Body.(*VarBinding); nested {
			buf.WriteByte(' ')
		} else {
			buf.WriteString(" RETURN ")
		}
		formatExpr(buf, n.Body)
	case *ParenExpr:
		buf.WriteByte('(')
		formatExpr(buf, n.Inner)
		buf.WriteByte(')')
	case *CaseExpr:
		buf.WriteString("CASE")
		if n.Operand != nil {
			buf.WriteByte(' ')
			formatExpr(buf, n.Operand)
		}
		for _, w := range n.Whens {
			buf.WriteString(" WHEN ")
			formatExpr(buf, w.Cond)
			buf.WriteString(" THEN ")
			formatExpr(buf, w.Result)
		}
		if n.Else != nil {
			buf.WriteString(" ELSE ")
			formatExpr(buf, n.Else)
		}
		buf.WriteString(" END")
	case *ExtractExpr:
		fmt.Fprintf(buf, "EXTRACT(%s FROM ", n.Part)
		formatExpr(buf, n.Source)
		buf.WriteByte(')')
	case *IntervalExpr:
		fmt.Fprintf(buf, "INTERVAL %s %s", n.Value, n.Unit)
	case *IsNullExpr:
		formatExpr(buf, n.Operand)
		if n.Not {
			buf.WriteString(" IS NOT NULL")
		} else {
			buf.WriteString(" IS NULL")
		}
	case *Star:
		buf.WriteByte('*')
	default:
		fmt.Fprintf(buf, "<%T>", e)
	}
}

func formatCall(buf *bytes.Buffer, name string, args []Expr) {
	buf.WriteString(name)
	buf.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			buf.WriteString(", ")
		}
		formatExpr(buf, arg)
	}
	buf.WriteByte(')')
}

// QuoteString quotes s as a DAX string literal.
func QuoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatColumnRef renders a column reference in DAX bracket form.
func FormatColumnRef(table, column string) string {
	col := "[" + strings.ReplaceAll(column, "]", "]]") + "]"
	if table == "" {
		return col
	}
	if isPlainName(table) {
		return table + col
	}
	return quoteTable(table) + col
}

func quoteTable(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func isPlainName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// Dump renders the tree structure of e, one node per line, for debugging.
func Dump(e Expr) string {
	d := &dumper{output: &bytes.Buffer{}}
	d.node(e)
	return d.output.String()
}

type dumper struct {
	output *bytes.Buffer
	depth  int
}

func (d *dumper) line(format string, args ...any) {
	d.output.WriteString(strings.Repeat(" ", d.depth*indentSize))
	fmt.Fprintf(d.output, format, args...)
	d.output.WriteByte('\n')
}

func (d *dumper) node(e Expr) {
	switch n := e.(type) {
	case *Literal:
		d.line("Literal %s %s", n.Kind, n.Value)
	case *ColumnRef:
		d.line("ColumnRef %s", FormatColumnRef(n.Table, n.Column))
	case *TableRef:
		d.line("TableRef %s", n.Name)
	case *Ident:
		d.line("Ident %s", n.Name)
	case *FuncCall:
		if n.Distinct {
			d.line("Call %s DISTINCT", n.Name)
			break
		}
		d.line("Call %s", n.Name)
	case *IfExpr:
		d.line("If")
	case *BinaryExpr:
		d.line("Binary %s", n.Op)
	case *UnaryExpr:
		d.line("Unary %s", n.Op)
	case *VarBinding:
		d.line("Var %s", n.Name)
	case *ParenExpr:
		d.line("Paren")
	case *CaseExpr:
		d.line("Case")
	case *ExtractExpr:
		d.line("Extract %s", n.Part)
	case *IntervalExpr:
		d.line("Interval %s %s", n.Value, n.Unit)
	case *IsNullExpr:
		d.line("IsNull not=%t", n.Not)
	case *Star:
		d.line("Star")
	default:
		d.line("%T", e)
		return
	}

	d.depth++
	for _, c := range Children(e) {
		d.node(c)
	}
	d.depth--
}
