package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/dax"
)

// Call renders name(arg, arg, ...).
func Call(name string, args ...string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

// BlockComment wraps text in a SQL block comment. Comment delimiters inside
// text are broken up so the comment cannot end early or nest.
func BlockComment(text string) string {
	text = strings.ReplaceAll(text, "*/", "* /")
	text = strings.ReplaceAll(text, "/*", "/ *")
	return "/* " + text + " */"
}

func rename(target string) BuildFunc {
	return func(args []string, _ []dax.Expr) (string, error) {
		return Call(target, args...), nil
	}
}

func extract(part string) BuildFunc {
	return func(args []string, _ []dax.Expr) (string, error) {
		return fmt.Sprintf("EXTRACT(%s FROM %s)", part, args[0]), nil
	}
}

func fixed(sql string) BuildFunc {
	return func([]string, []dax.Expr) (string, error) {
		return sql, nil
	}
}

func infix(op string) BuildFunc {
	return func(args []string, _ []dax.Expr) (string, error) {
		return fmt.Sprintf("(%s %s %s)", args[0], op, args[1]), nil
	}
}

// scalarOrAggregate maps the one-argument form to an aggregate and the
// two-argument form to a scalar function, as DAX MIN and MAX do.
func scalarOrAggregate(aggregate, scalar string) BuildFunc {
	return func(args []string, _ []dax.Expr) (string, error) {
		if len(args) == 1 {
			return Call(aggregate, args...), nil
		}
		return Call(scalar, args...), nil
	}
}

// IsAtomic reports whether e renders as a single SQL operand that needs no
// parentheses when embedded in a larger expression. Calls are not atomic:
// a rule may emit several operands, see SingleOperand.
func IsAtomic(e dax.Expr) bool {
	switch e.(type) {
	case *dax.Literal, *dax.ColumnRef, *dax.Ident, *dax.TableRef, *dax.ParenExpr,
		*dax.CaseExpr, *dax.ExtractExpr, *dax.Star:
		return true
	default:
		return false
	}
}

// Operand returns sql, the translation of e, parenthesized unless it is
// already a single operand.
func Operand(sql string, e dax.Expr) string {
	if IsAtomic(e) {
		return sql
	}
	switch e.(type) {
	case *dax.FuncCall, *dax.IfExpr:
		if SingleOperand(sql) {
			return sql
		}
	}
	return "(" + sql + ")"
}

// SingleOperand reports whether sql reads as one SQL operand: a name,
// literal, call, parenthesized group or CASE ... END block, optionally
// preceded by block comments. NOT (x) and a FILTER BY b are not.
func SingleOperand(sql string) bool {
	words := topLevelWords(sql)
	if len(words) <= 1 {
		return true
	}
	if !strings.EqualFold(words[0], "CASE") || !strings.EqualFold(words[len(words)-1], "END") {
		return false
	}
	depth := 0
	for i, w := range words {
		switch strings.ToUpper(w) {
		case "CASE":
			depth++
		case "END":
			depth--
			if depth == 0 && i != len(words)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// topLevelWords splits sql on whitespace outside parentheses, quotes and
// block comments. Comments outside parentheses are dropped.
func topLevelWords(sql string) []string {
	var words []string
	start, depth := -1, 0
	flush := func(end int) {
		if start >= 0 {
			words = append(words, sql[start:end])
			start = -1
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			j := strings.Index(sql[i+2:], "*/")
			if j < 0 {
				j = len(sql) - i - 4
			}
			if depth == 0 {
				flush(i)
			}
			i += j + 3
			continue
		case c == '\'' || c == '`':
			if start < 0 {
				start = i
			}
			j := strings.IndexByte(sql[i+1:], c)
			if j < 0 {
				i = len(sql)
				continue
			}
			i += j + 1
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && isSQLSpace(c):
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(sql))
	return words
}

func isSQLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Parenthesize wraps sql in parentheses unless one matching pair already
// encloses all of it.
func Parenthesize(sql string) string {
	if enclosed(sql) {
		return sql
	}
	return "(" + sql + ")"
}

func enclosed(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '`':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				return false
			}
			i += j + 1
		case '/':
			if i+1 < len(s) && s[i+1] == '*' {
				j := strings.Index(s[i+2:], "*/")
				if j < 0 {
					return false
				}
				i += j + 3
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func buildIf(args []string, _ []dax.Expr) (string, error) {
	return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", args[0], args[1], args[2]), nil
}

// buildSwitch maps SWITCH(value, match, result, ..., [else]) onto a simple
// CASE, or onto a searched CASE when value is TRUE().
func buildSwitch(args []string, raw []dax.Expr) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")

	searched := false
	if lit, ok := dax.Unparen(raw[0]).(*dax.Literal); ok && lit.Kind == dax.LiteralBool && lit.Value == "TRUE" {
		searched = true
	}
	if !searched {
		b.WriteString(" " + args[0])
	}

	rest := args[1:]
	for len(rest) >= 2 {
		fmt.Fprintf(&b, " WHEN %s THEN %s", rest[0], rest[1])
		rest = rest[2:]
	}
	if len(rest) == 1 {
		fmt.Fprintf(&b, " ELSE %s", rest[0])
	}
	b.WriteString(" END")
	return b.String(), nil
}

func buildNot(args []string, _ []dax.Expr) (string, error) {
	return "NOT " + Parenthesize(args[0]), nil
}

func buildLeft(args []string, _ []dax.Expr) (string, error) {
	n := "1"
	if len(args) == 2 {
		n = args[1]
	}
	return Call("SUBSTRING", args[0], "1", n), nil
}

func buildRight(args []string, raw []dax.Expr) (string, error) {
	n, neg := "1", "-1"
	if len(args) == 2 {
		n = args[1]
		neg = "-" + Operand(n, raw[1])
	}
	return Call("SUBSTRING", args[0], neg, n), nil
}

func buildDivide(args []string, raw []dax.Expr) (string, error) {
	div := fmt.Sprintf("%s / NULLIF(%s, 0)", Operand(args[0], raw[0]), args[1])
	if len(args) == 3 {
		return Call("COALESCE", div, args[2]), nil
	}
	return "(" + div + ")", nil
}

func buildIsBlank(args []string, _ []dax.Expr) (string, error) {
	return fmt.Sprintf("(%s IS NULL)", args[0]), nil
}

func buildSamePeriodLastYear(args []string, _ []dax.Expr) (string, error) {
	return fmt.Sprintf("(%s - INTERVAL 1 YEAR)", args[0]), nil
}

var dateUnits = map[string]bool{
	"YEAR": true, "QUARTER": true, "MONTH": true, "WEEK": true, "DAY": true,
	"HOUR": true, "MINUTE": true, "SECOND": true,
}

// dateUnit returns the interval unit named by e, if any.
func dateUnit(e dax.Expr) (string, bool) {
	switch n := dax.Unparen(e).(type) {
	case *dax.Ident:
		u := strings.ToUpper(n.Name)
		return u, dateUnits[u]
	case *dax.Literal:
		if n.Kind != dax.LiteralString {
			return "", false
		}
		u := strings.ToUpper(n.Value)
		return u, dateUnits[u]
	}
	return "", false
}

// buildDateAdd accepts the DAX order (dates, n, unit) and the SQL order
// (unit, n, date) and always emits DATEADD(UNIT, n, date).
func buildDateAdd(args []string, raw []dax.Expr) (string, error) {
	if u, ok := dateUnit(raw[0]); ok {
		return Call("DATEADD", u, args[1], args[2]), nil
	}
	if u, ok := dateUnit(raw[2]); ok {
		return Call("DATEADD", u, args[1], args[0]), nil
	}
	return "", errors.New("DATEADD: no interval unit in first or last argument")
}

// buildDateDiff accepts (start, end, unit) and (unit, start, end).
func buildDateDiff(args []string, raw []dax.Expr) (string, error) {
	if u, ok := dateUnit(raw[0]); ok {
		return Call("DATEDIFF", u, args[1], args[2]), nil
	}
	if u, ok := dateUnit(raw[2]); ok {
		return Call("DATEDIFF", u, args[0], args[1]), nil
	}
	return "", errors.New("DATEDIFF: no interval unit in first or last argument")
}

func buildLookupValue(_ []string, raw []dax.Expr) (string, error) {
	parts := make([]string, len(raw))
	for i, a := range raw {
		parts[i] = dax.Format(a)
	}
	return BlockComment(Call("LOOKUPVALUE", parts...)), nil
}

func buildRelated(args []string, _ []dax.Expr) (string, error) {
	return args[0], nil
}

func buildCalculate(args []string, _ []dax.Expr) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return args[0] + " FILTER BY " + strings.Join(args[1:], " AND "), nil
}

func buildFilter(args []string, _ []dax.Expr) (string, error) {
	return args[0] + " WHERE " + args[1], nil
}

func identity(name string, minArgs, maxArgs int) Rule {
	return Rule{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Kind: Identity}
}

func rewrite(name string, minArgs, maxArgs int, build BuildFunc) Rule {
	return Rule{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Kind: Rewrite, Build: build}
}

func builtinRules() []Rule {
	return []Rule{
		// Aggregates
		identity("SUM", 1, 1),
		identity("COUNT", 1, 1),
		identity("AVG", 1, 1),
		identity("MEDIAN", 1, 1),
		rewrite("MIN", 1, 2, scalarOrAggregate("MIN", "LEAST")),
		rewrite("MAX", 1, 2, scalarOrAggregate("MAX", "GREATEST")),
		rewrite("AVERAGE", 1, 1, rename("AVG")),
		rewrite("COUNTA", 1, 1, rename("COUNT")),
		rewrite("COUNTROWS", 1, 1, fixed("COUNT(*)")),
		rewrite("DISTINCTCOUNT", 1, 1, func(args []string, _ []dax.Expr) (string, error) {
			return "COUNT(DISTINCT " + args[0] + ")", nil
		}),

		// Logic
		rewrite("IF", 3, 3, buildIf),
		rewrite("SWITCH", 3, -1, buildSwitch),
		rewrite("AND", 2, 2, infix("AND")),
		rewrite("OR", 2, 2, infix("OR")),
		rewrite("NOT", 1, 1, buildNot),
		rewrite("ISBLANK", 1, 1, buildIsBlank),
		identity("COALESCE", 1, -1),
		identity("NULLIF", 2, 2),

		// Math
		identity("ABS", 1, 1),
		identity("ROUND", 1, 2),
		identity("SQRT", 1, 1),
		identity("FLOOR", 1, 2),
		identity("CEILING", 1, 2),
		identity("POWER", 2, 2),
		identity("MOD", 2, 2),
		identity("EXP", 1, 1),
		identity("LN", 1, 1),
		identity("LEAST", 1, -1),
		identity("GREATEST", 1, -1),
		rewrite("DIVIDE", 2, 3, buildDivide),

		// Text
		identity("UPPER", 1, 1),
		identity("LOWER", 1, 1),
		identity("TRIM", 1, 1),
		identity("CONCAT", 1, -1),
		identity("SUBSTRING", 2, 3),
		identity("LENGTH", 1, 1),
		rewrite("CONCATENATE", 2, 2, rename("CONCAT")),
		rewrite("LEFT", 1, 2, buildLeft),
		rewrite("RIGHT", 1, 2, buildRight),
		rewrite("LEN", 1, 1, rename("LENGTH")),

		// Dates
		rewrite("YEAR", 1, 1, extract("YEAR")),
		rewrite("QUARTER", 1, 1, extract("QUARTER")),
		rewrite("MONTH", 1, 1, extract("MONTH")),
		rewrite("DAY", 1, 1, extract("DAY")),
		rewrite("HOUR", 1, 1, extract("HOUR")),
		rewrite("MINUTE", 1, 1, extract("MINUTE")),
		rewrite("SECOND", 1, 1, extract("SECOND")),
		rewrite("TODAY", 0, 0, fixed("CURRENT_DATE()")),
		rewrite("NOW", 0, 0, fixed("CURRENT_TIMESTAMP()")),
		identity("CURRENT_DATE", 0, 0),
		identity("CURRENT_TIMESTAMP", 0, 0),
		rewrite("SAMEPERIODLASTYEAR", 1, 1, buildSamePeriodLastYear),
		rewrite("DATEADD", 3, 3, buildDateAdd),
		rewrite("DATEDIFF", 3, 3, buildDateDiff),

		// Approximations
		{
			Name: "LOOKUPVALUE", MinArgs: 3, MaxArgs: -1, Kind: Comment, Build: buildLookupValue,
			Note: "lookup emitted as a comment; implement it as a join",
		},
		{
			Name: "RELATED", MinArgs: 1, MaxArgs: 1, Kind: Annotated, Build: buildRelated,
			Note: "the join to the related table must be established in the view",
		},
		{
			Name: "CALCULATE", MinArgs: 1, MaxArgs: -1, Kind: Annotated, Build: buildCalculate,
			Note: "filter context approximated as FILTER BY; not executable as written",
		},
		{
			Name: "FILTER", MinArgs: 2, MaxArgs: 2, Kind: Annotated, Build: buildFilter,
			Note: "table filter approximated as WHERE; not executable as written",
		},
	}
}
