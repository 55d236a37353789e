// Package dax lexes and parses Power BI DAX formula expressions.
//
// # Usage
//
//	expr, err := dax.Parse("SUM(Sales[Amount])")
//	if err != nil {
//	    // *LexError, *ParseError or *StackLimitError
//	}
//
// Function arity beyond the grammar's own (IF, AND, OR, NOT, FILTER,
// CALCULATE) is checked when an ArityChecker is supplied:
//
//	expr, err := dax.Parse(src, dax.WithArityChecker(rules.Default()))
//
// # Grammar Overview
//
//	expr     → or
//	or       → and {("||" | OR) and}
//	and      → not {("&&" | AND) not}
//	not      → NOT compare | compare
//	compare  → concat {("=" | "==" | "<>" | "<" | ">" | "<=" | ">=") concat | IS [NOT] NULL}
//	concat   → additive {"&" additive}
//	additive → term {("+" | "-") term}
//	term     → power {("*" | "/") power}
//	power    → unary {"^" unary}
//	unary    → ("-" | "+") unary | primary
//	primary  → literal | column | table | ident | call | "(" expr ")" | var | case | interval
//	call     → NAME "(" [[DISTINCT] expr {"," expr}] ")" | NAME "(" "*" ")" | extract
//	var      → VAR ident "=" expr (var | RETURN expr)
//	case     → CASE [expr] WHEN expr THEN expr {WHEN expr THEN expr} [ELSE expr] END
//	extract  → EXTRACT "(" ident FROM expr ")"
//	interval → INTERVAL number ident
//
// The case, extract, interval, IS NULL, DISTINCT and "*" forms are SQL and
// let already translated expressions parse again. NULL reads as BLANK().
//
// Comments (//, -- and /* */) are skipped by the lexer. Nesting is capped
// at DefaultMaxDepth levels unless WithMaxDepth says otherwise. Only nested
// operands count: a flat chain such as a + b + c does not deepen.
package dax
