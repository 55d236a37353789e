// Package classify decides whether a parsed expression can be translated
// to SQL at all.
package classify

import (
	"strings"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
)

// Status is the outcome of classification.
type Status int

// Classification outcomes.
const (
	Translatable Status = iota
	Unsupported
)

// String returns the status name.
func (s Status) String() string {
	if s == Unsupported {
		return "unsupported"
	}
	return "translatable"
}

// Reason is one denied function found in the tree.
type Reason struct {
	Node     *dax.FuncCall
	Function string
	Category rules.Category
}

// Verdict is the classification of one expression.
type Verdict struct {
	Status  Status
	Reasons []Reason
}

// Translatable reports whether the expression may be generated.
func (v Verdict) Translatable() bool {
	return v.Status == Translatable
}

// Functions returns the offending function names in discovery order,
// without duplicates.
func (v Verdict) Functions() []string {
	var out []string
	seen := make(map[string]bool, len(v.Reasons))
	for _, r := range v.Reasons {
		if !seen[r.Function] {
			seen[r.Function] = true
			out = append(out, r.Function)
		}
	}
	return out
}

// String summarizes the verdict, e.g. "unsupported: PATH, SUMX".
func (v Verdict) String() string {
	if v.Translatable() {
		return v.Status.String()
	}
	return v.Status.String() + ": " + strings.Join(v.Functions(), ", ")
}

// Classify walks e in post-order and records every call to a denied
// function. Any single one makes the whole expression Unsupported, since
// denied functions change the evaluation context of everything around them.
func Classify(e dax.Expr, reg *rules.Registry) Verdict {
	if reg == nil {
		reg = rules.Default()
	}

	var v Verdict
	dax.Walk(e, func(n dax.Expr) {
		call, ok := n.(*dax.FuncCall)
		if !ok {
			return
		}
		if c, denied := reg.Denied(call.Name); denied {
			v.Reasons = append(v.Reasons, Reason{Node: call, Function: call.Name, Category: c})
		}
	})
	if len(v.Reasons) > 0 {
		v.Status = Unsupported
	}
	return v
}
