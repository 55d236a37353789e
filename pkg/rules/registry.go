// Package rules holds the function rewrite rules and the denylist used to
// turn DAX calls into Databricks SQL.
//
// A Registry never changes after construction. Default returns the shared
// built-in registry; With and WithDenied derive new registries, so a single
// handle can be passed to any number of concurrent translations.
package rules

import (
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/daxport/pkg/dax"
)

// Kind describes how faithfully a rule maps its function.
type Kind int

// Rule kinds.
const (
	// Rewrite maps the call onto equivalent SQL.
	Rewrite Kind = iota
	// Identity keeps the name and arguments; the function exists in SQL as is.
	Identity
	// Annotated emits an approximation that must be reviewed.
	Annotated
	// Comment emits an explanatory comment instead of executable SQL.
	Comment
)

var kindNames = map[Kind]string{
	Rewrite:   "rewrite",
	Identity:  "identity",
	Annotated: "annotated",
	Comment:   "comment",
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// BuildFunc produces SQL for a call. args holds the already generated SQL
// of each argument and raw the original argument nodes.
type BuildFunc func(args []string, raw []dax.Expr) (string, error)

// Rule maps one DAX function onto SQL.
type Rule struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Kind    Kind
	// Note explains the review needed for Annotated and Comment rules.
	Note string
	// Build is nil for Identity rules.
	Build BuildFunc
	// Source names where a user-supplied rule came from.
	Source string
}

// Arity describes the accepted argument count.
func (r Rule) Arity() string {
	return dax.ArityText(r.MinArgs, r.MaxArgs)
}

// Accepts reports whether n arguments are within the rule's arity.
func (r Rule) Accepts(n int) bool {
	return n >= r.MinArgs && (r.MaxArgs < 0 || n <= r.MaxArgs)
}

// Apply builds the SQL for a call with the given arguments.
func (r Rule) Apply(args []string, raw []dax.Expr) (string, error) {
	if r.Build == nil {
		return Call(r.Name, args...), nil
	}
	return r.Build(args, raw)
}

// Registry is an immutable set of rewrite rules plus a denylist.
type Registry struct {
	rules  map[string]Rule
	denied map[string]Category
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return New(builtinRules(), builtinDenylist())
})

// Default returns the shared built-in registry.
func Default() *Registry {
	return defaultRegistry()
}

// New creates a registry from rules and denylist entries. Later rules with
// the same name replace earlier ones.
func New(rules []Rule, deny []DenyEntry) *Registry {
	r := &Registry{
		rules:  make(map[string]Rule, len(rules)),
		denied: make(map[string]Category, len(deny)),
	}
	for _, rule := range rules {
		rule.Name = strings.ToUpper(rule.Name)
		r.rules[rule.Name] = rule
	}
	for _, d := range deny {
		r.denied[strings.ToUpper(d.Name)] = d.Category
	}
	return r
}

func (r *Registry) clone() *Registry {
	c := &Registry{
		rules:  make(map[string]Rule, len(r.rules)),
		denied: make(map[string]Category, len(r.denied)),
	}
	for k, v := range r.rules {
		c.rules[k] = v
	}
	for k, v := range r.denied {
		c.denied[k] = v
	}
	return c
}

// With returns a new registry with extra rules added or replaced.
func (r *Registry) With(extra ...Rule) *Registry {
	c := r.clone()
	for _, rule := range extra {
		rule.Name = strings.ToUpper(rule.Name)
		c.rules[rule.Name] = rule
	}
	return c
}

// WithDenied returns a new registry that also denies names.
func (r *Registry) WithDenied(names ...string) *Registry {
	c := r.clone()
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := c.denied[name]; !ok {
			c.denied[name] = Configured
		}
	}
	return c
}

// Lookup returns the rule for a function name, case-insensitively.
func (r *Registry) Lookup(name string) (Rule, bool) {
	rule, ok := r.rules[strings.ToUpper(name)]
	return rule, ok
}

// Denied returns the denylist category of a function name.
func (r *Registry) Denied(name string) (Category, bool) {
	c, ok := r.denied[strings.ToUpper(name)]
	return c, ok
}

// CheckArity implements dax.ArityChecker.
func (r *Registry) CheckArity(name string, got int) (string, bool) {
	rule, ok := r.Lookup(name)
	if !ok || rule.Accepts(got) {
		return "", true
	}
	return rule.Arity(), false
}

// Rules returns all rules sorted by name.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Denylist returns all denied functions sorted by category, then name.
func (r *Registry) Denylist() []DenyEntry {
	out := make([]DenyEntry, 0, len(r.denied))
	for name, c := range r.denied {
		out = append(out, DenyEntry{Name: name, Category: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

var _ dax.ArityChecker = (*Registry)(nil)
