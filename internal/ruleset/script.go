package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/sqlgen"
	"go.starlark.net/starlark"
)

// arityGlobal is the optional dict declaring builder arities.
const arityGlobal = "ARITY"

// maxSteps bounds one builder call.
const maxSteps = 1_000_000

// Loader scans a directory for .star files and turns their builders into
// rules. A builder is a top-level function with an upper-case name; it
// receives the SQL of each argument as a string and returns the SQL of the
// call.
//
//	def FORMAT(value, fmt):
//	    return sql_call("DATE_FORMAT", value, fmt)
//
//	ARITY = {"FORMAT": (2, 2)}
type Loader struct {
	dir string
}

// NewLoader creates a new script loader for the specified directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads every .star file in the directory, in name order. A missing
// directory yields no rules.
func (l *Loader) Load() ([]rules.Rule, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access rule scripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rule scripts path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule scripts directory: %w", err)
	}
	sort.Strings(files)

	var out []rules.Rule
	seen := make(map[string]string)
	for _, file := range files {
		loaded, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		for _, rule := range loaded {
			if prev, ok := seen[rule.Name]; ok {
				return nil, &LoadError{File: file, Message: fmt.Sprintf("%s already defined in %s", rule.Name, prev)}
			}
			seen[rule.Name] = filepath.Base(file)
			out = append(out, rule)
		}
	}
	return out, nil
}

func (l *Loader) loadFile(path string) ([]rules.Rule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob within the scripts directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	thread := &starlark.Thread{
		Name:  "load:" + filepath.Base(path),
		Print: func(_ *starlark.Thread, _ string) {},
	}
	// ExecFile freezes the globals, which makes the builders safe to call
	// from concurrent threads.
	globals, err := starlark.ExecFile(thread, path, content, predeclared()) //nolint:staticcheck // SA1019: ExecFileOptions not needed here
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	arities, err := readArities(globals[arityGlobal])
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	names := globals.Keys()
	var out []rules.Rule
	for _, name := range names {
		fn, ok := globals[name].(*starlark.Function)
		if !ok || !isBuilderName(name) {
			continue
		}
		minArgs, maxArgs := paramArity(fn)
		if a, ok := arities[name]; ok {
			minArgs, maxArgs = a[0], a[1]
			delete(arities, name)
		}
		out = append(out, rules.Rule{
			Name:    name,
			MinArgs: minArgs,
			MaxArgs: maxArgs,
			Kind:    rules.Rewrite,
			Source:  "script:" + filepath.Base(path),
			Build:   scriptBuilder(name, fn),
		})
	}

	if len(arities) > 0 {
		extra := make([]string, 0, len(arities))
		for name := range arities {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, &LoadError{File: path, Message: fmt.Sprintf("ARITY names %s, which is not a builder function", strings.Join(extra, ", "))}
	}
	return out, nil
}

func isBuilderName(name string) bool {
	if name == arityGlobal || strings.HasPrefix(name, "_") || validateName(name) != nil {
		return false
	}
	return name == strings.ToUpper(name)
}

// paramArity derives the arity from the builder's positional parameters.
func paramArity(fn *starlark.Function) (int, int) {
	positional := fn.NumParams() - fn.NumKwonlyParams()
	if fn.HasVarargs() {
		positional--
	}
	if fn.HasKwargs() {
		positional--
	}
	minArgs := 0
	for i := 0; i < positional; i++ {
		if fn.ParamDefault(i) == nil {
			minArgs++
		}
	}
	if fn.HasVarargs() {
		return minArgs, -1
	}
	return minArgs, positional
}

func readArities(v starlark.Value) (map[string][2]int, error) {
	out := make(map[string][2]int)
	if v == nil {
		return out, nil
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("ARITY must be a dict, got %s", v.Type())
	}
	for _, item := range dict.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("ARITY key %s is not a string", item[0])
		}
		var bounds [2]int
		switch val := item[1].(type) {
		case starlark.Int:
			n, err := starlark.AsInt32(val)
			if err != nil {
				return nil, fmt.Errorf("ARITY[%q]: %w", name, err)
			}
			bounds = [2]int{n, n}
		case starlark.Tuple:
			if len(val) != 2 {
				return nil, fmt.Errorf("ARITY[%q] must be (min, max)", name)
			}
			for i := range val {
				n, err := starlark.AsInt32(val[i])
				if err != nil {
					return nil, fmt.Errorf("ARITY[%q]: %w", name, err)
				}
				bounds[i] = n
			}
		default:
			return nil, fmt.Errorf("ARITY[%q] must be an int or (min, max), got %s", name, item[1].Type())
		}
		if bounds[0] < 0 || (bounds[1] >= 0 && bounds[1] < bounds[0]) {
			return nil, fmt.Errorf("ARITY[%q]: invalid bounds (%d, %d)", name, bounds[0], bounds[1])
		}
		out[strings.ToUpper(name)] = bounds
	}
	return out, nil
}

// scriptBuilder calls fn on a fresh thread per call.
func scriptBuilder(name string, fn *starlark.Function) rules.BuildFunc {
	return func(args []string, _ []dax.Expr) (string, error) {
		thread := &starlark.Thread{
			Name:  "rule:" + name,
			Print: func(_ *starlark.Thread, _ string) {},
		}
		thread.SetMaxExecutionSteps(maxSteps)

		sargs := make(starlark.Tuple, len(args))
		for i, a := range args {
			sargs[i] = starlark.String(a)
		}
		v, err := starlark.Call(thread, fn, sargs, nil)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		s, ok := starlark.AsString(v)
		if !ok {
			return "", fmt.Errorf("%s: builder returned %s, want string", name, v.Type())
		}
		return s, nil
	}
}

// predeclared are the helpers available to scripts.
func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"sql_call":   starlark.NewBuiltin("sql_call", sqlCall),
		"sql_string": starlark.NewBuiltin("sql_string", stringBuiltin(sqlgen.QuoteString)),
		"sql_ident":  starlark.NewBuiltin("sql_ident", stringBuiltin(sqlgen.QuoteIdent)),
	}
}

func sqlCall(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing function name", b.Name())
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is %s, want string", b.Name(), i+1, a.Type())
		}
		parts[i] = s
	}
	return starlark.String(rules.Call(parts[0], parts[1:]...)), nil
}

func stringBuiltin(f func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(f(s)), nil
	}
}

// LoadError represents an error loading a rule script.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rules/%s: %s", filepath.Base(e.File), e.Message)
}
