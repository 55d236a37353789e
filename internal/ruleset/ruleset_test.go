package ruleset

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leapstack-labs/daxport/internal/testutil"
	"github.com/leapstack-labs/daxport/pkg/rules"
	"github.com/leapstack-labs/daxport/pkg/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func translateWith(t *testing.T, reg *rules.Registry, expr string) translate.Result {
	t.Helper()
	return translate.New(translate.Config{Registry: reg, Logger: testutil.NewTestLogger(t)}).Translate(expr)
}

func TestTemplates(t *testing.T) {
	reg, err := Load(Config{Templates: map[string]Template{
		"FORMAT":     {Template: "DATE_FORMAT({0}, {1})"},
		"containsx":  {Template: "INSTR({0}, 'x') > 0"},
		"PRODUCT":    {Template: "AGGREGATE(ARRAY({args}), 1D, (a, b) -> a * b)"},
		"STRUCTURED": {MinArgs: 1, MaxArgs: 2, Template: "NAMED_STRUCT('{{v}}', {0})"},
	}}, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{`FORMAT(S[d], "yyyy")`, "DATE_FORMAT(S.d, 'yyyy')"},
		{`CONTAINSX(S[name])`, "INSTR(S.name, 'x') > 0"},
		{`PRODUCT(S[a], S[b], 2)`, "AGGREGATE(ARRAY(S.a, S.b, 2), 1D, (a, b) -> a * b)"},
		{`STRUCTURED(S[a])`, "NAMED_STRUCT('{v}', S.a)"},
		{`STRUCTURED(S[a], 1)`, "NAMED_STRUCT('{v}', S.a)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := translateWith(t, reg, tt.input)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.SQL)
		})
	}

	rule, ok := reg.Lookup("containsx")
	require.True(t, ok)
	assert.Equal(t, "template", rule.Source)
	assert.Equal(t, 1, rule.MinArgs)
	assert.Equal(t, 1, rule.MaxArgs)

	rule, _ = reg.Lookup("PRODUCT")
	assert.Equal(t, -1, rule.MaxArgs)

	// Arity violations surface as parse errors.
	res := translateWith(t, reg, `FORMAT(S[d])`)
	assert.Equal(t, translate.StatusFailed, res.Status())
	assert.Contains(t, res.Err.Error(), "FORMAT expects exactly 2 arguments, got 1")
}

func TestTemplateOverridesBuiltin(t *testing.T) {
	reg, err := Load(Config{Templates: map[string]Template{
		"LEN": {Template: "CHAR_LENGTH({0})"},
	}}, rules.Default(), nil)
	require.NoError(t, err)

	assert.Equal(t, "CHAR_LENGTH(P.Code)", translateWith(t, reg, "LEN(P[Code])").SQL)
	assert.Equal(t, "LENGTH(P.Code)", translateWith(t, rules.Default(), "LEN(P[Code])").SQL)
}

func TestTemplateErrors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		template Template
		message  string
	}{
		{"empty", "F", Template{}, "rules.templates.F: template is empty"},
		{"bad name", "1F", Template{Template: "x"}, `rules.templates: invalid rule name "1F"`},
		{"unterminated", "F", Template{Template: "F({0"}, "rules.templates.F: unterminated placeholder at offset 2"},
		{"bad placeholder", "F", Template{Template: "F({x})"}, "rules.templates.F: invalid placeholder {x}"},
		{"max below min", "F", Template{MinArgs: 2, MaxArgs: 1, Template: "F({0})"}, "rules.templates.F: max_args 1 is below min_args 2"},
		{"placeholder beyond max", "F", Template{MinArgs: 1, MaxArgs: 1, Template: "F({0}, {1})"}, "rules.templates.F: placeholder {1} exceeds max_args 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Config{Templates: map[string]Template{tt.key: tt.template}}, nil, nil)
			assert.EqualError(t, err, tt.message)
		})
	}
}

func TestTemplateMissingOptionalArgument(t *testing.T) {
	rule, err := compileTemplate("F", Template{MinArgs: 1, MaxArgs: -1, Template: "F({0}, {2})"})
	require.NoError(t, err)

	_, err = rule.Build([]string{"a"}, nil)
	assert.EqualError(t, err, "F: template needs argument {2}, got 1 arguments")

	sql, err := rule.Build([]string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "F(a, c)", sql)
}

func TestScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "dates.star", `
def FORMAT(value, fmt):
    return sql_call("DATE_FORMAT", value, fmt)

def EOMONTH(d, offset = "0"):
    if offset == "0":
        return sql_call("LAST_DAY", d)
    return sql_call("LAST_DAY", sql_call("ADD_MONTHS", d, offset))

def _helper(x):
    return x

def lower_case(x):
    return x
`)
	writeScript(t, dir, "text.star", `
def UNICHAR(*codes):
    return " || ".join([sql_call("CHAR", c) for c in codes])

def QUOTED(name):
    return sql_ident(name) + " = " + sql_string("it's")

ARITY = {"UNICHAR": (1, 3)}
`)

	reg, err := Load(Config{ScriptsDir: dir}, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{`FORMAT(S[d], "yyyy")`, "DATE_FORMAT(S.d, 'yyyy')"},
		{`EOMONTH(S[d])`, "LAST_DAY(S.d)"},
		{`EOMONTH(S[d], 2)`, "LAST_DAY(ADD_MONTHS(S.d, 2))"},
		{`UNICHAR(65, 66)`, "CHAR(65) || CHAR(66)"},
		{`QUOTED(1)`, "`1` = 'it''s'"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := translateWith(t, reg, tt.input)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.SQL)
		})
	}

	eomonth, ok := reg.Lookup("EOMONTH")
	require.True(t, ok)
	assert.Equal(t, 1, eomonth.MinArgs)
	assert.Equal(t, 2, eomonth.MaxArgs)
	assert.Equal(t, "script:dates.star", eomonth.Source)

	unichar, _ := reg.Lookup("UNICHAR")
	assert.Equal(t, 3, unichar.MaxArgs)

	_, ok = reg.Lookup("lower_case")
	assert.False(t, ok)
	_, ok = reg.Lookup("_HELPER")
	assert.False(t, ok)
}

func TestScriptBuilderConcurrent(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "f.star", `
def WRAP(x):
    parts = [x]
    for i in range(3):
        parts.append(str(i))
    return sql_call("WRAP", *parts)
`)
	reg, err := Load(Config{ScriptsDir: dir}, nil, nil)
	require.NoError(t, err)
	rule, _ := reg.Lookup("WRAP")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sql, err := rule.Build([]string{"a"}, nil)
			assert.NoError(t, err)
			assert.Equal(t, "WRAP(a, 0, 1, 2)", sql)
		}()
	}
	wg.Wait()
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		message string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"bad.star": "def F(:\n"},
			message: "rules/bad.star: Starlark execution error",
		},
		{
			name:    "arity for unknown builder",
			files:   map[string]string{"a.star": "def F(x):\n    return x\nARITY = {\"G\": 1}\n"},
			message: "rules/a.star: ARITY names G, which is not a builder function",
		},
		{
			name:    "arity wrong type",
			files:   map[string]string{"a.star": "ARITY = [1]\n"},
			message: "rules/a.star: ARITY must be a dict, got list",
		},
		{
			name:    "arity bad bounds",
			files:   map[string]string{"a.star": "def F(x):\n    return x\nARITY = {\"F\": (2, 1)}\n"},
			message: `rules/a.star: ARITY["F"]: invalid bounds (2, 1)`,
		},
		{
			name: "duplicate builder",
			files: map[string]string{
				"a.star": "def F(x):\n    return x\n",
				"b.star": "def F(x):\n    return x\n",
			},
			message: "rules/b.star: F already defined in a.star",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeScript(t, dir, name, content)
			}
			_, err := Load(Config{ScriptsDir: dir}, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestScriptRuntimeErrors(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "f.star", `
def NUMBER(x):
    return 1

def FAIL(x):
    fail("cannot build " + x)
`)
	reg, err := Load(Config{ScriptsDir: dir}, nil, nil)
	require.NoError(t, err)

	res := translateWith(t, reg, "NUMBER(S[a])")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "NUMBER: builder returned int, want string")

	res = translateWith(t, reg, "FAIL(S[a])")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "cannot build S.a")
}

func TestScriptDirectory(t *testing.T) {
	rs, err := NewLoader(filepath.Join(t.TempDir(), "missing")).Load()
	require.NoError(t, err)
	assert.Nil(t, rs)

	file := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewLoader(file).Load()
	assert.ErrorContains(t, err, "not a directory")
}

func TestTemplateAndScriptConflict(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "f.star", "def FORMAT(x):\n    return x\n")

	_, err := Load(Config{
		ScriptsDir: dir,
		Templates:  map[string]Template{"format": {Template: "F({0})"}},
	}, nil, nil)
	assert.EqualError(t, err, "rule FORMAT defined twice (template and script:f.star)")
}

func TestDeny(t *testing.T) {
	cfg := Config{Deny: []string{"format", " USERNAME "}}
	assert.False(t, cfg.Empty())
	assert.True(t, Config{}.Empty())

	reg, err := Load(cfg, nil, nil)
	require.NoError(t, err)

	res := translateWith(t, reg, `FORMAT(S[d], "yyyy")`)
	assert.Equal(t, translate.StatusUnsupported, res.Status())
	category, ok := reg.Denied("USERNAME")
	require.True(t, ok)
	assert.Equal(t, rules.Configured, category)
}
