package ruleset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/dax"
	"github.com/leapstack-labs/daxport/pkg/rules"
)

// Template is a rule whose SQL is a string with placeholders: {0}, {1}, ...
// for single arguments and {args} for all arguments joined by ", ".
// Literal braces are written {{ and }}.
type Template struct {
	MinArgs  int    `koanf:"min_args"`
	MaxArgs  int    `koanf:"max_args"`
	Template string `koanf:"template"`
}

const (
	literalSegment = -1
	allArgsSegment = -2
)

type segment struct {
	text string
	arg  int
}

// parseTemplate splits src into literal text and placeholders. It returns
// the highest argument index used (-1 for none) and whether {args} appears.
func parseTemplate(src string) ([]segment, int, bool, error) {
	var (
		segs    []segment
		lit     strings.Builder
		maxArg  = -1
		allArgs bool
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String(), arg: literalSegment})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '{' && i+1 < len(src) && src[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(src) && src[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return nil, 0, false, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := src[i+1 : i+end]
			flush()
			if name == "args" {
				segs = append(segs, segment{arg: allArgsSegment})
				allArgs = true
			} else {
				n, err := strconv.Atoi(name)
				if err != nil || n < 0 {
					return nil, 0, false, fmt.Errorf("invalid placeholder {%s}", name)
				}
				segs = append(segs, segment{arg: n})
				maxArg = max(maxArg, n)
			}
			i += end
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, maxArg, allArgs, nil
}

func compileTemplate(name string, t Template) (rules.Rule, error) {
	if err := validateName(name); err != nil {
		return rules.Rule{}, fmt.Errorf("rules.templates: %w", err)
	}
	name = normalizeName(name)
	fail := func(format string, args ...any) (rules.Rule, error) {
		return rules.Rule{}, fmt.Errorf("rules.templates.%s: %s", name, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(t.Template) == "" {
		return fail("template is empty")
	}
	segs, maxArg, allArgs, err := parseTemplate(t.Template)
	if err != nil {
		return fail("%v", err)
	}

	minArgs, maxArgs := t.MinArgs, t.MaxArgs
	if minArgs == 0 && maxArgs == 0 {
		minArgs, maxArgs = maxArg+1, maxArg+1
		if allArgs {
			maxArgs = -1
		}
	}
	switch {
	case minArgs < 0:
		return fail("min_args must not be negative")
	case maxArgs >= 0 && maxArgs < minArgs:
		return fail("max_args %d is below min_args %d", maxArgs, minArgs)
	case maxArgs >= 0 && maxArg >= maxArgs:
		return fail("placeholder {%d} exceeds max_args %d", maxArg, maxArgs)
	}

	return rules.Rule{
		Name:    name,
		MinArgs: minArgs,
		MaxArgs: maxArgs,
		Kind:    rules.Rewrite,
		Source:  "template",
		Build: func(args []string, _ []dax.Expr) (string, error) {
			var sb strings.Builder
			for _, s := range segs {
				switch {
				case s.arg == literalSegment:
					sb.WriteString(s.text)
				case s.arg == allArgsSegment:
					sb.WriteString(strings.Join(args, ", "))
				case s.arg < len(args):
					sb.WriteString(args[s.arg])
				default:
					return "", fmt.Errorf("%s: template needs argument {%d}, got %d arguments", name, s.arg, len(args))
				}
			}
			return sb.String(), nil
		},
	}, nil
}
