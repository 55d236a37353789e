// Package ruleset loads user-supplied rewrite rules and merges them with a
// base registry. Rules come from two sources: string templates declared in
// configuration, and Starlark scripts whose upper-case functions build SQL.
//
// Loading happens once at startup and yields a new immutable registry, so
// user rules are as safe to share across workers as the built-in ones.
package ruleset

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/daxport/pkg/rules"
)

// Config describes the user rule sources.
type Config struct {
	// Templates maps a function name to its template rule
	Templates map[string]Template `koanf:"templates"`
	// ScriptsDir holds *.star builder scripts
	ScriptsDir string `koanf:"scripts_dir"`
	// Deny adds functions to the denylist
	Deny []string `koanf:"deny"`
}

// Empty reports whether the config declares no rules.
func (c Config) Empty() bool {
	return len(c.Templates) == 0 && c.ScriptsDir == "" && len(c.Deny) == 0
}

// Load compiles every configured rule and returns base extended with them.
// A nil base means rules.Default(). Any invalid rule fails the whole load.
func Load(cfg Config, base *rules.Registry, logger *slog.Logger) (*rules.Registry, error) {
	if base == nil {
		base = rules.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	names := make([]string, 0, len(cfg.Templates))
	for name := range cfg.Templates {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]string)
	var extra []rules.Rule
	for _, name := range names {
		rule, err := compileTemplate(name, cfg.Templates[name])
		if err != nil {
			return nil, err
		}
		seen[rule.Name] = rule.Source
		extra = append(extra, rule)
	}

	if cfg.ScriptsDir != "" {
		scripted, err := NewLoader(cfg.ScriptsDir).Load()
		if err != nil {
			return nil, err
		}
		for _, rule := range scripted {
			if prev, ok := seen[rule.Name]; ok {
				return nil, fmt.Errorf("rule %s defined twice (%s and %s)", rule.Name, prev, rule.Source)
			}
			seen[rule.Name] = rule.Source
			extra = append(extra, rule)
		}
	}

	for _, rule := range extra {
		if _, builtin := base.Lookup(rule.Name); builtin {
			logger.Debug("user rule overrides built-in", "function", rule.Name, "source", rule.Source)
		}
	}

	reg := base.With(extra...).WithDenied(cfg.Deny...)
	logger.Debug("rule set loaded", "user_rules", len(extra), "denied", len(cfg.Deny))
	return reg, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("rule name cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return fmt.Errorf("invalid rule name %q", name)
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
