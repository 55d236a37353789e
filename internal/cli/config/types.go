// Package config provides configuration management for the daxport CLI.
//
// Values are layered, lowest to highest: built-in defaults, daxport.yaml
// (found in the working directory or a parent), DAXPORT_* environment
// variables, then explicitly set command-line flags.
package config

import (
	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/ruleset"
	"github.com/leapstack-labs/daxport/internal/server"
	"github.com/leapstack-labs/daxport/pkg/dax"
)

// RulesConfig is the user rule configuration under the rules key.
type RulesConfig = ruleset.Config

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Config holds all CLI configuration options.
type Config struct {
	Catalog      string       `koanf:"catalog"`
	Schema       string       `koanf:"schema"`
	SourceSchema string       `koanf:"source_schema"`
	Materialize  bool         `koanf:"materialize"`
	OutputFormat string       `koanf:"output"`
	Out          string       `koanf:"out"`
	Workers      int          `koanf:"workers"`
	MaxDepth     int          `koanf:"max_depth"`
	StatePath    string       `koanf:"state_path"`
	Verbose      bool         `koanf:"verbose"`
	Rules        RulesConfig  `koanf:"rules"`
	Server       ServerConfig `koanf:"server"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultStateFile = ".daxport/state.db"
	DefaultOutput    = "auto" // TTY=text, otherwise markdown
	DefaultMaxDepth  = dax.DefaultMaxDepth
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Catalog:      artifact.DefaultCatalog,
		Schema:       artifact.DefaultSchema,
		SourceSchema: artifact.DefaultSourceSchema,
		OutputFormat: DefaultOutput,
		MaxDepth:     DefaultMaxDepth,
		StatePath:    DefaultStateFile,
		Server:       ServerConfig{Addr: server.DefaultAddr},
	}
}

// ArtifactConfig returns the assembler settings held by c.
func (c *Config) ArtifactConfig() artifact.Config {
	return artifact.Config{
		Catalog:      c.Catalog,
		Schema:       c.Schema,
		SourceSchema: c.SourceSchema,
		Materialize:  c.Materialize,
		Workers:      c.Workers,
	}
}
