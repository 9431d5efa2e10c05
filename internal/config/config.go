// Package config loads sparqlrows settings.
//
// Sources, lowest priority first:
//  1. built-in defaults
//  2. a YAML file: the explicit path, $SPARQLROWS_CONFIG or ./sparqlrows.yaml
//  3. SPARQLROWS_* environment variables, optionally seeded from ./.env
//
// Command-line flags are layered on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "sparqlrows.yaml"

// Environment variable names.
const (
	EnvConfig     = "SPARQLROWS_CONFIG"
	EnvEndpoint   = "SPARQLROWS_ENDPOINT"
	EnvRepository = "SPARQLROWS_REPOSITORY"
	EnvContext    = "SPARQLROWS_CONTEXT"
	EnvVerbose    = "SPARQLROWS_VERBOSE"
	EnvDB         = "SPARQLROWS_DB"
)

// Config is the resolved configuration.
type Config struct {
	// Endpoint is the base address of a remote SPARQL server. When empty the
	// embedded store is used.
	Endpoint   string `yaml:"endpoint"`
	Repository string `yaml:"repository"`
	// Username and Password enable basic auth against Endpoint.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout bounds each remote request, e.g. "30s".
	Timeout string `yaml:"timeout"`

	// DB is the embedded store file; empty means in-memory.
	DB string `yaml:"db"`
	// Data lists RDF files loaded into the embedded store at startup.
	Data []string `yaml:"data"`
	// BaseIRI resolves relative IRIs in loaded Turtle and JSON-LD files.
	BaseIRI string `yaml:"base_iri"`

	Context     string `yaml:"context"`
	QueryHeader string `yaml:"query_header"`
	HeaderFile  string `yaml:"header_file"`
	Verbose     bool   `yaml:"verbose"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	Format string `yaml:"format"` // "text" | "json"
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Repository: "default",
		Timeout:    "30s",
		Log:        LogConfig{Format: "text"},
	}
}

// Load resolves the configuration. An explicit path must exist; the implicit
// locations are optional. It returns the file that was read, if any.
func Load(path string) (*Config, string, error) {
	// .env is optional and never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFileName
	}

	used := ""
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, path, fmt.Errorf("parse config: %w", err)
		}
		used = path
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, used, err
	}
	cfg.applyDefaults()
	return cfg, used, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvRepository); v != "" {
		c.Repository = v
	}
	if v := os.Getenv(EnvContext); v != "" {
		c.Context = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		c.Verbose = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Repository == "" {
		c.Repository = "default"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
}

// Header returns the query header: the inline text followed by the contents
// of HeaderFile, if set.
func (c *Config) Header() (string, error) {
	header := c.QueryHeader
	if c.HeaderFile == "" {
		return header, nil
	}
	data, err := os.ReadFile(c.HeaderFile)
	if err != nil {
		return "", fmt.Errorf("read header file: %w", err)
	}
	return header + string(data), nil
}

// Remote reports whether a remote endpoint is configured.
func (c *Config) Remote() bool { return c.Endpoint != "" }
