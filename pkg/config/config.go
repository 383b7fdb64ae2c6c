// Package config loads esql-bench settings from an optional JSONC file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/atomicdeploy/esql-bench/pkg/generator"
	"github.com/atomicdeploy/esql-bench/pkg/seeder"
	"github.com/tailscale/hujson"
)

// FileName is the project config file looked up in the working directory
const FileName = ".esql-bench.json"

var (
	ErrFileNotFound = errors.New("config file not found")
	ErrInvalid      = errors.New("invalid config")
)

// Config holds every setting the commands share.
type Config struct {
	URL            string        `json:"url"`
	Index          string        `json:"index"`
	TranslateRoute string        `json:"translate_route"`
	MappingRoute   string        `json:"mapping_route"`
	Timeout        time.Duration `json:"-"`
	Rows           int           `json:"rows"`
	MissingPercent int           `json:"missing_percent"`
	Precision      string        `json:"precision"`
	// Mapping is an optional mapping file replacing the built-in schema
	Mapping string `json:"mapping,omitempty"`

	// Source is the file the settings were read from, empty for defaults only
	Source string `json:"-"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		URL:            engine.DefaultURL,
		Index:          engine.DefaultIndex,
		TranslateRoute: engine.DefaultTranslateRoute,
		MappingRoute:   engine.DefaultMappingRoute,
		Timeout:        engine.DefaultTimeout,
		Rows:           seeder.DefaultRows,
		MissingPercent: seeder.DefaultMissingPercent,
		Precision:      generator.DefaultPrecision,
	}
}

// Load reads settings over the defaults. An explicit path must exist;
// otherwise FileName in workDir is used when present.
func Load(workDir, path string) (Config, error) {
	cfg := Default()

	mustExist := path != ""
	if path == "" {
		path = filepath.Join(workDir, FileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	return cfg, nil
}

// parse overlays the keys present in data onto cfg
func parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	// timeout is a duration string such as "5s"
	var raw struct {
		Timeout *string `json:"timeout"`
	}
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return err
	}

	if raw.Timeout != nil {
		d, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = d
	}

	return nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.Index == "" {
		return errors.New("index must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Rows < 0 {
		return fmt.Errorf("rows must not be negative, got %d", c.Rows)
	}
	if c.MissingPercent < 0 || c.MissingPercent > 100 {
		return fmt.Errorf("missing_percent must be between 0 and 100, got %d", c.MissingPercent)
	}
	if !slices.Contains(generator.Precisions, c.Precision) {
		return fmt.Errorf("unsupported precision %q", c.Precision)
	}
	return nil
}

// Engine returns the client settings
func (c Config) Engine() engine.Config {
	return engine.Config{
		URL:            c.URL,
		Index:          c.Index,
		MappingRoute:   c.MappingRoute,
		TranslateRoute: c.TranslateRoute,
		Timeout:        c.Timeout,
	}
}
