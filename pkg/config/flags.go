package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flag names shared by every command
const (
	FlagConfig    = "config"
	FlagURL       = "url"
	FlagIndex     = "index"
	FlagTimeout   = "timeout"
	FlagPrecision = "precision"
)

// RegisterFlags adds the connection flags to fs with the built-in defaults.
// --config has no shorthand so that "seed -cmi" is never read as a config path.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(FlagConfig, "", "Path to config file (default ./"+FileName+" if present)")
	fs.StringP(FlagURL, "u", def.URL, "Search engine base URL")
	fs.StringP(FlagIndex, "i", def.Index, "Index name")
	fs.DurationP(FlagTimeout, "t", def.Timeout, "HTTP request timeout (e.g., 500ms, 5s)")
}

// RegisterSeedFlags adds the flags only the seed command reads
func RegisterSeedFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagPrecision, "p", Default().Precision, "Date precision (y, M, d, h, m, s, ms)")
}

// WithOverrides returns c with every flag the user set on the command line
// applied on top, so a flag beats the file and the file beats the default.
// Flags missing from fs are ignored.
func (c Config) WithOverrides(fs *pflag.FlagSet) (Config, error) {
	var err error
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed(FlagURL) {
		if c.URL, err = fs.GetString(FlagURL); err != nil {
			return Config{}, err
		}
	}
	if changed(FlagIndex) {
		if c.Index, err = fs.GetString(FlagIndex); err != nil {
			return Config{}, err
		}
	}
	if changed(FlagTimeout) {
		if c.Timeout, err = fs.GetDuration(FlagTimeout); err != nil {
			return Config{}, err
		}
	}
	if changed(FlagPrecision) {
		if c.Precision, err = fs.GetString(FlagPrecision); err != nil {
			return Config{}, err
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return c, nil
}

// FromFlags loads the file named by --config (or FileName in workDir) and applies the flag overrides
func FromFlags(workDir string, fs *pflag.FlagSet) (Config, error) {
	var path string
	if fs.Lookup(FlagConfig) != nil {
		var err error
		if path, err = fs.GetString(FlagConfig); err != nil {
			return Config{}, err
		}
	}

	cfg, err := Load(workDir, path)
	if err != nil {
		return Config{}, err
	}
	return cfg.WithOverrides(fs)
}
