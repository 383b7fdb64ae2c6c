package fixture

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/tailscale/hujson"
)

//go:embed assets/mapping.json
var defaultMapping []byte

// DefaultSchema returns the schema of the generated test rows
func DefaultSchema() engine.Schema {
	schema, err := engine.ParseSchema(defaultMapping)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping is invalid: %v", err))
	}
	return schema
}

// LoadSchema reads a mapping file, comments allowed
func LoadSchema(path string) (engine.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}

	data, err = hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}

	return engine.ParseSchema(data)
}
