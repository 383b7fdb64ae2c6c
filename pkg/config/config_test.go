package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, cfg.Source)
}

func TestLoad_ProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, FileName, `{
		// a remote cluster
		"url": "http://search:9200",
		"index": "bench",
		"timeout": "30s",
		"missing_percent": 0,
	}`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	want := Default()
	want.URL = "http://search:9200"
	want.Index = "bench"
	want.Timeout = 30 * time.Second
	want.MissingPercent = 0
	want.Source = path

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, FileName, `{"index": "ignored"}`)
	writeConfig(t, dir, "other.json", `{"index": "chosen", "precision": "ms"}`)

	cfg, err := Load(dir, "other.json")
	require.NoError(t, err)
	assert.Equal(t, "chosen", cfg.Index)
	assert.Equal(t, "ms", cfg.Precision)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(t.TempDir(), "nope.json")
	assert.True(t, errors.Is(err, ErrFileNotFound), "got %v", err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":    `{"url": }`,
		"timeout":   `{"timeout": "soon"}`,
		"missing":   `{"missing_percent": 101}`,
		"rows":      `{"rows": -1}`,
		"precision": `{"precision": "w"}`,
		"url":       `{"url": ""}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, FileName, content)

			_, err := Load(dir, "")
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestConfig_Engine(t *testing.T) {
	cfg := Default()
	cfg.Index = "bench"

	want := engine.Config{
		URL:            engine.DefaultURL,
		Index:          "bench",
		MappingRoute:   engine.DefaultMappingRoute,
		TranslateRoute: engine.DefaultTranslateRoute,
		Timeout:        engine.DefaultTimeout,
	}
	assert.Equal(t, want, cfg.Engine())
}
