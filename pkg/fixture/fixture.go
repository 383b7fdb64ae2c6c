package fixture

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atomicdeploy/esql-bench/pkg/compare"
	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
)

const maxLineSize = 4 * 1024 * 1024

// Source is a set of query pairs loaded from disk
type Source interface {
	// Pairs returns the query pairs in file order
	Pairs() ([]compare.Pair, error)
	// Paths returns the files the source reads
	Paths() []string
}

// TextSource reads two newline-delimited files paired by line number
type TextSource struct {
	sqlPath string
	dslPath string
}

// JSONSource reads a JSON (or JSONC) array of {"sql": ..., "dsl": ...} objects
type JSONSource struct {
	path string
}

// NewSource picks a source from the given paths: two text files, or one .json/.jsonc file
func NewSource(paths ...string) (Source, error) {
	switch len(paths) {
	case 1:
		ext := strings.ToLower(filepath.Ext(paths[0]))
		switch ext {
		case ".json", ".jsonc":
			return &JSONSource{path: paths[0]}, nil
		default:
			return nil, fmt.Errorf("unsupported file type: %s (expected .json or .jsonc, or a pair of text files)", ext)
		}
	case 2:
		return &TextSource{sqlPath: paths[0], dslPath: paths[1]}, nil
	default:
		return nil, fmt.Errorf("expected a sql file and a dsl file, or one json file; got %d paths", len(paths))
	}
}

// Pairs implements Source for TextSource
func (s *TextSource) Pairs() ([]compare.Pair, error) {
	sqls, err := ReadLines(s.sqlPath)
	if err != nil {
		return nil, err
	}
	dsls, err := ReadLines(s.dslPath)
	if err != nil {
		return nil, err
	}
	return compare.NewPairs(sqls, dsls)
}

// Paths implements Source for TextSource
func (s *TextSource) Paths() []string {
	return []string{s.sqlPath, s.dslPath}
}

// ReadLines reads a newline-delimited file; trailing blank lines are dropped
func ReadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	return lines, nil
}

// Pairs implements Source for JSONSource
func (s *JSONSource) Pairs() ([]compare.Pair, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	// Accept comments and trailing commas
	data, err = hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("failed to parse JSON: expected an array of query pairs")
	}

	var pairs []compare.Pair
	for i, item := range root.Array() {
		sql := item.Get("sql")
		dsl := item.Get("dsl")
		if !sql.Exists() || !dsl.Exists() {
			return nil, fmt.Errorf("query pair %d: both sql and dsl are required", i+1)
		}

		// dsl may be inlined as an object or given as a string
		dslText := dsl.Raw
		if dsl.Type == gjson.String {
			dslText = dsl.String()
		}

		pairs = append(pairs, compare.Pair{Index: i + 1, SQL: sql.String(), DSL: dslText})
	}

	return pairs, nil
}

// Paths implements Source for JSONSource
func (s *JSONSource) Paths() []string {
	return []string{s.path}
}
