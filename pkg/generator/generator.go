package generator

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	// DefaultLetters is the alphabet used for generated strings
	DefaultLetters = "abc"
	// DefaultStartYear is the first year a generated date can fall in
	DefaultStartYear = 2010
	// DefaultPrecision is the date precision used for generated rows
	DefaultPrecision = "s"

	yearSpan = 5
)

// Precisions lists the supported date precisions from coarsest to finest
var Precisions = []string{"y", "M", "d", "h", "m", "s", "ms"}

// Record is a generated document keyed by column name
type Record map[string]interface{}

// Field is a column name paired with a candidate value
type Field struct {
	Name  string
	Value interface{}
}

// Generator produces random field values and records
type Generator struct {
	rng            *rand.Rand
	missingPercent int
	precision      string
	startYear      int
}

// Option configures a Generator
type Option func(*Generator)

// WithSeed makes the generator deterministic
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithPrecision sets the precision of the generated date column
func WithPrecision(precision string) Option {
	return func(g *Generator) {
		g.precision = precision
	}
}

// WithStartYear sets the first year generated dates can fall in
func WithStartYear(year int) Option {
	return func(g *Generator) {
		g.startYear = year
	}
}

// New creates a generator that drops each field with the given probability (in percent)
func New(missingPercent int, opts ...Option) (*Generator, error) {
	if missingPercent < 0 || missingPercent > 100 {
		return nil, fmt.Errorf("missing percent must be between 0 and 100, got %d", missingPercent)
	}

	g := &Generator{
		rng:            rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		missingPercent: missingPercent,
		precision:      DefaultPrecision,
		startYear:      DefaultStartYear,
	}
	for _, opt := range opts {
		opt(g)
	}

	if precisionRank(g.precision) < 0 {
		return nil, fmt.Errorf("unsupported date precision %q (expected one of %s)", g.precision, strings.Join(Precisions, ", "))
	}

	return g, nil
}

// RandString returns n characters drawn uniformly from letters
func (g *Generator) RandString(letters string, n int) string {
	if letters == "" || n <= 0 {
		return ""
	}

	runes := []rune(letters)
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteRune(runes[g.rng.IntN(len(runes))])
	}
	return sb.String()
}

// RandInt returns a random integer in [min, max]
func (g *Generator) RandInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + g.rng.IntN(max-min+1)
}

// RandFloat returns a random float in [min, max)
func (g *Generator) RandFloat(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}

// RandDate builds a date string up to the requested precision.
// Day is capped at 28 so every month is valid.
func (g *Generator) RandDate(precision string, startYear int) (string, error) {
	rank := precisionRank(precision)
	if rank < 0 {
		return "", fmt.Errorf("unsupported date precision %q", precision)
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(startYear + g.rng.IntN(yearSpan+1)))

	parts := []struct {
		sep   string
		min   int
		max   int
		width int
	}{
		{"-", 1, 12, 2},
		{"-", 1, 28, 2},
		{"T", 0, 23, 2},
		{":", 0, 59, 2},
		{":", 0, 59, 2},
		{".", 0, 999, 3},
	}
	for i := 0; i < rank; i++ {
		p := parts[i]
		sb.WriteString(p.sep)
		sb.WriteString(PadZero(strconv.Itoa(g.RandInt(p.min, p.max)), p.width))
	}

	return sb.String(), nil
}

// PadZero left-pads s with zeros up to length
func PadZero(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat("0", length-len(s)) + s
}

// Keep reports whether a single field survives the missing-data roll
func (g *Generator) Keep() bool {
	return g.rng.IntN(100)+1 > g.missingPercent
}

// Payload builds a record from fields, dropping each one independently
func (g *Generator) Payload(fields ...Field) Record {
	payload := make(Record, len(fields))
	for _, f := range fields {
		if g.Keep() {
			payload[f.Name] = f.Value
		}
	}
	return payload
}

// Row generates one record matching the default test schema
func (g *Generator) Row() Record {
	colA := g.RandString(DefaultLetters, 3)
	colC := colA + " " + g.RandString(DefaultLetters, 3) + " " + g.RandString(DefaultLetters, 3)

	// precision was validated in New
	date, _ := g.RandDate(g.precision, g.startYear)

	return g.Payload(
		Field{"colA", colA},
		Field{"colB", g.RandString("ab", 2)},
		Field{"colC", colC},
		Field{"colD", g.RandInt(0, 20)},
		Field{"colE", g.RandFloat(0, 20)},
		Field{"date", date},
	)
}

func precisionRank(precision string) int {
	for i, p := range Precisions {
		if p == precision {
			return i
		}
	}
	return -1
}
