// Package seeder fills a search engine index with generated rows.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/atomicdeploy/esql-bench/pkg/generator"
	"github.com/pkg/errors"
)

const (
	DefaultRows           = 100
	DefaultMissingPercent = 20
)

// ErrInvalidOp is returned for an unknown operation character
var ErrInvalidOp = errors.New("invalid argument")

// Op is a single seeding operation
type Op byte

const (
	OpCreate  Op = 'c'
	OpMapping Op = 'm'
	OpInsert  Op = 'i'
	OpDelete  Op = 'd'
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create index"
	case OpMapping:
		return "put mapping"
	case OpInsert:
		return "insert data"
	case OpDelete:
		return "delete index"
	}
	return fmt.Sprintf("unknown op %q", byte(o))
}

// ParseOps reads a command string such as "-dcmi"; the leading dash is optional
func ParseOps(s string) ([]Op, error) {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return nil, errors.Wrap(ErrInvalidOp, "no operations given")
	}

	ops := make([]Op, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch op := Op(s[i]); op {
		case OpCreate, OpMapping, OpInsert, OpDelete:
			ops = append(ops, op)
		default:
			return nil, errors.Wrapf(ErrInvalidOp, "unknown operation %q", s[i])
		}
	}
	return ops, nil
}

// Engine is the subset of the engine client the seeder needs
type Engine interface {
	CreateIndex(ctx context.Context) error
	DeleteIndex(ctx context.Context) error
	PutMapping(ctx context.Context, schema engine.Schema) error
	IndexDocument(ctx context.Context, doc interface{}) (string, error)
}

// Result describes one completed operation
type Result struct {
	Op      Op
	Message string
}

// Seeder runs seeding operations in order
type Seeder struct {
	engine   Engine
	gen      *generator.Generator
	schema   engine.Schema
	rows     int
	onResult func(Result)
	onInsert func(row int, id string)
}

// Option configures a Seeder
type Option func(*Seeder)

// WithRows sets how many documents the insert operation posts
func WithRows(n int) Option {
	return func(s *Seeder) {
		s.rows = n
	}
}

// WithResultHook is called after each operation succeeds
func WithResultHook(fn func(Result)) Option {
	return func(s *Seeder) {
		s.onResult = fn
	}
}

// WithInsertHook is called after each inserted document
func WithInsertHook(fn func(row int, id string)) Option {
	return func(s *Seeder) {
		s.onInsert = fn
	}
}

// New creates a seeder writing rows from gen into the engine using schema for put-mapping
func New(e Engine, gen *generator.Generator, schema engine.Schema, opts ...Option) (*Seeder, error) {
	s := &Seeder{
		engine: e,
		gen:    gen,
		schema: schema,
		rows:   DefaultRows,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.rows < 0 {
		return nil, fmt.Errorf("row count must not be negative, got %d", s.rows)
	}

	return s, nil
}

// Run executes ops in order, stopping at the first failure
func (s *Seeder) Run(ctx context.Context, ops []Op) ([]Result, error) {
	results := make([]Result, 0, len(ops))

	for _, op := range ops {
		res, err := s.run(ctx, op)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if s.onResult != nil {
			s.onResult(res)
		}
	}

	return results, nil
}

func (s *Seeder) run(ctx context.Context, op Op) (Result, error) {
	switch op {
	case OpCreate:
		if err := s.engine.CreateIndex(ctx); err != nil {
			return Result{}, err
		}
		return Result{Op: op, Message: "successfully create index"}, nil

	case OpMapping:
		if err := s.engine.PutMapping(ctx, s.schema); err != nil {
			return Result{}, err
		}
		return Result{Op: op, Message: "successfully put mapping"}, nil

	case OpInsert:
		if err := s.insert(ctx); err != nil {
			return Result{}, err
		}
		return Result{Op: op, Message: fmt.Sprintf("successfully insert %d documents (rows)", s.rows)}, nil

	case OpDelete:
		if err := s.engine.DeleteIndex(ctx); err != nil {
			return Result{}, err
		}
		return Result{Op: op, Message: "successfully delete index"}, nil
	}

	return Result{}, errors.Wrapf(ErrInvalidOp, "unknown operation %q", byte(op))
}

func (s *Seeder) insert(ctx context.Context) error {
	for i := 0; i < s.rows; i++ {
		row := s.gen.Row()

		id, err := s.engine.IndexDocument(ctx, row)
		if err != nil {
			payload, _ := json.Marshal(row)
			return errors.Wrapf(err, "row %d %s", i, payload)
		}
		if s.onInsert != nil {
			s.onInsert(i, id)
		}
	}
	return nil
}
