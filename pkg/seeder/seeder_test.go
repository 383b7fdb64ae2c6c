package seeder

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/atomicdeploy/esql-bench/pkg/fixture"
	"github.com/atomicdeploy/esql-bench/pkg/generator"
	"github.com/atomicdeploy/esql-bench/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOps(t *testing.T) {
	tests := []struct {
		in      string
		want    []Op
		wantErr bool
	}{
		{"-c", []Op{OpCreate}, false},
		{"-dcmi", []Op{OpDelete, OpCreate, OpMapping, OpInsert}, false},
		{"cmi", []Op{OpCreate, OpMapping, OpInsert}, false},
		{"-ii", []Op{OpInsert, OpInsert}, false},
		{"-", nil, true},
		{"", nil, true},
		{"-cx", nil, true},
		{"--c", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOps(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidOp), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeEngine records calls and fails on demand
type fakeEngine struct {
	calls      []string
	docs       []interface{}
	failInsert int
}

func (f *fakeEngine) CreateIndex(ctx context.Context) error {
	f.calls = append(f.calls, "create")
	return nil
}

func (f *fakeEngine) DeleteIndex(ctx context.Context) error {
	f.calls = append(f.calls, "delete")
	return &engine.StatusError{Op: "delete index", Code: 404}
}

func (f *fakeEngine) PutMapping(ctx context.Context, schema engine.Schema) error {
	f.calls = append(f.calls, "mapping")
	return nil
}

func (f *fakeEngine) IndexDocument(ctx context.Context, doc interface{}) (string, error) {
	if f.failInsert > 0 && len(f.docs) == f.failInsert {
		return "", &engine.StatusError{Op: "insert data", Code: 400}
	}
	f.docs = append(f.docs, doc)
	return "id", nil
}

func newGen(t *testing.T, missing int) *generator.Generator {
	t.Helper()
	gen, err := generator.New(missing, generator.WithSeed(11))
	require.NoError(t, err)
	return gen
}

func TestSeeder_RunsInOrder(t *testing.T) {
	fe := &fakeEngine{}
	var results []Result
	var inserted int

	s, err := New(fe, newGen(t, 0), fixture.DefaultSchema(),
		WithRows(5),
		WithResultHook(func(r Result) { results = append(results, r) }),
		WithInsertHook(func(row int, id string) { inserted++ }),
	)
	require.NoError(t, err)

	got, err := s.Run(context.Background(), []Op{OpCreate, OpMapping, OpInsert})
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "mapping"}, fe.calls)
	assert.Len(t, fe.docs, 5)
	assert.Equal(t, 5, inserted)
	assert.Equal(t, got, results)
	assert.Equal(t, "successfully insert 5 documents (rows)", got[2].Message)
}

func TestSeeder_StopsAtFirstFailure(t *testing.T) {
	fe := &fakeEngine{}
	s, err := New(fe, newGen(t, 0), fixture.DefaultSchema(), WithRows(1))
	require.NoError(t, err)

	results, err := s.Run(context.Background(), []Op{OpCreate, OpDelete, OpInsert})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnexpectedStatus))
	assert.Len(t, results, 1)
	assert.Empty(t, fe.docs)
}

func TestSeeder_InsertFailureNamesRow(t *testing.T) {
	fe := &fakeEngine{failInsert: 3}
	s, err := New(fe, newGen(t, 0), fixture.DefaultSchema(), WithRows(10))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), []Op{OpInsert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3 {")
	assert.Len(t, fe.docs, 3)

	var se *engine.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestNew_NegativeRows(t *testing.T) {
	_, err := New(&fakeEngine{}, newGen(t, 0), nil, WithRows(-1))
	assert.Error(t, err)
}

// TestSeeder_RoundTrip inserts rows into a fresh index and counts them back
func TestSeeder_RoundTrip(t *testing.T) {
	srv := server.NewServer(server.WithQuiet())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := engine.NewClient(engine.Config{URL: ts.URL, Index: "test"})
	require.NoError(t, err)
	s, err := New(client, newGen(t, DefaultMissingPercent), fixture.DefaultSchema(), WithRows(DefaultRows))
	require.NoError(t, err)

	ctx := context.Background()
	ops, err := ParseOps("-cmi")
	require.NoError(t, err)

	_, err = s.Run(ctx, ops)
	require.NoError(t, err)

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultRows), count)

	res, err := client.Search(ctx, `{"size":1000,"query":{"match_all":{}}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultRows), res.TotalHits())
	assert.Len(t, res.IDs(), DefaultRows)

	// creating the index again is an unexpected status
	_, err = s.Run(ctx, []Op{OpCreate})
	assert.True(t, errors.Is(err, engine.ErrUnexpectedStatus))

	_, err = s.Run(ctx, []Op{OpDelete})
	require.NoError(t, err)
	assert.Empty(t, srv.IndexNames())
}
