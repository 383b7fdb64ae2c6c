package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTotal int64
		wantIDs   []string
	}{
		{"legacy total", `{"hits":{"total":3,"hits":[{"_id":"a"},{"_id":"b"}]}}`, 3, []string{"a", "b"}},
		{"object total", `{"hits":{"total":{"value":2,"relation":"eq"},"hits":[{"_id":"b"},{"_id":"a"}]}}`, 2, []string{"b", "a"}},
		{"no hits", `{"hits":{"total":0,"hits":[]}}`, 0, []string{}},
		{"missing hits", `{}`, 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSearchResult([]byte(tt.raw))
			assert.Equal(t, tt.wantTotal, r.TotalHits())
			assert.Equal(t, tt.wantIDs, r.IDs())
		})
	}
}

func TestSearchResult_Aggregations(t *testing.T) {
	r := NewSearchResult([]byte(`{"aggregations":{"groupby":{"buckets":[
		{"key":"aa","doc_count":4},{"key":"ab","doc_count":1}]}}}`))

	assert.True(t, r.HasAggregation("groupby"))
	assert.False(t, r.HasAggregation("other"))
	assert.Equal(t, []int64{4, 1}, r.BucketCounts("groupby"))
	assert.Empty(t, r.BucketCounts("other"))
}

func TestSearchResult_Error(t *testing.T) {
	assert.Equal(t, "", NewSearchResult([]byte(`{"hits":{}}`)).Error())
	assert.Equal(t, "no such index [x]",
		NewSearchResult([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index [x]"}}`)).Error())
	assert.Equal(t, "boom", NewSearchResult([]byte(`{"error":"boom"}`)).Error())
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema([]byte(`{"properties":{"colA":{"type":"text"},"date":{"type":"date"}}}`))
	assert.NoError(t, err)
	assert.Equal(t, Schema{"colA": "text", "date": "date"}, s)
	assert.Equal(t, []string{"colA", "date"}, s.Columns())

	_, err = ParseSchema([]byte(`{"properties":{"colA":{}}}`))
	assert.Error(t, err)

	_, err = ParseSchema([]byte(`{"mappings":{}}`))
	assert.Error(t, err)

	_, err = ParseSchema([]byte(`nope`))
	assert.Error(t, err)
}
