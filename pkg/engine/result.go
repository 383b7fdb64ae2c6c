package engine

import (
	"github.com/tidwall/gjson"
)

// SearchResult wraps a raw search response
type SearchResult struct {
	raw []byte
}

// NewSearchResult wraps an already fetched response body
func NewSearchResult(raw []byte) *SearchResult {
	return &SearchResult{raw: raw}
}

// TotalHits returns the total hit count.
// Older engines report hits.total as a number, newer ones as {"value": n}.
func (r *SearchResult) TotalHits() int64 {
	total := gjson.GetBytes(r.raw, "hits.total")
	if total.IsObject() {
		return total.Get("value").Int()
	}
	return total.Int()
}

// IDs returns the document ids of the returned hits, in response order
func (r *SearchResult) IDs() []string {
	hits := gjson.GetBytes(r.raw, "hits.hits.#._id").Array()
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.String())
	}
	return ids
}

// HasAggregation reports whether the response carries the named aggregation
func (r *SearchResult) HasAggregation(name string) bool {
	return gjson.GetBytes(r.raw, "aggregations."+name).Exists()
}

// BucketCounts returns the doc_count of every bucket of the named aggregation
func (r *SearchResult) BucketCounts(name string) []int64 {
	buckets := gjson.GetBytes(r.raw, "aggregations."+name+".buckets.#.doc_count").Array()
	counts := make([]int64, 0, len(buckets))
	for _, b := range buckets {
		counts = append(counts, b.Int())
	}
	return counts
}

// Error returns the engine error reason, empty if the response carries none
func (r *SearchResult) Error() string {
	e := gjson.GetBytes(r.raw, "error")
	if !e.Exists() {
		return ""
	}
	if reason := e.Get("reason"); reason.Exists() {
		return reason.String()
	}
	return e.String()
}
