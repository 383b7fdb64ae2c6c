// Package compare checks that a reference query and an alternate query return
// equivalent results from the search engine.
package compare

import (
	"sort"
	"strings"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

// GroupAggregation is the aggregation name both query generators use for GROUP BY
const GroupAggregation = "groupby"

var (
	// ErrLengthMismatch is returned when the query files hold different numbers of lines
	ErrLengthMismatch = errors.New("query count mismatch")
	// ErrMismatch is wrapped by every result comparison failure
	ErrMismatch = errors.New("results do not match")
)

// notTestedKeywords mark SQL whose result depends on ordering or text analysis
var notTestedKeywords = []string{"LIMIT", "LIKE", "REGEX"}

// keywordTokens maps parser tokens onto notTestedKeywords; RLIKE and REGEXP both lex as REGEXP
var keywordTokens = map[int]string{
	sqlparser.LIMIT:  "LIMIT",
	sqlparser.LIKE:   "LIKE",
	sqlparser.REGEXP: "REGEX",
}

// Pair is one SQL query and its hand-built DSL counterpart
type Pair struct {
	// Index is the 1-based line number shared by both files
	Index int    `json:"index"`
	SQL   string `json:"sql"`
	DSL   string `json:"dsl"`
}

// Mode says how a pair's results are compared
type Mode int

const (
	ModeHits Mode = iota
	ModeGroups
	ModeSkip
)

func (m Mode) String() string {
	switch m {
	case ModeHits:
		return "hits"
	case ModeGroups:
		return "groups"
	case ModeSkip:
		return "skip"
	}
	return "unknown"
}

// NewPairs zips two query lists positionally
func NewPairs(sqls, dsls []string) ([]Pair, error) {
	if len(sqls) != len(dsls) {
		return nil, errors.Wrapf(ErrLengthMismatch,
			"number of sql test cases (%d) and generated dsl queries (%d) not match", len(sqls), len(dsls))
	}

	pairs := make([]Pair, len(sqls))
	for i := range sqls {
		pairs[i] = Pair{Index: i + 1, SQL: sqls[i], DSL: dsls[i]}
	}
	return pairs, nil
}

// SkipReason reports why a pair is not compared at all, empty when its SQL
// uses none of notTestedKeywords.
func SkipReason(sql string) string {
	if k := notTestedKeyword(sql); k != "" {
		return "query contains " + k + ", not covered"
	}
	return ""
}

// notTestedKeyword returns the first of notTestedKeywords used as a whole
// token outside quoted literals
func notTestedKeyword(sql string) string {
	tkn := sqlparser.NewStringTokenizer(sql)
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0, sqlparser.LEX_ERROR:
			return ""
		case sqlparser.STRING:
			continue
		}

		if k, ok := keywordTokens[typ]; ok {
			return k
		}
		word := strings.ToUpper(string(val))
		for _, k := range notTestedKeywords {
			if word == k {
				return k
			}
		}
	}
}

// Classify decides the comparison mode for a pair and, for skipped pairs, why
func Classify(p Pair) (Mode, string) {
	if reason := SkipReason(p.SQL); reason != "" {
		return ModeSkip, reason
	}

	upperSQL := strings.ToUpper(p.SQL)
	if strings.Contains(p.DSL, "aggs") || strings.Contains(p.DSL, "aggregations") {
		if strings.Contains(p.DSL, GroupAggregation) {
			return ModeGroups, ""
		}
		return ModeSkip, "aggregation without group by, not covered"
	}

	if strings.Contains(upperSQL, "COUNT(*)") {
		return ModeSkip, "COUNT(*) without group by, not covered"
	}

	return ModeHits, ""
}

// CompareHits checks that both results hold the same documents.
// The id lists are only compared when the reference page holds every hit,
// since two truncated pages of the same result set may legitimately differ.
// The check is symmetric in its arguments.
func CompareHits(ref, alt *engine.SearchResult) error {
	refTotal, altTotal := ref.TotalHits(), alt.TotalHits()
	if refTotal != altTotal {
		return errors.Wrapf(ErrMismatch, "number of hits not match: get %d, expected %d", altTotal, refTotal)
	}

	refIDs, altIDs := ref.IDs(), alt.IDs()
	if len(refIDs) != len(altIDs) {
		return errors.Wrapf(ErrMismatch, "number of returned documents not match: get %d, expected %d", len(altIDs), len(refIDs))
	}

	if int64(len(refIDs)) < refTotal {
		return nil
	}

	sort.Strings(refIDs)
	sort.Strings(altIDs)
	for j := range refIDs {
		if refIDs[j] != altIDs[j] {
			return errors.Wrapf(ErrMismatch, "document id not match: get %s, expected %s", altIDs[j], refIDs[j])
		}
	}

	return nil
}

// CompareGroups checks that both results hold the same multiset of bucket sizes.
// Bucket keys are not compared; the check is symmetric in its arguments.
func CompareGroups(ref, alt *engine.SearchResult) error {
	refCounts := ref.BucketCounts(GroupAggregation)
	altCounts := alt.BucketCounts(GroupAggregation)
	if len(refCounts) != len(altCounts) {
		return errors.Wrapf(ErrMismatch, "number of groups not match: get %d, expected %d", len(altCounts), len(refCounts))
	}

	sortInt64s(refCounts)
	sortInt64s(altCounts)
	for j := range refCounts {
		if refCounts[j] != altCounts[j] {
			return errors.Wrapf(ErrMismatch, "group size not match: get %d, expected %d", altCounts[j], refCounts[j])
		}
	}

	return nil
}

func sortInt64s(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
