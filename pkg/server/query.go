package server

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

const defaultSearchSize = 10

// document is a stored source plus the id assigned on insert
type document struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
}

// matcher decides whether a document satisfies a query clause
type matcher func(doc map[string]interface{}) bool

// compileQuery turns a query DSL clause into a matcher.
// Supported clauses: match_all, term, exists, bool (must, filter, must_not, should).
func compileQuery(q gjson.Result) (matcher, error) {
	if !q.Exists() {
		return matchAll, nil
	}
	if !q.IsObject() {
		return nil, fmt.Errorf("query must be an object")
	}

	var (
		m   matcher
		err error
		n   int
	)
	q.ForEach(func(key, value gjson.Result) bool {
		n++
		switch key.String() {
		case "match_all":
			m = matchAll
		case "term":
			m, err = compileTerm(value)
		case "exists":
			field := value.Get("field")
			if !field.Exists() {
				err = fmt.Errorf("[exists] requires a field")
				return false
			}
			name := field.String()
			m = func(doc map[string]interface{}) bool {
				_, ok := doc[name]
				return ok
			}
		case "bool":
			m, err = compileBool(value)
		case "constant_score":
			m, err = compileQuery(value.Get("filter"))
		default:
			err = fmt.Errorf("unsupported query [%s]", key.String())
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("query must hold exactly one clause, got %d", n)
	}

	return m, nil
}

func matchAll(map[string]interface{}) bool { return true }

func compileTerm(term gjson.Result) (matcher, error) {
	var (
		field string
		want  gjson.Result
		n     int
	)
	term.ForEach(func(key, value gjson.Result) bool {
		n++
		field = key.String()
		if value.IsObject() {
			want = value.Get("value")
		} else {
			want = value
		}
		return true
	})
	if n != 1 || !want.Exists() {
		return nil, fmt.Errorf("[term] requires exactly one field with a value")
	}

	expected := want.Value()
	return func(doc map[string]interface{}) bool {
		got, ok := doc[field]
		return ok && valuesEqual(got, expected)
	}, nil
}

func compileBool(b gjson.Result) (matcher, error) {
	collect := func(name string) ([]matcher, error) {
		clause := b.Get(name)
		if !clause.Exists() {
			return nil, nil
		}
		items := []gjson.Result{clause}
		if clause.IsArray() {
			items = clause.Array()
		}
		out := make([]matcher, 0, len(items))
		for _, item := range items {
			m, err := compileQuery(item)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	}

	must, err := collect("must")
	if err != nil {
		return nil, err
	}
	filter, err := collect("filter")
	if err != nil {
		return nil, err
	}
	mustNot, err := collect("must_not")
	if err != nil {
		return nil, err
	}
	should, err := collect("should")
	if err != nil {
		return nil, err
	}
	must = append(must, filter...)

	return func(doc map[string]interface{}) bool {
		for _, m := range must {
			if !m(doc) {
				return false
			}
		}
		for _, m := range mustNot {
			if m(doc) {
				return false
			}
		}
		// should is only required when there is nothing else to satisfy
		if len(should) > 0 && len(must) == 0 {
			for _, m := range should {
				if m(doc) {
					return true
				}
			}
			return false
		}
		return true
	}, nil
}

func valuesEqual(a, b interface{}) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// compareValues orders numbers numerically and everything else by its string form
func compareValues(a, b interface{}) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

type sortKey struct {
	field string
	desc  bool
}

func parseSort(s gjson.Result) ([]sortKey, error) {
	if !s.Exists() {
		return nil, nil
	}
	items := []gjson.Result{s}
	if s.IsArray() {
		items = s.Array()
	}

	var keys []sortKey
	for _, item := range items {
		if item.Type == gjson.String {
			keys = append(keys, sortKey{field: item.String()})
			continue
		}
		if !item.IsObject() {
			return nil, fmt.Errorf("invalid sort clause %s", item.Raw)
		}
		item.ForEach(func(key, value gjson.Result) bool {
			order := value.String()
			if value.IsObject() {
				order = value.Get("order").String()
			}
			keys = append(keys, sortKey{field: key.String(), desc: order == "desc"})
			return true
		})
	}
	return keys, nil
}

// sortDocs orders docs by keys; documents missing a field sort last
func sortDocs(docs []document, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, aok := docs[i].Source[k.field]
			b, bok := docs[j].Source[k.field]
			switch {
			case !aok && !bok:
				continue
			case !aok:
				return false
			case !bok:
				return true
			}
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// bucket is one entry of a groupby aggregation
type bucket struct {
	Key      interface{} `json:"key"`
	DocCount int64       `json:"doc_count"`
}

// aggregate evaluates a single aggregation definition over the matched docs.
// terms and composite (with terms sources) are supported.
func aggregate(def gjson.Result, docs []document) (map[string]interface{}, error) {
	if terms := def.Get("terms"); terms.Exists() {
		field := terms.Get("field").String()
		if field == "" {
			return nil, fmt.Errorf("[terms] requires a field")
		}
		return map[string]interface{}{"buckets": groupBy(docs, []string{field}, nil)}, nil
	}

	if composite := def.Get("composite"); composite.Exists() {
		var names, fields []string
		for _, src := range composite.Get("sources").Array() {
			var err error
			src.ForEach(func(key, value gjson.Result) bool {
				field := value.Get("terms.field").String()
				if field == "" {
					err = fmt.Errorf("composite source [%s] must be a terms source with a field", key.String())
					return false
				}
				names = append(names, key.String())
				fields = append(fields, field)
				return true
			})
			if err != nil {
				return nil, err
			}
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("[composite] requires at least one source")
		}
		return map[string]interface{}{"buckets": groupBy(docs, fields, names)}, nil
	}

	return nil, fmt.Errorf("unsupported aggregation %s", def.Raw)
}

// groupBy buckets docs holding every field by their values.
// With names set, bucket keys are objects (composite); otherwise the single value (terms).
func groupBy(docs []document, fields, names []string) []bucket {
	type group struct {
		values []interface{}
		count  int64
	}
	groups := make(map[string]*group)
	var order []string

	for _, doc := range docs {
		values := make([]interface{}, 0, len(fields))
		complete := true
		for _, f := range fields {
			v, ok := doc.Source[f]
			if !ok {
				complete = false
				break
			}
			values = append(values, v)
		}
		if !complete {
			continue
		}

		var key string
		for i := range values {
			key += "\x00" + fmt.Sprint(values[i])
		}
		g, ok := groups[key]
		if !ok {
			g = &group{values: values}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}

	buckets := make([]bucket, 0, len(order))
	for _, key := range order {
		g := groups[key]
		var k interface{}
		if names != nil {
			obj := make(map[string]interface{}, len(names))
			for i, n := range names {
				obj[n] = g.values[i]
			}
			k = obj
		} else {
			k = g.values[0]
		}
		buckets = append(buckets, bucket{Key: k, DocCount: g.count})
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return fmt.Sprint(buckets[i].Key) < fmt.Sprint(buckets[j].Key)
	})

	return buckets
}
