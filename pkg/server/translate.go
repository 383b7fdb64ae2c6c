package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

const translateDefaultSize = 1000

// translateSQL converts a SELECT statement into a search body.
// Supported: WHERE with AND/OR/NOT over comparisons with =, != and IS [NOT] NULL,
// GROUP BY columns, ORDER BY columns and LIMIT.
func translateSQL(sql string) (map[string]interface{}, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing_exception: %v", err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, fmt.Errorf("only SELECT statements can be translated")
	}
	if len(sel.From) != 1 {
		return nil, fmt.Errorf("exactly one FROM table is supported")
	}

	body := map[string]interface{}{
		"size": translateDefaultSize,
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if sel.Where != nil {
		query, err = translateExpr(sel.Where.Expr)
		if err != nil {
			return nil, err
		}
	}
	body["query"] = query

	if len(sel.GroupBy) > 0 {
		sources := make([]interface{}, 0, len(sel.GroupBy))
		for _, g := range sel.GroupBy {
			col, ok := g.(*sqlparser.ColName)
			if !ok {
				return nil, fmt.Errorf("GROUP BY supports plain columns only, got %s", sqlparser.String(g))
			}
			name := col.Name.String()
			sources = append(sources, map[string]interface{}{
				name: map[string]interface{}{"terms": map[string]interface{}{"field": name}},
			})
		}
		body["size"] = 0
		body["aggregations"] = map[string]interface{}{
			"groupby": map[string]interface{}{
				"composite": map[string]interface{}{
					"size":    translateDefaultSize,
					"sources": sources,
				},
			},
		}
	} else if isCountStar(sel.SelectExprs) {
		body["size"] = 0
	}

	if len(sel.OrderBy) > 0 {
		sorts := make([]interface{}, 0, len(sel.OrderBy))
		for _, o := range sel.OrderBy {
			col, ok := o.Expr.(*sqlparser.ColName)
			if !ok {
				return nil, fmt.Errorf("ORDER BY supports plain columns only, got %s", sqlparser.String(o.Expr))
			}
			direction := "asc"
			if o.Direction == sqlparser.DescScr {
				direction = "desc"
			}
			sorts = append(sorts, map[string]interface{}{
				col.Name.String(): map[string]interface{}{"order": direction},
			})
		}
		body["sort"] = sorts
	}

	if sel.Limit != nil && sel.Limit.Rowcount != nil {
		n, err := literalInt(sel.Limit.Rowcount)
		if err != nil {
			return nil, fmt.Errorf("invalid LIMIT: %w", err)
		}
		if len(sel.GroupBy) == 0 {
			body["size"] = n
		}
		if sel.Limit.Offset != nil {
			from, err := literalInt(sel.Limit.Offset)
			if err != nil {
				return nil, fmt.Errorf("invalid OFFSET: %w", err)
			}
			body["from"] = from
		}
	}

	return body, nil
}

func translateExpr(expr sqlparser.Expr) (map[string]interface{}, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return translateExpr(e.Expr)

	case *sqlparser.AndExpr:
		left, err := translateExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return boolQuery("filter", left, right), nil

	case *sqlparser.OrExpr:
		left, err := translateExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return boolQuery("should", left, right), nil

	case *sqlparser.NotExpr:
		inner, err := translateExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return boolQuery("must_not", inner), nil

	case *sqlparser.IsExpr:
		col, ok := e.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, fmt.Errorf("IS expects a column, got %s", sqlparser.String(e.Expr))
		}
		exists := map[string]interface{}{"exists": map[string]interface{}{"field": col.Name.String()}}
		switch e.Operator {
		case sqlparser.IsNotNullStr:
			return exists, nil
		case sqlparser.IsNullStr:
			return boolQuery("must_not", exists), nil
		}
		return nil, fmt.Errorf("unsupported operator IS %s", strings.ToUpper(e.Operator))

	case *sqlparser.ComparisonExpr:
		col, ok := e.Left.(*sqlparser.ColName)
		if !ok {
			return nil, fmt.Errorf("comparison expects a column on the left, got %s", sqlparser.String(e.Left))
		}
		value, err := literalValue(e.Right)
		if err != nil {
			return nil, err
		}
		term := map[string]interface{}{
			"term": map[string]interface{}{
				col.Name.String(): map[string]interface{}{"value": value},
			},
		}
		switch e.Operator {
		case sqlparser.EqualStr:
			return term, nil
		case sqlparser.NotEqualStr:
			return boolQuery("must_not", term), nil
		}
		return nil, fmt.Errorf("unsupported operator %s", e.Operator)
	}

	return nil, fmt.Errorf("unsupported expression %s", sqlparser.String(expr))
}

func boolQuery(occur string, clauses ...map[string]interface{}) map[string]interface{} {
	items := make([]interface{}, 0, len(clauses))
	for _, c := range clauses {
		items = append(items, c)
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{occur: items},
	}
}

func literalValue(expr sqlparser.Expr) (interface{}, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return nil, fmt.Errorf("expected a literal, got %s", sqlparser.String(expr))
	}

	switch val.Type {
	case sqlparser.StrVal:
		return string(val.Val), nil
	case sqlparser.IntVal:
		return strconv.ParseInt(string(val.Val), 10, 64)
	case sqlparser.FloatVal:
		return strconv.ParseFloat(string(val.Val), 64)
	}
	return nil, fmt.Errorf("unsupported literal %s", sqlparser.String(expr))
}

func literalInt(expr sqlparser.Expr) (int64, error) {
	v, err := literalValue(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("expected an integer, got %v", v)
	}
	return n, nil
}

func isCountStar(exprs sqlparser.SelectExprs) bool {
	if len(exprs) != 1 {
		return false
	}
	ae, ok := exprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return false
	}
	fn, ok := ae.Expr.(*sqlparser.FuncExpr)
	if !ok || !fn.Name.EqualString("count") || len(fn.Exprs) != 1 {
		return false
	}
	_, star := fn.Exprs[0].(*sqlparser.StarExpr)
	return star
}
