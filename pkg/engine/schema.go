package engine

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// Schema maps a column name to its declared engine field type
type Schema map[string]string

// Mapping returns the put-mapping request body for the schema
func (s Schema) Mapping() map[string]interface{} {
	props := make(map[string]interface{}, len(s))
	for col, typ := range s {
		props[col] = map[string]string{"type": typ}
	}
	return map[string]interface{}{"properties": props}
}

// Columns returns the column names in sorted order
func (s Schema) Columns() []string {
	cols := make([]string, 0, len(s))
	for col := range s {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// ParseSchema reads a mapping body of the form {"properties": {"col": {"type": "..."}}}
func ParseSchema(data []byte) (Schema, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid mapping: not valid JSON")
	}

	props := gjson.GetBytes(data, "properties")
	if !props.IsObject() {
		return nil, fmt.Errorf("invalid mapping: missing properties object")
	}

	schema := make(Schema)
	var err error
	props.ForEach(func(key, value gjson.Result) bool {
		typ := value.Get("type")
		if !typ.Exists() {
			err = fmt.Errorf("invalid mapping: column %q has no type", key.String())
			return false
		}
		schema[key.String()] = typ.String()
		return true
	})
	if err != nil {
		return nil, err
	}

	return schema, nil
}
