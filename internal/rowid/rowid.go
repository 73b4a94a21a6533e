// Package rowid encodes and decodes grid row identifiers. A row id is the
// primary key values of a record joined with Delimiter, in key column order.
package rowid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridquery/internal/schema"
	"gridquery/internal/sqltype"
)

const (
	// Delimiter joins the parts of a composite key.
	Delimiter = "%"
	// ListSeparator separates ids in a delete request.
	ListSeparator = ","

	datetimeLayout = "2006-01-02 15:04:05"
)

// ErrMalformedID is returned when an id does not split into one part per key column.
var ErrMalformedID = errors.New("malformed row id")

// Encode joins primary key values into a row id.
func Encode(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Format(v)
	}
	return strings.Join(parts, Delimiter)
}

// Format renders a key or cell value as wire text.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.Format(datetimeLayout)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(val)
	}
}

// Decode splits id and zips the parts with keyNames.
func Decode(keyNames []string, id string) (map[string]any, error) {
	if len(keyNames) == 0 {
		return nil, fmt.Errorf("%w: no primary key", ErrMalformedID)
	}
	parts := []string{id}
	if len(keyNames) > 1 {
		parts = strings.Split(id, Delimiter)
	}
	if len(parts) != len(keyNames) {
		return nil, fmt.Errorf("%w: %q has %d parts, want %d", ErrMalformedID, id, len(parts), len(keyNames))
	}
	key := make(map[string]any, len(keyNames))
	for i, name := range keyNames {
		key[name] = parts[i]
	}
	return key, nil
}

// DecodeTyped decodes id against the primary key of table and coerces each
// part to its column kind.
func DecodeTyped(table *schema.Table, id string) (map[string]any, error) {
	pks := schema.PrimaryKeyColumns(table)
	names := make([]string, len(pks))
	for i, col := range pks {
		names[i] = col.Name
	}
	raw, err := Decode(names, id)
	if err != nil {
		return nil, err
	}
	for _, col := range pks {
		v, err := Coerce(col, raw[col.Name].(string))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedID, err)
		}
		raw[col.Name] = v
	}
	return raw, nil
}

// SplitList splits a comma-separated id list, dropping empty entries.
func SplitList(ids string) []string {
	var out []string
	for _, id := range strings.Split(ids, ListSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Coerce converts key text into the Go type expected by col.
func Coerce(col schema.Column, raw string) (any, error) {
	switch col.Kind() {
	case sqltype.KindInt:
		parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer value for %s", col.Name)
		}
		return parsed, nil
	case sqltype.KindFloat:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsInf(parsed, 0) || math.IsNaN(parsed) {
			return nil, fmt.Errorf("invalid float value for %s", col.Name)
		}
		return parsed, nil
	case sqltype.KindDecimal:
		parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal value for %s", col.Name)
		}
		return parsed.String(), nil
	case sqltype.KindBoolean:
		parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value for %s", col.Name)
		}
		return parsed, nil
	default:
		return raw, nil
	}
}
