package store

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"gridquery/internal/schema"
	"gridquery/internal/sqltype"
)

// Validate checks the row against its column metadata. When attrs is non-empty
// only those attributes are checked.
func Validate(r *Row, attrs ...string) FieldErrors {
	var errs FieldErrors
	scope := attrs
	if len(scope) == 0 {
		scope = r.table.ColumnNames()
	}
	for _, name := range scope {
		col, ok := r.table.Column(name)
		if !ok {
			continue
		}
		value, present := r.values[name]
		if isBlank(value) {
			if blankNotAllowed(*col, r.IsNew(), present, value) {
				errs.Add(name, fmt.Sprintf("%s cannot be blank.", Label(name)))
			}
			continue
		}
		if msg := checkValue(*col, value); msg != "" {
			errs.Add(name, msg)
		}
	}
	return errs
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func blankNotAllowed(col schema.Column, isNew, present bool, value any) bool {
	if isNew {
		return col.IsRequired()
	}
	if !present || col.IsAutoIncrement || col.IsGenerated {
		return false
	}
	if value == nil {
		return !col.IsNullable
	}
	return !col.IsNullable && col.Kind() != sqltype.KindString && col.Kind() != sqltype.KindEnum
}

func checkValue(col schema.Column, value any) string {
	label := Label(col.Name)
	switch col.Kind() {
	case sqltype.KindInt:
		if !isInteger(value) {
			return fmt.Sprintf("%s must be an integer.", label)
		}
	case sqltype.KindFloat, sqltype.KindDecimal:
		if _, err := decimal.NewFromString(strings.TrimSpace(fmt.Sprint(value))); err != nil {
			return fmt.Sprintf("%s must be a number.", label)
		}
	case sqltype.KindEnum:
		if strings.EqualFold(col.DataType, "enum") && len(col.EnumValues) > 0 {
			s := fmt.Sprint(value)
			for _, allowed := range col.EnumValues {
				if s == allowed {
					return ""
				}
			}
			return fmt.Sprintf("%s is invalid.", label)
		}
	case sqltype.KindString:
		if limit := col.MaxLength(); limit > 0 {
			if s, ok := value.(string); ok && utf8.RuneCountInString(s) > limit {
				return fmt.Sprintf("%s should contain at most %d characters.", label, limit)
			}
		}
	}
	return ""
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case float32:
		return v == float32(int64(v))
	case bool:
		return true
	case []byte:
		_, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return err == nil
	default:
		_, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
		return err == nil
	}
}

// Label turns an attribute name into a human-readable label: author_id becomes "Author ID".
func Label(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	for i, w := range words {
		if strings.EqualFold(w, "id") {
			words[i] = "ID"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
