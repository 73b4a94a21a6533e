package schema

import (
	"fmt"
	"strings"
)

// parseQuotedList reads the member list of an ENUM(...) or SET(...) column type
// straight from INFORMATION_SCHEMA.COLUMNS.COLUMN_TYPE.
func parseQuotedList(keyword, columnType string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	prefix := keyword + "("
	if !strings.HasPrefix(strings.ToLower(trimmed), prefix) || !strings.HasSuffix(trimmed, ")") {
		return nil, fmt.Errorf("%q is not a %s definition", columnType, keyword)
	}
	body := trimmed[len(prefix) : len(trimmed)-1]

	var values []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case !inQuote && ch == '\'':
			inQuote = true
			current.Reset()
		case !inQuote && (ch == ',' || ch == ' '):
		case !inQuote:
			return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
		case ch == '\\' && i+1 < len(body):
			i++
			current.WriteByte(body[i])
		case ch == '\'' && i+1 < len(body) && body[i+1] == '\'':
			i++
			current.WriteByte('\'')
		case ch == '\'':
			inQuote = false
			values = append(values, current.String())
		default:
			current.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated value in %q", columnType)
	}
	return values, nil
}
