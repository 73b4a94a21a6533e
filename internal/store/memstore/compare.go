package memstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridquery/internal/sqltype"
)

// compareValues orders two non-null values. Numeric kinds compare exactly as
// decimals when both sides parse; everything else compares as text.
func compareValues(a, b any, kind sqltype.Kind) int {
	if kind.IsNumeric() {
		da, errA := toDecimal(a)
		db, errB := toDecimal(b)
		if errA == nil && errB == nil {
			return da.Cmp(db)
		}
	}
	return strings.Compare(toText(a), toText(b))
}

// compareNullable orders values with nulls first, like an ascending SQL sort.
func compareNullable(a, b any, kind sqltype.Kind) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return compareValues(a, b, kind)
	}
}

func valuesEqual(a, b any, kind sqltype.Kind) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return compareValues(a, b, kind) == 0
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case bool:
		if n {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	default:
		return decimal.NewFromString(strings.TrimSpace(toText(v)))
	}
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.UTC().Format("2006-01-02 15:04:05.999999")
	default:
		return fmt.Sprint(v)
	}
}
