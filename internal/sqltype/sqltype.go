// Package sqltype maps SQL data types to the value kinds the grid engine
// uses for key coercion, validation and value comparison.
package sqltype

import "strings"

// Kind is the category of value stored in a SQL column.
type Kind int

const (
	// KindString is the default for text and unknown SQL types.
	KindString Kind = iota
	// KindInt represents integer numeric types.
	KindInt
	// KindFloat represents floating-point types.
	KindFloat
	// KindDecimal represents fixed-point types.
	KindDecimal
	// KindBoolean represents boolean types.
	KindBoolean
	// KindJSON represents JSON data types.
	KindJSON
	// KindTemporal represents date and time types.
	KindTemporal
	// KindBinary represents binary string and blob types.
	KindBinary
	// KindEnum represents ENUM and SET types.
	KindEnum
)

// KindOf converts a SQL data type string to its value kind.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching,
// so both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE and COLUMN_TYPE are accepted.
func KindOf(sqlType string) Kind {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	sqlType = strings.TrimSpace(sqlType)
	if idx := strings.Index(sqlType, " "); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(sqlType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIT":
		return KindInt
	case "FLOAT", "DOUBLE", "REAL":
		return KindFloat
	case "DECIMAL", "NUMERIC":
		return KindDecimal
	case "BOOL", "BOOLEAN":
		return KindBoolean
	case "JSON":
		return KindJSON
	case "DATE", "DATETIME", "TIMESTAMP", "TIME", "YEAR":
		return KindTemporal
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY":
		return KindBinary
	case "ENUM", "SET":
		return KindEnum
	default:
		return KindString
	}
}

// IsNumeric reports whether values of this kind compare numerically.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInt, KindFloat, KindDecimal, KindBoolean:
		return true
	default:
		return false
	}
}

// String returns a lowercase name for logs and error messages.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindJSON:
		return "json"
	case KindTemporal:
		return "temporal"
	case KindBinary:
		return "binary"
	case KindEnum:
		return "enum"
	default:
		return "string"
	}
}
