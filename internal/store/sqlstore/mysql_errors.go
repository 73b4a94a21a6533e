package sqlstore

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"

	"gridquery/internal/schema"
	"gridquery/internal/store"
)

const (
	errDupEntry         = 1062
	errRowIsReferenced  = 1451
	errNoReferencedRow  = 1452
	errDataTooLong      = 1406
	errWarnDataOutRange = 1264
)

var (
	columnInMessage     = regexp.MustCompile(`column '([^']+)'`)
	foreignKeyInMessage = regexp.MustCompile("FOREIGN KEY \\(`([^`]+)`")
)

// constraintError maps MySQL constraint and data errors to a field error.
func constraintError(table *schema.Table, err error) (store.FieldError, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return store.FieldError{}, false
	}

	switch myErr.Number {
	case errDupEntry:
		return fieldError(keyField(table), "A record with this key already exists."), true
	case errRowIsReferenced:
		return fieldError(keyField(table), "This record is still referenced by other records."), true
	case errNoReferencedRow:
		field := columnField(table, foreignKeyInMessage, myErr.Message)
		return fieldError(field, fmt.Sprintf("%s refers to a record that does not exist.", store.Label(field))), true
	case errDataTooLong:
		field := columnField(table, columnInMessage, myErr.Message)
		return fieldError(field, fmt.Sprintf("%s is too long.", store.Label(field))), true
	case errWarnDataOutRange:
		field := columnField(table, columnInMessage, myErr.Message)
		return fieldError(field, fmt.Sprintf("%s is out of range.", store.Label(field))), true
	}
	return store.FieldError{}, false
}

func fieldError(field, message string) store.FieldError {
	return store.FieldError{Field: field, Messages: []string{message}}
}

func keyField(table *schema.Table) string {
	if names := schema.PrimaryKeyNames(table); len(names) > 0 {
		return names[0]
	}
	return ""
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) == 2 {
		return m[1]
	}
	return ""
}

func columnField(table *schema.Table, re *regexp.Regexp, message string) string {
	if name := submatch(re, message); name != "" {
		return name
	}
	return keyField(table)
}
