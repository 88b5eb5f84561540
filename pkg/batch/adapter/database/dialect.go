package database

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdentifier quotes a table or column name for the given database type.
// Only plain identifiers are accepted, so the result is safe to splice into SQL.
func QuoteIdentifier(dbType, name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid SQL identifier %q", name)
	}
	if dbType == "mysql" {
		return "`" + name + "`", nil
	}
	return `"` + name + `"`, nil
}

// MustQuoteIdentifier is QuoteIdentifier for names that were validated earlier.
func MustQuoteIdentifier(dbType, name string) string {
	q, err := QuoteIdentifier(dbType, name)
	if err != nil {
		panic(err)
	}
	return q
}
