package domain

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported database backend.
type Dialect string

const (
	DialectOracle     Dialect = "oracle"
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
)

// ParseDialect normalizes a configured database type. Common aliases are
// accepted; anything else is an error.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oracle":
		return DialectOracle, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgresql", "postgres":
		return DialectPostgreSQL, nil
	default:
		return "", fmt.Errorf("unsupported database type %q (supported: oracle, mysql, postgresql)", s)
	}
}

// Valid reports whether d is one of the supported dialects.
func (d Dialect) Valid() bool {
	switch d {
	case DialectOracle, DialectMySQL, DialectPostgreSQL:
		return true
	}
	return false
}

func (d Dialect) String() string { return string(d) }
