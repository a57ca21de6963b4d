package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidField      = errors.New("invalid field")
)

const maxIdentifierLen = 63

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	nonIdentChars  = regexp.MustCompile(`[^a-z0-9_]`)
	columnNameExpr = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Identifier is a schema, table or column name that has passed sanitization.
// Its zero value is invalid; values are only produced by the Sanitize* functions
// and by the fixed domain definitions in this package.
type Identifier struct {
	name string
}

func (i Identifier) String() string { return i.name }

// IsZero reports whether the identifier was never set.
func (i Identifier) IsZero() bool { return i.name == "" }

// Quoted returns the identifier quoted for interpolation into SQL.
func (i Identifier) Quoted() string {
	return pgx.Identifier{i.name}.Sanitize()
}

// Qualified returns "namespace"."table" for use in SQL.
func Qualified(namespace, table Identifier) string {
	return pgx.Identifier{namespace.name, table.name}.Sanitize()
}

// reservedWords are SQL keywords that may not be used as custom column names.
var reservedWords = map[string]bool{
	"all": true, "alter": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "authorization": true,
	"between": true, "binary": true, "both": true, "by": true, "case": true, "cast": true,
	"check": true, "collate": true, "collation": true, "column": true, "concurrently": true,
	"constraint": true, "create": true, "cross": true, "current_catalog": true,
	"current_date": true, "current_role": true, "current_schema": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "database": true, "default": true,
	"deferrable": true, "delete": true, "desc": true, "distinct": true, "do": true,
	"drop": true, "else": true, "end": true, "except": true, "exists": true, "false": true,
	"fetch": true, "for": true, "foreign": true, "freeze": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "ilike": true, "in": true, "index": true,
	"initially": true, "inner": true, "insert": true, "intersect": true, "into": true,
	"is": true, "isnull": true, "join": true, "key": true, "lateral": true, "leading": true,
	"left": true, "like": true, "limit": true, "localtime": true, "localtimestamp": true,
	"natural": true, "not": true, "notnull": true, "null": true, "offset": true, "on": true,
	"only": true, "or": true, "order": true, "outer": true, "overlaps": true, "placing": true,
	"primary": true, "references": true, "returning": true, "revoke": true, "right": true,
	"schema": true, "select": true, "session_user": true, "set": true, "similar": true,
	"some": true, "symmetric": true, "system_user": true, "table": true, "tablesample": true,
	"then": true, "to": true, "trailing": true, "true": true, "union": true, "unique": true,
	"update": true, "user": true, "using": true, "values": true, "variadic": true,
	"verbose": true, "view": true, "when": true, "where": true, "window": true, "with": true,
}

// IsReservedWord reports whether name is a SQL keyword (case-insensitive).
func IsReservedWord(name string) bool {
	return reservedWords[strings.ToLower(name)]
}

var systemNamespaces = map[string]bool{
	"public":             true,
	"information_schema": true,
}

func normalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = whitespaceRun.ReplaceAllString(s, "_")
	return nonIdentChars.ReplaceAllString(s, "")
}

// SanitizeNamespace derives a schema name from a category name.
func SanitizeNamespace(category string) (Identifier, error) {
	s := normalizeName(category)
	switch {
	case s == "":
		return Identifier{}, fmt.Errorf("%w: namespace %q is empty after sanitization", ErrInvalidIdentifier, category)
	case len(s) > maxIdentifierLen:
		return Identifier{}, fmt.Errorf("%w: namespace %q is longer than %d characters", ErrInvalidIdentifier, category, maxIdentifierLen)
	case strings.HasPrefix(s, "pg_") || systemNamespaces[s]:
		return Identifier{}, fmt.Errorf("%w: namespace %q is reserved", ErrInvalidIdentifier, category)
	}
	return Identifier{name: s}, nil
}

// SanitizeTableName derives a table name from a class or group name.
func SanitizeTableName(raw string) (Identifier, error) {
	s := normalizeName(raw)
	switch {
	case s == "":
		return Identifier{}, fmt.Errorf("%w: table %q is empty after sanitization", ErrInvalidIdentifier, raw)
	case len(s) > maxIdentifierLen:
		return Identifier{}, fmt.Errorf("%w: table %q is longer than %d characters", ErrInvalidIdentifier, raw, maxIdentifierLen)
	case strings.HasPrefix(s, "_"):
		// underscore-prefixed tables are system tables
		return Identifier{}, fmt.Errorf("%w: table %q may not start with an underscore", ErrInvalidIdentifier, raw)
	}
	return Identifier{name: s}, nil
}

// SanitizeColumnName validates a column name. Unlike namespaces and tables,
// column names are never rewritten beyond lowercasing: anything outside the
// identifier grammar fails.
func SanitizeColumnName(raw string) (Identifier, error) {
	if !columnNameExpr.MatchString(raw) {
		return Identifier{}, fmt.Errorf("%w: column %q must start with a letter or underscore and contain only letters, digits and underscores", ErrInvalidIdentifier, raw)
	}
	if len(raw) > maxIdentifierLen {
		return Identifier{}, fmt.Errorf("%w: column %q is longer than %d characters", ErrInvalidIdentifier, raw, maxIdentifierLen)
	}
	if IsReservedWord(raw) {
		return Identifier{}, fmt.Errorf("%w: column %q is a reserved word", ErrInvalidIdentifier, raw)
	}
	return Identifier{name: strings.ToLower(raw)}, nil
}

// fixedIdentifier is used for compile-time names owned by this package.
func fixedIdentifier(name string) Identifier {
	return Identifier{name: name}
}
