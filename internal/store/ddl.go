package store

import (
	"fmt"
	"strings"

	"roster-backend/internal/metadata"
)

// The builders below only accept metadata.Identifier values, so raw request
// strings cannot reach DDL text.

func createSchemaSQL(ns metadata.Identifier) string {
	return "CREATE SCHEMA IF NOT EXISTS " + ns.Quoted()
}

func dropSchemaSQL(ns metadata.Identifier) string {
	return "DROP SCHEMA IF EXISTS " + ns.Quoted() + " CASCADE"
}

func dropTableSQL(ns, table metadata.Identifier) string {
	return "DROP TABLE IF EXISTS " + metadata.Qualified(ns, table)
}

// createTableSQL builds the CREATE TABLE statement: base columns first, in
// domain order, then custom columns in submission order.
func createTableSQL(spec *metadata.SchemaSpec) string {
	cols := make([]string, 0, len(spec.Domain.BaseColumns)+len(spec.Columns))
	for _, bc := range spec.Domain.BaseColumns {
		cols = append(cols, bc.Identifier().Quoted()+" "+bc.DDL)
	}
	for _, c := range spec.Columns {
		col := c.Name.Quoted() + " " + c.StorageType
		if c.Field.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		metadata.Qualified(spec.Namespace, spec.Table), strings.Join(cols, ",\n  "))
}
