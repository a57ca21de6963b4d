package store

import (
	"context"
	"encoding/json"
	"fmt"

	"roster-backend/internal/metadata"
)

// FieldTypeRegistry persists the declared logical type of every custom
// column, keyed by (namespace, table, column). Writes are last-write-wins.
type FieldTypeRegistry struct{}

func NewFieldTypeRegistry() *FieldTypeRegistry {
	return &FieldTypeRegistry{}
}

// Record stores or overwrites the metadata of one column.
func (r *FieldTypeRegistry) Record(ctx context.Context, q Querier, ns, table metadata.Identifier, position int, def metadata.FieldDefinition) error {
	options := def.Options
	if options == nil {
		options = []string{}
	}
	optJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options for %s: %w", def.Name, err)
	}

	_, err = Exec(ctx, q,
		`INSERT INTO _field_types (namespace, table_name, column_name, field_type, label, required, options, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (namespace, table_name, column_name) DO UPDATE
		 SET field_type = EXCLUDED.field_type, label = EXCLUDED.label, required = EXCLUDED.required,
		     options = EXCLUDED.options, position = EXCLUDED.position, updated_at = NOW()`,
		ns.String(), table.String(), def.Name, string(def.Type), def.Label, def.Required, optJSON, position)
	if err != nil {
		return fmt.Errorf("record field type %s.%s.%s: %w", ns, table, def.Name, err)
	}
	return nil
}

// Lookup returns the registered fields of a table keyed by column name.
func (r *FieldTypeRegistry) Lookup(ctx context.Context, q Querier, ns, table metadata.Identifier) (map[string]metadata.FieldDefinition, error) {
	rows, err := q.Query(ctx,
		`SELECT column_name, field_type, label, required, options
		 FROM _field_types WHERE namespace = $1 AND table_name = $2
		 ORDER BY position, column_name`,
		ns.String(), table.String())
	if err != nil {
		return nil, fmt.Errorf("lookup field types: %w", MapError(err))
	}
	defer rows.Close()

	defs := make(map[string]metadata.FieldDefinition)
	for rows.Next() {
		var def metadata.FieldDefinition
		var fieldType string
		var optJSON []byte
		if err := rows.Scan(&def.Name, &fieldType, &def.Label, &def.Required, &optJSON); err != nil {
			return nil, fmt.Errorf("scan field type row: %w", err)
		}
		def.Type = metadata.LogicalType(fieldType)
		if len(optJSON) > 0 {
			if err := json.Unmarshal(optJSON, &def.Options); err != nil {
				return nil, fmt.Errorf("decode options for %s: %w", def.Name, err)
			}
		}
		if len(def.Options) == 0 {
			def.Options = nil
		}
		defs[def.Name] = def
	}
	return defs, rows.Err()
}

// Delete removes every entry of one table.
func (r *FieldTypeRegistry) Delete(ctx context.Context, q Querier, ns, table metadata.Identifier) error {
	if _, err := Exec(ctx, q,
		"DELETE FROM _field_types WHERE namespace = $1 AND table_name = $2",
		ns.String(), table.String()); err != nil {
		return fmt.Errorf("delete field types for %s.%s: %w", ns, table, err)
	}
	return nil
}

// DeleteNamespace removes every entry of a namespace.
func (r *FieldTypeRegistry) DeleteNamespace(ctx context.Context, q Querier, ns metadata.Identifier) error {
	if _, err := Exec(ctx, q, "DELETE FROM _field_types WHERE namespace = $1", ns.String()); err != nil {
		return fmt.Errorf("delete field types for %s: %w", ns, err)
	}
	return nil
}
