package metadata

import (
	"fmt"
	"strings"
)

// ColumnSpec is a validated custom column.
type ColumnSpec struct {
	Name        Identifier
	Field       FieldDefinition
	StorageType string
}

// SchemaSpec is a validated table definition, ready to be applied as DDL.
type SchemaSpec struct {
	Domain    *Domain
	Namespace Identifier
	Table     Identifier
	Columns   []ColumnSpec
}

// TableRequest is an unvalidated table definition as submitted by an administrator.
type TableRequest struct {
	Name   string
	Fields []FieldDefinition
}

// ProvisionPlan is the complete, validated input of a provisioning call.
type ProvisionPlan struct {
	Domain    *Domain
	Namespace Identifier
	Tables    []SchemaSpec
}

// BuildProvisionPlan validates every table and field of the batch in memory.
// Any violation fails the whole batch; nothing is returned partially.
func BuildProvisionPlan(d *Domain, category string, tables []TableRequest, policy StoragePolicy) (*ProvisionPlan, error) {
	ns, err := d.ResolveNamespace(category)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: at least one table is required", ErrInvalidField)
	}

	plan := &ProvisionPlan{Domain: d, Namespace: ns}
	seenTables := make(map[string]bool, len(tables))
	for _, tr := range tables {
		spec, err := buildSchemaSpec(d, ns, tr, policy)
		if err != nil {
			return nil, err
		}
		if seenTables[spec.Table.name] {
			return nil, fmt.Errorf("%w: table %q appears more than once", ErrInvalidField, tr.Name)
		}
		seenTables[spec.Table.name] = true
		plan.Tables = append(plan.Tables, *spec)
	}
	return plan, nil
}

func buildSchemaSpec(d *Domain, ns Identifier, tr TableRequest, policy StoragePolicy) (*SchemaSpec, error) {
	table, err := SanitizeTableName(tr.Name)
	if err != nil {
		return nil, err
	}

	spec := &SchemaSpec{Domain: d, Namespace: ns, Table: table}
	for _, f := range tr.Fields {
		col, err := SanitizeColumnName(f.Name)
		if err != nil {
			return nil, err
		}
		if d.IsBaseColumn(col.name) {
			return nil, fmt.Errorf("%w: column %q collides with a base column", ErrInvalidIdentifier, f.Name)
		}
		if spec.Column(col.name) != nil {
			return nil, fmt.Errorf("%w: column %q appears more than once in table %q", ErrInvalidField, f.Name, tr.Name)
		}

		def, err := normalizeField(col, f)
		if err != nil {
			return nil, err
		}
		spec.Columns = append(spec.Columns, ColumnSpec{
			Name:        col,
			Field:       def,
			StorageType: policy.ColumnType(def),
		})
	}
	return spec, nil
}

func normalizeField(col Identifier, f FieldDefinition) (FieldDefinition, error) {
	if !f.Type.Valid() {
		return FieldDefinition{}, fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidField, f.Name, f.Type)
	}

	def := FieldDefinition{
		Name:     col.name,
		Label:    strings.TrimSpace(f.Label),
		Type:     f.Type,
		Required: f.Required,
	}
	if def.Label == "" {
		def.Label = f.Name
	}

	if f.Type.HasOptions() {
		if len(f.Options) == 0 {
			return FieldDefinition{}, fmt.Errorf("%w: %s column %q needs at least one option", ErrInvalidField, f.Type, f.Name)
		}
		// options are registered exactly as given, so they must already be clean
		seen := make(map[string]bool, len(f.Options))
		for _, opt := range f.Options {
			if strings.TrimSpace(opt) == "" {
				return FieldDefinition{}, fmt.Errorf("%w: column %q has an empty option", ErrInvalidField, f.Name)
			}
			if strings.TrimSpace(opt) != opt {
				return FieldDefinition{}, fmt.Errorf("%w: option %q of column %q has surrounding spaces", ErrInvalidField, opt, f.Name)
			}
			// values match options case-insensitively
			key := strings.ToLower(opt)
			if seen[key] {
				return FieldDefinition{}, fmt.Errorf("%w: option %q of column %q appears more than once", ErrInvalidField, opt, f.Name)
			}
			seen[key] = true
			def.Options = append(def.Options, opt)
		}
	}
	return def, nil
}

// Column returns the spec of a custom column, or nil.
func (s *SchemaSpec) Column(name string) *ColumnSpec {
	for i := range s.Columns {
		if s.Columns[i].Name.name == name {
			return &s.Columns[i]
		}
	}
	return nil
}
