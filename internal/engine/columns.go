package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"roster-backend/internal/metadata"
	"roster-backend/internal/store"
)

// Column is a field descriptor as served by the columns endpoint and used
// by the row engine to coerce values.
type Column struct {
	Name        string               `json:"name"`
	Label       string               `json:"label"`
	Type        metadata.LogicalType `json:"type"`
	Required    bool                 `json:"required"`
	Options     []string             `json:"options,omitempty"`
	System      bool                 `json:"system,omitempty"`
	Custom      bool                 `json:"custom"`
	StorageType string               `json:"-"`

	ident metadata.Identifier
}

// TableRef addresses an entity table after its names passed sanitization.
type TableRef struct {
	Domain    *metadata.Domain
	Namespace metadata.Identifier
	Table     metadata.Identifier
}

// ResolveTable sanitizes a category and table name for a domain.
func ResolveTable(d *metadata.Domain, category, table string) (TableRef, error) {
	ns, err := d.ResolveNamespace(category)
	if err != nil {
		return TableRef{}, err
	}
	t, err := metadata.SanitizeTableName(table)
	if err != nil {
		return TableRef{}, err
	}
	return TableRef{Domain: d, Namespace: ns, Table: t}, nil
}

func (r TableRef) qualified() string {
	return metadata.Qualified(r.Namespace, r.Table)
}

// mergeColumns builds the ordered descriptor list of a table. Introspected
// columns give order and presence; a registry entry always wins over base
// definitions and type inference. Well-known base columns get their fixed
// option lists whatever the registry says.
func mergeColumns(d *metadata.Domain, introspected []store.ColumnInfo, registry map[string]metadata.FieldDefinition) []Column {
	cols := make([]Column, 0, len(introspected))
	for _, info := range introspected {
		ident, err := metadata.SanitizeColumnName(info.Name)
		if err != nil || ident.String() != info.Name {
			log.Warn().Str("column", info.Name).Msg("skipping column with an unusable name")
			continue
		}

		col := Column{
			Name:        info.Name,
			Label:       info.Name,
			StorageType: strings.ToLower(info.DataType),
			ident:       ident,
		}

		base := d.BaseColumn(info.Name)
		if def, ok := registry[info.Name]; ok {
			col.Label = def.Label
			col.Type = def.Type
			col.Required = def.Required
			col.Options = def.Options
			col.Custom = base == nil
		} else if base != nil {
			col.Label = base.Field.Label
			col.Type = base.Field.Type
			col.Required = base.Field.Required
			col.Options = base.Field.Options
		} else {
			col.Type = metadata.InferLogicalType(info.Name, info.DataType)
			col.Required = !info.Nullable && !info.HasDefault
			col.Custom = true
		}
		if base != nil {
			col.System = base.System
		}

		if opts := d.KnownOptions(info.Name); opts != nil {
			col.Type = metadata.TypeSelect
			col.Options = opts
		}
		if col.Label == "" {
			col.Label = col.Name
		}
		cols = append(cols, col)
	}
	return cols
}

func findColumn(cols []Column, name string) *Column {
	for i := range cols {
		if strings.EqualFold(cols[i].Name, name) {
			return &cols[i]
		}
	}
	return nil
}

// loadColumns introspects a table and merges its registry entries.
func (e *RowEngine) loadColumns(ctx context.Context, q store.Querier, ref TableRef) ([]Column, error) {
	info, err := store.TableColumns(ctx, q, ref.Namespace, ref.Table)
	if err != nil {
		return nil, err
	}
	defs, err := e.registry.Lookup(ctx, q, ref.Namespace, ref.Table)
	if err != nil {
		return nil, err
	}
	return mergeColumns(ref.Domain, info, defs), nil
}

// ListColumns returns the ordered field descriptors of a table.
func (e *RowEngine) ListColumns(ctx context.Context, ref TableRef) ([]Column, error) {
	return e.loadColumns(ctx, e.store.Pool, ref)
}

// ListTables returns the entity tables stored for a category.
func (e *RowEngine) ListTables(ctx context.Context, d *metadata.Domain, category string) ([]string, error) {
	ns, err := d.ResolveNamespace(category)
	if err != nil {
		return nil, err
	}
	return store.ListTables(ctx, e.store.Pool, ns)
}
