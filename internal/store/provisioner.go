package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"roster-backend/internal/metadata"
)

// ColumnInfo is a column as reported by information_schema.
type ColumnInfo struct {
	Name       string
	DataType   string
	Nullable   bool
	HasDefault bool
}

// Provisioner creates and drops namespaces and entity tables. Every call runs
// in a single transaction: PostgreSQL DDL is transactional, so a failure on
// the last table leaves the namespace exactly as it was before the call.
type Provisioner struct {
	store    *Store
	registry *FieldTypeRegistry
}

func NewProvisioner(s *Store, reg *FieldTypeRegistry) *Provisioner {
	return &Provisioner{store: s, registry: reg}
}

// Provision applies a validated plan. Existing tables are dropped and
// recreated; a table that still holds rows is only replaced when replace is
// set, otherwise ErrAlreadyExists is returned and nothing changes.
func (p *Provisioner) Provision(ctx context.Context, plan *metadata.ProvisionPlan, replace bool) error {
	return p.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := Exec(ctx, tx, createSchemaSQL(plan.Namespace)); err != nil {
			return fmt.Errorf("create namespace %s: %w", plan.Namespace, err)
		}

		for i := range plan.Tables {
			spec := &plan.Tables[i]
			if err := p.replaceTable(ctx, tx, spec, replace); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Provisioner) replaceTable(ctx context.Context, tx pgx.Tx, spec *metadata.SchemaSpec, replace bool) error {
	exists, err := TableExists(ctx, tx, spec.Namespace, spec.Table)
	if err != nil {
		return fmt.Errorf("check table %s.%s: %w", spec.Namespace, spec.Table, err)
	}
	if exists {
		if !replace {
			hasRows, err := tableHasRows(ctx, tx, spec.Namespace, spec.Table)
			if err != nil {
				return err
			}
			if hasRows {
				return fmt.Errorf("%w: table %s.%s holds rows; drop it first or resubmit with replace", ErrAlreadyExists, spec.Namespace, spec.Table)
			}
		}
		if _, err := Exec(ctx, tx, dropTableSQL(spec.Namespace, spec.Table)); err != nil {
			return fmt.Errorf("drop table %s.%s: %w", spec.Namespace, spec.Table, err)
		}
		if err := deleteTableCredentials(ctx, tx, spec.Namespace, spec.Table); err != nil {
			return err
		}
	}
	if err := p.registry.Delete(ctx, tx, spec.Namespace, spec.Table); err != nil {
		return err
	}

	if _, err := Exec(ctx, tx, createTableSQL(spec)); err != nil {
		return fmt.Errorf("create table %s.%s: %w", spec.Namespace, spec.Table, err)
	}

	for i, c := range spec.Columns {
		if err := p.registry.Record(ctx, tx, spec.Namespace, spec.Table, i, c.Field); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops one entity table and its registry entries.
func (p *Provisioner) DropTable(ctx context.Context, ns, table metadata.Identifier) error {
	return p.store.WithTx(ctx, func(tx pgx.Tx) error {
		exists, err := TableExists(ctx, tx, ns, table)
		if err != nil {
			return fmt.Errorf("check table %s.%s: %w", ns, table, err)
		}
		if !exists {
			return fmt.Errorf("%w: table %s.%s", ErrNotFound, ns, table)
		}
		if _, err := Exec(ctx, tx, dropTableSQL(ns, table)); err != nil {
			return fmt.Errorf("drop table %s.%s: %w", ns, table, err)
		}
		if err := p.registry.Delete(ctx, tx, ns, table); err != nil {
			return err
		}
		return deleteTableCredentials(ctx, tx, ns, table)
	})
}

// DropNamespace drops a namespace with all its tables and registry entries.
func (p *Provisioner) DropNamespace(ctx context.Context, ns metadata.Identifier) error {
	return p.store.WithTx(ctx, func(tx pgx.Tx) error {
		exists, err := NamespaceExists(ctx, tx, ns)
		if err != nil {
			return fmt.Errorf("check namespace %s: %w", ns, err)
		}
		if !exists {
			return fmt.Errorf("%w: namespace %s", ErrNotFound, ns)
		}
		if _, err := Exec(ctx, tx, dropSchemaSQL(ns)); err != nil {
			return fmt.Errorf("drop namespace %s: %w", ns, err)
		}
		if err := p.registry.DeleteNamespace(ctx, tx, ns); err != nil {
			return err
		}
		if _, err := Exec(ctx, tx, "DELETE FROM _credentials WHERE namespace = $1", ns.String()); err != nil {
			return fmt.Errorf("delete credentials for %s: %w", ns, err)
		}
		return nil
	})
}

// ListTables returns the entity tables of a namespace, sorted by name.
func ListTables(ctx context.Context, q Querier, ns metadata.Identifier) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`,
		ns.String())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", MapError(err))
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableColumns returns the columns of a table in ordinal order.
func TableColumns(ctx context.Context, q Querier, ns, table metadata.Identifier) ([]ColumnInfo, error) {
	rows, err := q.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES', column_default IS NOT NULL
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`,
		ns.String(), table.String())
	if err != nil {
		return nil, fmt.Errorf("table columns: %w", MapError(err))
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.HasDefault); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %s.%s", ErrNotFound, ns, table)
	}
	return cols, nil
}

func TableExists(ctx context.Context, q Querier, ns, table metadata.Identifier) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		ns.String(), table.String(),
	).Scan(&exists)
	return exists, MapError(err)
}

func NamespaceExists(ctx context.Context, q Querier, ns metadata.Identifier) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		ns.String(),
	).Scan(&exists)
	return exists, MapError(err)
}

func tableHasRows(ctx context.Context, q Querier, ns, table metadata.Identifier) (bool, error) {
	var has bool
	sql := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s)", metadata.Qualified(ns, table))
	if err := q.QueryRow(ctx, sql).Scan(&has); err != nil {
		return false, fmt.Errorf("count rows in %s.%s: %w", ns, table, MapError(err))
	}
	return has, nil
}

func deleteTableCredentials(ctx context.Context, q Querier, ns, table metadata.Identifier) error {
	if _, err := Exec(ctx, q,
		"DELETE FROM _credentials WHERE namespace = $1 AND table_name = $2", ns.String(), table.String()); err != nil {
		return fmt.Errorf("delete credentials for %s.%s: %w", ns, table, err)
	}
	return nil
}
