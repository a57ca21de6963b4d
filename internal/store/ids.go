package store

import (
	"context"
	"fmt"

	"roster-backend/internal/metadata"
)

// GlobalIDAllocator hands out ids from a named shared counter. The counter row
// is created on first use, so a missing row starts at zero.
type GlobalIDAllocator interface {
	NextGlobalID(ctx context.Context, q Querier, counter string) (int64, error)
}

// LocalIDAllocator hands out ids unique within a single table.
type LocalIDAllocator interface {
	NextLocalID(ctx context.Context, q Querier, ns, table, column metadata.Identifier) (int64, error)
}

// CounterAllocator increments a row of _id_counters with a single upsert
// returning the new value. Callers pass the transaction that inserts the row
// consuming the id, so a rolled back insert also rolls back the increment.
type CounterAllocator struct{}

func (CounterAllocator) NextGlobalID(ctx context.Context, q Querier, counter string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO _id_counters (name, value) VALUES ($1, 1)
		 ON CONFLICT (name) DO UPDATE SET value = _id_counters.value + 1, updated_at = NOW()
		 RETURNING value`,
		counter,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next global id (%s): %w", counter, MapError(err))
	}
	return id, nil
}

// MaxPlusOneAllocator computes max(column)+1. It holds no state of its own,
// so two transactions inserting into the same table concurrently can read
// the same max; the column's UNIQUE constraint turns that race into an error.
type MaxPlusOneAllocator struct{}

func (MaxPlusOneAllocator) NextLocalID(ctx context.Context, q Querier, ns, table, column metadata.Identifier) (int64, error) {
	var id int64
	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", column.Quoted(), metadata.Qualified(ns, table))
	if err := q.QueryRow(ctx, sql).Scan(&id); err != nil {
		return 0, fmt.Errorf("next local id (%s.%s): %w", ns, table, MapError(err))
	}
	return id, nil
}
