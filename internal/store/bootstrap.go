package store

import (
	"context"
	"fmt"
)

const systemTablesSQL = `
CREATE TABLE IF NOT EXISTS _field_types (
    namespace   TEXT NOT NULL,
    table_name  TEXT NOT NULL,
    column_name TEXT NOT NULL,
    field_type  TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    required    BOOLEAN NOT NULL DEFAULT false,
    options     JSONB NOT NULL DEFAULT '[]',
    position    INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (namespace, table_name, column_name)
);

CREATE TABLE IF NOT EXISTS _id_counters (
    name       TEXT PRIMARY KEY,
    value      BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _credentials (
    username      TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    domain        TEXT NOT NULL,
    namespace     TEXT NOT NULL,
    table_name    TEXT NOT NULL,
    global_id     BIGINT NOT NULL,
    kind          TEXT NOT NULL DEFAULT 'primary',
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (domain, global_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_credentials_owner ON _credentials(domain, namespace, table_name);

CREATE TABLE IF NOT EXISTS _roster_events (
    id          BIGSERIAL PRIMARY KEY,
    request_id  TEXT,
    action      TEXT NOT NULL,
    domain      TEXT NOT NULL,
    namespace   TEXT,
    table_name  TEXT,
    record_id   TEXT,
    user_id     TEXT,
    status      TEXT NOT NULL DEFAULT 'ok',
    metadata    JSONB,
    created_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_roster_events_created ON _roster_events(created_at);
`

// Bootstrap creates the system tables shared by every namespace.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, systemTablesSQL); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}
