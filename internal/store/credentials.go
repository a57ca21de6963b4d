package store

import (
	"context"
	"fmt"

	"roster-backend/internal/metadata"
)

// CredentialKind distinguishes the logins attached to one row.
type CredentialKind string

const (
	CredentialPrimary  CredentialKind = "primary"
	CredentialGuardian CredentialKind = "guardian"
)

// Credential is a stored login. PasswordHash is always a bcrypt hash.
type Credential struct {
	Username     string
	PasswordHash string
	Domain       string
	Namespace    metadata.Identifier
	Table        metadata.Identifier
	GlobalID     int64
	Kind         CredentialKind
}

// SaveCredential inserts a login, replacing any login of the same kind for
// the same row. The username primary key rejects collisions with other rows.
func SaveCredential(ctx context.Context, q Querier, c Credential) error {
	_, err := Exec(ctx, q,
		`INSERT INTO _credentials (username, password_hash, domain, namespace, table_name, global_id, kind)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (domain, global_id, kind) DO UPDATE
		 SET username = EXCLUDED.username, password_hash = EXCLUDED.password_hash,
		     namespace = EXCLUDED.namespace, table_name = EXCLUDED.table_name, updated_at = NOW()`,
		c.Username, c.PasswordHash, c.Domain, c.Namespace.String(), c.Table.String(), c.GlobalID, string(c.Kind))
	if err != nil {
		return fmt.Errorf("save credential %s: %w", c.Username, err)
	}
	return nil
}

// DeleteCredentials removes every login attached to a row.
func DeleteCredentials(ctx context.Context, q Querier, domain string, globalID int64) error {
	if _, err := Exec(ctx, q,
		"DELETE FROM _credentials WHERE domain = $1 AND global_id = $2", domain, globalID); err != nil {
		return fmt.Errorf("delete credentials for %s/%d: %w", domain, globalID, err)
	}
	return nil
}

// UsernameTaken reports whether a username is already stored.
func UsernameTaken(ctx context.Context, q Querier, username string) (bool, error) {
	var taken bool
	err := q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM _credentials WHERE username = $1)", username).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", MapError(err))
	}
	return taken, nil
}
