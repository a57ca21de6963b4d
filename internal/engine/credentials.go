package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"roster-backend/internal/store"
)

const (
	passwordLength  = 10
	passwordSymbols = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxSlugLength   = 16
	guardianPrefix  = "p."
	usernameTries   = 8
)

var errUsernameExhausted = errors.New("could not find a free username")

// GeneratedCredential is a login created for a row. The plaintext password
// is returned to the caller once and never stored.
type GeneratedCredential struct {
	Kind     store.CredentialKind `json:"kind"`
	Username string               `json:"username"`
	Password string               `json:"password"`
}

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher func(password string) (string, error)

// CredentialIssuer generates usernames and passwords.
type CredentialIssuer struct {
	hash PasswordHasher
	rand io.Reader
}

func NewCredentialIssuer(hash PasswordHasher) *CredentialIssuer {
	return &CredentialIssuer{hash: hash, rand: rand.Reader}
}

// slugName keeps the lowercase letters and digits of a display name.
func slugName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == maxSlugLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func (i *CredentialIssuer) randomInt(n int64) (int64, error) {
	v, err := rand.Int(i.rand, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return v.Int64(), nil
}

// Username returns slug.NNNN, prefixed with "p." for guardian logins.
func (i *CredentialIssuer) Username(kind store.CredentialKind, name string) (string, error) {
	n, err := i.randomInt(10000)
	if err != nil {
		return "", err
	}
	prefix := ""
	if kind == store.CredentialGuardian {
		prefix = guardianPrefix
	}
	return fmt.Sprintf("%s%s.%04d", prefix, slugName(name), n), nil
}

// Password returns a random password from an alphabet without look-alike characters.
func (i *CredentialIssuer) Password() (string, error) {
	out := make([]byte, passwordLength)
	for j := range out {
		n, err := i.randomInt(int64(len(passwordSymbols)))
		if err != nil {
			return "", err
		}
		out[j] = passwordSymbols[n]
	}
	return string(out), nil
}

// pickUsername draws usernames until one is unused in q.
func (i *CredentialIssuer) pickUsername(ctx context.Context, q store.Querier, kind store.CredentialKind, name string, reserved map[string]bool) (string, error) {
	for range usernameTries {
		u, err := i.Username(kind, name)
		if err != nil {
			return "", err
		}
		if reserved[u] {
			continue
		}
		taken, err := store.UsernameTaken(ctx, q, u)
		if err != nil {
			return "", err
		}
		if !taken {
			return u, nil
		}
	}
	return "", errUsernameExhausted
}

// Issue creates a login with a fresh password for an already chosen username.
func (i *CredentialIssuer) Issue(kind store.CredentialKind, username string) (GeneratedCredential, error) {
	pw, err := i.Password()
	if err != nil {
		return GeneratedCredential{}, err
	}
	return GeneratedCredential{Kind: kind, Username: username, Password: pw}, nil
}

// Hash hashes the plaintext of a generated credential.
func (i *CredentialIssuer) Hash(c GeneratedCredential) (string, error) {
	return i.hash(c.Password)
}
