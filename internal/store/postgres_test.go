package store

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"roster-backend/internal/config"
)

func TestNormalizeValue(t *testing.T) {
	assert.Nil(t, normalizeValue(nil))
	assert.Equal(t, int64(7), normalizeValue(int32(7)))
	assert.Equal(t, int64(3), normalizeValue(int16(3)))
	assert.Equal(t, "Asha", normalizeValue("Asha"))

	uuid := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	assert.Equal(t, "12345678-9abc-def0-0123-456789abcdef", normalizeValue(uuid))

	num := pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}
	assert.Equal(t, 12.5, normalizeValue(num))
}

func TestConnString(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "roster", Password: "pw", Name: "school"}
	assert.Equal(t, "postgres://roster:pw@db:5432/school?sslmode=disable", cfg.ConnString())
	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://roster:pw@db:5432/school?sslmode=require", cfg.ConnString())
}
