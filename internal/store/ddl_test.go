package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster-backend/internal/metadata"
)

func staffPlan(t *testing.T, fields ...metadata.FieldDefinition) *metadata.ProvisionPlan {
	t.Helper()
	plan, err := metadata.BuildProvisionPlan(metadata.Staff, "Teaching Staff",
		[]metadata.TableRequest{{Name: "Grade 5", Fields: fields}}, metadata.StoragePolicy{})
	require.NoError(t, err)
	return plan
}

func TestCreateTableSQL_BaseColumnsThenCustom(t *testing.T) {
	plan := staffPlan(t,
		metadata.FieldDefinition{Name: "blood_group", Type: metadata.TypeSelect, Options: []string{"A", "B"}},
		metadata.FieldDefinition{Name: "bio", Type: metadata.TypeTextarea, Required: true},
	)

	sql := createTableSQL(&plan.Tables[0])

	assert.True(t, strings.HasPrefix(sql, `CREATE TABLE "teaching_staff"."grade_5" (`), sql)
	assert.Contains(t, sql, `"staff_id" BIGINT PRIMARY KEY`)
	assert.Contains(t, sql, `"employee_number" BIGINT NOT NULL UNIQUE`)
	assert.Contains(t, sql, `"blood_group" VARCHAR(255)`)
	assert.Contains(t, sql, `"bio" TEXT NOT NULL`)

	base := strings.Index(sql, `"updated_at"`)
	custom := strings.Index(sql, `"blood_group"`)
	assert.Less(t, base, custom, "custom columns follow base columns")
	assert.Less(t, custom, strings.Index(sql, `"bio"`), "custom columns keep submission order")
}

func TestCreateTableSQL_PhoneColumn(t *testing.T) {
	phone := metadata.FieldDefinition{Name: "phone", Type: metadata.TypeText}

	plan := staffPlan(t, phone)
	assert.Contains(t, createTableSQL(&plan.Tables[0]), `"phone" BIGINT`)

	textPlan, err := metadata.BuildProvisionPlan(metadata.Staff, "Teaching Staff",
		[]metadata.TableRequest{{Name: "Grade 5", Fields: []metadata.FieldDefinition{phone}}},
		metadata.StoragePolicy{PhoneAsText: true})
	require.NoError(t, err)
	assert.Contains(t, createTableSQL(&textPlan.Tables[0]), `"phone" VARCHAR(32)`)
}

func TestSchemaStatements(t *testing.T) {
	plan := staffPlan(t)
	ns, table := plan.Namespace, plan.Tables[0].Table

	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "teaching_staff"`, createSchemaSQL(ns))
	assert.Equal(t, `DROP SCHEMA IF EXISTS "teaching_staff" CASCADE`, dropSchemaSQL(ns))
	assert.Equal(t, `DROP TABLE IF EXISTS "teaching_staff"."grade_5"`, dropTableSQL(ns, table))
}
