package engine

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"roster-backend/internal/metadata"
	"roster-backend/internal/store"
)

// gradeFiveColumns is the merged column list of a students table with a few
// custom fields, as loadColumns would return it.
func gradeFiveColumns() []Column {
	info := []store.ColumnInfo{
		{Name: "student_id", DataType: "bigint"},
		{Name: "roll_number", DataType: "bigint"},
		{Name: "name", DataType: "character varying"},
		{Name: "gender", DataType: "character varying", Nullable: true},
		{Name: "role", DataType: "character varying", HasDefault: true},
		{Name: "date_of_birth", DataType: "date", Nullable: true},
		{Name: "email", DataType: "character varying", Nullable: true},
		{Name: "photo", DataType: "character varying", Nullable: true},
		{Name: "guardian_name", DataType: "character varying", Nullable: true},
		{Name: "username", DataType: "character varying", Nullable: true},
		{Name: "guardian_username", DataType: "character varying", Nullable: true},
		{Name: "created_at", DataType: "timestamp with time zone", HasDefault: true},
		{Name: "updated_at", DataType: "timestamp with time zone", HasDefault: true},
		{Name: "club", DataType: "character varying"},
		{Name: "sports", DataType: "text", Nullable: true},
		{Name: "phone", DataType: "bigint", Nullable: true},
		{Name: "bus", DataType: "boolean", Nullable: true},
		{Name: "report_card", DataType: "character varying", Nullable: true},
	}
	registry := map[string]metadata.FieldDefinition{
		"club":        {Name: "club", Label: "Club", Type: metadata.TypeSelect, Required: true, Options: []string{"Chess", "Drama"}},
		"sports":      {Name: "sports", Label: "Sports", Type: metadata.TypeMultiSelect, Options: []string{"Football", "Cricket"}},
		"phone":       {Name: "phone", Label: "Phone", Type: metadata.TypeText},
		"bus":         {Name: "bus", Label: "Uses Bus", Type: metadata.TypeCheckbox},
		"report_card": {Name: "report_card", Label: "Report Card", Type: metadata.TypeUpload},
	}
	return mergeColumns(metadata.Students, info, registry)
}

func gradeFiveRef(t *testing.T) TableRef {
	t.Helper()
	ref, err := ResolveTable(metadata.Students, "", "Grade 5")
	require.NoError(t, err)
	return ref
}

func ident(t *testing.T, name string) metadata.Identifier {
	t.Helper()
	id, err := metadata.SanitizeColumnName(name)
	require.NoError(t, err)
	return id
}

func mustColumn(t *testing.T, cols []Column, name string) Column {
	t.Helper()
	c := findColumn(cols, name)
	require.NotNil(t, c, "column %s", name)
	return *c
}

func assignmentMap(values []assignment) map[string]any {
	out := make(map[string]any, len(values))
	for _, a := range values {
		out[a.column.String()] = a.value
	}
	return out
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	return c.Status(500).JSON(ErrorResponse{Error: &AppError{Code: "INTERNAL_ERROR", Message: err.Error()}})
}
