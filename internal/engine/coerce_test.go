package engine

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster-backend/internal/metadata"
)

func TestCoerceValue_Number(t *testing.T) {
	col := Column{Type: metadata.TypeNumber}
	for _, raw := range []any{float64(42), "42", " 42 ", json.Number("42"), 42} {
		v, err := coerceValue(col, raw)
		require.NoError(t, err)
		assert.Equal(t, int64(42), v)
	}
	for _, raw := range []any{4.5, "forty", true} {
		_, err := coerceValue(col, raw)
		assert.Error(t, err, "%v", raw)
	}
}

func TestCoerceNumber_Range(t *testing.T) {
	for _, raw := range []any{float64(math.MaxInt64), float64(1 << 63), -1e19, json.Number("9223372036854775808")} {
		_, err := coerceNumber(raw)
		assert.Error(t, err, "%v", raw)
	}

	n, err := coerceNumber(float64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), n)

	n, err = coerceNumber(json.Number("12.0"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestDecodeJSON_KeepsLargeIntegers(t *testing.T) {
	var values map[string]any
	require.NoError(t, decodeJSON([]byte(`{"phone": 9007199254740993, "bus": 1}`), &values))

	n, err := coerceValue(Column{Type: metadata.TypeNumber}, values["phone"])
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), n)

	b, err := coerceValue(Column{Type: metadata.TypeCheckbox}, values["bus"])
	require.NoError(t, err)
	assert.Equal(t, true, b)
}

func TestCoerceValue_Empty(t *testing.T) {
	for _, typ := range []metadata.LogicalType{metadata.TypeText, metadata.TypeNumber, metadata.TypeDate, metadata.TypeSelect} {
		_, err := coerceValue(Column{Type: typ}, "  ")
		assert.ErrorIs(t, err, errEmpty, string(typ))
		_, err = coerceValue(Column{Type: typ}, nil)
		assert.ErrorIs(t, err, errEmpty, string(typ))
	}
}

func TestCoerceValue_Checkbox(t *testing.T) {
	col := Column{Type: metadata.TypeCheckbox}
	for raw, want := range map[any]bool{"on": true, "YES": true, "1": true, true: true, "off": false, "": false, float64(0): false} {
		v, err := coerceValue(col, raw)
		require.NoError(t, err, "%v", raw)
		assert.Equal(t, want, v, "%v", raw)
	}
	_, err := coerceValue(col, "maybe")
	assert.Error(t, err)
}

func TestCoerceValue_Date(t *testing.T) {
	col := Column{Type: metadata.TypeDate}
	want := time.Date(2014, time.March, 9, 0, 0, 0, 0, time.UTC)
	for _, raw := range []any{"2014-03-09", "2014-03-09T15:04:05Z", "09/03/2014"} {
		v, err := coerceValue(col, raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v)
	}
	_, err := coerceValue(col, "March 9th")
	assert.Error(t, err)
}

func TestCoerceValue_Select(t *testing.T) {
	col := Column{Type: metadata.TypeSelect, Options: []string{"Chess", "Drama"}}
	v, err := coerceValue(col, "chess")
	require.NoError(t, err)
	assert.Equal(t, "Chess", v)

	_, err = coerceValue(col, "Football")
	assert.Error(t, err)

	free := Column{Type: metadata.TypeSelect}
	v, err = coerceValue(free, "anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", v)
}

func TestCoerceValue_MultiSelect(t *testing.T) {
	col := Column{Type: metadata.TypeMultiSelect, Options: []string{"Football", "Cricket"}}
	inputs := []any{
		[]any{"football", "Cricket"},
		[]string{"Football", "cricket", "football"},
		`["Football","Cricket"]`,
		"football, cricket",
	}
	for _, raw := range inputs {
		v, err := coerceValue(col, raw)
		require.NoError(t, err, "%v", raw)
		assert.Equal(t, `["Football","Cricket"]`, v, "%v", raw)
	}

	_, err := coerceValue(col, "football, tennis")
	assert.Error(t, err)
	_, err = coerceValue(col, []any{})
	assert.ErrorIs(t, err, errEmpty)
	_, err = coerceValue(col, 12.0)
	assert.Error(t, err)
}

func TestCoerceValue_TextInIntegerColumn(t *testing.T) {
	phone := Column{Type: metadata.TypeText, StorageType: "bigint"}
	v, err := coerceValue(phone, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, int64(9876543210), v)

	_, err = coerceValue(phone, "+91 98765")
	assert.Error(t, err)

	text := Column{Type: metadata.TypeText, StorageType: "character varying"}
	v, err = coerceValue(text, float64(12))
	require.NoError(t, err)
	assert.Equal(t, "12", v)
}

func TestDecodeRow(t *testing.T) {
	cols := []Column{
		{Name: "sports", Type: metadata.TypeMultiSelect},
		{Name: "hobbies", Type: metadata.TypeMultiSelect},
		{Name: "date_of_birth", Type: metadata.TypeDate},
		{Name: "name", Type: metadata.TypeText},
	}
	row := map[string]any{
		"sports":        `["Football","Cricket"]`,
		"hobbies":       "chess, drawing",
		"date_of_birth": time.Date(2014, time.March, 9, 0, 0, 0, 0, time.UTC),
		"name":          "Asha",
		"extra":         1,
	}

	out := decodeRow(cols, row)
	assert.Equal(t, []string{"Football", "Cricket"}, out["sports"])
	assert.Equal(t, []string{"chess", "drawing"}, out["hobbies"])
	assert.Equal(t, "2014-03-09", out["date_of_birth"])
	assert.Equal(t, "Asha", out["name"])
	assert.Equal(t, 1, out["extra"])
	assert.Nil(t, decodeValue(cols[0], nil))
}
