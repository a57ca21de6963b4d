package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"roster-backend/internal/metadata"
)

const dateLayout = "2006-01-02"

var errEmpty = errors.New("empty value")

var dateLayouts = []string{dateLayout, time.RFC3339, "2006-01-02T15:04:05", "02/01/2006"}

// coerceValue converts a client-supplied value into the Go value stored in
// the column. Empty strings and nil yield errEmpty so callers can apply
// required checks uniformly.
func coerceValue(col Column, raw any) (any, error) {
	if raw == nil {
		return nil, errEmpty
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" && col.Type != metadata.TypeCheckbox {
		return nil, errEmpty
	}

	switch col.Type {
	case metadata.TypeNumber:
		return coerceNumber(raw)
	case metadata.TypeCheckbox:
		return coerceCheckbox(raw)
	case metadata.TypeDate:
		return coerceDate(raw)
	case metadata.TypeSelect:
		s, err := coerceString(raw)
		if err != nil {
			return nil, err
		}
		return matchOption(col.Options, s)
	case metadata.TypeMultiSelect:
		return coerceMultiSelect(col.Options, raw)
	default:
		// text fields kept in integer columns, e.g. legacy phone numbers
		if isIntegerStorage(col.StorageType) {
			return coerceNumber(raw)
		}
		return coerceString(raw)
	}
}

func isIntegerStorage(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "bigint", "integer", "smallint":
		return true
	}
	return false
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int64, int32, json.Number:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("expected a string, got %T", raw)
}

func coerceNumber(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v >= 1<<63 || v < math.MinInt64 {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		// 12.0 or 1e3
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a whole number", v)
		}
		return coerceNumber(f)
	case string:
		s := strings.TrimSpace(v)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a whole number", s)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}

func coerceCheckbox(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return false, fmt.Errorf("%s is not a checkbox value", v)
		}
		return f != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no", "":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a checkbox value", v)
	}
	return false, fmt.Errorf("expected a boolean, got %T", raw)
}

func coerceDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return truncateDate(v), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDate(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date (expected YYYY-MM-DD)", s)
	}
	return time.Time{}, fmt.Errorf("expected a date string, got %T", raw)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// matchOption returns the canonical spelling of s from options. Matching is
// case-insensitive. A column without options accepts any value.
func matchOption(options []string, s string) (string, error) {
	if len(options) == 0 {
		return s, nil
	}
	for _, opt := range options {
		if strings.EqualFold(opt, s) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %s", s, strings.Join(options, ", "))
}

// coerceMultiSelect accepts a JSON array, a JSON array encoded as a string,
// or a comma separated string, and returns the JSON array text stored in the column.
func coerceMultiSelect(options []string, raw any) (string, error) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		for _, item := range v {
			s, err := coerceString(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return "", fmt.Errorf("invalid JSON array: %w", err)
			}
		} else {
			items = strings.Split(s, ",")
		}
	default:
		return "", fmt.Errorf("expected a list, got %T", raw)
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		opt, err := matchOption(options, item)
		if err != nil {
			return "", err
		}
		if seen[opt] {
			continue
		}
		seen[opt] = true
		out = append(out, opt)
	}
	if len(out) == 0 {
		return "", errEmpty
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeValue reconstructs the logical value of a stored column for output.
func decodeValue(col Column, v any) any {
	if v == nil {
		return nil
	}
	switch col.Type {
	case metadata.TypeMultiSelect:
		s, ok := v.(string)
		if !ok {
			return v
		}
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return items
		}
		// rows written before values were stored as JSON
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return parts
	case metadata.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(dateLayout)
		}
	}
	return v
}

// decodeRow applies decodeValue to every known column of a row in place.
func decodeRow(cols []Column, row map[string]any) map[string]any {
	for _, col := range cols {
		if v, ok := row[col.Name]; ok {
			row[col.Name] = decodeValue(col, v)
		}
	}
	return row
}
