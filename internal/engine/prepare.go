package engine

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"roster-backend/internal/metadata"
)

// FilePart is an uploaded file bound to an upload column.
type FilePart struct {
	Filename string
	Content  io.Reader
}

type writeMode int

const (
	modeInsert writeMode = iota
	modeUpdate
	modeBulk
)

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// prepareValues checks client values against the table's columns and
// coerces them. Unknown keys are dropped, except in bulk mode where they are
// reported. System columns are never written from client input. Upload
// columns take their value from files; in update mode an empty value clears them.
func prepareValues(cols []Column, values map[string]any, files map[string]FilePart, mode writeMode) ([]assignment, []ErrorDetail) {
	vals := lowerKeys(values)
	parts := lowerKeys(files)

	var details []ErrorDetail
	if mode == modeBulk {
		unknown := make([]string, 0)
		for key := range vals {
			if findColumn(cols, key) == nil {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			details = append(details, ErrorDetail{Field: key, Rule: "unknown", Message: fmt.Sprintf("unknown column %q", key)})
		}
	}

	var out []assignment
	for _, col := range cols {
		if col.System {
			continue
		}
		raw, present := vals[col.Name]

		if col.Type == metadata.TypeUpload {
			if _, ok := parts[col.Name]; ok {
				continue
			}
			if mode == modeUpdate && present && isEmptyValue(raw) {
				if col.Required {
					details = append(details, requiredDetail(col))
					continue
				}
				out = append(out, assignment{column: col.ident, value: nil, upload: true})
				continue
			}
			if mode != modeUpdate && col.Required {
				details = append(details, requiredDetail(col))
			}
			continue
		}

		if !present {
			if mode != modeUpdate && col.Required {
				details = append(details, requiredDetail(col))
			}
			continue
		}

		v, err := coerceValue(col, raw)
		switch {
		case errors.Is(err, errEmpty):
			if col.Required {
				details = append(details, requiredDetail(col))
			} else if mode == modeUpdate {
				out = append(out, assignment{column: col.ident, value: nil})
			}
		case err != nil:
			details = append(details, ErrorDetail{Field: col.Name, Rule: "type", Message: err.Error()})
		default:
			out = append(out, assignment{column: col.ident, value: v})
		}
	}
	return out, details
}

func requiredDetail(col Column) ErrorDetail {
	return ErrorDetail{Field: col.Name, Rule: "required", Message: fmt.Sprintf("%s is required", col.Label)}
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// validateBatch prepares every row of a bulk upload. Any detail means the
// whole batch is rejected before anything is written.
func validateBatch(cols []Column, rows []map[string]any) ([][]assignment, []ErrorDetail) {
	prepared := make([][]assignment, len(rows))
	var details []ErrorDetail
	for i, row := range rows {
		values, rowDetails := prepareValues(cols, row, nil, modeBulk)
		for _, d := range rowDetails {
			idx := i
			d.Row = &idx
			details = append(details, d)
		}
		prepared[i] = values
	}
	return prepared, details
}

func assignedString(values []assignment, column string) string {
	for _, a := range values {
		if a.column.String() == column {
			s, _ := a.value.(string)
			return s
		}
	}
	return ""
}
