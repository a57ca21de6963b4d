package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/metadata"
)

// RowKey addresses one row by its (global id, local id) pair.
type RowKey struct {
	GlobalID int64 `json:"globalId" validate:"required,gt=0"`
	LocalID  int64 `json:"localId" validate:"required,gt=0"`
}

func (k RowKey) String() string {
	return fmt.Sprintf("%d/%d", k.GlobalID, k.LocalID)
}

type QueryResult struct {
	SQL    string
	Params []any
}

// assignment is a coerced value bound to a sanitized column.
type assignment struct {
	column metadata.Identifier
	value  any
	upload bool
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func keyWhere(ref TableRef, key RowKey, pb *paramBuilder) string {
	global, local := ref.Domain.IDColumns()
	return fmt.Sprintf("%s = %s AND %s = %s",
		global.Quoted(), pb.Add(key.GlobalID), local.Quoted(), pb.Add(key.LocalID))
}

func quotedList(cols []metadata.Identifier) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Quoted()
	}
	return strings.Join(parts, ", ")
}

// BuildInsertSQL builds a parameterized INSERT from assignments.
func BuildInsertSQL(ref TableRef, values []assignment) QueryResult {
	pb := &paramBuilder{}
	cols := make([]string, len(values))
	placeholders := make([]string, len(values))
	for i, a := range values {
		cols[i] = a.column.Quoted()
		placeholders[i] = pb.Add(a.value)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ref.qualified(), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildUpdateSQL builds a partial UPDATE of one row that returns the row.
func BuildUpdateSQL(ref TableRef, key RowKey, values []assignment) QueryResult {
	pb := &paramBuilder{}
	sets := make([]string, 0, len(values)+1)
	for _, a := range values {
		sets = append(sets, fmt.Sprintf("%s = %s", a.column.Quoted(), pb.Add(a.value)))
	}
	if ref.Domain.IsBaseColumn("updated_at") {
		sets = append(sets, `"updated_at" = NOW()`)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		ref.qualified(), strings.Join(sets, ", "), keyWhere(ref, key, pb))
	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildDeleteSQL deletes one row and returns the given columns of it.
func BuildDeleteSQL(ref TableRef, key RowKey, returning []metadata.Identifier) QueryResult {
	pb := &paramBuilder{}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", ref.qualified(), keyWhere(ref, key, pb))
	if len(returning) > 0 {
		sql += " RETURNING " + quotedList(returning)
	} else {
		sql += " RETURNING 1"
	}
	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildSelectOneSQL selects one row by key. forUpdate locks it for the
// rest of the transaction.
func BuildSelectOneSQL(ref TableRef, key RowKey, forUpdate bool) QueryResult {
	pb := &paramBuilder{}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s", ref.qualified(), keyWhere(ref, key, pb))
	if forUpdate {
		sql += " FOR UPDATE"
	}
	return QueryResult{SQL: sql, Params: pb.params}
}

// Page is a 1-based page request.
type Page struct {
	Page    int
	PerPage int
}

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// ParsePage reads page and per_page query parameters.
func ParsePage(c *fiber.Ctx) Page {
	p := Page{Page: 1, PerPage: defaultPerPage}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("per_page")); err == nil && v > 0 {
		p.PerPage = v
		if p.PerPage > maxPerPage {
			p.PerPage = maxPerPage
		}
	}
	return p
}

// BuildSelectSQL selects a page of rows ordered by local id.
func BuildSelectSQL(ref TableRef, page Page) QueryResult {
	pb := &paramBuilder{}
	_, local := ref.Domain.IDColumns()
	limit := pb.Add(page.PerPage)
	offset := pb.Add((page.Page - 1) * page.PerPage)
	sql := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %s OFFSET %s",
		ref.qualified(), local.Quoted(), limit, offset)
	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildCountSQL counts the rows of a table.
func BuildCountSQL(ref TableRef) QueryResult {
	return QueryResult{SQL: fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", ref.qualified())}
}
