package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"roster-backend/internal/store"
)

// EventHandler exposes the audit trail to administrators.
type EventHandler struct {
	pool *pgxpool.Pool
}

func NewEventHandler(pool *pgxpool.Pool) *EventHandler {
	return &EventHandler{pool: pool}
}

var timeLayouts = []string{time.RFC3339, "2006-01-02"}

func parseTime(key, v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date, got %q", key, v)
}

// eventConditions turns the query filters into WHERE conditions with
// positional args.
func eventConditions(query func(string) string) ([]string, []any, error) {
	var conditions []string
	var args []any
	for _, f := range eventFilters {
		if v := query(f); v != "" {
			args = append(args, v)
			conditions = append(conditions, fmt.Sprintf("%s = $%d", f, len(args)))
		}
	}
	for _, bound := range []struct{ key, op string }{{"from", ">="}, {"to", "<="}} {
		v := query(bound.key)
		if v == "" {
			continue
		}
		t, err := parseTime(bound.key, v)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, t)
		conditions = append(conditions, fmt.Sprintf("created_at %s $%d", bound.op, len(args)))
	}
	return conditions, args, nil
}

var eventFilters = []string{"action", "domain", "namespace", "table_name", "record_id", "user_id", "status", "request_id"}

// List handles GET /api/events: filtered events, newest first.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	conditions, args, err := eventConditions(func(key string) string { return c.Query(key) })
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": err.Error()},
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.pool, "SELECT COUNT(*) AS count FROM _roster_events"+whereClause, args...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	dataSQL := fmt.Sprintf(
		"SELECT id, request_id, action, domain, namespace, table_name, record_id, user_id, status, metadata, created_at FROM _roster_events%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		whereClause, len(args)+1, len(args)+2,
	)
	rows, err := store.QueryRows(ctx, h.pool, dataSQL, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    countRow["count"],
		},
	})
}
