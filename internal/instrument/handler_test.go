package instrument

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestEventConditions(t *testing.T) {
	conditions, args, err := eventConditions(queryOf(map[string]string{
		"action": "row.insert",
		"from":   "2026-01-02",
		"to":     "2026-01-03T10:00:00Z",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"action = $1", "created_at >= $2", "created_at <= $3"}, conditions)
	require.Len(t, args, 3)
	assert.Equal(t, "row.insert", args[0])
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), args[1])
	assert.Equal(t, time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC), args[2])
}

func TestEventConditions_BadTime(t *testing.T) {
	for _, q := range []map[string]string{{"from": "yesterday"}, {"to": "2026-13-01"}} {
		_, _, err := eventConditions(queryOf(q))
		assert.Error(t, err, "%v", q)
	}
}

func TestEventHandler_BadTimeIsBadRequest(t *testing.T) {
	app := fiber.New()
	app.Get("/api/events", NewEventHandler(nil).List)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/events?from=last-week", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "INVALID_PAYLOAD", body.Error.Code)
	assert.Contains(t, body.Error.Message, "from")
}
