//go:build integration

package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"roster-backend/internal/admin"
	"roster-backend/internal/config"
	"roster-backend/internal/engine"
	"roster-backend/internal/metadata"
	"roster-backend/internal/storage"
	"roster-backend/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Host:     "localhost",
		Port:     5433,
		User:     "roster",
		Password: "roster",
		Name:     "roster_test",
		PoolSize: 4,
	})
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testApp(t *testing.T, s *store.Store) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *engine.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
			}
			return c.Status(500).JSON(engine.ErrorResponse{
				Error: &engine.AppError{Code: "INTERNAL_ERROR", Message: err.Error()},
			})
		},
	})

	registry := store.NewFieldTypeRegistry()
	provisioner := store.NewProvisioner(s, registry)
	creds := engine.NewCredentialIssuer(func(pw string) (string, error) { return "plain:" + pw, nil })
	rows := engine.NewRowEngine(s, registry, storage.NewLocalStorage(t.TempDir()), creds, nil)

	for _, d := range metadata.AllDomains() {
		group := app.Group("/api/" + d.Name)
		admin.RegisterFormRoutes(group, admin.NewHandler(d, provisioner, metadata.StoragePolicy{}, nil))
		engine.RegisterRowRoutes(group, engine.NewHandler(d, rows, 1<<20))
	}
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	status, out, err := sendJSON(app, method, path, body)
	require.NoError(t, err)
	return status, out
}

// sendJSON is safe to call from other goroutines.
func sendJSON(app *fiber.App, method, path string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		return 0, nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return 0, nil, fmt.Errorf("decode %q: %w", raw, err)
		}
	}
	return resp.StatusCode, out, nil
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "no data object in %v", body)
	return d
}

func createStudentForm(t *testing.T, app *fiber.App, table string) {
	t.Helper()
	doRequest(t, app, http.MethodDelete, "/api/students/delete-form", map[string]any{"tableName": table})
	status, body := doRequest(t, app, http.MethodPost, "/api/students/create-form", map[string]any{
		"tableName": table,
		"customFields": []map[string]any{
			{"name": "club", "label": "Club", "type": "select", "options": []string{"Chess", "Drama"}, "required": true},
			{"name": "sports", "type": "multi-select", "options": []string{"Football", "Cricket"}},
			{"name": "phone", "type": "text"},
		},
	})
	require.Equal(t, http.StatusCreated, status, body)
	t.Cleanup(func() {
		doRequest(t, app, http.MethodDelete, "/api/students/delete-form", map[string]any{"tableName": table})
	})
}

func TestInsertAllocatesConsecutiveIDs(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_ids")

	var globals, locals []int64
	for _, name := range []string{"Asha", "Ravi", "Meera"} {
		status, body := doRequest(t, app, http.MethodPost, "/api/students/add-student", map[string]any{
			"tableName": "it_grade_ids",
			"name":      name,
			"club":      "chess",
			"sports":    []string{"football"},
			"phone":     "9876543210",
		})
		require.Equal(t, http.StatusCreated, status, body)
		res := data(t, body)
		globals = append(globals, int64(res["globalId"].(float64)))
		locals = append(locals, int64(res["localId"].(float64)))

		creds, _ := res["generatedCredentials"].([]any)
		assert.Len(t, creds, 2, "student and guardian logins")
	}

	assert.Equal(t, []int64{1, 2, 3}, locals)
	assert.Equal(t, globals[0]+1, globals[1])
	assert.Equal(t, globals[0]+2, globals[2])

	status, body := doRequest(t, app, http.MethodGet, "/api/students/rows/-/it_grade_ids/"+
		jsonNumber(globals[1])+"/2", nil)
	require.Equal(t, http.StatusOK, status, body)
	row := data(t, body)
	assert.Equal(t, "Ravi", row["name"])
	assert.Equal(t, "Chess", row["club"])
	assert.Equal(t, []any{"Football"}, row["sports"])
	assert.Equal(t, float64(9876543210), row["phone"])
	assert.NotEmpty(t, row["username"])
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateFormWithExistingRowsNeedsReplace(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_replace")

	status, body := doRequest(t, app, http.MethodPost, "/api/students/add-student", map[string]any{
		"tableName": "it_grade_replace", "name": "Asha", "club": "Drama",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = doRequest(t, app, http.MethodPost, "/api/students/create-form", map[string]any{
		"tableName": "it_grade_replace",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ALREADY_EXISTS", body["error"].(map[string]any)["code"])

	status, body = doRequest(t, app, http.MethodPost, "/api/students/create-form", map[string]any{
		"tableName": "it_grade_replace", "replace": true,
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = doRequest(t, app, http.MethodGet, "/api/students/rows/-/it_grade_replace", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(0), body["meta"].(map[string]any)["total"])
}

func TestProvisionIsAtomic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	registry := store.NewFieldTypeRegistry()
	p := store.NewProvisioner(s, registry)

	ns, err := metadata.SanitizeNamespace("it atomic")
	require.NoError(t, err)
	_ = p.DropNamespace(ctx, ns)
	t.Cleanup(func() { _ = p.DropNamespace(ctx, ns) })

	existing, err := metadata.BuildProvisionPlan(metadata.Staff, "it atomic",
		[]metadata.TableRequest{{Name: "second"}}, metadata.StoragePolicy{})
	require.NoError(t, err)
	require.NoError(t, p.Provision(ctx, existing, false))
	_, err = store.Exec(ctx, s.Pool,
		`INSERT INTO "it_atomic"."second" (staff_id, employee_number, name, role) VALUES (999999, 1, 'X', 'teacher')`)
	require.NoError(t, err)

	plan, err := metadata.BuildProvisionPlan(metadata.Staff, "it atomic", []metadata.TableRequest{
		{Name: "first", Fields: []metadata.FieldDefinition{{Name: "subject", Type: metadata.TypeText}}},
		{Name: "second"},
	}, metadata.StoragePolicy{})
	require.NoError(t, err)

	err = p.Provision(ctx, plan, false)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	first, _ := metadata.SanitizeTableName("first")
	exists, err := store.TableExists(ctx, s.Pool, ns, first)
	require.NoError(t, err)
	assert.False(t, exists, "no table of a failed batch may survive")

	defs, err := registry.Lookup(ctx, s.Pool, ns, first)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestBulkUploadRejectsWholeBatch(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_bulk")

	status, body := doRequest(t, app, http.MethodPost, "/api/students/bulk-upload", map[string]any{
		"tableName": "it_grade_bulk",
		"rows": []map[string]any{
			{"name": "Asha", "club": "Chess"},
			{"name": "Ravi", "club": "Football"},
			{"name": "Meera", "club": "Drama", "shoe_size": 4},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status, body)
	fields := body["error"].(map[string]any)["fields"].([]any)
	assert.Len(t, fields, 2)

	status, body = doRequest(t, app, http.MethodGet, "/api/students/rows/-/it_grade_bulk", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["meta"].(map[string]any)["total"])

	status, body = doRequest(t, app, http.MethodPost, "/api/students/bulk-upload", map[string]any{
		"tableName": "it_grade_bulk",
		"rows": []map[string]any{
			{"name": "Asha", "club": "Chess"},
			{"name": "Ravi", "club": "drama"},
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), data(t, body)["insertedCount"])
}

func TestUpdateAndDeleteRow(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_crud")

	status, body := doRequest(t, app, http.MethodPost, "/api/students/add-student", map[string]any{
		"tableName": "it_grade_crud", "name": "Asha", "club": "Chess",
	})
	require.Equal(t, http.StatusCreated, status, body)
	res := data(t, body)
	key := map[string]any{"globalId": res["globalId"], "localId": res["localId"]}

	status, body = doRequest(t, app, http.MethodPut, "/api/students/update-student", map[string]any{
		"tableName": "it_grade_crud", "key": key,
		"updates": map[string]any{"club": "drama", "date_of_birth": "2014-03-09"},
	})
	require.Equal(t, http.StatusOK, status, body)
	row := data(t, body)
	assert.Equal(t, "Drama", row["club"])
	assert.Equal(t, "2014-03-09", row["date_of_birth"])

	status, body = doRequest(t, app, http.MethodPost, "/api/students/reset-credentials", map[string]any{
		"tableName": "it_grade_crud", "key": key, "kind": "guardian",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Regexp(t, `^p\.asha\.\d{4}$`, data(t, body)["username"])

	status, _ = doRequest(t, app, http.MethodDelete, "/api/students/delete-student", map[string]any{
		"tableName": "it_grade_crud", "key": key,
	})
	require.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodDelete, "/api/students/delete-student", map[string]any{
		"tableName": "it_grade_crud", "key": key,
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	var n int
	require.NoError(t, s.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM _credentials WHERE domain = 'students' AND global_id = $1",
		int64(res["globalId"].(float64))).Scan(&n))
	assert.Zero(t, n)
}

func TestColumnsKeepLogicalTypes(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_cols")

	status, body := doRequest(t, app, http.MethodGet, "/api/students/columns/-/it_grade_cols", nil)
	require.Equal(t, http.StatusOK, status, body)
	cols, ok := body["data"].([]any)
	require.True(t, ok, "columns should be a list: %v", body)

	byName := map[string]map[string]any{}
	for _, c := range cols {
		col := c.(map[string]any)
		byName[col["name"].(string)] = col
	}
	require.Contains(t, byName, "club")
	assert.Equal(t, "select", byName["club"]["type"])
	assert.Equal(t, true, byName["club"]["required"])
	assert.Equal(t, []any{"Chess", "Drama"}, byName["club"]["options"])
	assert.Equal(t, "multi-select", byName["sports"]["type"])
	assert.Equal(t, "text", byName["phone"]["type"])
	assert.Equal(t, []any{"Male", "Female", "Other"}, byName["gender"]["options"])
}

func TestDeleteDoesNotRenumberLocalIDs(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_renumber")

	var keys []map[string]any
	for _, name := range []string{"Asha", "Ravi", "Meera"} {
		status, body := doRequest(t, app, http.MethodPost, "/api/students/add-student", map[string]any{
			"tableName": "it_grade_renumber", "name": name, "club": "Chess",
		})
		require.Equal(t, http.StatusCreated, status, body)
		res := data(t, body)
		keys = append(keys, map[string]any{"globalId": res["globalId"], "localId": res["localId"]})
	}

	status, _ := doRequest(t, app, http.MethodDelete, "/api/students/delete-student", map[string]any{
		"tableName": "it_grade_renumber", "key": keys[1],
	})
	require.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, app, http.MethodGet, "/api/students/rows/-/it_grade_renumber/"+
		jsonNumber(int64(keys[2]["globalId"].(float64)))+"/3", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Meera", data(t, body)["name"])
}

func TestBulkUploadRowFailureKeepsOthers(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	createStudentForm(t, app, "it_grade_bulk_sp")

	status, body := doRequest(t, app, http.MethodPost, "/api/students/bulk-upload", map[string]any{
		"tableName": "it_grade_bulk_sp",
		"rows": []map[string]any{
			{"name": "Asha", "club": "Chess"},
			{"name": strings.Repeat("x", 300), "club": "Chess"},
			{"name": "Meera", "club": "Drama"},
		},
	})
	require.Equal(t, http.StatusMultiStatus, status, body)
	res := data(t, body)
	assert.Equal(t, float64(2), res["insertedCount"])

	errs := res["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, float64(1), errs[0].(map[string]any)["row"])

	rows := res["rows"].([]any)
	require.Len(t, rows, 2)
	first, second := rows[0].(map[string]any), rows[1].(map[string]any)
	assert.Equal(t, float64(0), first["row"])
	assert.Equal(t, float64(2), second["row"])
	// the failed row's ids were rolled back with its savepoint
	assert.Equal(t, float64(1), first["localId"])
	assert.Equal(t, float64(2), second["localId"])
	assert.Equal(t, first["globalId"].(float64)+1, second["globalId"])
	assert.Len(t, second["generatedCredentials"], 2)

	status, body = doRequest(t, app, http.MethodGet, "/api/students/rows/-/it_grade_bulk_sp", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["meta"].(map[string]any)["total"])
}

func TestConcurrentInsertsGetDistinctIDs(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	tables := []string{"it_grade_conc_a", "it_grade_conc_b"}
	for _, table := range tables {
		createStudentForm(t, app, table)
	}

	type inserted struct {
		table  string
		global int64
		local  int64
	}
	var (
		mu      sync.Mutex
		results []inserted
		failed  []map[string]any
	)

	const perTable = 6
	var g errgroup.Group
	for i := 0; i < perTable*len(tables); i++ {
		table := tables[i%len(tables)]
		name := fmt.Sprintf("Student %c", 'A'+i)
		g.Go(func() error {
			status, body, err := sendJSON(app, http.MethodPost, "/api/students/add-student", map[string]any{
				"tableName": table, "name": name, "club": "Chess",
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if status != http.StatusCreated {
				failed = append(failed, body)
				return nil
			}
			res, _ := body["data"].(map[string]any)
			results = append(results, inserted{
				table:  table,
				global: int64(res["globalId"].(float64)),
				local:  int64(res["localId"].(float64)),
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// a lost local id race surfaces as a storage failure, never a duplicate
	for _, body := range failed {
		assert.Equal(t, "STORAGE_FAILURE", body["error"].(map[string]any)["code"], body)
	}
	require.NotEmpty(t, results)

	globals := map[int64]bool{}
	locals := map[string]map[int64]bool{}
	for _, r := range results {
		assert.False(t, globals[r.global], "global id %d allocated twice", r.global)
		globals[r.global] = true

		if locals[r.table] == nil {
			locals[r.table] = map[int64]bool{}
		}
		assert.False(t, locals[r.table][r.local], "local id %d allocated twice in %s", r.local, r.table)
		locals[r.table][r.local] = true
	}
}
