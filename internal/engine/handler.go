package engine

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/metadata"
	"roster-backend/internal/store"
)

// Handler serves row operations for one domain.
type Handler struct {
	domain      *metadata.Domain
	rows        *RowEngine
	maxFileSize int64
}

func NewHandler(d *metadata.Domain, rows *RowEngine, maxFileSize int64) *Handler {
	return &Handler{domain: d, rows: rows, maxFileSize: maxFileSize}
}

type rowTarget struct {
	Category  string `json:"category"`
	TableName string `json:"tableName" validate:"required"`
	Key       RowKey `json:"key" validate:"required"`
}

type updateRequest struct {
	Category  string         `json:"category"`
	TableName string         `json:"tableName" validate:"required"`
	Key       RowKey         `json:"key" validate:"required"`
	Updates   map[string]any `json:"updates"`
}

type bulkRequest struct {
	Category  string           `json:"category"`
	TableName string           `json:"tableName" validate:"required"`
	Rows      []map[string]any `json:"rows" validate:"required,min=1"`
}

type resetRequest struct {
	Category  string               `json:"category"`
	TableName string               `json:"tableName" validate:"required"`
	Key       RowKey               `json:"key" validate:"required"`
	Kind      store.CredentialKind `json:"kind" validate:"omitempty,oneof=primary guardian"`
}

// resolve checks the category is present where the domain needs one and
// sanitizes the names.
func (h *Handler) resolve(category, table string) (TableRef, error) {
	if h.domain.SharedNamespace == "" && category == "" {
		return TableRef{}, ValidationError([]ErrorDetail{{Field: "category", Rule: "required", Message: "category is required"}})
	}
	if table == "" {
		return TableRef{}, ValidationError([]ErrorDetail{{Field: "tableName", Rule: "required", Message: "tableName is required"}})
	}
	ref, err := ResolveTable(h.domain, category, table)
	if err != nil {
		return TableRef{}, ToAppError(err)
	}
	return ref, nil
}

// Classes handles GET /classes?category=
func (h *Handler) Classes(c *fiber.Ctx) error {
	category := c.Query("category")
	if h.domain.SharedNamespace == "" && category == "" {
		return ValidationError([]ErrorDetail{{Field: "category", Rule: "required", Message: "category is required"}})
	}
	tables, err := h.rows.ListTables(c.UserContext(), h.domain, category)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": tables})
}

// Columns handles GET /columns/:category/:table
func (h *Handler) Columns(c *fiber.Ctx) error {
	ref, err := h.resolve(c.Params("category"), c.Params("table"))
	if err != nil {
		return err
	}
	cols, err := h.rows.ListColumns(c.UserContext(), ref)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": cols})
}

// Add handles POST /add-{entity}. The body is multipart (fields plus file
// parts) or a flat JSON object; category and tableName are read from it.
func (h *Handler) Add(c *fiber.Ctx) error {
	var values map[string]any
	var files map[string]FilePart
	if isMultipart(c) {
		form, err := readMultipart(c, h.maxFileSize)
		if err != nil {
			return err
		}
		defer form.Close()
		values, files = form.values, form.files
	} else if err := decodeJSON(c.Body(), &values); err != nil || values == nil {
		return InvalidPayloadError("Invalid JSON body")
	}

	category, table := takeString(values, "category"), takeString(values, "tableName")
	ref, err := h.resolve(category, table)
	if err != nil {
		return err
	}

	res, err := h.rows.InsertRow(c.UserContext(), ref, values, files)
	if err != nil {
		return ToAppError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": res})
}

// Update handles PUT /update-{entity}. JSON bodies carry key and updates;
// multipart bodies carry globalId and localId fields, every other field is
// an update.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	var files map[string]FilePart
	if isMultipart(c) {
		form, err := readMultipart(c, h.maxFileSize)
		if err != nil {
			return err
		}
		defer form.Close()
		req.Category = takeString(form.values, "category")
		req.TableName = takeString(form.values, "tableName")
		req.Key.GlobalID, _ = strconv.ParseInt(takeString(form.values, "globalId"), 10, 64)
		req.Key.LocalID, _ = strconv.ParseInt(takeString(form.values, "localId"), 10, 64)
		req.Updates, files = form.values, form.files
		if err := ValidateStruct(&req); err != nil {
			return err
		}
	} else if err := BindJSON(c, &req); err != nil {
		return err
	}

	ref, err := h.resolve(req.Category, req.TableName)
	if err != nil {
		return err
	}
	row, err := h.rows.UpdateRow(c.UserContext(), ref, req.Key, req.Updates, files)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// Delete handles DELETE /delete-{entity}
func (h *Handler) Delete(c *fiber.Ctx) error {
	var req rowTarget
	if err := BindJSON(c, &req); err != nil {
		return err
	}
	ref, err := h.resolve(req.Category, req.TableName)
	if err != nil {
		return err
	}
	res, err := h.rows.DeleteRow(c.UserContext(), ref, req.Key)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": res})
}

// BulkUpload handles POST /bulk-upload. Rows that fail after validation are
// listed in errors with a 207 status; the others are committed together.
func (h *Handler) BulkUpload(c *fiber.Ctx) error {
	var req bulkRequest
	if err := BindJSON(c, &req); err != nil {
		return err
	}
	ref, err := h.resolve(req.Category, req.TableName)
	if err != nil {
		return err
	}
	res, err := h.rows.BulkInsert(c.UserContext(), ref, req.Rows)
	if err != nil {
		return ToAppError(err)
	}
	status := fiber.StatusOK
	if len(res.Errors) > 0 {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(fiber.Map{"data": res})
}

// ListRows handles GET /rows/:category/:table
func (h *Handler) ListRows(c *fiber.Ctx) error {
	ref, err := h.resolve(c.Params("category"), c.Params("table"))
	if err != nil {
		return err
	}
	page, err := h.rows.ListRows(c.UserContext(), ref, ParsePage(c))
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{
		"data": page.Rows,
		"meta": fiber.Map{
			"page":     page.Page,
			"per_page": page.PerPage,
			"total":    page.Total,
		},
	})
}

// GetRow handles GET /rows/:category/:table/:globalId/:localId
func (h *Handler) GetRow(c *fiber.Ctx) error {
	ref, err := h.resolve(c.Params("category"), c.Params("table"))
	if err != nil {
		return err
	}
	key, err := keyFromParams(c)
	if err != nil {
		return err
	}
	row, err := h.rows.GetRow(c.UserContext(), ref, key)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// ResetCredentials handles POST /reset-credentials
func (h *Handler) ResetCredentials(c *fiber.Ctx) error {
	var req resetRequest
	if err := BindJSON(c, &req); err != nil {
		return err
	}
	if req.Kind == "" {
		req.Kind = store.CredentialPrimary
	}
	ref, err := h.resolve(req.Category, req.TableName)
	if err != nil {
		return err
	}
	cred, err := h.rows.ResetCredentials(c.UserContext(), ref, req.Key, req.Kind)
	if err != nil {
		return ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": cred})
}

func keyFromParams(c *fiber.Ctx) (RowKey, error) {
	gid, err1 := strconv.ParseInt(c.Params("globalId"), 10, 64)
	lid, err2 := strconv.ParseInt(c.Params("localId"), 10, 64)
	if err1 != nil || err2 != nil || gid <= 0 || lid <= 0 {
		return RowKey{}, InvalidPayloadError("globalId and localId must be positive integers")
	}
	return RowKey{GlobalID: gid, LocalID: lid}, nil
}
