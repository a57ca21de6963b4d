package admin

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/engine"
	"roster-backend/internal/instrument"
	"roster-backend/internal/metadata"
	"roster-backend/internal/store"
)

// Handler serves the form (table definition) endpoints of one domain.
type Handler struct {
	domain      *metadata.Domain
	provisioner *store.Provisioner
	policy      metadata.StoragePolicy
	events      instrument.Recorder
}

func NewHandler(d *metadata.Domain, p *store.Provisioner, policy metadata.StoragePolicy, events instrument.Recorder) *Handler {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	return &Handler{domain: d, provisioner: p, policy: policy, events: events}
}

// RegisterFormRoutes mounts the provisioning endpoints on the domain group.
func RegisterFormRoutes(r fiber.Router, h *Handler) {
	r.Post("/create-form", h.CreateForm)
	r.Delete("/delete-form", h.DeleteForm)
}

type createFormRequest struct {
	Category     string                     `json:"category"`
	TableName    string                     `json:"tableName" validate:"required"`
	CustomFields []metadata.FieldDefinition `json:"customFields" validate:"dive"`
	// Replace drops and recreates a table that already holds rows.
	Replace bool `json:"replace"`
}

type deleteFormRequest struct {
	Category  string `json:"category"`
	TableName string `json:"tableName"`
}

func (h *Handler) requireCategory(category string) error {
	if h.domain.SharedNamespace == "" && category == "" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "category", Rule: "required", Message: "category is required"}})
	}
	return nil
}

// CreateForm handles POST /create-form. The whole definition is validated
// before any DDL runs; the table is created in a single transaction.
func (h *Handler) CreateForm(c *fiber.Ctx) error {
	var req createFormRequest
	if err := engine.BindJSON(c, &req); err != nil {
		return err
	}
	if err := h.requireCategory(req.Category); err != nil {
		return err
	}

	plan, err := metadata.BuildProvisionPlan(h.domain, req.Category, []metadata.TableRequest{
		{Name: req.TableName, Fields: req.CustomFields},
	}, h.policy)
	if err != nil {
		return engine.ToAppError(err)
	}

	ctx := c.UserContext()
	table := plan.Tables[0].Table
	err = h.provisioner.Provision(ctx, plan, req.Replace)
	h.record(ctx, "form.create", plan.Namespace.String(), table.String(), err, map[string]any{
		"fields":  len(req.CustomFields),
		"replace": req.Replace,
	})
	if err != nil {
		return engine.ToAppError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"namespace": plan.Namespace.String(),
		"tableName": table.String(),
		"columns":   len(plan.Domain.BaseColumns) + len(plan.Tables[0].Columns),
	}})
}

// DeleteForm handles DELETE /delete-form. Without tableName the whole
// category namespace is dropped.
func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	var req deleteFormRequest
	if err := engine.BindJSON(c, &req); err != nil {
		return err
	}
	if err := h.requireCategory(req.Category); err != nil {
		return err
	}
	ns, err := h.domain.ResolveNamespace(req.Category)
	if err != nil {
		return engine.ToAppError(err)
	}

	ctx := c.UserContext()
	if req.TableName == "" {
		if h.domain.SharedNamespace != "" {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "tableName", Rule: "required", Message: "tableName is required"}})
		}
		err = h.provisioner.DropNamespace(ctx, ns)
		h.record(ctx, "namespace.drop", ns.String(), "", err, nil)
		if err != nil {
			return engine.ToAppError(err)
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"namespace": ns.String(), "deleted": true}})
	}

	table, err := metadata.SanitizeTableName(req.TableName)
	if err != nil {
		return engine.ToAppError(err)
	}
	err = h.provisioner.DropTable(ctx, ns, table)
	h.record(ctx, "form.delete", ns.String(), table.String(), err, nil)
	if err != nil {
		return engine.ToAppError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"namespace": ns.String(), "tableName": table.String(), "deleted": true}})
}

func (h *Handler) record(ctx context.Context, action, ns, table string, err error, meta map[string]any) {
	e := instrument.Event{
		Action:    action,
		Domain:    h.domain.Name,
		Namespace: ns,
		Table:     table,
		Status:    instrument.StatusOK,
		Metadata:  meta,
	}
	if err != nil {
		e.Status = instrument.StatusError
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.Metadata["error"] = err.Error()
	}
	h.events.Record(ctx, e)
}
