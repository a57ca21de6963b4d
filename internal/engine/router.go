package engine

import (
	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/instrument"
	"roster-backend/internal/metadata"
)

// RegisterRowRoutes mounts the row endpoints of one domain on r, which is
// expected to be the domain's group (e.g. /api/students).
func RegisterRowRoutes(r fiber.Router, h *Handler) {
	entity := h.domain.Entity

	r.Get("/classes", h.Classes)
	r.Get("/columns/:category/:table", h.Columns)
	r.Get("/rows/:category/:table", h.ListRows)
	r.Get("/rows/:category/:table/:globalId/:localId", h.GetRow)

	r.Post("/add-"+entity, h.Add)
	r.Put("/update-"+entity, h.Update)
	r.Delete("/delete-"+entity, h.Delete)
	r.Post("/bulk-upload", h.BulkUpload)
	r.Post("/reset-credentials", h.ResetCredentials)
}

// AttachUser copies the authenticated user id into the request context so
// recorded events carry it.
func AttachUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			c.SetUserContext(instrument.WithUserID(c.UserContext(), user.ID))
		}
		return c.Next()
	}
}
