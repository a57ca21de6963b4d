package engine

import (
	"errors"
	"mime"
	"os"
	"path"

	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/storage"
)

// ServeFile streams an uploaded file by the path stored in its upload column.
func ServeFile(files storage.FileStorage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := c.Params("*")
		rc, err := files.Open(c.UserContext(), p)
		switch {
		case errors.Is(err, storage.ErrInvalidPath):
			return InvalidPayloadError("Invalid file path")
		case errors.Is(err, os.ErrNotExist):
			return NotFoundError("File")
		case err != nil:
			return err
		}

		if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
			c.Set(fiber.HeaderContentType, ct)
		} else {
			c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		}
		// fasthttp closes rc once the body is written
		return c.SendStream(rc)
	}
}
