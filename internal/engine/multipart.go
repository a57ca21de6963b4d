package engine

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// formPayload is a parsed multipart body: plain fields as values and the
// first file of every file field.
type formPayload struct {
	values  map[string]any
	files   map[string]FilePart
	closers []io.Closer
}

func (p *formPayload) Close() {
	for _, c := range p.closers {
		_ = c.Close()
	}
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// readMultipart parses a multipart request. Repeated plain fields become a
// list so multi-select values can be sent as several parts.
func readMultipart(c *fiber.Ctx, maxSize int64) (*formPayload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, InvalidPayloadError("Invalid multipart body")
	}

	p := &formPayload{values: make(map[string]any, len(form.Value)), files: make(map[string]FilePart, len(form.File))}
	for key, vals := range form.Value {
		switch len(vals) {
		case 0:
		case 1:
			p.values[key] = vals[0]
		default:
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			p.values[key] = list
		}
	}

	for key, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		part, closer, err := openPart(headers[0], maxSize)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, closer)
		p.files[key] = part
	}
	return p, nil
}

func openPart(fh *multipart.FileHeader, maxSize int64) (FilePart, io.Closer, error) {
	if maxSize > 0 && fh.Size > maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", fh.Size, maxSize)
		return FilePart{}, nil, NewAppError("FILE_TOO_LARGE", 413, msg)
	}
	src, err := fh.Open()
	if err != nil {
		return FilePart{}, nil, fmt.Errorf("open uploaded file: %w", err)
	}
	return FilePart{Filename: fh.Filename, Content: src}, src, nil
}

// takeString removes key from values and returns it as a string.
func takeString(values map[string]any, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	delete(values, key)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
