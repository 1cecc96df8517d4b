package whisperwall

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

//go:embed views/*.html
var viewsFS embed.FS

var views = template.Must(template.ParseFS(viewsFS, "views/*.html"))

// render executes the named view into the response body.
func render(c *fiber.Ctx, name string, data any) error {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// formData carries an optional flash message into the login/register views.
func formData(c *fiber.Ctx) fiber.Map {
	return fiber.Map{
		"User":  currentUser(c),
		"Error": c.Query("error"),
	}
}

// renderErrorPage renders the generic failure page without exposing any
// internal detail.
func renderErrorPage(c *fiber.Ctx, code int) error {
	err := render(
		c.Status(code), "error", fiber.Map{
			"Status":  code,
			"Message": http.StatusText(code),
		},
	)
	if err != nil {
		return c.Status(code).SendString(http.StatusText(code))
	}
	return nil
}

func renderRateLimited(c *fiber.Ctx) error {
	err := render(
		c.Status(fiber.StatusTooManyRequests), "error", fiber.Map{
			"Status":  fiber.StatusTooManyRequests,
			"Message": "Too many attempts. Please try again later.",
		},
	)
	if err != nil {
		return c.Status(fiber.StatusTooManyRequests).SendString("Too many attempts. Please try again later.")
	}
	return nil
}
