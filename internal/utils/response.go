package utils

import "github.com/gofiber/fiber/v2"

// SendOK sends a success payload with {"ok": true} merged in. Batch
// endpoints put their ok/partial/unchanged status inside the payload.
func SendOK(c *fiber.Ctx, status int, payload fiber.Map) error {
	if status == 0 {
		status = fiber.StatusOK
	}

	body := fiber.Map{"ok": true}
	for key, value := range payload {
		body[key] = value
	}

	return c.Status(status).JSON(body)
}

// SendData sends a 200 response with the payload under "data".
func SendData(c *fiber.Ctx, data interface{}) error {
	return SendOK(c, fiber.StatusOK, fiber.Map{"data": data})
}

// SendError sends an error response. The message is shown verbatim to the
// admin caller, provider errors included; this is an internal tool.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(fiber.Map{
		"ok":    false,
		"error": message,
	})
}

// SendErrorWith sends an error response carrying extra payload fields, used
// by batch endpoints that failed for every target but still report per-id
// outcomes.
func SendErrorWith(c *fiber.Ctx, status int, message string, payload fiber.Map) error {
	body := fiber.Map{
		"ok":    false,
		"error": message,
	}
	for key, value := range payload {
		body[key] = value
	}

	return c.Status(status).JSON(body)
}
