package middlewares

import (
	"errors"
	"log"

	"github.com/contacto31/ama-tyc-service/lifecycle"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler centralizes error responses and keeps messages sanitized.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// 1) Lifecycle outcomes (structured, user-visible)
	if errors.Is(err, lifecycle.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"ok":      false,
			"message": "consent request not found",
		})
	}
	if errors.Is(err, lifecycle.ErrExpired) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"ok":      false,
			"message": "this consent link has expired",
		})
	}

	// 2) Fiber errors (use their status code + message)
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"ok": false, "message": fe.Message})
	}

	// 3) Validation errors (422 + per-field info)
	if ve, ok := err.(validator.ValidationErrors); ok {
		out := make(map[string]string, len(ve))
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"ok":      false,
			"message": "validation failed",
			"errors":  out,
		})
	}

	// 4) Unknown errors (500, never leak internals)
	log.Printf("internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"ok":      false,
		"message": "internal server error",
	})
}
