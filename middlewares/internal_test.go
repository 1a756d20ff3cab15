package middlewares

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func gatedApp() *fiber.App {
	app := fiber.New()
	app.Use(InternalOnly())
	app.Post("/api/sweep", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestInternalOnlyFailsClosedWhenUnconfigured(t *testing.T) {
	resetInternalSecret()
	t.Setenv("INTERNAL_API_SECRET", "")

	req := httptest.NewRequest("POST", "/api/sweep", nil)
	resp, err := gatedApp().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestInternalOnlyRejectsBadSecret(t *testing.T) {
	resetInternalSecret()
	t.Setenv("INTERNAL_API_SECRET", "right-secret")
	app := gatedApp()

	for _, header := range []string{"", "wrong-secret"} {
		req := httptest.NewRequest("POST", "/api/sweep", nil)
		if header != "" {
			req.Header.Set("X-Internal-Secret", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}

func TestInternalOnlyAcceptsMatchingSecret(t *testing.T) {
	resetInternalSecret()
	t.Setenv("INTERNAL_API_SECRET", "right-secret")

	req := httptest.NewRequest("POST", "/api/sweep", nil)
	req.Header.Set("X-Internal-Secret", "right-secret")
	resp, err := gatedApp().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
