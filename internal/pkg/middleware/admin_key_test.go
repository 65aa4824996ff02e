package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newAdminTestApp() *fiber.App {
	app := fiber.New()
	app.Get("/protected", AdminKeyMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAdminKeyMiddleware_AllowsValidKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "test-admin-key")
	app := newAdminTestApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "test-admin-key")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdminKeyMiddleware_AllowsBearerToken(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "test-admin-key")
	app := newAdminTestApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer test-admin-key")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdminKeyMiddleware_RejectsWrongKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "test-admin-key")
	app := newAdminTestApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAdminKeyMiddleware_RejectsMissingKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "test-admin-key")
	app := newAdminTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAdminKeyMiddleware_DisabledWithoutSecret(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "")
	app := newAdminTestApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
