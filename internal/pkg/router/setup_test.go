package router

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type stubClosingRouter struct {
	installed bool
	closed    bool
}

func (r *stubClosingRouter) InstallRouter(_ *fiber.App) {
	r.installed = true
}

func (r *stubClosingRouter) Close() {
	r.closed = true
}

type stubPlainRouter struct {
	installed bool
}

func (r *stubPlainRouter) InstallRouter(_ *fiber.App) {
	r.installed = true
}

func TestShutdown_ClosesInstalledRouters(t *testing.T) {
	app := fiber.New()
	closing := &stubClosingRouter{}
	plain := &stubPlainRouter{}

	setup(app, closing, plain)
	assert.True(t, closing.installed)
	assert.True(t, plain.installed)

	Shutdown()
	assert.True(t, closing.closed)
	assert.Nil(t, installed)

	// Idempotent: a second call has nothing left to close.
	Shutdown()
}
