package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/contacto31/ama-tyc-service/controllers"
	"github.com/contacto31/ama-tyc-service/middlewares"
)

// Register wires all HTTP routes.
func Register(app *fiber.App) {
	// Public token-addressed consent surface
	app.Get("/c/:token", controllers.ShowRequest)
	app.Post("/c/:token/accept", controllers.AcceptRequest)

	// Internal surface (shared-secret header gate)
	api := app.Group("/api")
	api.Use(middlewares.InternalOnly())
	api.Post("/requests", controllers.CreateRequest)
	api.Post("/sweep", controllers.SweepRequests)
}
