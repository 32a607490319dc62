package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/dkazlouski/obedbot/internal/handlers"
	"github.com/dkazlouski/obedbot/internal/middleware"
	"github.com/dkazlouski/obedbot/internal/services"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, sessions *services.SessionManager, flow *services.FlowMachine) {
	telegramHandler := handlers.NewTelegramHandler(flow)
	adminHandler := handlers.NewAdminHandler(store, sessions)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Obedbot!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":  "/health",
				"webhook": "/webhook/telegram",
				"admin":   "/admin",
			},
		})
	})

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// Telegram webhook - ENVIRONMENT-AWARE VALIDATION
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: Skip validation for ngrok
		webhooks.Post("/telegram", telegramHandler.HandleWebhook)
		if os.Getenv("ENVIRONMENT") == "development" {
			println("⚠️  Telegram webhook validation DISABLED for development")
		}
	} else {
		// Production: Validate the secret token header
		webhooks.Post("/telegram", middleware.ValidateTelegramSecret(), telegramHandler.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if os.Getenv("ENVIRONMENT") == "development" {
		app.Post("/test/telegram", telegramHandler.HandleTestUpdate)
	}

	// ========== ADMIN ROUTES ==========
	admin := app.Group("/admin")
	admin.Get("/orders", adminHandler.ListOrders)
	admin.Get("/missed-demand", adminHandler.ListMissedDemand)
	admin.Get("/sessions/stats", adminHandler.SessionStats)
	admin.Get("/tickets", adminHandler.ListOpenTickets)
}
