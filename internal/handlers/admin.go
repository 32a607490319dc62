package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/dkazlouski/obedbot/internal/services"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// AdminHandler exposes the read-only operator surface
type AdminHandler struct {
	store    storage.Store
	sessions *services.SessionManager
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, sessions *services.SessionManager) *AdminHandler {
	return &AdminHandler{store: store, sessions: sessions}
}

func limitParam(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return 50
	}
	return limit
}

// ListOrders returns the most recent mirrored orders
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.store.ListOrders(limitParam(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(orders), "orders": orders})
}

// ListMissedDemand returns recent sold-out order attempts
func (h *AdminHandler) ListMissedDemand(c *fiber.Ctx) error {
	missed, err := h.store.ListMissedDemand(limitParam(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(missed), "missed_demand": missed})
}

// SessionStats returns session counts per conversation state
func (h *AdminHandler) SessionStats(c *fiber.Ctx) error {
	stats, err := h.sessions.GetStats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// ListOpenTickets returns open support tickets
func (h *AdminHandler) ListOpenTickets(c *fiber.Ctx) error {
	tickets, err := h.store.ListOpenSupportTickets()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(tickets), "tickets": tickets})
}
