package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"

	"github.com/dkazlouski/obedbot/internal/services"
)

// TelegramHandler handles Telegram webhook requests
type TelegramHandler struct {
	flow *services.FlowMachine
}

// NewTelegramHandler creates a new Telegram handler
func NewTelegramHandler(flow *services.FlowMachine) *TelegramHandler {
	return &TelegramHandler{flow: flow}
}

// HandleWebhook processes one inbound Telegram update. The update is
// handled within the request so Telegram's retry covers us on failure;
// the deadline keeps one stalled external call from holding the worker.
func (h *TelegramHandler) HandleWebhook(c *fiber.Ctx) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		log.Printf("Error parsing webhook update: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	h.flow.HandleUpdate(ctx, update)

	return c.SendStatus(fiber.StatusOK)
}

// TestUpdatePayload lets development tooling inject a plain text message
// without going through Telegram.
type TestUpdatePayload struct {
	UserID int64  `json:"user_id"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// HandleTestUpdate processes a synthetic message (for development)
func (h *TelegramHandler) HandleTestUpdate(c *fiber.Ctx) error {
	var payload TestUpdatePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.ChatID == 0 {
		payload.ChatID = payload.UserID
	}

	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: payload.UserID},
			Chat: &tgbotapi.Chat{ID: payload.ChatID},
			Text: payload.Text,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	h.flow.HandleUpdate(ctx, update)

	return c.JSON(fiber.Map{"success": true})
}
