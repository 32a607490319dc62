package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dkazlouski/obedbot/internal/models"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// NotificationFanout delivers the post-commit pushes: the local order
// mirror, the CRM webhook and the operator's WhatsApp alert. Failures
// here are logged and never affect the order outcome or the user-visible
// state.
type NotificationFanout struct {
	store         storage.Store
	twilio        *TwilioService
	crmWebhookURL string
	operatorPhone string
	client        *http.Client
}

// NewNotificationFanout wires the fanout from environment settings.
// CRM_WEBHOOK_URL and OPERATOR_WHATSAPP are each optional; an unset
// destination is skipped.
func NewNotificationFanout(store storage.Store, twilio *TwilioService) *NotificationFanout {
	return &NotificationFanout{
		store:         store,
		twilio:        twilio,
		crmWebhookURL: os.Getenv("CRM_WEBHOOK_URL"),
		operatorPhone: os.Getenv("OPERATOR_WHATSAPP"),
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// OrderCommitted pushes a committed order to every peripheral consumer.
func (n *NotificationFanout) OrderCommitted(record models.OrderRecord) {
	if err := n.store.CreateOrder(&record); err != nil {
		log.Printf("⚠️  Order mirror write failed for user %d: %v", record.UserID, err)
	}

	n.pushCRM(record)

	if n.twilio != nil && n.operatorPhone != "" {
		alert := fmt.Sprintf("Новый заказ №%s\n%s, %s\n%s × %d\n%s, %s",
			record.OrderID, record.Name, record.Phone,
			record.Tariff, record.Quantity,
			record.Address, record.TimeSlot)
		if err := n.twilio.SendWhatsAppMessage(n.operatorPhone, alert); err != nil {
			log.Printf("⚠️  Operator alert failed for order %s: %v", record.OrderID, err)
		}
	}
}

// TicketOpened alerts the operator about a new support ticket.
func (n *NotificationFanout) TicketOpened(ticket models.SupportTicket) {
	if n.twilio == nil || n.operatorPhone == "" {
		return
	}
	alert := fmt.Sprintf("Обращение %s от @%s (id %d):\n%s",
		ticket.TicketID, ticket.Username, ticket.UserID, ticket.Description)
	if err := n.twilio.SendWhatsAppMessage(n.operatorPhone, alert); err != nil {
		log.Printf("⚠️  Operator alert failed for ticket %s: %v", ticket.TicketID, err)
	}
}

func (n *NotificationFanout) pushCRM(record models.OrderRecord) {
	if n.crmWebhookURL == "" {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		log.Printf("⚠️  CRM payload marshal failed for order %s: %v", record.OrderID, err)
		return
	}

	resp, err := n.client.Post(n.crmWebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("⚠️  CRM push failed for order %s: %v", record.OrderID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("⚠️  CRM push for order %s returned status %d", record.OrderID, resp.StatusCode)
		return
	}
	log.Printf("✅ CRM push delivered for order %s", record.OrderID)
}
