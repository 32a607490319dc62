package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SupportTicket is a user message relayed to the operator.
type SupportTicket struct {
	gorm.Model
	TicketID    string `gorm:"uniqueIndex;not null" json:"ticket_id"`
	UserID      int64  `gorm:"index" json:"user_id"`
	Username    string `json:"username"`
	Description string `json:"description"`
	Status      string `gorm:"default:'open'" json:"status"` // open, resolved, closed
}

const (
	TicketStatusOpen     = "open"
	TicketStatusResolved = "resolved"
	TicketStatusClosed   = "closed"
)

func (t *SupportTicket) BeforeCreate(tx *gorm.DB) error {
	if t.TicketID == "" {
		t.TicketID = uuid.NewString()
	}
	return nil
}
