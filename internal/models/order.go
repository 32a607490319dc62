package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRecord mirrors a committed order. The authoritative append-only
// record lives in the orders sheet; this row is the local copy written by
// the post-commit fanout. Immutable once created.
type OrderRecord struct {
	gorm.Model
	OrderID      string    `gorm:"uniqueIndex;not null" json:"order_id"`
	UserID       int64     `gorm:"index" json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Dish         string    `json:"dish"`
	Tariff       string    `json:"tariff"`
	Address      string    `json:"address"`
	TimeSlot     string    `json:"time_slot"`
	Quantity     int       `json:"quantity"`
	PaymentLabel string    `json:"payment_label"`
	OrderedAt    time.Time `json:"ordered_at"`
}

func (o *OrderRecord) BeforeCreate(tx *gorm.DB) error {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = time.Now()
	}
	return nil
}

// MissedDemand logs an order attempt against a sold-out dish. These rows
// only feed reporting; nothing in the order flow reads them back.
type MissedDemand struct {
	gorm.Model
	UserID    int64  `gorm:"index" json:"user_id"`
	Day       string `json:"day"`
	Dish      string `json:"dish"`
	Tariff    string `json:"tariff"`
	Available int    `json:"available"`
}
