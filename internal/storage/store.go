package storage

import (
	"errors"
	"time"

	"github.com/dkazlouski/obedbot/internal/models"
)

// ErrSessionNotFound is returned when a user has no persisted session.
var ErrSessionNotFound = errors.New("session not found")

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Session operations
	GetSession(userID int64) (*models.Session, error)
	SaveSession(session *models.Session) error
	DeleteSession(userID int64) error
	ListSessions() ([]*models.Session, error)
	DeleteSessionsIdleSince(cutoff time.Time) (int64, error)

	// Order mirror operations
	CreateOrder(order *models.OrderRecord) error
	GetOrdersByUser(userID int64) ([]*models.OrderRecord, error)
	ListOrders(limit int) ([]*models.OrderRecord, error)

	// Missed demand operations
	CreateMissedDemand(md *models.MissedDemand) error
	ListMissedDemand(limit int) ([]*models.MissedDemand, error)

	// Support operations
	CreateSupportTicket(ticket *models.SupportTicket) error
	ListOpenSupportTickets() ([]*models.SupportTicket, error)
}
