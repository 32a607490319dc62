package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dkazlouski/obedbot/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Session operations

func (d *DatabaseStore) GetSession(userID int64) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("user_id = ?", userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) SaveSession(session *models.Session) error {
	return d.db.Save(session).Error
}

func (d *DatabaseStore) DeleteSession(userID int64) error {
	return d.db.Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

func (d *DatabaseStore) ListSessions() ([]*models.Session, error) {
	var sessions []*models.Session
	err := d.db.Order("user_id").Find(&sessions).Error
	return sessions, err
}

func (d *DatabaseStore) DeleteSessionsIdleSince(cutoff time.Time) (int64, error) {
	res := d.db.Where("updated_at < ?", cutoff).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// Order mirror operations

func (d *DatabaseStore) CreateOrder(order *models.OrderRecord) error {
	return d.db.Create(order).Error
}

func (d *DatabaseStore) GetOrdersByUser(userID int64) ([]*models.OrderRecord, error) {
	var orders []*models.OrderRecord
	err := d.db.Where("user_id = ?", userID).Order("ordered_at").Find(&orders).Error
	return orders, err
}

func (d *DatabaseStore) ListOrders(limit int) ([]*models.OrderRecord, error) {
	var orders []*models.OrderRecord
	q := d.db.Order("ordered_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&orders).Error
	return orders, err
}

// Missed demand operations

func (d *DatabaseStore) CreateMissedDemand(md *models.MissedDemand) error {
	return d.db.Create(md).Error
}

func (d *DatabaseStore) ListMissedDemand(limit int) ([]*models.MissedDemand, error) {
	var missed []*models.MissedDemand
	q := d.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&missed).Error
	return missed, err
}

// Support operations

func (d *DatabaseStore) CreateSupportTicket(ticket *models.SupportTicket) error {
	return d.db.Create(ticket).Error
}

func (d *DatabaseStore) ListOpenSupportTickets() ([]*models.SupportTicket, error) {
	var tickets []*models.SupportTicket
	err := d.db.Where("status = ?", models.TicketStatusOpen).Order("created_at").Find(&tickets).Error
	return tickets, err
}
