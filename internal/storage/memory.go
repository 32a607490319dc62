package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkazlouski/obedbot/internal/models"
)

// MemoryStore holds all data in memory, for tests and local runs
type MemoryStore struct {
	sessions map[int64]*models.Session
	orders   []*models.OrderRecord
	missed   []*models.MissedDemand
	tickets  []*models.SupportTicket

	sessionMu sync.RWMutex
	orderMu   sync.RWMutex
	missedMu  sync.RWMutex
	ticketMu  sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*models.Session),
	}
}

// Session operations

func (m *MemoryStore) GetSession(userID int64) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[userID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) SaveSession(session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	now := time.Now()
	if existing, ok := m.sessions[session.UserID]; ok {
		session.CreatedAt = existing.CreatedAt
	} else {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	copied := *session
	m.sessions[session.UserID] = &copied
	return nil
}

func (m *MemoryStore) DeleteSession(userID int64) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) ListSessions() ([]*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	sessions := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		copied := *s
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UserID < sessions[j].UserID })
	return sessions, nil
}

func (m *MemoryStore) DeleteSessionsIdleSince(cutoff time.Time) (int64, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	var removed int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Order mirror operations

func (m *MemoryStore) CreateOrder(order *models.OrderRecord) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	if order.OrderedAt.IsZero() {
		order.OrderedAt = time.Now()
	}
	copied := *order
	m.orders = append(m.orders, &copied)
	return nil
}

func (m *MemoryStore) GetOrdersByUser(userID int64) ([]*models.OrderRecord, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var result []*models.OrderRecord
	for _, o := range m.orders {
		if o.UserID == userID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListOrders(limit int) ([]*models.OrderRecord, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	result := make([]*models.OrderRecord, 0, len(m.orders))
	for _, o := range m.orders {
		copied := *o
		result = append(result, &copied)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// Missed demand operations

func (m *MemoryStore) CreateMissedDemand(md *models.MissedDemand) error {
	m.missedMu.Lock()
	defer m.missedMu.Unlock()

	copied := *md
	m.missed = append(m.missed, &copied)
	return nil
}

func (m *MemoryStore) ListMissedDemand(limit int) ([]*models.MissedDemand, error) {
	m.missedMu.RLock()
	defer m.missedMu.RUnlock()

	result := make([]*models.MissedDemand, 0, len(m.missed))
	for _, md := range m.missed {
		copied := *md
		result = append(result, &copied)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// Support operations

func (m *MemoryStore) CreateSupportTicket(ticket *models.SupportTicket) error {
	m.ticketMu.Lock()
	defer m.ticketMu.Unlock()

	if ticket.TicketID == "" {
		ticket.TicketID = uuid.NewString()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	copied := *ticket
	m.tickets = append(m.tickets, &copied)
	return nil
}

func (m *MemoryStore) ListOpenSupportTickets() ([]*models.SupportTicket, error) {
	m.ticketMu.RLock()
	defer m.ticketMu.RUnlock()

	var result []*models.SupportTicket
	for _, t := range m.tickets {
		if t.Status == models.TicketStatusOpen {
			copied := *t
			result = append(result, &copied)
		}
	}
	return result, nil
}
