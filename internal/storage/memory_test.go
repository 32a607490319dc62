package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkazlouski/obedbot/internal/models"
)

func TestSessionCRUD(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetSession(100)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session := &models.Session{UserID: 100, ChatID: 200, State: models.StateMenu}
	require.NoError(t, store.SaveSession(session))
	assert.False(t, session.UpdatedAt.IsZero())

	got, err := store.GetSession(100)
	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, got.State)
	assert.Equal(t, int64(200), got.ChatID)

	// Update keeps CreatedAt
	created := session.CreatedAt
	session.State = models.StateConfirm
	require.NoError(t, store.SaveSession(session))
	got, err = store.GetSession(100)
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirm, got.State)
	assert.Equal(t, created, got.CreatedAt)

	require.NoError(t, store.DeleteSession(100))
	_, err = store.GetSession(100)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSessionReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveSession(&models.Session{UserID: 100, State: models.StateMenu}))

	got, err := store.GetSession(100)
	require.NoError(t, err)
	got.State = models.StateConfirm

	again, err := store.GetSession(100)
	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, again.State)
}

func TestListSessionsSorted(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []int64{300, 100, 200} {
		require.NoError(t, store.SaveSession(&models.Session{UserID: id}))
	}

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, int64(100), sessions[0].UserID)
	assert.Equal(t, int64(200), sessions[1].UserID)
	assert.Equal(t, int64(300), sessions[2].UserID)
}

func TestDeleteSessionsIdleSince(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveSession(&models.Session{UserID: 100}))
	require.NoError(t, store.SaveSession(&models.Session{UserID: 200}))

	removed, err := store.DeleteSessionsIdleSince(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = store.DeleteSessionsIdleSince(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestOrderMirror(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.CreateOrder(&models.OrderRecord{UserID: 100, Dish: "Борщ", Quantity: 2}))
	require.NoError(t, store.CreateOrder(&models.OrderRecord{UserID: 200, Dish: "Плов", Quantity: 1}))

	orders, err := store.GetOrdersByUser(100)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Борщ", orders[0].Dish)
	assert.NotEmpty(t, orders[0].OrderID)
	assert.False(t, orders[0].OrderedAt.IsZero())

	all, err := store.ListOrders(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := store.ListOrders(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Плов", limited[0].Dish)
}

func TestMissedDemand(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.CreateMissedDemand(&models.MissedDemand{UserID: 100, Dish: "Борщ", Available: 0}))

	missed, err := store.ListMissedDemand(0)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, "Борщ", missed[0].Dish)
}

func TestSupportTickets(t *testing.T) {
	store := NewMemoryStore()

	ticket := &models.SupportTicket{UserID: 100, Username: "ivan", Description: "не пришёл заказ"}
	require.NoError(t, store.CreateSupportTicket(ticket))
	assert.NotEmpty(t, ticket.TicketID)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)

	closed := &models.SupportTicket{UserID: 200, Description: "решено", Status: models.TicketStatusClosed}
	require.NoError(t, store.CreateSupportTicket(closed))

	open, err := store.ListOpenSupportTickets()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(100), open[0].UserID)
}
