package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dkazlouski/obedbot/internal/models"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// SessionManager is the durable per-user conversation store. Every write
// goes through to the backing store so an in-flight conversation resumes
// after a restart; the cache only saves repeated reads within a turn.
type SessionManager struct {
	store storage.Store

	mu    sync.RWMutex
	cache map[int64]*models.Session
}

// NewSessionManager creates a session manager over the given store.
func NewSessionManager(store storage.Store) *SessionManager {
	return &SessionManager{
		store: store,
		cache: make(map[int64]*models.Session),
	}
}

// load returns the user's session, or nil when none exists.
func (sm *SessionManager) load(userID int64) (*models.Session, error) {
	sm.mu.RLock()
	cached, ok := sm.cache[userID]
	sm.mu.RUnlock()
	if ok {
		copied := *cached
		return &copied, nil
	}

	session, err := sm.store.GetSession(userID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	sm.cache[userID] = session
	sm.mu.Unlock()

	copied := *session
	return &copied, nil
}

func (sm *SessionManager) save(session *models.Session) error {
	if err := sm.store.SaveSession(session); err != nil {
		return err
	}
	sm.mu.Lock()
	copied := *session
	sm.cache[session.UserID] = &copied
	sm.mu.Unlock()
	return nil
}

// GetState returns the user's current state; absence of a session reads
// as the empty state.
func (sm *SessionManager) GetState(userID int64) (string, error) {
	session, err := sm.load(userID)
	if err != nil || session == nil {
		return "", err
	}
	return session.State, nil
}

// SetState moves the user to a new state, creating the session when
// needed. An empty state deletes the session.
func (sm *SessionManager) SetState(userID, chatID int64, state string) error {
	if state == "" {
		return sm.Clear(userID)
	}

	session, err := sm.load(userID)
	if err != nil {
		return err
	}
	if session == nil {
		session = &models.Session{UserID: userID}
	}
	session.ChatID = chatID
	session.State = state
	return sm.save(session)
}

// GetContext returns the user's flow context; absence reads as the zero
// context.
func (sm *SessionManager) GetContext(userID int64) (models.FlowContext, error) {
	session, err := sm.load(userID)
	if err != nil || session == nil {
		return models.FlowContext{}, err
	}
	return session.FlowContext(), nil
}

// MergeContext applies a partial update to the user's context without
// touching the state or any field the update leaves alone.
func (sm *SessionManager) MergeContext(userID, chatID int64, apply func(*models.FlowContext)) error {
	session, err := sm.load(userID)
	if err != nil {
		return err
	}
	if session == nil {
		session = &models.Session{UserID: userID}
	}
	if session.ChatID == 0 {
		session.ChatID = chatID
	}

	fc := session.FlowContext()
	apply(&fc)
	if err := session.SetFlowContext(fc); err != nil {
		return err
	}
	return sm.save(session)
}

// Clear deletes the user's session entirely.
func (sm *SessionManager) Clear(userID int64) error {
	sm.mu.Lock()
	delete(sm.cache, userID)
	sm.mu.Unlock()
	return sm.store.DeleteSession(userID)
}

// CleanupIdle drops sessions untouched since the cutoff, cache included.
func (sm *SessionManager) CleanupIdle(cutoff time.Time) {
	removed, err := sm.store.DeleteSessionsIdleSince(cutoff)
	if err != nil {
		log.Printf("Error cleaning up idle sessions: %v", err)
		return
	}

	sm.mu.Lock()
	for id, s := range sm.cache {
		if s.UpdatedAt.Before(cutoff) {
			delete(sm.cache, id)
		}
	}
	sm.mu.Unlock()

	if removed > 0 {
		log.Printf("Cleaned up %d idle sessions", removed)
	}
}

// Stats summarizes sessions for the admin surface.
type SessionStats struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
}

// GetStats reports session counts per state from the backing store.
func (sm *SessionManager) GetStats() (*SessionStats, error) {
	sessions, err := sm.store.ListSessions()
	if err != nil {
		return nil, err
	}

	stats := &SessionStats{ByState: make(map[string]int)}
	for _, s := range sessions {
		stats.Total++
		stats.ByState[s.State]++
	}
	return stats, nil
}
