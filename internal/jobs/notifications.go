package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dkazlouski/obedbot/internal/models"
	"github.com/dkazlouski/obedbot/internal/services"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// NotificationJob runs the scheduled background work: the daily menu
// broadcast and the idle-session cleanup.
type NotificationJob struct {
	store     storage.Store
	ledger    *services.LedgerService
	sessions  *services.SessionManager
	transport services.ChatTransport
	isRunning bool

	broadcastHour int
	sessionTTL    time.Duration
}

// NewNotificationJob creates a new notification job scheduler
func NewNotificationJob(
	store storage.Store,
	ledger *services.LedgerService,
	sessions *services.SessionManager,
	transport services.ChatTransport,
) *NotificationJob {
	broadcastHour := 10
	if h, err := strconv.Atoi(os.Getenv("BROADCAST_HOUR")); err == nil && h >= 0 && h < 24 {
		broadcastHour = h
	}

	return &NotificationJob{
		store:         store,
		ledger:        ledger,
		sessions:      sessions,
		transport:     transport,
		broadcastHour: broadcastHour,
		sessionTTL:    72 * time.Hour,
	}
}

// Start begins all scheduled jobs
func (n *NotificationJob) Start() {
	if n.isRunning {
		log.Println("Notification jobs already running")
		return
	}

	n.isRunning = true
	log.Println("Starting scheduled notification jobs...")

	go n.scheduleMenuBroadcast()
	go n.scheduleSessionCleanup()

	log.Println("All notification jobs started successfully")
}

// Stop halts all scheduled jobs
func (n *NotificationJob) Stop() {
	n.isRunning = false
	log.Println("Stopping scheduled notification jobs...")
}

// MENU BROADCAST - Runs daily at the configured hour
func (n *NotificationJob) scheduleMenuBroadcast() {
	for n.isRunning {
		now := time.Now()
		nextRun := time.Date(now.Year(), now.Month(), now.Day(), n.broadcastHour, 0, 0, 0, now.Location())
		if !nextRun.After(now) {
			nextRun = nextRun.AddDate(0, 0, 1)
		}
		duration := nextRun.Sub(now)

		log.Printf("Next menu broadcast scheduled in %v", duration)
		time.Sleep(duration)

		if !n.isRunning {
			break
		}

		n.sendMenuBroadcast()
	}
}

// sendMenuBroadcast announces today's menu to every registered user with
// a known chat.
func (n *NotificationJob) sendMenuBroadcast() {
	log.Println("Sending menu broadcast...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	day := time.Now().Format("2006-01-02 15:04:05")
	menu, err := n.ledger.MenuForDay(ctx, day)
	if err != nil {
		log.Printf("Error loading menu for broadcast: %v", err)
		return
	}
	if len(menu) == 0 {
		log.Println("No menu for today, skipping broadcast")
		return
	}

	text := "<b>Меню на сегодня</b> 🍲\n"
	for _, item := range menu {
		text += fmt.Sprintf("\n• %s (доступно: %d)", item.Dish, item.Quantity)
	}
	text += "\n\nОтправь /start, чтобы сделать заказ!"

	sessions, err := n.store.ListSessions()
	if err != nil {
		log.Printf("Error listing sessions for broadcast: %v", err)
		return
	}

	sentCount := 0
	for _, s := range sessions {
		if s.ChatID == 0 || !s.FlowContext().Registered {
			continue
		}
		if s.State != models.StateMenu && s.State != "" {
			// Don't interrupt someone mid-flow
			continue
		}
		if _, err := n.transport.SendText(s.ChatID, text, nil); err != nil {
			log.Printf("Error broadcasting to chat %d: %v", s.ChatID, err)
			continue
		}
		sentCount++
	}

	log.Printf("Menu broadcast sent to %d users", sentCount)
}

// SESSION CLEANUP - Runs hourly
func (n *NotificationJob) scheduleSessionCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if !n.isRunning {
			return
		}
		n.sessions.CleanupIdle(time.Now().Add(-n.sessionTTL))
	}
}
