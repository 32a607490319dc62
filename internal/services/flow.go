package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dkazlouski/obedbot/internal/models"
	"github.com/dkazlouski/obedbot/internal/storage"
)

// FlowMachine drives the per-user ordering conversation: it loads the
// session, validates input against the current state's guard, talks to
// the ledger at the commit point and renders the next screen through the
// card renderer.
type FlowMachine struct {
	sessions  *SessionManager
	ledger    *LedgerService
	cards     *CardRenderer
	transport ChatTransport
	store     storage.Store
	fanout    *NotificationFanout

	// A second confirm tap while a commit is in flight is rejected.
	inflightMu sync.Mutex
	inflight   map[int64]bool
}

// NewFlowMachine wires the conversation machine.
func NewFlowMachine(
	sessions *SessionManager,
	ledger *LedgerService,
	cards *CardRenderer,
	transport ChatTransport,
	store storage.Store,
	fanout *NotificationFanout,
) *FlowMachine {
	return &FlowMachine{
		sessions:  sessions,
		ledger:    ledger,
		cards:     cards,
		transport: transport,
		store:     store,
		fanout:    fanout,
		inflight:  make(map[int64]bool),
	}
}

func (f *FlowMachine) today() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// HandleUpdate is the entry point for every inbound Telegram event.
func (f *FlowMachine) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		f.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Contact != nil:
		f.handleContact(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		f.handleMessage(ctx, update.Message)
	}
}

func (f *FlowMachine) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/start") {
		f.handleStart(ctx, userID, chatID, msg.From.UserName)
		return
	}
	if strings.HasPrefix(text, "/support") {
		f.handleSupport(ctx, userID, chatID, msg.From.UserName, strings.TrimSpace(strings.TrimPrefix(text, "/support")))
		return
	}

	state, err := f.sessions.GetState(userID)
	if err != nil {
		log.Printf("Error loading state for %d: %v", userID, err)
		return
	}

	switch state {
	case models.StateAwaitingName:
		f.handleNameInput(ctx, userID, chatID, text)
	case models.StateAwaitingPhone:
		f.handlePhoneInput(ctx, userID, chatID, msg.From.UserName, text)
	case models.StateAwaitingCustomAddress:
		f.handleCustomAddressInput(ctx, userID, chatID, text)
	case models.StateAwaitingQtyManual:
		f.handleQtyManualInput(ctx, userID, chatID, text)
	default:
		// Registered users drive the flow with buttons, not text.
		f.sendText(chatID, msgUseButtons, nil)
	}
}

// handleStart checks registration and lands the user in the menu or the
// name prompt.
func (f *FlowMachine) handleStart(ctx context.Context, userID, chatID int64, username string) {
	customer, err := f.ledger.FindCustomer(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileMissing) {
		log.Printf("Error looking up customer %d: %v", userID, err)
		f.sendText(chatID, msgOrderSaveFailed, nil)
		return
	}

	if customer != nil {
		if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
			fc.Name = customer.Name
			fc.Phone = customer.Phone
			fc.Username = username
			fc.Registered = true
		}); err != nil {
			log.Printf("Error saving context for %d: %v", userID, err)
			return
		}
		if err := f.sessions.SetState(userID, chatID, models.StateMenu); err != nil {
			log.Printf("Error saving state for %d: %v", userID, err)
			return
		}
		f.sendTodayMenu(ctx, userID, chatID)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.Username = username
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateAwaitingName); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}
	f.sendText(chatID, msgAskName, nil)
}

func (f *FlowMachine) handleNameInput(ctx context.Context, userID, chatID int64, text string) {
	if !ValidName(text) {
		f.sendText(chatID, msgBadName, nil)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.Name = strings.TrimSpace(text)
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateAwaitingPhone); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}
	f.sendText(chatID, msgAskPhone, kbSendContact())
}

func (f *FlowMachine) handlePhoneInput(ctx context.Context, userID, chatID int64, username, text string) {
	phone, ok := NormalizePhone(text)
	if !ok {
		f.sendText(chatID, msgBadPhone, kbSendContact())
		return
	}
	f.completeRegistration(ctx, userID, chatID, username, phone)
}

func (f *FlowMachine) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	state, err := f.sessions.GetState(userID)
	if err != nil {
		log.Printf("Error loading state for %d: %v", userID, err)
		return
	}
	if state != models.StateAwaitingPhone {
		f.sendText(chatID, msgContactUnneeded, nil)
		return
	}

	phone, ok := NormalizePhone(msg.Contact.PhoneNumber)
	if !ok {
		phone = msg.Contact.PhoneNumber
	}
	f.completeRegistration(ctx, userID, chatID, msg.From.UserName, phone)
}

func (f *FlowMachine) completeRegistration(ctx context.Context, userID, chatID int64, username, phone string) {
	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		return
	}

	if err := f.ledger.AddCustomer(ctx, userID, fc.Name, username, phone); err != nil {
		log.Printf("Error registering customer %d: %v", userID, err)
		f.sendText(chatID, msgOrderSaveFailed, nil)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.Phone = phone
		fc.Username = username
		fc.Registered = true
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateMenu); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.sendText(chatID, msgRegistered, tgbotapi.NewRemoveKeyboard(true))
	f.sendTodayMenu(ctx, userID, chatID)
}

func (f *FlowMachine) handleCustomAddressInput(ctx context.Context, userID, chatID int64, text string) {
	if !ValidAddress(text) {
		f.sendText(chatID, msgBadAddress, nil)
		return
	}

	address := strings.TrimSpace(text)
	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenAddress = address
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateChooseTime); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}
	f.renderCard(ctx, userID, chatID, CardContent{Text: timePrompt(address), Keyboard: kbTimeSlots()})
}

func (f *FlowMachine) handleQtyManualInput(ctx context.Context, userID, chatID int64, text string) {
	qty, ok := ParseQuantity(text)
	if !ok {
		f.sendText(chatID, msgBadQty, nil)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenQty = qty
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateConfirm); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	fc, _ := f.sessions.GetContext(userID)
	f.renderCard(ctx, userID, chatID, CardContent{Text: confirmPrompt(fc), Keyboard: kbConfirm()})
}

func (f *FlowMachine) handleSupport(ctx context.Context, userID, chatID int64, username, text string) {
	if text == "" {
		f.sendText(chatID, msgSupportUsage, nil)
		return
	}

	ticket := &models.SupportTicket{UserID: userID, Username: username, Description: text}
	if err := f.store.CreateSupportTicket(ticket); err != nil {
		log.Printf("Error creating support ticket for %d: %v", userID, err)
		f.sendText(chatID, msgOrderSaveFailed, nil)
		return
	}

	go f.fanout.TicketOpened(*ticket)
	f.sendText(chatID, msgSupportAccepted, nil)
}

// Callbacks

func (f *FlowMachine) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	chatID := userID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	data := cb.Data

	switch {
	case data == cbMenuPrev || data == cbMenuNext:
		f.handleMenuNav(ctx, userID, chatID, cb.ID, data == cbMenuNext)
	case strings.HasPrefix(data, cbTariffPrefix):
		f.handleTariff(ctx, userID, chatID, cb.ID, strings.TrimPrefix(data, cbTariffPrefix))
	case data == cbAddrCustom:
		f.handleAddrCustom(ctx, userID, chatID, cb.ID)
	case strings.HasPrefix(data, cbAddrPrefix):
		f.handleAddress(ctx, userID, chatID, cb.ID, strings.TrimPrefix(data, cbAddrPrefix))
	case strings.HasPrefix(data, cbTimePrefix):
		f.handleTimeSlot(ctx, userID, chatID, cb.ID, strings.TrimPrefix(data, cbTimePrefix))
	case data == cbQtyManual:
		f.handleQtyManual(ctx, userID, chatID, cb.ID)
	case strings.HasPrefix(data, cbQtyPrefix):
		f.handleQty(ctx, userID, chatID, cb.ID, strings.TrimPrefix(data, cbQtyPrefix))
	case data == cbConfirm:
		f.handleConfirm(ctx, userID, chatID, cb.ID)
	case strings.HasPrefix(data, cbBackPrefix):
		f.handleBack(ctx, userID, chatID, cb.ID, strings.TrimPrefix(data, cbBackPrefix))
	case data == cbShowMenuAgain:
		f.answer(cb.ID, "", false)
		if err := f.sessions.SetState(userID, chatID, models.StateMenu); err == nil {
			f.sendTodayMenu(ctx, userID, chatID)
		}
	default:
		f.answer(cb.ID, "", false)
	}
}

// handleMenuNav rotates the cursor within the cached menu snapshot. The
// state does not change.
func (f *FlowMachine) handleMenuNav(ctx context.Context, userID, chatID int64, cbID string, forward bool) {
	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		return
	}
	if len(fc.Menu) == 0 {
		f.answer(cbID, msgMenuEmpty, false)
		return
	}
	if len(fc.Menu) == 1 {
		f.answer(cbID, msgSingleDish, false)
		return
	}

	step := 1
	if !forward {
		step = -1
	}
	idx := (fc.MenuIdx + step + len(fc.Menu)) % len(fc.Menu)
	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.MenuIdx = idx
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderMenuCard(ctx, userID, chatID)
}

// handleTariff runs the non-committing availability check and moves to
// address selection.
func (f *FlowMachine) handleTariff(ctx context.Context, userID, chatID int64, cbID, code string) {
	state, _ := f.sessions.GetState(userID)
	if state != models.StateMenu {
		f.answer(cbID, "", false)
		return
	}

	tariff, ok := models.TariffByCode(code)
	if !ok {
		f.answer(cbID, "", false)
		return
	}

	fc, err := f.sessions.GetContext(userID)
	if err != nil || len(fc.Menu) == 0 {
		f.answer(cbID, msgMenuEmpty, false)
		return
	}
	idx := fc.MenuIdx
	if idx < 0 || idx >= len(fc.Menu) {
		idx = 0
	}
	dish := fc.Menu[idx].Dish

	available, err := f.ledger.Availability(ctx, f.today(), dish)
	if errors.Is(err, ErrMenuRowNotFound) {
		f.answer(cbID, msgRowMissing, true)
		return
	}
	if err != nil {
		log.Printf("Error checking availability for %q: %v", dish, err)
		f.answer(cbID, msgOrderSaveFailed, true)
		return
	}
	if available <= 0 {
		f.answer(cbID, msgDishGone, true)
		f.logMissedDemand(userID, dish, tariff.Code, available)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenDish = dish
		fc.ChosenTariff = tariff.Code
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateChooseAddress); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: addressPrompt(dish), Keyboard: kbAddresses()})
}

func (f *FlowMachine) handleAddress(ctx context.Context, userID, chatID int64, cbID, address string) {
	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenAddress = address
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateChooseTime); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: timePrompt(address), Keyboard: kbTimeSlots()})
}

func (f *FlowMachine) handleAddrCustom(ctx context.Context, userID, chatID int64, cbID string) {
	if err := f.sessions.SetState(userID, chatID, models.StateAwaitingCustomAddress); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: msgAskCustomAddress, Keyboard: kbAddresses()})
}

func (f *FlowMachine) handleTimeSlot(ctx context.Context, userID, chatID int64, cbID, slot string) {
	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenTime = slot
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateChooseQty); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: qtyPrompt(slot), Keyboard: kbQuantities()})
}

func (f *FlowMachine) handleQty(ctx context.Context, userID, chatID int64, cbID, raw string) {
	qty, ok := ParseQuantity(raw)
	if !ok {
		f.answer(cbID, msgBadQty, false)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenQty = qty
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}
	if err := f.sessions.SetState(userID, chatID, models.StateConfirm); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	fc, _ := f.sessions.GetContext(userID)
	f.renderCard(ctx, userID, chatID, CardContent{Text: confirmPrompt(fc), Keyboard: kbConfirm()})
}

func (f *FlowMachine) handleQtyManual(ctx context.Context, userID, chatID int64, cbID string) {
	if err := f.sessions.SetState(userID, chatID, models.StateAwaitingQtyManual); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: msgAskQtyManual, Keyboard: kbQuantities()})
}

// handleBack moves to an explicitly named prior state. Context is never
// discarded; downstream selections are overwritten on the next pass.
func (f *FlowMachine) handleBack(ctx context.Context, userID, chatID int64, cbID, target string) {
	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		return
	}

	f.answer(cbID, "", false)

	switch target {
	case "addr":
		if err := f.sessions.SetState(userID, chatID, models.StateChooseAddress); err == nil {
			f.renderCard(ctx, userID, chatID, CardContent{Text: addressPrompt(fc.ChosenDish), Keyboard: kbAddresses()})
		}
	case "time":
		if err := f.sessions.SetState(userID, chatID, models.StateChooseTime); err == nil {
			f.renderCard(ctx, userID, chatID, CardContent{Text: timePrompt(fc.ChosenAddress), Keyboard: kbTimeSlots()})
		}
	case "qty":
		if err := f.sessions.SetState(userID, chatID, models.StateChooseQty); err == nil {
			f.renderCard(ctx, userID, chatID, CardContent{Text: qtyPrompt(fc.ChosenTime), Keyboard: kbQuantities()})
		}
	default: // "menu"
		if err := f.sessions.SetState(userID, chatID, models.StateMenu); err == nil {
			f.renderMenuCard(ctx, userID, chatID)
		}
	}
}

// Commit protocol

// handleConfirm runs the reservation saga exactly once per press. The
// ledger decrement and the order record either both happen or neither
// does; peripheral pushes after the commit never affect the outcome.
func (f *FlowMachine) handleConfirm(ctx context.Context, userID, chatID int64, cbID string) {
	state, _ := f.sessions.GetState(userID)
	if state != models.StateConfirm {
		f.answer(cbID, "", false)
		return
	}

	f.inflightMu.Lock()
	if f.inflight[userID] {
		f.inflightMu.Unlock()
		f.answer(cbID, msgConfirmBusy, false)
		return
	}
	f.inflight[userID] = true
	f.inflightMu.Unlock()
	defer func() {
		f.inflightMu.Lock()
		delete(f.inflight, userID)
		f.inflightMu.Unlock()
	}()

	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		f.answer(cbID, msgOrderSaveFailed, true)
		return
	}
	qty := fc.ChosenQty
	if qty <= 0 {
		qty = 1
	}
	day := f.today()

	// Step 1: reserve
	err = f.ledger.Reserve(ctx, day, fc.ChosenDish, qty)
	var insufficient *InsufficientInventoryError
	switch {
	case errors.As(err, &insufficient):
		f.answer(cbID, msgDishGone, true)
		f.logMissedDemand(userID, fc.ChosenDish, fc.ChosenTariff, insufficient.Available)
		f.backToMenu(ctx, userID, chatID)
		return
	case errors.Is(err, ErrMenuRowNotFound):
		f.answer(cbID, msgRowMissing, true)
		f.backToMenu(ctx, userID, chatID)
		return
	case err != nil:
		log.Printf("Error reserving %q for %d: %v", fc.ChosenDish, userID, err)
		f.answer(cbID, msgOrderSaveFailed, true)
		return
	}

	// Step 2: customer profile, compensating on failure
	customer, err := f.ledger.FindCustomer(ctx, userID)
	if err != nil {
		f.release(day, fc.ChosenDish, qty)
		f.answer(cbID, msgProfileMissing, true)
		if err := f.sessions.Clear(userID); err != nil {
			log.Printf("Error clearing session for %d: %v", userID, err)
		}
		f.sendText(chatID, msgProfileError, nil)
		return
	}

	// Step 3: append the order record, compensating on failure
	tariffTitle := fc.ChosenTariff
	paymentLabel := ""
	dishText := fc.ChosenDish
	if tariff, ok := models.TariffByCode(fc.ChosenTariff); ok {
		tariffTitle = tariff.Title
		paymentLabel = tariff.PaymentLabel
		if described := tariff.Describe(models.ParseComposition(fc.ChosenDish)); described != "" {
			dishText = described
		}
	}

	orderRow := OrderRow{
		UserID:       userID,
		Name:         customer.Name,
		Phone:        customer.Phone,
		Dish:         dishText,
		Tariff:       tariffTitle,
		Address:      fc.ChosenAddress,
		TimeSlot:     fc.ChosenTime,
		Quantity:     qty,
		PaymentLabel: paymentLabel,
	}
	if err := f.ledger.AppendOrder(ctx, orderRow); err != nil {
		log.Printf("Error appending order for %d: %v", userID, err)
		f.release(day, fc.ChosenDish, qty)
		f.answer(cbID, msgOrderSaveFailed, true)
		return
	}

	// Step 4: fire-and-forget peripherals
	record := models.OrderRecord{
		UserID:       userID,
		Name:         customer.Name,
		Phone:        customer.Phone,
		Dish:         dishText,
		Tariff:       tariffTitle,
		Address:      fc.ChosenAddress,
		TimeSlot:     fc.ChosenTime,
		Quantity:     qty,
		PaymentLabel: paymentLabel,
		OrderedAt:    time.Now(),
	}
	go f.fanout.OrderCommitted(record)

	f.answer(cbID, "", false)
	f.renderCard(ctx, userID, chatID, CardContent{Text: msgOrderAccepted, Keyboard: kbShowMenuAgain()})

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.ChosenDish = ""
		fc.ChosenTariff = ""
		fc.ChosenAddress = ""
		fc.ChosenTime = ""
		fc.ChosenQty = 0
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
	}
	if err := f.sessions.SetState(userID, chatID, models.StateMenu); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
	}
}

// release compensates a reservation. It runs on a fresh context so the
// rollback still happens when the inbound request's context is done.
func (f *FlowMachine) release(day, dish string, qty int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.ledger.Release(ctx, day, dish, qty); err != nil {
		log.Printf("❌ Failed to release %d × %q: %v", qty, dish, err)
	}
}

func (f *FlowMachine) backToMenu(ctx context.Context, userID, chatID int64) {
	if err := f.sessions.SetState(userID, chatID, models.StateMenu); err != nil {
		log.Printf("Error saving state for %d: %v", userID, err)
		return
	}
	f.sendTodayMenu(ctx, userID, chatID)
}

func (f *FlowMachine) logMissedDemand(userID int64, dish, tariff string, available int) {
	md := &models.MissedDemand{
		UserID:    userID,
		Day:       ExtractDate(f.today()),
		Dish:      dish,
		Tariff:    tariff,
		Available: available,
	}
	if err := f.store.CreateMissedDemand(md); err != nil {
		log.Printf("Error logging missed demand: %v", err)
	}
}

// Rendering helpers

// sendTodayMenu refreshes the menu snapshot and shows the current item.
func (f *FlowMachine) sendTodayMenu(ctx context.Context, userID, chatID int64) {
	menu, err := f.ledger.MenuForDay(ctx, f.today())
	if err != nil {
		log.Printf("Error loading menu: %v", err)
		f.sendText(chatID, msgMenuEmpty, nil)
		return
	}

	if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
		fc.Menu = menu
		fc.MenuIdx = 0
	}); err != nil {
		log.Printf("Error saving context for %d: %v", userID, err)
		return
	}

	if len(menu) == 0 {
		f.sendText(chatID, msgMenuEmpty, nil)
		return
	}
	f.renderMenuCard(ctx, userID, chatID)
}

// renderMenuCard shows the menu item under the cursor on the card.
func (f *FlowMachine) renderMenuCard(ctx context.Context, userID, chatID int64) {
	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		return
	}
	if len(fc.Menu) == 0 {
		f.sendText(chatID, msgMenuEmpty, nil)
		return
	}

	idx := fc.MenuIdx
	if idx < 0 || idx >= len(fc.Menu) {
		idx = 0
	}
	item := fc.Menu[idx]

	f.renderCard(ctx, userID, chatID, CardContent{
		Text:     menuCaption(item),
		PhotoURL: item.PhotoURL,
		Keyboard: kbMenuNavigation(len(fc.Menu) > 1),
	})
}

// renderCard reconciles the live card with the desired content and
// persists the new card identity.
func (f *FlowMachine) renderCard(ctx context.Context, userID, chatID int64, content CardContent) {
	fc, err := f.sessions.GetContext(userID)
	if err != nil {
		log.Printf("Error loading context for %d: %v", userID, err)
		return
	}

	prev := CardState{MessageID: fc.CardMessageID, Kind: fc.CardKind}
	next, err := f.cards.Render(ctx, chatID, prev, content)
	if err != nil {
		log.Printf("Error rendering card for %d: %v", userID, err)
		return
	}

	if next != prev {
		if err := f.sessions.MergeContext(userID, chatID, func(fc *models.FlowContext) {
			fc.CardMessageID = next.MessageID
			fc.CardKind = next.Kind
		}); err != nil {
			log.Printf("Error saving context for %d: %v", userID, err)
		}
	}
}

func (f *FlowMachine) sendText(chatID int64, text string, markup interface{}) {
	if _, err := f.transport.SendText(chatID, text, markup); err != nil {
		log.Printf("❌ Failed to send message to %d: %v", chatID, err)
	}
}

func (f *FlowMachine) answer(cbID, text string, alert bool) {
	if cbID == "" {
		return
	}
	if err := f.transport.AnswerCallback(cbID, text, alert); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}
