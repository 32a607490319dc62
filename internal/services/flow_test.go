package services

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkazlouski/obedbot/internal/models"
	"github.com/dkazlouski/obedbot/internal/storage"
)

const (
	testUserID int64 = 100
	testChatID int64 = 200
)

type flowFixture struct {
	sheets    *fakeSheetClient
	transport *fakeTransport
	store     *storage.MemoryStore
	sessions  *SessionManager
	flow      *FlowMachine
}

func newFlowFixture() *flowFixture {
	sheets := newFakeSheetClient()
	transport := newFakeTransport()
	store := storage.NewMemoryStore()
	sessions := NewSessionManager(store)

	cards := NewCardRenderer(transport)
	cards.fetch = func(context.Context, string) ([]byte, error) {
		return nil, errors.New("no image fetch in tests")
	}

	flow := NewFlowMachine(sessions, NewLedgerService(sheets), cards, transport, store, NewNotificationFanout(store, nil))
	return &flowFixture{
		sheets:    sheets,
		transport: transport,
		store:     store,
		sessions:  sessions,
		flow:      flow,
	}
}

func (fx *flowFixture) text(text string) {
	fx.flow.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: testUserID, UserName: "ivan"},
			Chat: &tgbotapi.Chat{ID: testChatID},
			Text: text,
		},
	})
}

func (fx *flowFixture) contact(phone string) {
	fx.flow.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:    &tgbotapi.User{ID: testUserID, UserName: "ivan"},
			Chat:    &tgbotapi.Chat{ID: testChatID},
			Contact: &tgbotapi.Contact{PhoneNumber: phone},
		},
	})
}

func (fx *flowFixture) callback(data string) {
	fx.flow.HandleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: testUserID, UserName: "ivan"},
			Message: &tgbotapi.Message{
				Chat: &tgbotapi.Chat{ID: testChatID},
			},
			Data: data,
		},
	})
}

func (fx *flowFixture) state(t *testing.T) string {
	t.Helper()
	state, err := fx.sessions.GetState(testUserID)
	require.NoError(t, err)
	return state
}

func (fx *flowFixture) ctx(t *testing.T) models.FlowContext {
	t.Helper()
	fc, err := fx.sessions.GetContext(testUserID)
	require.NoError(t, err)
	return fc
}

// seedRegistered puts the user in the clients sheet and a menu on the
// menu sheet, then lands them in the menu via /start.
func (fx *flowFixture) seedRegistered(t *testing.T, menuRows ...[]string) {
	t.Helper()
	seedClients(fx.sheets, []string{"100", "Иван Иванов", "ivan", "+79261234567"})
	seedMenu(fx.sheets, menuRows...)
	fx.sheets.setSheet(SheetOrders, nil)

	fx.text("/start")
	require.Equal(t, models.StateMenu, fx.state(t))
}

func TestRegistrationFlow(t *testing.T) {
	fx := newFlowFixture()
	seedClients(fx.sheets)
	seedMenu(fx.sheets, []string{todayISO(), "Борщ", "", "10"})

	fx.text("/start")
	assert.Equal(t, models.StateAwaitingName, fx.state(t))

	// One token is not a name; state holds
	fx.text("Иван")
	assert.Equal(t, models.StateAwaitingName, fx.state(t))
	assert.Equal(t, msgBadName, fx.transport.lastText())

	fx.text("Иван Иванов")
	assert.Equal(t, models.StateAwaitingPhone, fx.state(t))

	fx.text("12")
	assert.Equal(t, models.StateAwaitingPhone, fx.state(t))

	fx.text("89261234567")
	assert.Equal(t, models.StateMenu, fx.state(t))

	row := fx.sheets.lastRow(SheetClients)
	require.NotNil(t, row)
	assert.Equal(t, "100", row[0])
	assert.Equal(t, "Иван Иванов", row[1])
	assert.Equal(t, "+79261234567", row[3])

	fc := fx.ctx(t)
	assert.True(t, fc.Registered)
	assert.Equal(t, "Иван Иванов", fc.Name)
}

func TestRegistrationViaContactButton(t *testing.T) {
	fx := newFlowFixture()
	seedClients(fx.sheets)
	seedMenu(fx.sheets, []string{todayISO(), "Борщ", "", "10"})

	fx.text("/start")
	fx.text("Иван Иванов")
	require.Equal(t, models.StateAwaitingPhone, fx.state(t))

	fx.contact("375333777308")
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Equal(t, "+375333777308", fx.sheets.lastRow(SheetClients)[3])
}

func TestContactOutsidePhoneStep(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.contact("+79261234567")
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Equal(t, msgContactUnneeded, fx.transport.lastText())
}

func TestStartForRegisteredUserSkipsRegistration(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fc := fx.ctx(t)
	assert.True(t, fc.Registered)
	assert.Equal(t, "Иван Иванов", fc.Name)
	assert.Len(t, fc.Menu, 1)
}

func TestMenuCursorWrapsAround(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t,
		[]string{todayISO(), "Борщ", "", "10"},
		[]string{todayISO(), "Плов", "", "5"},
		[]string{todayISO(), "Салат", "", "3"},
	)

	fx.callback(cbMenuNext)
	assert.Equal(t, 1, fx.ctx(t).MenuIdx)

	fx.callback(cbMenuPrev)
	fx.callback(cbMenuPrev)
	assert.Equal(t, 2, fx.ctx(t).MenuIdx)

	fx.callback(cbMenuNext)
	assert.Equal(t, 0, fx.ctx(t).MenuIdx)
}

func TestMenuNavSingleDish(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbMenuNext)
	assert.Equal(t, 0, fx.ctx(t).MenuIdx)
	assert.Contains(t, fx.transport.answers, msgSingleDish)
}

func TestTariffWithZeroAvailability(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "0"})

	fx.callback(cbTariffPrefix + "full")

	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Contains(t, fx.transport.alerts, msgDishGone)

	missed, err := fx.store.ListMissedDemand(0)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, "Борщ", missed[0].Dish)
	assert.Equal(t, "full", missed[0].Tariff)
	assert.Equal(t, 0, missed[0].Available)
}

func TestTariffIgnoredOutsideMenuState(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})
	fx.callback(cbTariffPrefix + "full")
	require.Equal(t, models.StateChooseAddress, fx.state(t))

	// A stale tariff tap from the old keyboard changes nothing
	fx.callback(cbTariffPrefix + "light")
	assert.Equal(t, models.StateChooseAddress, fx.state(t))
	assert.Equal(t, "full", fx.ctx(t).ChosenTariff)
}

func TestOrderHappyPath(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbTariffPrefix + "full")
	assert.Equal(t, models.StateChooseAddress, fx.state(t))

	fx.callback(cbAddrPrefix + "Цельсий")
	assert.Equal(t, models.StateChooseTime, fx.state(t))

	fx.callback(cbTimePrefix + "12-13")
	assert.Equal(t, models.StateChooseQty, fx.state(t))

	fx.callback(cbQtyPrefix + "2")
	assert.Equal(t, models.StateConfirm, fx.state(t))
	assert.Equal(t, 2, fx.ctx(t).ChosenQty)

	fx.callback(cbConfirm)

	// Reservation decremented and the order row written
	assert.Equal(t, "8", fx.sheets.cell(SheetMenu, 2, 4))
	order := fx.sheets.lastRow(SheetOrders)
	require.Len(t, order, 10)
	assert.Equal(t, "100", order[1])
	assert.Equal(t, "Иван Иванов", order[2])
	assert.Equal(t, "Полный обед", order[5])
	assert.Equal(t, "Цельсий", order[6])
	assert.Equal(t, "12-13", order[7])
	assert.Equal(t, "2", order[8])

	// Back in the menu with the selections cleared
	assert.Equal(t, models.StateMenu, fx.state(t))
	fc := fx.ctx(t)
	assert.Empty(t, fc.ChosenDish)
	assert.Empty(t, fc.ChosenAddress)
	assert.Zero(t, fc.ChosenQty)

	// The peripheral order mirror lands asynchronously
	assert.Eventually(t, func() bool {
		orders, err := fx.store.ListOrders(0)
		return err == nil && len(orders) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCustomAddressFlow(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbTariffPrefix + "standard")
	fx.callback(cbAddrCustom)
	assert.Equal(t, models.StateAwaitingCustomAddress, fx.state(t))

	fx.text("дом")
	assert.Equal(t, models.StateAwaitingCustomAddress, fx.state(t))
	assert.Equal(t, msgBadAddress, fx.transport.lastText())

	fx.text("ул. Ленина 5, кв. 3")
	assert.Equal(t, models.StateChooseTime, fx.state(t))
	assert.Equal(t, "ул. Ленина 5, кв. 3", fx.ctx(t).ChosenAddress)
}

func TestManualQuantityFlow(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "100"})

	fx.callback(cbTariffPrefix + "full")
	fx.callback(cbAddrPrefix + "Цельсий")
	fx.callback(cbTimePrefix + "12-13")
	fx.callback(cbQtyManual)
	assert.Equal(t, models.StateAwaitingQtyManual, fx.state(t))

	fx.text("сорок два")
	assert.Equal(t, models.StateAwaitingQtyManual, fx.state(t))

	fx.text("42")
	assert.Equal(t, models.StateConfirm, fx.state(t))
	assert.Equal(t, 42, fx.ctx(t).ChosenQty)
}

func TestBackNavigationKeepsContext(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbTariffPrefix + "full")
	fx.callback(cbAddrPrefix + "Цельсий")
	fx.callback(cbTimePrefix + "12-13")
	require.Equal(t, models.StateChooseQty, fx.state(t))

	fx.callback(cbBackPrefix + "time")
	assert.Equal(t, models.StateChooseTime, fx.state(t))

	fx.callback(cbBackPrefix + "addr")
	assert.Equal(t, models.StateChooseAddress, fx.state(t))

	// Nothing collected so far is discarded
	fc := fx.ctx(t)
	assert.Equal(t, "Борщ", fc.ChosenDish)
	assert.Equal(t, "Цельсий", fc.ChosenAddress)
	assert.Equal(t, "12-13", fc.ChosenTime)

	fx.callback(cbBackPrefix + "menu")
	assert.Equal(t, models.StateMenu, fx.state(t))
}

func TestConfirmIgnoredOutsideConfirmState(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbConfirm)
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Equal(t, "10", fx.sheets.cell(SheetMenu, 2, 4))
	assert.Equal(t, 0, fx.sheets.rowCount(SheetOrders))
}

func TestConfirmInsufficientInventory(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "1"})

	fx.callback(cbTariffPrefix + "full")
	fx.callback(cbAddrPrefix + "Цельсий")
	fx.callback(cbTimePrefix + "12-13")
	fx.callback(cbQtyPrefix + "3")
	require.Equal(t, models.StateConfirm, fx.state(t))

	fx.callback(cbConfirm)

	// No mutation, no order; back to the menu with demand recorded
	assert.Equal(t, "1", fx.sheets.cell(SheetMenu, 2, 4))
	assert.Equal(t, 0, fx.sheets.rowCount(SheetOrders))
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Contains(t, fx.transport.alerts, msgDishGone)

	missed, err := fx.store.ListMissedDemand(0)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, 1, missed[0].Available)
}

func TestConfirmCompensatesFailedOrderAppend(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbTariffPrefix + "full")
	fx.callback(cbAddrPrefix + "Цельсий")
	fx.callback(cbTimePrefix + "12-13")
	fx.callback(cbQtyPrefix + "2")

	fx.sheets.appendErr = errors.New("sheet unavailable")
	fx.callback(cbConfirm)

	// The reservation is rolled back and the user can retry
	assert.Equal(t, "10", fx.sheets.cell(SheetMenu, 2, 4))
	assert.Equal(t, models.StateConfirm, fx.state(t))
	assert.Contains(t, fx.transport.alerts, msgOrderSaveFailed)

	fx.sheets.appendErr = nil
	fx.callback(cbConfirm)
	assert.Equal(t, "8", fx.sheets.cell(SheetMenu, 2, 4))
	assert.Equal(t, 1, fx.sheets.rowCount(SheetOrders))
}

func TestConfirmDoubleTapRejectedWhileInFlight(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbTariffPrefix + "full")
	fx.callback(cbAddrPrefix + "Цельсий")
	fx.callback(cbTimePrefix + "12-13")
	fx.callback(cbQtyPrefix + "1")
	require.Equal(t, models.StateConfirm, fx.state(t))

	// Fire a second confirm in the middle of the first one's write
	fx.sheets.beforeUpdate = func() {
		fx.sheets.beforeUpdate = nil
		fx.callback(cbConfirm)
	}
	fx.callback(cbConfirm)

	assert.Contains(t, fx.transport.answers, msgConfirmBusy)
	assert.Equal(t, "9", fx.sheets.cell(SheetMenu, 2, 4))
	assert.Equal(t, 1, fx.sheets.rowCount(SheetOrders))
}

func TestSupportTicket(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.text("/support")
	assert.Equal(t, msgSupportUsage, fx.transport.lastText())

	fx.text("/support не пришёл заказ")
	assert.Equal(t, msgSupportAccepted, fx.transport.lastText())

	tickets, err := fx.store.ListOpenSupportTickets()
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, testUserID, tickets[0].UserID)
	assert.Equal(t, "не пришёл заказ", tickets[0].Description)
	assert.NotEmpty(t, tickets[0].TicketID)
}

func TestFreeTextInMenuState(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.text("хочу борщ")
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Equal(t, msgUseButtons, fx.transport.lastText())
}

func TestEmptyMenu(t *testing.T) {
	fx := newFlowFixture()
	seedClients(fx.sheets, []string{"100", "Иван Иванов", "ivan", "+79261234567"})
	seedMenu(fx.sheets)

	fx.text("/start")
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Equal(t, msgMenuEmpty, fx.transport.lastText())
}

func TestShowMenuAgainAfterOrder(t *testing.T) {
	fx := newFlowFixture()
	fx.seedRegistered(t, []string{todayISO(), "Борщ", "", "10"})

	fx.callback(cbShowMenuAgain)
	assert.Equal(t, models.StateMenu, fx.state(t))
	assert.Len(t, fx.ctx(t).Menu, 1)
}
