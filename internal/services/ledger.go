package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkazlouski/obedbot/internal/models"
)

// Column headers in the spreadsheet, spelled exactly as the kitchen
// maintains them.
const (
	colDay   = "День"
	colDish  = "Блюда"
	colPhoto = "Фото"
	colQty   = "Количество"

	colClientID       = "telegram_id"
	colClientName     = "Имя"
	colClientUsername = "username"
	colClientPhone    = "Номер телефона"
)

// ErrMenuRowNotFound is returned when no menu row matches (day, dish).
var ErrMenuRowNotFound = errors.New("menu row not found")

// ErrProfileMissing is returned when a customer row is absent from the
// clients sheet.
var ErrProfileMissing = errors.New("customer profile not found")

// InsufficientInventoryError reports a reserve attempt that exceeds the
// remaining quantity. The row is left untouched.
type InsufficientInventoryError struct {
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: %d available", e.Available)
}

// Customer is a row of the clients sheet.
type Customer struct {
	UserID   int64
	Name     string
	Username string
	Phone    string
}

// OrderRow is what AppendOrder writes to the orders sheet.
type OrderRow struct {
	UserID       int64
	Name         string
	Phone        string
	Dish         string
	Tariff       string
	Address      string
	TimeSlot     string
	Quantity     int
	PaymentLabel string
}

// LedgerService owns all spreadsheet access. The spreadsheet has no
// transactions, so the decrement in Reserve is a read followed by a
// write; a per-(day, dish) mutex serializes those pairs so two racing
// reservations cannot both observe the same quantity.
type LedgerService struct {
	sheets  SheetClient
	timeout time.Duration

	mu       sync.Mutex
	rowLocks map[string]*sync.Mutex
}

// NewLedgerService creates a ledger over the given sheet transport.
func NewLedgerService(sheets SheetClient) *LedgerService {
	return &LedgerService{
		sheets:   sheets,
		timeout:  30 * time.Second,
		rowLocks: make(map[string]*sync.Mutex),
	}
}

func (l *LedgerService) rowLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.rowLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.rowLocks[key] = lock
	}
	return lock
}

func (l *LedgerService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

// headerIndex maps wanted header titles to their column positions.
func headerIndex(headers []string, wanted ...string) (map[string]int, error) {
	idx := make(map[string]int, len(wanted))
	for _, w := range wanted {
		found := -1
		for i, h := range headers {
			if strings.TrimSpace(h) == w {
				found = i
				break
			}
		}
		if found == -1 {
			return nil, fmt.Errorf("missing column %q", w)
		}
		idx[w] = found
	}
	return idx, nil
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// MenuForDay returns all menu rows whose day matches the given one, in
// sheet order. Dates in the sheet may be ISO or dd.mm.yyyy; both sides
// are normalized before comparing.
func (l *LedgerService) MenuForDay(ctx context.Context, day string) ([]models.MenuItem, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	rows, err := l.sheets.ReadRows(ctx, SheetMenu)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx, err := headerIndex(rows[0], colDay, colDish)
	if err != nil {
		return nil, err
	}
	photoCol := -1
	qtyCol := -1
	if pIdx, err := headerIndex(rows[0], colPhoto); err == nil {
		photoCol = pIdx[colPhoto]
	}
	if qIdx, err := headerIndex(rows[0], colQty); err == nil {
		qtyCol = qIdx[colQty]
	}

	wantDay := ExtractDate(day)
	var items []models.MenuItem
	for _, row := range rows[1:] {
		if ExtractDate(cellAt(row, idx[colDay])) != wantDay {
			continue
		}
		qty, _ := strconv.Atoi(cellAt(row, qtyCol))
		items = append(items, models.MenuItem{
			Day:      wantDay,
			Dish:     cellAt(row, idx[colDish]),
			PhotoURL: cellAt(row, photoCol),
			Quantity: qty,
		})
	}
	return items, nil
}

// locateMenuRow finds the unique sheet row for (day, dish) and reports
// its 1-based row number, the 1-based quantity column and the current
// quantity.
func (l *LedgerService) locateMenuRow(ctx context.Context, day, dish string) (rowNum, qtyCol, qty int, err error) {
	rows, err := l.sheets.ReadRows(ctx, SheetMenu)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, 0, ErrMenuRowNotFound
	}

	idx, err := headerIndex(rows[0], colDay, colDish, colQty)
	if err != nil {
		return 0, 0, 0, err
	}

	wantDay := ExtractDate(day)
	wantDish := normalizeDish(dish)
	for i, row := range rows[1:] {
		if ExtractDate(cellAt(row, idx[colDay])) != wantDay {
			continue
		}
		if normalizeDish(cellAt(row, idx[colDish])) != wantDish {
			continue
		}
		q, _ := strconv.Atoi(cellAt(row, idx[colQty]))
		return i + 2, idx[colQty] + 1, q, nil
	}
	return 0, 0, 0, ErrMenuRowNotFound
}

// Availability reports the remaining quantity for (day, dish) without
// mutating anything. Used by the non-committing check before tariff
// selection.
func (l *LedgerService) Availability(ctx context.Context, day, dish string) (int, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	_, _, qty, err := l.locateMenuRow(ctx, day, dish)
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// Reserve decrements the remaining quantity for (day, dish) by qty.
// Returns ErrMenuRowNotFound when the row is absent and
// *InsufficientInventoryError when the remaining quantity is too small;
// neither mutates the row. The read and write run under the row's mutex.
func (l *LedgerService) Reserve(ctx context.Context, day, dish string, qty int) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	lock := l.rowLock(ExtractDate(day) + "|" + normalizeDish(dish))
	lock.Lock()
	defer lock.Unlock()

	rowNum, qtyCol, current, err := l.locateMenuRow(ctx, day, dish)
	if err != nil {
		return err
	}
	if current < qty {
		return &InsufficientInventoryError{Available: current}
	}
	return l.sheets.UpdateCell(ctx, SheetMenu, rowNum, qtyCol, strconv.Itoa(current-qty))
}

// Release adds qty back to the row. A missing row is a no-op: the
// compensation of a reservation whose row has since disappeared is not
// worth failing over.
func (l *LedgerService) Release(ctx context.Context, day, dish string, qty int) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	lock := l.rowLock(ExtractDate(day) + "|" + normalizeDish(dish))
	lock.Lock()
	defer lock.Unlock()

	rowNum, qtyCol, current, err := l.locateMenuRow(ctx, day, dish)
	if errors.Is(err, ErrMenuRowNotFound) {
		log.Printf("⚠️  Release: menu row for %q on %s is gone, nothing to return", dish, ExtractDate(day))
		return nil
	}
	if err != nil {
		return err
	}
	return l.sheets.UpdateCell(ctx, SheetMenu, rowNum, qtyCol, strconv.Itoa(current+qty))
}

// FindCustomer looks up a customer row by Telegram user id.
func (l *LedgerService) FindCustomer(ctx context.Context, userID int64) (*Customer, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	rows, err := l.sheets.ReadRows(ctx, SheetClients)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrProfileMissing
	}

	idx, err := headerIndex(rows[0], colClientID, colClientName, colClientPhone)
	if err != nil {
		return nil, err
	}
	usernameCol := -1
	if uIdx, err := headerIndex(rows[0], colClientUsername); err == nil {
		usernameCol = uIdx[colClientUsername]
	}

	want := strconv.FormatInt(userID, 10)
	for _, row := range rows[1:] {
		if cellAt(row, idx[colClientID]) != want {
			continue
		}
		return &Customer{
			UserID:   userID,
			Name:     cellAt(row, idx[colClientName]),
			Username: cellAt(row, usernameCol),
			Phone:    cellAt(row, idx[colClientPhone]),
		}, nil
	}
	return nil, ErrProfileMissing
}

// AddCustomer appends a registration row to the clients sheet.
func (l *LedgerService) AddCustomer(ctx context.Context, userID int64, name, username, phone string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	return l.sheets.AppendRow(ctx, SheetClients, []string{
		strconv.FormatInt(userID, 10),
		name,
		username,
		phone,
		time.Now().Format("2006-01-02 15:04:05"),
	})
}

// AppendOrder appends the committed order to the orders sheet. This is
// the authoritative order record; a failure here triggers compensation
// of the reservation.
func (l *LedgerService) AppendOrder(ctx context.Context, row OrderRow) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	return l.sheets.AppendRow(ctx, SheetOrders, []string{
		time.Now().Format("2006-01-02 15:04:05"),
		strconv.FormatInt(row.UserID, 10),
		row.Name,
		row.Phone,
		row.Dish,
		row.Tariff,
		row.Address,
		row.TimeSlot,
		strconv.Itoa(row.Quantity),
		row.PaymentLabel,
	})
}
