package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// fakeSheetClient is an in-memory SheetClient with failure injection and
// an optional hook between the read and the write of a reserve.
type fakeSheetClient struct {
	mu     sync.Mutex
	sheets map[string][][]string

	readErr   error
	updateErr error
	appendErr error

	// Called inside UpdateCell before the write lands, with the lock
	// released. Lets tests widen the read-then-write window.
	beforeUpdate func()
}

func newFakeSheetClient() *fakeSheetClient {
	return &fakeSheetClient{sheets: make(map[string][][]string)}
}

func (f *fakeSheetClient) setSheet(sheet string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	f.sheets[sheet] = copied
}

func (f *fakeSheetClient) cell(sheet string, row, col int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sheets[sheet]
	if row < 1 || row > len(rows) || col < 1 || col > len(rows[row-1]) {
		return ""
	}
	return rows[row-1][col-1]
}

func (f *fakeSheetClient) rowCount(sheet string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sheets[sheet])
}

func (f *fakeSheetClient) lastRow(sheet string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sheets[sheet]
	if len(rows) == 0 {
		return nil
	}
	return append([]string(nil), rows[len(rows)-1]...)
}

func (f *fakeSheetClient) ReadRows(_ context.Context, sheet string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	rows := f.sheets[sheet]
	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	return copied, nil
}

func (f *fakeSheetClient) UpdateCell(_ context.Context, sheet string, row, col int, value string) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rows := f.sheets[sheet]
	if row < 1 || row > len(rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	for len(rows[row-1]) < col {
		rows[row-1] = append(rows[row-1], "")
	}
	rows[row-1][col-1] = value
	f.sheets[sheet] = rows
	return nil
}

func (f *fakeSheetClient) AppendRow(_ context.Context, sheet string, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.sheets[sheet] = append(f.sheets[sheet], append([]string(nil), values...))
	return nil
}

// sentMessage is one chat message held by the fake transport.
type sentMessage struct {
	ID      int
	Kind    string // "plain" or "photo"
	Text    string
	Deleted bool
}

// fakeTransport records every chat operation and supports failure
// injection per method.
type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	messages []*sentMessage

	sendTextErr       error
	sendPhotoURLErr   error
	sendPhotoBytesErr error
	editTextErr       error
	editMediaURLErr   error
	editMediaBytesErr error
	deleteErr         error

	answers []string
	alerts  []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) send(kind, text string) int {
	t.nextID++
	t.messages = append(t.messages, &sentMessage{ID: t.nextID, Kind: kind, Text: text})
	return t.nextID
}

func (t *fakeTransport) find(messageID int) *sentMessage {
	for _, m := range t.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// liveMessages returns the messages not yet deleted.
func (t *fakeTransport) liveMessages() []*sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var live []*sentMessage
	for _, m := range t.messages {
		if !m.Deleted {
			live = append(live, m)
		}
	}
	return live
}

func (t *fakeTransport) lastText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[len(t.messages)-1].Text
}

func (t *fakeTransport) SendText(_ int64, text string, _ interface{}) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendTextErr != nil {
		return 0, t.sendTextErr
	}
	return t.send("plain", text), nil
}

func (t *fakeTransport) SendPhotoURL(_ int64, _, caption string, _ *tgbotapi.InlineKeyboardMarkup) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendPhotoURLErr != nil {
		return 0, t.sendPhotoURLErr
	}
	return t.send("photo", caption), nil
}

func (t *fakeTransport) SendPhotoBytes(_ int64, _ []byte, caption string, _ *tgbotapi.InlineKeyboardMarkup) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendPhotoBytesErr != nil {
		return 0, t.sendPhotoBytesErr
	}
	return t.send("photo", caption), nil
}

func (t *fakeTransport) EditText(_ int64, messageID int, text string, _ *tgbotapi.InlineKeyboardMarkup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editTextErr != nil {
		return t.editTextErr
	}
	m := t.find(messageID)
	if m == nil || m.Deleted || m.Kind != "plain" {
		return ErrEditRejected
	}
	if m.Text == text {
		return ErrNotModified
	}
	m.Text = text
	return nil
}

func (t *fakeTransport) EditCaption(_ int64, messageID int, caption string, _ *tgbotapi.InlineKeyboardMarkup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.find(messageID)
	if m == nil || m.Deleted || m.Kind != "photo" {
		return ErrEditRejected
	}
	m.Text = caption
	return nil
}

func (t *fakeTransport) EditMediaURL(_ int64, messageID int, _, caption string, _ *tgbotapi.InlineKeyboardMarkup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editMediaURLErr != nil {
		return t.editMediaURLErr
	}
	m := t.find(messageID)
	if m == nil || m.Deleted || m.Kind != "photo" {
		return ErrEditRejected
	}
	m.Text = caption
	return nil
}

func (t *fakeTransport) EditMediaBytes(_ int64, messageID int, _ []byte, caption string, _ *tgbotapi.InlineKeyboardMarkup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editMediaBytesErr != nil {
		return t.editMediaBytesErr
	}
	m := t.find(messageID)
	if m == nil || m.Deleted || m.Kind != "photo" {
		return ErrEditRejected
	}
	m.Text = caption
	return nil
}

func (t *fakeTransport) DeleteMessage(_ int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleteErr != nil {
		return t.deleteErr
	}
	m := t.find(messageID)
	if m == nil {
		return errors.New("message to delete not found")
	}
	m.Deleted = true
	return nil
}

func (t *fakeTransport) AnswerCallback(_, text string, alert bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, text)
	if alert {
		t.alerts = append(t.alerts, text)
	}
	return nil
}

// todayISO is how the menu sheet writes today's date.
func todayISO() string {
	return time.Now().Format("2006-01-02")
}
