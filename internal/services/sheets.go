package services

import (
	"context"
	"fmt"
	"log"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Worksheet names in the kitchen's spreadsheet
const (
	SheetClients = "Клиенты"
	SheetMenu    = "Меню"
	SheetOrders  = "Заказы"
)

// SheetClient is the ledger transport: row/cell I/O against a
// spreadsheet-like store. Rows are returned header row first; row and
// column arguments are 1-based like the A1 notation they map to.
type SheetClient interface {
	ReadRows(ctx context.Context, sheet string) ([][]string, error)
	UpdateCell(ctx context.Context, sheet string, row, col int, value string) error
	AppendRow(ctx context.Context, sheet string, values []string) error
}

// GoogleSheetsClient implements SheetClient over the Google Sheets API.
type GoogleSheetsClient struct {
	srv           *sheets.Service
	spreadsheetID string
}

// NewGoogleSheetsClient builds a client from environment credentials:
// GOOGLE_SERVICE_ACCOUNT_INFO (inline JSON) or GOOGLE_SERVICE_ACCOUNT_JSON
// (path to the key file).
func NewGoogleSheetsClient(ctx context.Context, spreadsheetID string) (*GoogleSheetsClient, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("missing spreadsheet id")
	}

	var opts []option.ClientOption
	switch {
	case os.Getenv("GOOGLE_SERVICE_ACCOUNT_INFO") != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(os.Getenv("GOOGLE_SERVICE_ACCOUNT_INFO"))))
	case os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON") != "":
		opts = append(opts, option.WithCredentialsFile(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")))
	default:
		return nil, fmt.Errorf("missing Google service account credentials in environment variables")
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	log.Printf("✅ Google Sheets client initialized for spreadsheet %s", spreadsheetID)
	return &GoogleSheetsClient{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (g *GoogleSheetsClient) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *GoogleSheetsClient) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	rangeA1 := fmt.Sprintf("%s!%s%d", sheet, columnLetter(col), row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}

	_, err := g.srv.Spreadsheets.Values.Update(g.spreadsheetID, rangeA1, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rangeA1, err)
	}
	return nil
}

func (g *GoogleSheetsClient) AppendRow(ctx context.Context, sheet string, values []string) error {
	raw := make([]interface{}, len(values))
	for i, v := range values {
		raw[i] = v
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{raw}}

	_, err := g.srv.Spreadsheets.Values.Append(g.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to sheet %q: %w", sheet, err)
	}
	return nil
}

// columnLetter converts a 1-based column index to its A1 letter form.
func columnLetter(col int) string {
	letters := ""
	for col > 0 {
		col--
		letters = string(rune('A'+col%26)) + letters
		col /= 26
	}
	return letters
}
