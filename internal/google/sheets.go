package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"streamqueue/internal/models"
)

const historySheetRange = "History!A:E"

// SheetsService appends served queue entries to a Google spreadsheet via a
// service account.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	clientEmail   string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	email, err := serviceAccountEmail(credentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		clientEmail:   email,
	}, nil
}

// TestConnection reads a single cell to verify the spreadsheet exists and is
// shared with the service account.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "History!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// ServiceAccountEmail is the account the spreadsheet must be shared with.
func (s *SheetsService) ServiceAccountEmail() string {
	return s.clientEmail
}

func serviceAccountEmail(credentialsJSON []byte) (string, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendServedEntry appends one row for a served entry. Rows are append-only;
// the sheet is the long-term history the live table does not keep.
func (s *SheetsService) AppendServedEntry(ctx context.Context, shopName string, entry *models.QueueEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{servedRowValues(shopName, entry, time.Now())},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, historySheetRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	return err
}

func servedRowValues(shopName string, entry *models.QueueEntry, servedAt time.Time) []interface{} {
	return []interface{}{
		entry.ID,
		shopName,
		entry.FirstName,
		orEmpty(entry.OrderNumber),
		servedAt.Format("2006-01-02 15:04:05"),
	}
}

func orEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
