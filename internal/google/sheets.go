package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sartarosh/internal/models"
	"sartarosh/internal/pricing"
)

const scheduleSheetName = "Schedule"

// SheetsService mirrors schedule days and their requests into one
// spreadsheet for the shop owner. The export is a full replace of the
// Schedule sheet, so it needs no row tracking.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads one cell to verify credentials and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, scheduleSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail extracts the account email to show in setup logs,
// since the spreadsheet has to be shared with it.
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// ReplaceScheduleSheet clears the Schedule sheet and rewrites it: one row
// per request under its day, with the day's aggregates alongside.
func (s *SheetsService) ReplaceScheduleSheet(ctx context.Context, days []models.ScheduleDay, requests map[int64][]models.BookingRequest) error {
	clearReq := &sheets.ClearValuesRequest{}
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, scheduleSheetName+"!A:H", clearReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear schedule sheet: %w", err)
	}

	values := [][]interface{}{
		{"Day", "Clients", "Income", "Request", "Time", "Status", "Services", "Total"},
	}

	for _, d := range days {
		values = append(values, []interface{}{
			d.Day.Format("02.01.2006"),
			d.NClients,
			d.TotalIncome,
			"", "", "", "", "",
		})
		for _, r := range requests[d.ID] {
			names := ""
			for i, li := range r.Services {
				if i > 0 {
					names += ", "
				}
				names += li.Name
			}
			values = append(values, []interface{}{
				"", "", "",
				r.ID,
				fmt.Sprintf("%s - %s", r.StartTime.Format("15:04"), r.EndTime.Format("15:04")),
				r.Status,
				names,
				pricing.RequestTotal(&r),
			})
		}
	}

	valueRange := &sheets.ValueRange{Values: values}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, scheduleSheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update schedule sheet: %w", err)
	}
	return nil
}
