package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"chauffeur/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultRequestsSheet = "Requests"

var requestHeaders = []interface{}{
	"Reference", "Form", "Submitted At", "Service", "Departure", "Arrival", "Date", "Time",
	"Passengers", "Luggage", "Vehicle", "Flight/Train", "Client", "Company", "Email", "Phone",
	"Estimate", "Currency", "Airport", "Message",
}

// SheetsService appends every submission as a row of the requests sheet.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string

	mu          sync.Mutex
	headerReady bool
}

// NewSheetsService authenticates with a service account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewSheetsServiceWithOptions(ctx, spreadsheetID, sheet, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsServiceWithOptions builds the service from raw client options.
func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*SheetsService, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if sheet == "" {
		sheet = DefaultRequestsSheet
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
	}, nil
}

func (s *SheetsService) Name() string {
	return "sheets"
}

// Deliver implements the dispatch sink contract.
func (s *SheetsService) Deliver(ctx context.Context, submission *models.Submission) error {
	return s.AppendSubmission(ctx, submission)
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// AppendSubmission adds one row; the header row is written once when the sheet is empty.
func (s *SheetsService) AppendSubmission(ctx context.Context, submission *models.Submission) error {
	if submission == nil {
		return errors.New("nil submission")
	}

	if err := s.ensureHeader(ctx); err != nil {
		return err
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{submissionRow(submission)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append submission %s: %w", submission.Reference, err)
	}
	return nil
}

func (s *SheetsService) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headerReady {
		return nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A1:A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		s.headerReady = true
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheet+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{requestHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.headerReady = true
	return nil
}

func submissionRow(s *models.Submission) []interface{} {
	req := s.Request
	est := s.Estimate
	return []interface{}{
		s.Reference,
		s.Form,
		s.SubmittedAt.Format("2006-01-02 15:04:05"),
		string(req.ServiceType),
		req.Departure,
		req.Arrival,
		req.Date,
		req.Time,
		req.Passengers,
		req.Luggage,
		est.VehicleClass,
		req.FlightNumber,
		req.Contact.FullName(),
		req.Contact.Company,
		req.Contact.Email,
		req.Contact.Phone,
		est.Total,
		est.Currency,
		est.Airport,
		req.Message,
	}
}
