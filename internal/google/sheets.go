package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/models"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Column layout of the bookings sheet. A through K match the layout the salon
// has always used; L carries the booking reference so mirroring can upsert.
const (
	bookingColumnsRange = "A:L"
	bookingLastColumn   = "L"
	colTimestamp        = 0
	colDate             = 1
	colTime             = 2
	colMainService      = 3
	colSubService       = 4
	colTechnician       = 5
	colPrice            = 6
	colCustomerName     = 7
	colChannelID        = 8
	colPhone            = 9
	colNotes            = 10
	colBookingID        = 11
)

var bookingHeaders = []interface{}{
	"Timestamp", "Date", "Time", "Main Service", "Sub Service", "Technician",
	"Price", "Customer Name", "Channel ID", "Phone", "Notes", "Booking ID",
}

var errRowNotFound = errors.New("booking row not found")

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// NewSheetsAPI authenticates with the service-account key from cfg.
// A malformed key is an error here, never a silent fallback.
func NewSheetsAPI(ctx context.Context, cfg config.GoogleConfig) (*sheets.Service, error) {
	raw, err := cfg.ServiceAccountKey()
	if err != nil {
		return nil, err
	}

	jwtConfig, err := parseServiceAccount(raw)
	if err != nil {
		return nil, err
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return srv, nil
}

// parseServiceAccount accepts keys whose private_key newlines were escaped
// twice, which is how they usually survive a trip through an env var.
func parseServiceAccount(raw []byte) (*jwt.Config, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	if pk, ok := fields["private_key"].(string); ok && strings.Contains(pk, `\n`) {
		fields["private_key"] = strings.ReplaceAll(pk, `\n`, "\n")
		fixed, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
		raw = fixed
	}

	cfg, err := google.JWTConfigFromJSON(raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return cfg, nil
}

// ServiceAccountEmail returns client_email of the key, for setup hints.
func ServiceAccountEmail(raw []byte) (string, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// SheetsService reads and writes rows of the bookings sheet.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	bookingSheet  string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(srv *sheets.Service, spreadsheetID, bookingSheet string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		bookingSheet:  bookingSheet,
		rowCache:      make(map[string]int),
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.bookingSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ReadBookings returns every booking row of the sheet. Rows without a valid
// date and time (the header, blank lines) are skipped.
func (s *SheetsService) ReadBookings(ctx context.Context) ([]*models.BookingRecord, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.bookingSheet+"!"+bookingColumnsRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read bookings sheet: %w", err)
	}

	records := make([]*models.BookingRecord, 0, len(resp.Values))
	for i, row := range resp.Values {
		record, ok := parseBookingRow(row)
		if !ok {
			continue
		}
		if record.ID != "" {
			s.setCachedRow(record.ID, i+1)
		}
		records = append(records, record)
	}
	return records, nil
}

// AppendBooking добавляет новое бронирование
func (s *SheetsService) AppendBooking(ctx context.Context, record *models.BookingRecord) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{BookingRowValues(record)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.bookingSheet+"!"+bookingColumnsRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append booking row: %w", err)
	}

	if resp.Updates != nil {
		if row, ok := parseUpdatedRow(resp.Updates.UpdatedRange); ok && record.ID != "" {
			s.setCachedRow(record.ID, row)
		}
	}
	return nil
}

// UpsertBooking rewrites the row of an already mirrored booking or appends a new one.
func (s *SheetsService) UpsertBooking(ctx context.Context, record *models.BookingRecord) error {
	if record == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, record.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendBooking(ctx, record)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", s.bookingSheet, rowIdx, bookingLastColumn, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{BookingRowValues(record)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update booking row: %w", err)
	}
	return nil
}

// FindBookingRow locates the 1-based row of a booking reference in column L.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, fmt.Errorf("booking id is required")
	}

	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	rangeData := fmt.Sprintf("%s!%s:%s", s.bookingSheet, bookingLastColumn, bookingLastColumn)
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeData).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read booking ids: %w", err)
	}

	for i, row := range resp.Values {
		if cellString(row, 0) == bookingID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, errRowNotFound
}

// ReplaceBookings полностью перезаписывает лист бронирований
func (s *SheetsService) ReplaceBookings(ctx context.Context, records []*models.BookingRecord) error {
	clearRange := s.bookingSheet + "!A:" + bookingLastColumn
	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(records)+1)
	values = append(values, bookingHeaders)
	for _, record := range records {
		values = append(values, BookingRowValues(record))
	}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.bookingSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[string]int, len(records))
	for i, r := range records {
		s.rowCache[r.ID] = i + 2 // +2: header row and 1-based rows
	}
	s.cacheMu.Unlock()

	return nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

// BookingRowValues renders a record in sheet column order.
func BookingRowValues(record *models.BookingRecord) []interface{} {
	return []interface{}{
		record.AcceptedAt.UTC().Format(time.RFC3339),
		record.Date,
		record.Time,
		record.MainService,
		record.SubService,
		record.Technician,
		record.Price,
		record.CustomerName,
		record.CustomerChannelID,
		record.ContactPhone,
		record.Notes,
		record.ID,
	}
}

func parseBookingRow(row []interface{}) (*models.BookingRecord, bool) {
	date := cellString(row, colDate)
	tm := cellString(row, colTime)
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, false
	}
	if _, err := time.Parse(models.TimeLayout, tm); err != nil {
		return nil, false
	}

	record := &models.BookingRecord{
		ID: cellString(row, colBookingID),
		BookingRequest: models.BookingRequest{
			Date:              date,
			Time:              tm,
			MainService:       cellString(row, colMainService),
			SubService:        cellString(row, colSubService),
			Technician:        cellString(row, colTechnician),
			CustomerName:      cellString(row, colCustomerName),
			CustomerChannelID: cellString(row, colChannelID),
			ContactPhone:      cellString(row, colPhone),
			Notes:             cellString(row, colNotes),
		},
	}
	if price, err := parsePrice(cellString(row, colPrice)); err == nil {
		record.Price = price
	}
	if ts, err := time.Parse(time.RFC3339, cellString(row, colTimestamp)); err == nil {
		record.AcceptedAt = ts
	}
	return record, true
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// parsePrice accepts "300", "1,200" and "300.00".
func parsePrice(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return int64(f), nil
}

func parseUpdatedRow(updatedRange string) (int, bool) {
	m := updatedRowPattern.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
