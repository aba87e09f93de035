package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"salonbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var header = []string{
	"Accepted at", "Date", "Time", "Main service", "Sub service", "Technician",
	"Price", "Customer", "Chat ID", "Phone", "Notes", "Booking ID",
}

// WriteBookings renders records as an xlsx workbook into w.
func WriteBookings(w io.Writer, from, to string, records []*models.BookingRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Bookings %s - %s", from, to))
	_ = f.MergeCell(sheetName, "A1", "L1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A2", &headerRow); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheetName, "A2", "L2", headerStyle)

	var total int64
	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		row := []interface{}{
			r.AcceptedAt.Format(time.RFC3339),
			r.Date,
			r.Time,
			r.MainService,
			r.SubService,
			r.Technician,
			r.Price,
			r.CustomerName,
			r.CustomerChannelID,
			r.ContactPhone,
			r.Notes,
			r.ID,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+3, err)
		}
		total += r.Price
	}

	totalRow := len(records) + 3
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", totalRow), "Total")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", totalRow), total)

	_ = f.SetColWidth(sheetName, "A", "A", 22)
	_ = f.SetColWidth(sheetName, "B", "K", 16)
	_ = f.SetColWidth(sheetName, "L", "L", 38)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveBookings writes the workbook under dir and returns the file path.
func SaveBookings(dir, from, to string, records []*models.BookingRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(from, to))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating export file: %w", err)
	}
	if err := WriteBookings(file, from, to, records); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("error closing export file: %w", err)
	}
	return path, nil
}

func FileName(from, to string) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from, to)
}
