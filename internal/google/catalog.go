package google

import (
	"context"
	"fmt"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"google.golang.org/api/sheets/v4"
)

// SheetsCatalog reads technicians (name, chat id) and services (main, sub, price)
// from their sheets. The first row of each sheet is a header.
type SheetsCatalog struct {
	service         *sheets.Service
	spreadsheetID   string
	technicianSheet string
	serviceSheet    string
}

func NewSheetsCatalog(srv *sheets.Service, spreadsheetID, technicianSheet, serviceSheet string) *SheetsCatalog {
	return &SheetsCatalog{
		service:         srv,
		spreadsheetID:   spreadsheetID,
		technicianSheet: technicianSheet,
		serviceSheet:    serviceSheet,
	}
}

var _ domain.CatalogSource = (*SheetsCatalog)(nil)

func (c *SheetsCatalog) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	rows, err := c.readRows(ctx, c.technicianSheet+"!A:B")
	if err != nil {
		return nil, err
	}

	technicians := make([]models.Technician, 0, len(rows))
	for _, row := range rows {
		name := cellString(row, 0)
		if name == "" {
			continue
		}
		technicians = append(technicians, models.Technician{
			Name:            name,
			NotifyChannelID: cellString(row, 1),
		})
	}
	return technicians, nil
}

func (c *SheetsCatalog) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := c.readRows(ctx, c.serviceSheet+"!A:C")
	if err != nil {
		return nil, err
	}

	services := make([]models.Service, 0, len(rows))
	for _, row := range rows {
		main := cellString(row, 0)
		if main == "" {
			continue
		}
		price, err := parsePrice(cellString(row, 2))
		if err != nil {
			// a service without a usable price cannot be booked
			continue
		}
		services = append(services, models.Service{
			MainName: main,
			SubName:  cellString(row, 1),
			Price:    price,
		})
	}
	return services, nil
}

// readRows returns the data rows of a range, header excluded.
func (c *SheetsCatalog) readRows(ctx context.Context, rangeData string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, rangeData).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rangeData, err)
	}
	if len(resp.Values) <= 1 {
		return nil, nil
	}
	return resp.Values[1:], nil
}
