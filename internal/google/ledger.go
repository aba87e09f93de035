package google

import (
	"context"
	"fmt"
	"sort"

	"salonbook/internal/domain"
	"salonbook/internal/models"
)

// SheetsLedger keeps bookings in the spreadsheet itself. The sheet has no
// uniqueness constraint, so every append runs scan-then-append under a slot lock.
type SheetsLedger struct {
	sheets *SheetsService
	locker domain.SlotLocker
	scope  models.SlotScope
}

func NewSheetsLedger(sheets *SheetsService, locker domain.SlotLocker, scope models.SlotScope) *SheetsLedger {
	return &SheetsLedger{
		sheets: sheets,
		locker: locker,
		scope:  scope,
	}
}

var _ domain.Ledger = (*SheetsLedger)(nil)

func (l *SheetsLedger) AppendIfAbsent(ctx context.Context, record *models.BookingRecord) error {
	release, err := l.locker.Lock(ctx, "sheets:"+record.SlotKey.String())
	if err != nil {
		return fmt.Errorf("%w: acquire slot lock: %w", domain.ErrStorage, err)
	}
	defer release()

	existing, err := l.sheets.ReadBookings(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	for _, row := range existing {
		if models.NewSlotKey(&row.BookingRequest, l.scope) == record.SlotKey {
			return fmt.Errorf("%w: %s", domain.ErrSlotConflict, record.SlotKey)
		}
	}

	if err := l.sheets.AppendBooking(ctx, record); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return nil
}

func (l *SheetsLedger) QueryByDate(ctx context.Context, date string) ([]*models.BookingRecord, error) {
	return l.query(ctx, func(r *models.BookingRecord) bool { return r.Date == date })
}

func (l *SheetsLedger) QueryRange(ctx context.Context, from, to string) ([]*models.BookingRecord, error) {
	return l.query(ctx, func(r *models.BookingRecord) bool { return r.Date >= from && r.Date <= to })
}

func (l *SheetsLedger) query(ctx context.Context, keep func(*models.BookingRecord) bool) ([]*models.BookingRecord, error) {
	rows, err := l.sheets.ReadBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	var out []*models.BookingRecord
	for _, r := range rows {
		if keep(r) {
			r.SlotKey = models.NewSlotKey(&r.BookingRequest, l.scope)
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}
