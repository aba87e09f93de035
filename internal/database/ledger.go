package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"
)

const bookingColumns = `id, slot_key, date, time, technician, main_service, sub_service, price,
	customer_name, contact_phone, notes, customer_channel_id, technician_channel_id,
	submitted_at, accepted_at`

// Ledger is the sqlite booking ledger. The UNIQUE constraint on slot_key
// makes AppendIfAbsent a single atomic insert-if-absent.
type Ledger struct {
	db *DB
}

func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

var _ domain.Ledger = (*Ledger)(nil)

func (l *Ledger) AppendIfAbsent(ctx context.Context, record *models.BookingRecord) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(slot_key) DO NOTHING`

	var submittedAt interface{}
	if !record.SubmittedAt.IsZero() {
		submittedAt = record.SubmittedAt.UTC()
	}

	result, err := l.db.ExecContext(ctx, query,
		record.ID,
		record.SlotKey.String(),
		record.Date,
		record.Time,
		record.Technician,
		record.MainService,
		record.SubService,
		record.Price,
		record.CustomerName,
		record.ContactPhone,
		record.Notes,
		record.CustomerChannelID,
		record.TechnicianChannelID,
		submittedAt,
		record.AcceptedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert booking: %w", domain.ErrStorage, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", domain.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSlotConflict, record.SlotKey)
	}
	return nil
}

// QueryByDate returns the bookings of one day ordered by time.
func (l *Ledger) QueryByDate(ctx context.Context, date string) ([]*models.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? ORDER BY time ASC, technician ASC`
	return l.queryRecords(ctx, query, date)
}

// QueryRange returns bookings between from and to inclusive, both YYYY-MM-DD.
func (l *Ledger) QueryRange(ctx context.Context, from, to string) ([]*models.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date >= ? AND date <= ? ORDER BY date ASC, time ASC`
	return l.queryRecords(ctx, query, from, to)
}

// GetByID is used by the sheet mirror to reload a booking by reference.
func (l *Ledger) GetByID(ctx context.Context, id string) (*models.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	records, err := l.queryRecords(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return records[0], nil
}

func (l *Ledger) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*models.BookingRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query bookings: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var records []*models.BookingRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan booking: %w", domain.ErrStorage, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate bookings: %w", domain.ErrStorage, err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*models.BookingRecord, error) {
	var (
		r           models.BookingRecord
		slotKey     string
		submittedAt sql.NullTime
		acceptedAt  time.Time
	)
	err := rows.Scan(
		&r.ID, &slotKey, &r.Date, &r.Time, &r.Technician, &r.MainService, &r.SubService, &r.Price,
		&r.CustomerName, &r.ContactPhone, &r.Notes, &r.CustomerChannelID, &r.TechnicianChannelID,
		&submittedAt, &acceptedAt,
	)
	if err != nil {
		return nil, err
	}

	r.SlotKey = models.SlotKey{Date: r.Date, Time: r.Time}
	// a technician-scoped key carries three parts
	if slotKey != r.SlotKey.String() {
		r.SlotKey.Technician = r.Technician
	}
	if submittedAt.Valid {
		r.SubmittedAt = submittedAt.Time
	}
	r.AcceptedAt = acceptedAt
	return &r, nil
}
