package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput: malformed or missing fields. Client error, not retried.
	ErrInvalidInput = errors.New("invalid booking input")
	// ErrSlotConflict: another accepted booking holds the slot.
	ErrSlotConflict = errors.New("slot already booked")
	// ErrStorage: the ledger is unreachable or the write failed. Safe to retry.
	ErrStorage = errors.New("booking storage unavailable")
	// ErrNotifierUnreachable: a message could not be delivered.
	ErrNotifierUnreachable = errors.New("notifier unreachable")
	// ErrUnknownCatalogEntry: a service or technician name is not in the catalog.
	ErrUnknownCatalogEntry = errors.New("unknown catalog entry")
)

// InvalidField builds an ErrInvalidInput naming the offending field.
func InvalidField(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

// UnknownEntry builds an input error for a name missing from the catalog.
func UnknownEntry(kind, name string) error {
	return fmt.Errorf("%w: %w: %s %q", ErrInvalidInput, ErrUnknownCatalogEntry, kind, name)
}
