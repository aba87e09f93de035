package models

import (
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotScope decides which request fields make up a SlotKey.
type SlotScope string

const (
	// ScopeSalon: the whole salon has one queue, a (date, time) pair is sold once.
	ScopeSalon SlotScope = "salon"
	// ScopeTechnician: every technician has an own queue.
	ScopeTechnician SlotScope = "technician"
)

func (s SlotScope) Valid() bool {
	return s == ScopeSalon || s == ScopeTechnician
}

// BookingRequest is a booking submission coming from the mini-app or chat.
type BookingRequest struct {
	Date              string    `json:"date"`
	Time              string    `json:"time"`
	Technician        string    `json:"technician,omitempty"`
	MainService       string    `json:"main_service"`
	SubService        string    `json:"sub_service,omitempty"`
	Price             int64     `json:"price"`
	CustomerName      string    `json:"customer_name"`
	ContactPhone      string    `json:"contact_phone,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CustomerChannelID string    `json:"customer_channel_id,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`

	// TechnicianChannelID is resolved from the catalog on the server side.
	TechnicianChannelID string `json:"-"`
}

// Normalize trims whitespace from every free-form field.
func (r *BookingRequest) Normalize() {
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.Technician = strings.TrimSpace(r.Technician)
	r.MainService = strings.TrimSpace(r.MainService)
	r.SubService = strings.TrimSpace(r.SubService)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.ContactPhone = strings.TrimSpace(r.ContactPhone)
	r.Notes = strings.TrimSpace(r.Notes)
	r.CustomerChannelID = strings.TrimSpace(r.CustomerChannelID)
}

// ServiceLabel renders "main + sub" the way customers see it in messages.
func (r *BookingRequest) ServiceLabel() string {
	if r.SubService == "" {
		return r.MainService
	}
	return r.MainService + " + " + r.SubService
}

// SlotKey identifies one reservable unit.
type SlotKey struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Technician string `json:"technician,omitempty"`
}

// NewSlotKey derives the key of a request under the given scope.
func NewSlotKey(req *BookingRequest, scope SlotScope) SlotKey {
	key := SlotKey{Date: req.Date, Time: req.Time}
	if scope == ScopeTechnician {
		key.Technician = req.Technician
	}
	return key
}

func (k SlotKey) String() string {
	if k.Technician == "" {
		return k.Date + "|" + k.Time
	}
	return k.Date + "|" + k.Time + "|" + k.Technician
}

// BookingRecord is an accepted booking as persisted in the ledger.
// Records are never mutated once written.
type BookingRecord struct {
	ID      string  `json:"id"`
	SlotKey SlotKey `json:"slot_key"`
	BookingRequest
	AcceptedAt time.Time `json:"accepted_at"`
}

// Outcome is the terminal state of a successful reservation attempt.
type Outcome string

const (
	OutcomeAcceptedNotified           Outcome = "accepted_notified"
	OutcomeAcceptedNotificationFailed Outcome = "accepted_notification_failed"
)

// Labels for rejected attempts, used by metrics and logs.
const (
	OutcomeRejectedInvalid  = "rejected_invalid"
	OutcomeRejectedConflict = "rejected_conflict"
	OutcomeStorageError     = "storage_error"
)

// Reservation is returned for every accepted booking.
type Reservation struct {
	Record  *BookingRecord
	Outcome Outcome
	// NotifyErr holds the delivery failure when Outcome is AcceptedNotificationFailed.
	NotifyErr error
}

func (r *Reservation) Notified() bool {
	return r != nil && r.Outcome == OutcomeAcceptedNotified
}
