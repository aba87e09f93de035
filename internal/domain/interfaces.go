package domain

import (
	"context"
	"time"

	"salonbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Ledger is the durable store of accepted bookings.
type Ledger interface {
	// AppendIfAbsent writes the record unless its slot is already held.
	// It returns ErrSlotConflict for a taken slot and ErrStorage for anything else.
	AppendIfAbsent(ctx context.Context, record *models.BookingRecord) error
	QueryByDate(ctx context.Context, date string) ([]*models.BookingRecord, error)
	QueryRange(ctx context.Context, from, to string) ([]*models.BookingRecord, error)
}

// SlotLocker serializes work per slot key.
type SlotLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Notifier pushes a text message to a chat.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) error
}

// CatalogSource reads raw reference data.
type CatalogSource interface {
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	ListServices(ctx context.Context) ([]models.Service, error)
}

type CatalogService interface {
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	FindTechnician(ctx context.Context, name string) (*models.Technician, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ServiceCatalog(ctx context.Context) (models.ServiceCatalog, error)
}

type BookingService interface {
	Submit(ctx context.Context, req *models.BookingRequest) (*models.Reservation, error)
	Reserve(ctx context.Context, req *models.BookingRequest) (*models.Reservation, error)
	ListBookedSlots(ctx context.Context, date, technician string) ([]string, error)
	ListBookings(ctx context.Context, from, to string) ([]*models.BookingRecord, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, record *models.BookingRecord) error
}
