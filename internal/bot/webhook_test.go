package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"
	"salonbook/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegramSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type mockBookingService struct {
	domain.BookingService
	mock.Mock
}

func (m *mockBookingService) ListBookedSlots(ctx context.Context, date, technician string) ([]string, error) {
	args := m.Called(ctx, date, technician)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockCatalogService struct {
	domain.CatalogService
	mock.Mock
}

func (m *mockCatalogService) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Technician), args.Error(1)
}

func (m *mockCatalogService) ListServices(ctx context.Context) ([]models.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Service), args.Error(1)
}

type fixture struct {
	handler  *WebhookHandler
	sender   *mockTelegramSender
	bookings *mockBookingService
	catalog  *mockCatalogService
	metrics  *Metrics
}

func newFixture(opts WebhookOptions) *fixture {
	logger := zerolog.New(io.Discard)
	f := &fixture{
		sender:   &mockTelegramSender{},
		bookings: &mockBookingService{},
		catalog:  &mockCatalogService{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	f.handler = NewWebhookHandler(f.sender, f.bookings, f.catalog, repository.NewMemoryRateLimiter(), opts, f.metrics, &logger)
	return f
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, r := range text {
			if r == ' ' {
				end = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func TestHandleUpdate_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("Start", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.handler.HandleUpdate(ctx, commandUpdate(42, "/start"))
		msg := f.sender.last(t)
		assert.Equal(t, int64(42), msg.ChatID)
		assert.Contains(t, msg.Text, "Your chat ID is 42")
		assert.Contains(t, msg.Text, "/slots")
	})

	t.Run("Services", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.catalog.On("ListServices", mock.Anything).Return([]models.Service{
			{MainName: "Cut", SubName: "Wash", Price: 300},
			{MainName: "Color", Price: 900},
		}, nil)
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/services"))
		text := f.sender.last(t).Text
		assert.Contains(t, text, "Cut + Wash: 300 baht")
		assert.Contains(t, text, "Color: 900 baht")
	})

	t.Run("Technicians", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.catalog.On("ListTechnicians", mock.Anything).Return([]models.Technician{{Name: "A"}, {Name: "B"}}, nil)
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/technicians"))
		text := f.sender.last(t).Text
		assert.Contains(t, text, "• A")
		assert.Contains(t, text, "• B")
	})

	t.Run("Slots", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.bookings.On("ListBookedSlots", mock.Anything, "2025-04-01", "A").Return([]string{"10:00", "13:30"}, nil)
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/slots 2025-04-01 A"))
		text := f.sender.last(t).Text
		assert.Contains(t, text, "2025-04-01 for A booked times")
		assert.Contains(t, text, "10:00, 13:30")
		f.bookings.AssertExpectations(t)
	})

	t.Run("SlotsEmptyDay", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.bookings.On("ListBookedSlots", mock.Anything, "2025-04-02", "").Return([]string{}, nil)
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/slots 2025-04-02"))
		assert.Contains(t, f.sender.last(t).Text, "every slot is free")
	})

	t.Run("SlotsWithoutDate", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/slots"))
		text := f.sender.last(t).Text
		assert.Contains(t, text, "date is required")
		assert.Contains(t, text, "Usage")
		f.bookings.AssertNotCalled(t, "ListBookedSlots", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("StorageError", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.bookings.On("ListBookedSlots", mock.Anything, "2025-04-01", "").Return(nil, domain.ErrStorage)
		f.handler.HandleUpdate(ctx, commandUpdate(1, "/slots 2025-04-01"))
		assert.Contains(t, f.sender.last(t).Text, "Something went wrong")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal))
	})

	t.Run("PlainText", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.handler.HandleUpdate(ctx, commandUpdate(1, "hello"))
		assert.Contains(t, f.sender.last(t).Text, "/help")
	})

	t.Run("NoMessage", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		f.handler.HandleUpdate(ctx, tgbotapi.Update{UpdateID: 9})
		assert.Empty(t, f.sender.sent)
	})
}

func TestHandleUpdate_RecoversFromPanic(t *testing.T) {
	f := newFixture(WebhookOptions{})
	f.catalog.On("ListTechnicians", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil, nil)

	assert.NotPanics(t, func() {
		f.handler.HandleUpdate(context.Background(), commandUpdate(1, "/technicians"))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal))
}

func TestHandleUpdate_RateLimit(t *testing.T) {
	f := newFixture(WebhookOptions{RateLimitMessages: 2, RateLimitWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.handler.HandleUpdate(ctx, commandUpdate(7, "/help"))
	}
	assert.Contains(t, f.sender.last(t).Text, "Too many messages")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateLimited))

	// other chats are unaffected
	f.handler.HandleUpdate(ctx, commandUpdate(8, "/help"))
	assert.Contains(t, f.sender.last(t).Text, "Available commands")
}

func TestHandleUpdate_RateLimitNoticeOncePerWindow(t *testing.T) {
	f := newFixture(WebhookOptions{RateLimitMessages: 1, RateLimitWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.handler.HandleUpdate(ctx, commandUpdate(9, "/help"))
	}

	notices := 0
	f.sender.mu.Lock()
	for _, msg := range f.sender.sent {
		if strings.Contains(msg.Text, "Too many messages") {
			notices++
		}
	}
	total := len(f.sender.sent)
	f.sender.mu.Unlock()

	assert.Equal(t, 1, notices)
	assert.Equal(t, 2, total, "one answer plus one notice")
	assert.Equal(t, 9.0, testutil.ToFloat64(f.metrics.RateLimited))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestHandleUpdate_LimiterErrorFailsOpen(t *testing.T) {
	f := newFixture(WebhookOptions{RateLimitMessages: 1, RateLimitWindow: time.Minute})
	f.handler.limiter = failingLimiter{}
	f.handler.HandleUpdate(context.Background(), commandUpdate(7, "/help"))
	assert.Contains(t, f.sender.last(t).Text, "Available commands")
}

func TestServeHTTP(t *testing.T) {
	body, err := json.Marshal(commandUpdate(5, "/help"))
	require.NoError(t, err)

	t.Run("ValidSecret", func(t *testing.T) {
		f := newFixture(WebhookOptions{Secret: "s3cret"})
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", bytes.NewReader(body))
		req.Header.Set(SecretHeader, "s3cret")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, f.sender.last(t).Text, "Available commands")
	})

	t.Run("WrongSecret", func(t *testing.T) {
		f := newFixture(WebhookOptions{Secret: "s3cret"})
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", bytes.NewReader(body))
		req.Header.Set(SecretHeader, "guess")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, f.sender.sent)
	})

	t.Run("BadBody", func(t *testing.T) {
		f := newFixture(WebhookOptions{})
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
