package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const updateTimeout = 15 * time.Second

// WebhookHandler answers chat commands delivered by the Telegram webhook.
type WebhookHandler struct {
	sender   domain.TelegramSender
	bookings domain.BookingService
	catalog  domain.CatalogService
	limiter  domain.RateLimiter
	secret   string

	rateLimitMessages int
	rateLimitWindow   time.Duration

	metrics *Metrics
	logger  *zerolog.Logger
}

type WebhookOptions struct {
	Secret            string
	RateLimitMessages int
	RateLimitWindow   time.Duration
}

func NewWebhookHandler(
	sender domain.TelegramSender,
	bookings domain.BookingService,
	catalog domain.CatalogService,
	limiter domain.RateLimiter,
	opts WebhookOptions,
	metrics *Metrics,
	logger *zerolog.Logger,
) *WebhookHandler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WebhookHandler{
		sender:            sender,
		bookings:          bookings,
		catalog:           catalog,
		limiter:           limiter,
		secret:            opts.Secret,
		rateLimitMessages: opts.RateLimitMessages,
		rateLimitWindow:   opts.RateLimitWindow,
		metrics:           metrics,
		logger:            logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), updateTimeout)
	defer cancel()
	h.HandleUpdate(ctx, update)

	// Telegram redelivers on anything but 2xx, so failures are only logged.
	w.WriteHeader(http.StatusOK)
}

// HandleUpdate processes one update; it never panics.
func (h *WebhookHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.UpdatesProcessed.Inc()
			h.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// updates arriving through the HTTP server already carry a request logger
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = logging.WithRequestID(ctx, h.logger, uuid.New().String())
	}
	logger := logging.FromContext(ctx, h.logger)

	h.withRecovery(logger, func() {
		msg := update.Message
		if msg == nil || msg.Chat == nil {
			return
		}
		chatID := msg.Chat.ID

		if !h.allow(ctx, chatID) {
			logger.Warn().Int64("chat_id", chatID).Msg("rate limit exceeded")
			if h.metrics != nil {
				h.metrics.RateLimited.Inc()
			}
			if h.noticeDue(ctx, chatID) {
				h.reply(ctx, chatID, "⚠️ Too many messages. Please wait a moment and try again.")
			}
			return
		}

		if !msg.IsCommand() {
			h.reply(ctx, chatID, "Send /help to see what I can do.")
			return
		}

		command := msg.Command()
		if h.metrics != nil {
			h.metrics.CommandsProcessed.WithLabelValues(commandLabel(command)).Inc()
		}
		logger.Debug().Str("command", command).Int64("chat_id", chatID).Msg("command received")

		text, err := h.dispatch(ctx, chatID, command, msg.CommandArguments())
		if err != nil {
			if h.metrics != nil {
				h.metrics.ErrorsTotal.Inc()
			}
			logger.Error().Err(err).Str("command", command).Msg("command failed")
			text = errorMessage(err)
		}
		h.reply(ctx, chatID, text)
	})
}

func (h *WebhookHandler) allow(ctx context.Context, chatID int64) bool {
	if h.limiter == nil || h.rateLimitMessages <= 0 {
		return true
	}
	allowed, err := h.limiter.Allow(ctx, "chat:"+strconv.FormatInt(chatID, 10), h.rateLimitMessages, h.rateLimitWindow)
	if err != nil {
		// fail open: a limiter outage should not silence the bot
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("rate limit check failed")
		return true
	}
	return allowed
}

// noticeDue reports whether a limited chat should be told so. The notice is
// sent at most once per window; further messages are dropped silently.
func (h *WebhookHandler) noticeDue(ctx context.Context, chatID int64) bool {
	due, err := h.limiter.Allow(ctx, "chat:"+strconv.FormatInt(chatID, 10)+":notice", 1, h.rateLimitWindow)
	if err != nil {
		return false
	}
	return due
}

func (h *WebhookHandler) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.sender.Send(msg); err != nil {
		logging.FromContext(ctx, h.logger).Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

func (h *WebhookHandler) withRecovery(logger *zerolog.Logger, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if h.metrics != nil {
				h.metrics.ErrorsTotal.Inc()
			}
			logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func errorMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Sprintf("⚠️ %s\nUsage: /slots YYYY-MM-DD [technician]", userFacing(err))
	}
	return "❌ Something went wrong. Please try again later."
}

func userFacing(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidInput.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func commandLabel(command string) string {
	switch command {
	case cmdStart, cmdHelp, cmdServices, cmdTechnicians, cmdSlots:
		return command
	default:
		return "unknown"
	}
}
