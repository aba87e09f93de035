package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBotAPI authorizes the bot token. An invalid token fails here, at startup.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier delivers plain-text messages to Telegram chats.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	logger *zerolog.Logger
}

var _ domain.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(bot domain.TelegramSender, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, logger: logger}
}

// Send posts text to channelID, a numeric Telegram chat id.
// Every failure is reported as ErrNotifierUnreachable.
func (n *TelegramNotifier) Send(ctx context.Context, channelID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad chat id %q", domain.ErrNotifierUnreachable, channelID)
	}

	// tgbotapi has no context support; run the call aside and stop waiting on ctx.
	done := make(chan error, 1)
	go func() {
		_, sendErr := n.bot.Send(tgbotapi.NewMessage(chatID, text))
		done <- sendErr
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrNotifierUnreachable, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: chat %d: %w", domain.ErrNotifierUnreachable, chatID, err)
		}
	}
	n.logger.Debug().Int64("chat_id", chatID).Msg("message delivered")
	return nil
}
