package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.MessageConfig
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestTelegramNotifier_Send(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, nil)

	require.NoError(t, n.Send(context.Background(), "1001", "hello"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(1001), sender.sent[0].ChatID)
	assert.Equal(t, "hello", sender.sent[0].Text)
}

func TestTelegramNotifier_Errors(t *testing.T) {
	t.Run("BadChatID", func(t *testing.T) {
		sender := &fakeSender{}
		err := NewTelegramNotifier(sender, nil).Send(context.Background(), "U123abc", "x")
		assert.ErrorIs(t, err, domain.ErrNotifierUnreachable)
		assert.Empty(t, sender.sent)
	})

	t.Run("TransportFailure", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("connection reset")}
		err := NewTelegramNotifier(sender, nil).Send(context.Background(), "1001", "x")
		assert.ErrorIs(t, err, domain.ErrNotifierUnreachable)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("Timeout", func(t *testing.T) {
		sender := &fakeSender{delay: 200 * time.Millisecond}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := NewTelegramNotifier(sender, nil).Send(ctx, "1001", "x")
		assert.ErrorIs(t, err, domain.ErrNotifierUnreachable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewBotAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") && strings.Contains(r.URL.Path, "good-token") {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"ok":     true,
				"result": map[string]interface{}{"id": 1, "is_bot": true, "username": "salon_bot"},
			})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error_code": 401, "description": "Unauthorized"})
	}))
	defer srv.Close()

	endpoint := srv.URL + "/bot%s/%s"

	bot, err := NewBotAPI(config.TelegramConfig{BotToken: "good-token", APIEndpoint: endpoint, RequestTimeout: 5})
	require.NoError(t, err)
	assert.Equal(t, "salon_bot", bot.Self.UserName)

	_, err = NewBotAPI(config.TelegramConfig{BotToken: "bad-token", APIEndpoint: endpoint, RequestTimeout: 5})
	assert.Error(t, err)
}
