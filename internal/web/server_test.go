package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBot records the updates it was asked to handle.
type fakeBot struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (f *fakeBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

func (f *fakeBot) API() *tgbotapi.BotAPI { return nil }

func (f *fakeBot) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func TestHealth(t *testing.T) {
	srv := NewServer(&fakeBot{}, "", zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestWebhook_AcksAndDispatches(t *testing.T) {
	bot := &fakeBot{}
	srv := NewServer(bot, "", zap.NewNop())

	body := `{"update_id": 42, "message": {"message_id": 1, "text": "hi", "chat": {"id": 10, "type": "private"}}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	srv.Engine().ServeHTTP(w, req)

	// Telegram gets its ack immediately; the update is handled async.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	require.Eventually(t, func() bool { return bot.count() == 1 }, time.Second, 5*time.Millisecond)
	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Equal(t, 42, bot.updates[0].UpdateID)
}

func TestWebhook_RejectsBadPayload(t *testing.T) {
	bot := &fakeBot{}
	srv := NewServer(bot, "", zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, bot.count())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := NewServer(&fakeBot{}, "", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	// Give the listener a moment to come up before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server kept running after cancel")
	}
}

func TestSetWebhook_NoURLConfigured(t *testing.T) {
	srv := NewServer(&fakeBot{}, "", zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/set_webhook", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
