package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/service"
	"anuj-bot/internal/storage"
)

// recordingSender captures outbound messages instead of talking to
// Telegram.
type recordingSender struct {
	sent []tgbotapi.Chattable
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c)
	return tgbotapi.Message{}, nil
}

func (r *recordingSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (r *recordingSender) texts() []string {
	var out []string
	for _, c := range r.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

// newTestBot wires a bot over MemStore with the recorder in place of
// the Telegram client.
func newTestBot(t *testing.T) (*Bot, *storage.MemStore, *recordingSender) {
	t.Helper()
	mem := storage.NewMemStore()
	rec := &recordingSender{}
	b := &Bot{
		sender:     rec,
		store:      mem,
		contextSvc: service.NewContextService(mem, nil, 10, zap.NewNop()),
		log:        zap.NewNop(),
	}
	b.register()
	return b, mem, rec
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 111, FirstName: "Priya"},
		Chat: &tgbotapi.Chat{ID: 111, Type: "private"},
		Text: text,
	}
}

func TestHandleText_ThanksRepliesAndLogsBothSides(t *testing.T) {
	b, mem, rec := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleText(ctx, textMessage("thanks bhai!")))

	texts := rec.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "surprise")
	assert.Contains(t, texts[0], "youtu.be")

	user, err := mem.FindUserByTelegramID(ctx, 111)
	require.NoError(t, err)
	msgs, err := mem.RecentHistory(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	bySender := map[string]string{}
	for _, m := range msgs {
		bySender[m.Sender] = m.Text
	}
	assert.Equal(t, "thanks bhai!", bySender[model.SenderUser])
	assert.Contains(t, bySender[model.SenderBot], "youtu.be")
}

func TestHandleText_EscapesFirstName(t *testing.T) {
	b, _, rec := newTestBot(t)

	msg := textMessage("thank you!")
	msg.From.FirstName = "<Priya>"
	require.NoError(t, b.handleText(context.Background(), msg))

	texts := rec.texts()
	require.Len(t, texts, 1)
	assert.NotContains(t, texts[0], "<Priya>")
	assert.Contains(t, texts[0], "&lt;Priya&gt;")
}

func TestHandleMemory_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("क", 150)

	got := truncateRunes(long, 100)
	assert.Equal(t, strings.Repeat("क", 100)+"...", got)

	short := "छोटा message"
	assert.Equal(t, short, truncateRunes(short, 100))
}
