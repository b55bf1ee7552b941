package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

func TestRecentContext_Empty(t *testing.T) {
	svc := NewContextService(storage.NewMemStore(), nil, 10, zap.NewNop())

	out, err := svc.RecentContext(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRecentContext_RendersOldestFirst(t *testing.T) {
	store := storage.NewMemStore()
	svc := NewContextService(store, nil, 10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, 1, "hello", model.SenderUser))
	require.NoError(t, svc.Record(ctx, 1, "Namaste!", model.SenderBot))
	require.NoError(t, svc.Record(ctx, 1, "what is osmosis", model.SenderUser))

	out, err := svc.RecentContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "You: hello\nAnuj: Namaste!\nYou: what is osmosis", out)
}

func TestRecentContext_WindowLimits(t *testing.T) {
	store := storage.NewMemStore()
	svc := NewContextService(store, nil, 2, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, 1, "one", model.SenderUser))
	require.NoError(t, svc.Record(ctx, 1, "two", model.SenderUser))
	require.NoError(t, svc.Record(ctx, 1, "three", model.SenderUser))

	out, err := svc.RecentContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "You: two\nYou: three", out)
}

func TestRecentContext_IsolatedPerUser(t *testing.T) {
	store := storage.NewMemStore()
	svc := NewContextService(store, nil, 10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, 1, "mine", model.SenderUser))
	require.NoError(t, svc.Record(ctx, 2, "theirs", model.SenderUser))

	out, err := svc.RecentContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "You: mine", out)
}

func TestTouchTopic_CreatesAndBumps(t *testing.T) {
	store := storage.NewMemStore()
	svc := NewContextService(store, nil, 10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.TouchTopic(ctx, 1, "physics", "what is torque"))
	require.NoError(t, svc.TouchTopic(ctx, 1, "", "and angular momentum?"))

	uc, err := store.GetUserContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "physics", uc.CurrentTopic)
	assert.Equal(t, "and angular momentum?", uc.LastQuery)
	assert.Equal(t, int64(2), uc.QueryCount)
}
