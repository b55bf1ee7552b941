// Package service holds the application services between the Telegram
// transport and storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

const contextCacheTTL = 5 * time.Minute

// ContextService records conversation turns and builds the prompt
// context the LLM sees. A Redis cache in front of the history query is
// optional; every cache failure degrades to the store.
type ContextService struct {
	store  storage.Store
	cache  *redis.Client
	window int
	log    *zap.Logger
}

func NewContextService(store storage.Store, cache *redis.Client, window int, log *zap.Logger) *ContextService {
	if window <= 0 {
		window = 10
	}
	return &ContextService{store: store, cache: cache, window: window, log: log}
}

// Record appends one conversation turn and invalidates the cached
// context for the user.
func (s *ContextService) Record(ctx context.Context, userID uint, text, sender string) error {
	if err := s.store.AddMessage(ctx, userID, text, sender, "text"); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, contextCacheKey(userID)).Err(); err != nil {
			s.log.Warn("context cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// RecentContext renders the last turns of the conversation as
// "You:"/"Anuj:" lines, oldest first. Empty history yields "".
func (s *ContextService) RecentContext(ctx context.Context, userID uint) (string, error) {
	key := contextCacheKey(userID)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("context cache read failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	msgs, err := s.store.RecentHistory(ctx, userID, s.window)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	rendered := renderHistory(msgs)

	if s.cache != nil && rendered != "" {
		if err := s.cache.Set(ctx, key, rendered, contextCacheTTL).Err(); err != nil {
			s.log.Warn("context cache write failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return rendered, nil
}

// TouchTopic updates the rolling topic state after a query.
func (s *ContextService) TouchTopic(ctx context.Context, userID uint, topic, query string) error {
	uc, err := s.store.GetUserContext(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		uc = &model.UserContext{UserID: userID, ContextData: "{}"}
	} else if err != nil {
		return fmt.Errorf("load user context: %w", err)
	}
	if topic != "" {
		uc.CurrentTopic = topic
	}
	if uc.CurrentTopic == "" {
		uc.CurrentTopic = "general"
	}
	uc.LastQuery = query
	uc.QueryCount++
	uc.UpdatedAt = time.Now()
	return s.store.SetUserContext(ctx, uc)
}

func renderHistory(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range msgs {
		label := "You"
		if m.Sender == model.SenderBot {
			label = "Anuj"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func contextCacheKey(userID uint) string {
	return fmt.Sprintf("anuj:context:%d", userID)
}
