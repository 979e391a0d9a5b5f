package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insight-core/server/internal/agent/model"
	errx "github.com/insight-core/server/internal/core/error"
	logx "github.com/insight-core/server/pkg/logger"
)

// RedisConversationRepository stores conversation history as a Redis list of
// JSON-encoded turn messages, with a TTL refreshed on every write.
type RedisConversationRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisConversationRepository(rdb redis.Cmdable, ttl time.Duration) *RedisConversationRepository {
	return &RedisConversationRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisConversationRepository) conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:turns", conversationID)
}

// AppendTurn pushes both messages of a completed turn in one pipeline so a
// concurrent reader never observes the user message without its reply.
func (r *RedisConversationRepository) AppendTurn(ctx context.Context, conversationID string, user, assistant model.TurnMessage) error {
	userB, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user message: %w", err)
	}
	assistantB, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("marshal assistant message: %w", err)
	}

	key := r.conversationKey(conversationID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, userB, assistantB)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append turn to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	key := r.conversationKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.ConversationHistory{ConversationID: conversationID}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	history := &model.ConversationHistory{ConversationID: conversationID}
	for _, raw := range rows {
		var msg model.TurnMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("skipping malformed history entry")
			continue
		}
		history.Messages = append(history.Messages, msg)
	}
	history.TurnCount = len(history.Messages) / 2
	return history, nil
}

func (r *RedisConversationRepository) ClearHistory(ctx context.Context, conversationID string) error {
	key := r.conversationKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) TurnCount(ctx context.Context, conversationID string) (int, error) {
	key := r.conversationKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, errx.WrapRedis(err)
	}
	return int(n / 2), nil
}
