package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const transcriptTTL = 30 * 24 * time.Hour

// RedisArchive is an append-only transcript store. The registry remains
// authoritative for live sessions; the archive exists so transcripts
// survive process restarts and can be inspected after a session ends.
type RedisArchive struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisArchive creates an archive over the given client.
func NewRedisArchive(client *redis.Client) *RedisArchive {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisArchive{
		redis:  client,
		tracer: otel.Tracer("parentcare/session-archive"),
		ttl:    transcriptTTL,
	}
}

// Append pushes one message onto the session transcript list.
func (a *RedisArchive) Append(ctx context.Context, sessionID string, msg Message) error {
	ctx, span := a.tracer.Start(ctx, "session.archive_append")
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: marshal transcript message: %w", err)
	}

	key := transcriptKey(sessionID)
	pipe := a.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: persist transcript message: %w", err)
	}
	return nil
}

// List returns up to limit most recent archived messages in append order.
// A limit <= 0 returns the full transcript.
func (a *RedisArchive) List(ctx context.Context, sessionID string, limit int64) ([]Message, error) {
	ctx, span := a.tracer.Start(ctx, "session.archive_list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := a.redis.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: load transcript: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: decode transcript message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("transcript:%s", sessionID)
}
