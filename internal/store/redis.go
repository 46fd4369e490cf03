package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/support-desk/internal/model"
)

// DefaultTranscriptTTL bounds how long an idle transcript is kept.
const DefaultTranscriptTTL = 7 * 24 * time.Hour

// RedisTranscripts implements TranscriptStore with one list per conversation.
type RedisTranscripts struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTranscripts connects to redisURL.
func NewRedisTranscripts(ctx context.Context, redisURL string, ttl time.Duration) (*RedisTranscripts, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	return &RedisTranscripts{client: client, ttl: ttl}, nil
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("transcript:%s", sessionID)
}

// Append pushes msg onto the conversation transcript and refreshes its TTL.
func (s *RedisTranscripts) Append(ctx context.Context, sessionID string, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := transcriptKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the stored transcript in append order. A missing key yields nil.
func (s *RedisTranscripts) Load(ctx context.Context, sessionID string) ([]model.Message, error) {
	raw, err := s.client.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisTranscripts) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisTranscripts) Close() error {
	return s.client.Close()
}
