package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// QueueStore keeps a short, bounded, expiring backlog of envelopes per
// (user, conversation) for clients that poll instead of subscribing.
type QueueStore interface {
	Publish(ctx context.Context, userID, conversationID string, env Envelope) error
	DrainAll(ctx context.Context, userID, conversationID string) ([]Envelope, error)
}

// QueueOptions controls Redis queue behavior.
type QueueOptions struct {
	Namespace string
	TTL       time.Duration
	MaxLength int64
}

const (
	defaultQueueNamespace = "statusstream"
	defaultQueueTTL       = 5 * time.Minute
	defaultQueueMaxLength = 50
)

// RedisQueue stores envelopes in one Redis list per (user, conversation).
type RedisQueue struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	maxLength int64
}

// NewRedisQueue constructs a Redis-backed queue store.
func NewRedisQueue(client redis.UniversalClient, opts *QueueOptions) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("streaming: redis client is required")
	}
	q := &RedisQueue{
		client:    client,
		namespace: defaultQueueNamespace,
		ttl:       defaultQueueTTL,
		maxLength: defaultQueueMaxLength,
	}
	if opts != nil {
		q.namespace = chooseOrDefault(opts.Namespace, defaultQueueNamespace)
		if opts.TTL > 0 {
			q.ttl = opts.TTL
		}
		if opts.MaxLength < 0 {
			return nil, fmt.Errorf("streaming: max length must be > 0 (got %d)", opts.MaxLength)
		}
		if opts.MaxLength > 0 {
			q.maxLength = opts.MaxLength
		}
	}
	return q, nil
}

// Key returns the list key for a user's view of a conversation.
func (q *RedisQueue) Key(userID, conversationID string) string {
	return fmt.Sprintf("%s:user_%s:interaction_%s", q.namespace, userID, conversationID)
}

// Publish appends env, keeps only the newest entries and refreshes the TTL.
// The three commands run in one MULTI/EXEC transaction.
func (q *RedisQueue) Publish(ctx context.Context, userID, conversationID string, env Envelope) error {
	if err := validateKeyParts(userID, conversationID); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("streaming: marshal envelope: %w", err)
	}
	key := q.Key(userID, conversationID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -q.maxLength, -1)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: queue publish: %w", ErrTransportUnavailable, err)
	}
	return nil
}

// DrainAll returns every queued envelope oldest first and empties the queue.
// Read and delete execute atomically, so a concurrent Publish lands either in
// this snapshot or in the next drain.
func (q *RedisQueue) DrainAll(ctx context.Context, userID, conversationID string) ([]Envelope, error) {
	if err := validateKeyParts(userID, conversationID); err != nil {
		return nil, err
	}
	key := q.Key(userID, conversationID)
	var values *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		values = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: queue drain: %w", ErrTransportUnavailable, err)
	}
	raw, err := values.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: queue drain: %w", ErrTransportUnavailable, err)
	}
	result := make([]Envelope, 0, len(raw))
	for _, item := range raw {
		var env Envelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			logger.FromContext(ctx).Warn("Dropping undecodable queue entry", "key", key, "error", err)
			continue
		}
		result = append(result, env)
	}
	return result, nil
}

// Len returns the number of envelopes currently queued.
func (q *RedisQueue) Len(ctx context.Context, userID, conversationID string) (int64, error) {
	n, err := q.client.LLen(ctx, q.Key(userID, conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: queue length: %w", ErrTransportUnavailable, err)
	}
	return n, nil
}

// validateKeyParts keeps distinct (user, conversation) pairs on distinct keys.
func validateKeyParts(userID, conversationID string) error {
	if err := userctx.ValidateUserID(userID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return ValidateConversationID(conversationID)
}

func chooseOrDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
