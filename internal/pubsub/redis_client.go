package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

// streamMaxLen caps history streams so they do not grow without bound
const streamMaxLen = 1000

var _ storage.RedisClient = (*RedisClientImpl)(nil)

// RedisClientImpl implements the storage.RedisClient interface
type RedisClientImpl struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (storage.RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisClientImpl{client: rdb}, nil
}

// PublishToStream publishes a message to a Redis stream
func (r *RedisClientImpl) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	// Serialize value to JSON
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	// Publish to stream with key as field name
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			key: string(jsonData),
		},
	}).Err()

	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	return nil
}

// Set sets a key-value pair with TTL
func (r *RedisClientImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.client.Set(ctx, key, jsonData, ttl).Err()
}

// Get gets a value by key
func (r *RedisClientImpl) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

// GetJSON gets a JSON value and unmarshals it
func (r *RedisClientImpl) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete deletes a key
func (r *RedisClientImpl) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Publish publishes a message to a pub/sub channel
func (r *RedisClientImpl) Publish(ctx context.Context, channel string, message interface{}) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return r.client.Publish(ctx, channel, jsonData).Err()
}

// Subscribe subscribes to pub/sub channels
func (r *RedisClientImpl) Subscribe(ctx context.Context, channels ...string) (<-chan storage.PubSubMessage, error) {
	pubsub := r.client.Subscribe(ctx, channels...)
	messageChan := make(chan storage.PubSubMessage, 100)

	go func() {
		defer close(messageChan)
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					return
				}
				psMsg := storage.PubSubMessage{
					Channel: msg.Channel,
					Message: msg.Payload,
				}
				select {
				case messageChan <- psMsg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messageChan, nil
}

// Ping checks the Redis connection
func (r *RedisClientImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClientImpl) Close() error {
	return r.client.Close()
}

