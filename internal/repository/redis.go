package repository

import (
	"context"
	"fmt"

	"clinicsync/internal/config"
	"clinicsync/internal/models"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultDeadLetterCap is the maximum number of kept dead letters.
const DefaultDeadLetterCap = 10000

// RedisDeadLetter keeps exhausted items in a capped Redis list, newest first.
type RedisDeadLetter struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisDeadLetter(client *redis.Client, key string) *RedisDeadLetter {
	if key == "" {
		key = config.DefaultDeadLetterKey
	}
	return &RedisDeadLetter{
		client: client,
		key:    key,
		maxLen: DefaultDeadLetterCap,
	}
}

func (r *RedisDeadLetter) Push(ctx context.Context, letter models.DeadLetter) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dead letter to redis: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit returns all.
func (r *RedisDeadLetter) List(ctx context.Context, limit int64) ([]models.DeadLetter, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}

	raw, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters from redis: %w", err)
	}

	letters := make([]models.DeadLetter, 0, len(raw))
	for _, item := range raw {
		var letter models.DeadLetter
		if err := json.Unmarshal([]byte(item), &letter); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
