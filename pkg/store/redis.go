package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists datapoints in redis so the learned factor survives
// controller restarts and can be shared with other consumers.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection. ttl 0 keeps
// datapoints forever, which is what the performance factor needs.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		prefix: "heatwise:datapoint:",
		ttl:    ttl,
	}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (Value, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("error reading datapoint %s: %w", key, err)
	}

	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, false, fmt.Errorf("error decoding datapoint %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes the datapoint. The redis write is already confirmed when the
// command returns so the ack flag adds nothing here, it exists for stores
// where writes are dispatched asynchronously.
func (r *RedisStore) Set(ctx context.Context, key string, value float64, ack bool) error {
	data, err := json.Marshal(Value{Value: value, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("error encoding datapoint %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("error writing datapoint %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
