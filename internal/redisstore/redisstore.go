// Package redisstore implements kv.Backend on a Redis server. Values live in
// one hash and the key set is mirrored in a sorted set so that keys can be
// enumerated by position.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog"

	"github.com/alignecoderepos/verstash/pkg/kv"
)

const defaultTimeout = time.Second

// Config selects the Redis server and the namespace the backend owns.
type Config struct {
	Addr      string
	DB        int
	Namespace string
	Timeout   time.Duration
}

// Store is a kv.Backend over Redis.
type Store struct {
	rdb      *redis.Client
	dataKey  string
	indexKey string
	timeout  time.Duration
	logger   zerolog.Logger
}

var (
	_ = kv.Backend(&Store{})
	_ = kv.KeyLister(&Store{})
)

// Open connects to Redis and checks the connection.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: "",
		DB:       cfg.DB,
	})
	s := New(rdb, cfg.Namespace, cfg.Timeout, logger)

	ctx, cancel := s.ctx()
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Str("namespace", cfg.Namespace).Msg("connected to redis")
	return s, nil
}

// New wraps an existing client. Keys are stored under namespace.
func New(rdb *redis.Client, namespace string, timeout time.Duration, logger zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		rdb:      rdb,
		dataKey:  namespace + ":data",
		indexKey: namespace + ":keys",
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.rdb.HGet(ctx, s.dataKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return val, true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey, key, value)
		pipe.ZAddArgs(ctx, s.indexKey, redis.ZAddArgs{
			Members: []redis.Z{{Score: 0, Member: key}},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.dataKey, key)
		pipe.ZRem(ctx, s.indexKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove: %w", err)
	}
	return nil
}

func (s *Store) Clear() error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.rdb.Del(ctx, s.dataKey, s.indexKey).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (s *Store) Len() (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.rdb.ZCard(ctx, s.indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return int(n), nil
}

// Key returns the i-th key in lexicographic order.
func (s *Store) Key(i int) (string, bool, error) {
	if i < 0 {
		return "", false, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.rdb.ZRange(ctx, s.indexKey, int64(i), int64(i)).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis zrange: %w", err)
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[0], true, nil
}

// Keys returns every key in one round trip.
func (s *Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.rdb.ZRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return keys, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
