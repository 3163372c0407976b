// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
)

// RedisStore keeps the history in a Redis set. Appends are durable
// immediately (SADD), so Persist has nothing left to flush.
type RedisStore struct {
	client *redis.Client
	key    string
	set    *memorySet
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection before
// returning; a bot that cannot reach its history must not start a run.
func NewRedisStore(cfg config.HistorySettings) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("history").With().Str(log.FieldBackend, "redis").Logger()
	logger.Info().
		Str("addr", cfg.RedisAddr).
		Int("db", cfg.RedisDB).
		Msg("connected to redis history")

	return &RedisStore{
		client: client,
		key:    cfg.Key,
		set:    newMemorySet(),
		logger: logger,
	}, nil
}

func (s *RedisStore) Restore(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read history set: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			s.logger.Warn().
				Str("member", member).
				Msg("skipping malformed history member")
			continue
		}
		ids = append(ids, id)
	}

	s.set.replace(ids)
	metrics.RecordHistorySize(s.set.size())
	return s.set.snapshot(), nil
}

func (s *RedisStore) Append(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}
	// SADD reports how many members were actually new.
	added, err := s.client.SAdd(ctx, s.key, members...).Result()
	if err != nil {
		return 0, fmt.Errorf("append history set: %w", err)
	}

	s.set.add(ids)
	metrics.RecordHistorySize(s.set.size())
	return int(added), nil
}

// Persist is a no-op: Append writes through to Redis.
func (s *RedisStore) Persist(ctx context.Context) error { return nil }

func (s *RedisStore) Snapshot() []int64      { return s.set.snapshot() }
func (s *RedisStore) Contains(id int64) bool { return s.set.contains(id) }
func (s *RedisStore) Close() error           { return s.client.Close() }
