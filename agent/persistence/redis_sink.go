package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink stores each report under its own key with SETNX and keeps a
// sorted-set index scored by creation time.
type RedisSink struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSink connects to Redis and pings it.
func NewRedisSink(ctx context.Context, cfg RedisSinkConfig, logger *zap.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisSink(client, cfg, logger), nil
}

func newRedisSink(client *redis.Client, cfg RedisSinkConfig, logger *zap.Logger) *RedisSink {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "crewcheck:"
	}
	return &RedisSink{
		client:    client,
		keyPrefix: keyPrefix + "report:",
		ttl:       cfg.TTL,
		logger:    logger.With(zap.String("component", "redis_sink")),
	}
}

// dataKey returns the Redis key for a report payload
func (s *RedisSink) dataKey(key string) string {
	return s.keyPrefix + "data:" + key
}

// indexKey returns the Redis key for the creation-time index
func (s *RedisSink) indexKey() string {
	return s.keyPrefix + "index"
}

// metaKey returns the Redis hash holding per-report metadata
func (s *RedisSink) metaKey() string {
	return s.keyPrefix + "meta"
}

type redisMeta struct {
	CrewID string `json:"crew_id"`
	Size   int    `json:"size"`
}

// Open implements Sink.
func (s *RedisSink) Open(ctx context.Context, key string) (ReportWriter, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	n, err := s.client.Exists(ctx, s.dataKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}
	if n > 0 {
		return nil, ErrAlreadyExists
	}
	return &redisWriter{sink: s, key: key}, nil
}

// Ping checks if the sink is healthy
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Load implements ReportReader.
func (s *RedisSink) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// List implements ReportReader.
func (s *RedisSink) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = fmt.Sprint(m.Member)
	}
	metas, err := s.client.HMGet(ctx, s.metaKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}

	entries := make([]Entry, len(members))
	for i, m := range members {
		entries[i] = Entry{Key: keys[i], CreatedAt: time.UnixMilli(int64(m.Score)).UTC()}
		if raw, ok := metas[i].(string); ok {
			var meta redisMeta
			if json.Unmarshal([]byte(raw), &meta) == nil {
				entries[i].CrewID = meta.CrewID
				entries[i].Size = meta.Size
			}
		}
	}
	return entries, nil
}

type redisWriter struct {
	sink *RedisSink
	key  string
	done bool
}

func (w *redisWriter) Write(ctx context.Context, data []byte) error {
	if w.done {
		return ErrAlreadyExists
	}
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	s := w.sink

	ok, err := s.client.SetNX(ctx, s.dataKey(w.key), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	w.done = true

	meta, _ := json.Marshal(redisMeta{CrewID: h.CrewID, Size: len(data)})
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(h.CreatedAt.UnixMilli()), Member: w.key})
	pipe.HSet(ctx, s.metaKey(), w.key, meta)
	if _, err := pipe.Exec(ctx); err != nil {
		// the payload is durable; only the index is missing
		s.logger.Warn("failed to index report", zap.String("key", w.key), zap.Error(err))
	}
	return nil
}

func (w *redisWriter) Close() error { return nil }
