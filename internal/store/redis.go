// Package store mirrors registry state into Redis so it can be replayed
// into empty registries on startup.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/config"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/models"
)

// Redis hash keys.
const (
	SinksKey      = "cepbridge:sinks"
	AttributesKey = "cepbridge:attributes"
)

// RedisStore persists sinks and attributes in two Redis hashes keyed by
// normalized URL and attribute identity.
type RedisStore struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

// NewRedisStore creates a store on top of client.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{redis: client, logger: logger.With(logging.Component("store"))}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// SaveSink stores or replaces sink.
func (s *RedisStore) SaveSink(ctx context.Context, sink models.EventSink) error {
	data, err := json.Marshal(sink)
	if err != nil {
		return fmt.Errorf("failed to marshal sink: %w", err)
	}
	if err := s.redis.HSet(ctx, SinksKey, sink.URL, data).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("save_sink").Inc()
		return fmt.Errorf("failed to save sink: %w", err)
	}
	return nil
}

// DeleteSink removes the sink stored under url.
func (s *RedisStore) DeleteSink(ctx context.Context, url string) error {
	if err := s.redis.HDel(ctx, SinksKey, url).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("delete_sink").Inc()
		return fmt.Errorf("failed to delete sink: %w", err)
	}
	return nil
}

// LoadSinks returns every stored sink. Undecodable entries are skipped.
func (s *RedisStore) LoadSinks(ctx context.Context) ([]models.EventSink, error) {
	entries, err := s.redis.HGetAll(ctx, SinksKey).Result()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load_sinks").Inc()
		return nil, fmt.Errorf("failed to load sinks: %w", err)
	}

	sinks := make([]models.EventSink, 0, len(entries))
	for field, data := range entries {
		var sink models.EventSink
		if err := json.Unmarshal([]byte(data), &sink); err != nil {
			s.logger.Warn("skipping undecodable sink", logging.SinkURL(field), logging.Error(err))
			continue
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// SaveAttribute stores or replaces attr.
func (s *RedisStore) SaveAttribute(ctx context.Context, attr models.MonitoredAttribute) error {
	data, err := json.Marshal(attr)
	if err != nil {
		return fmt.Errorf("failed to marshal attribute: %w", err)
	}
	if err := s.redis.HSet(ctx, AttributesKey, attributeField(attr.AttributeIdentity), data).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("save_attribute").Inc()
		return fmt.Errorf("failed to save attribute: %w", err)
	}
	return nil
}

// DeleteAttribute removes the attribute stored under id.
func (s *RedisStore) DeleteAttribute(ctx context.Context, id models.AttributeIdentity) error {
	if err := s.redis.HDel(ctx, AttributesKey, attributeField(id)).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("delete_attribute").Inc()
		return fmt.Errorf("failed to delete attribute: %w", err)
	}
	return nil
}

// LoadAttributes returns every stored attribute. Undecodable entries are skipped.
func (s *RedisStore) LoadAttributes(ctx context.Context) ([]models.MonitoredAttribute, error) {
	entries, err := s.redis.HGetAll(ctx, AttributesKey).Result()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load_attributes").Inc()
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}

	attrs := make([]models.MonitoredAttribute, 0, len(entries))
	for field, data := range entries {
		var attr models.MonitoredAttribute
		if err := json.Unmarshal([]byte(data), &attr); err != nil {
			s.logger.Warn("skipping undecodable attribute", logging.Attribute(field), logging.Error(err))
			continue
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// attributeField is the hash field for an identity. It is the JSON form of
// the identity so it stays readable in redis-cli.
func attributeField(id models.AttributeIdentity) string {
	data, _ := json.Marshal(id)
	return string(data)
}

// SinkRestorer is satisfied by the sink registry.
type SinkRestorer interface {
	Restore(sinks []models.EventSink) (int, error)
}

// AttributeRestorer is satisfied by the attribute registry.
type AttributeRestorer interface {
	Restore(attrs []models.MonitoredAttribute) (int, error)
}

// Replay loads persisted state into empty registries.
func (s *RedisStore) Replay(ctx context.Context, sinks SinkRestorer, attrs AttributeRestorer) error {
	storedSinks, err := s.LoadSinks(ctx)
	if err != nil {
		return err
	}
	storedAttrs, err := s.LoadAttributes(ctx)
	if err != nil {
		return err
	}

	nSinks, err := sinks.Restore(storedSinks)
	if err != nil {
		return err
	}
	nAttrs, err := attrs.Restore(storedAttrs)
	if err != nil {
		return err
	}

	s.logger.Info("registry state replayed",
		slog.Int("sinks", nSinks),
		slog.Int("attributes", nAttrs))
	return nil
}
