// Package rediscache caches raw exchange klines in Redis in front of a
// ports.KlineSource.
package rediscache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"klineforge/internal/domain"
	"klineforge/internal/metrics"
	"klineforge/internal/ports"
)

const keyPrefix = "klineforge:klines:"

// store is the part of Redis the cache needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error) // errMiss when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var errMiss = errors.New("cache miss")

// Config configures the cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Logger   ports.Logger
	Metrics  *metrics.Metrics // optional
}

// Source decorates a KlineSource. Only closed ranges (an end already in the
// past) are cached; open-ended and still-forming ranges go straight to the
// wrapped source. Cache failures are logged and never fail a fetch.
type Source struct {
	next    ports.KlineSource
	store   store
	ttl     time.Duration
	logger  ports.Logger
	metrics *metrics.Metrics
	closer  func() error
	now     func() time.Time
}

// New connects to Redis and wraps next.
func New(ctx context.Context, next ports.KlineSource, cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for kline cache")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w: %w", cfg.Addr, ports.ErrCacheUnavailable, err)
	}
	cfg.Logger.Info(ctx, "Kline cache connected", map[string]interface{}{"addr": cfg.Addr, "db": cfg.DB, "ttl": cfg.TTL.String()})

	s := newSource(next, redisStore{client: client}, cfg)
	s.closer = client.Close
	return s, nil
}

func newSource(next ports.KlineSource, st store, cfg Config) *Source {
	return &Source{
		next:    next,
		store:   st,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// Key returns the cache key of a closed kline range.
func Key(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", keyPrefix, symbol, interval, start.UnixMilli(), end.UnixMilli())
}

// GetHistoricalKlines serves the range from Redis when present, otherwise
// fetches it from the wrapped source and stores it.
func (s *Source) GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.RawRow, error) {
	if end.IsZero() || !end.Before(s.now()) {
		return s.next.GetHistoricalKlines(ctx, symbol, interval, start, end)
	}
	key := Key(symbol, interval, start, end)
	fields := map[string]interface{}{"symbol": symbol, "interval": interval, "key": key}

	data, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		rows, decodeErr := decodeRows(data)
		if decodeErr == nil {
			s.count("hit")
			s.logger.Debug(ctx, "Kline cache hit", fields)
			return rows, nil
		}
		s.count("error")
		s.logger.Warn(ctx, "Discarding undecodable cache entry", map[string]interface{}{"key": key, "error": decodeErr.Error()})
	case errors.Is(err, errMiss):
		s.count("miss")
	default:
		s.count("error")
		s.logger.Warn(ctx, "Kline cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	rows, err := s.next.GetHistoricalKlines(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(rows)
	if err != nil {
		s.logger.Warn(ctx, "Kline cache encode failed", map[string]interface{}{"key": key, "error": err.Error()})
		return rows, nil
	}
	if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		s.count("error")
		s.logger.Warn(ctx, "Kline cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return rows, nil
	}
	s.logger.Debug(ctx, "Kline cache stored", fields)
	return rows, nil
}

// Close releases the Redis connection.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Source) count(result string) {
	if s.metrics != nil {
		s.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

// decodeRows keeps numbers as json.Number so millisecond timestamps and
// decimal strings survive unchanged.
func decodeRows(data []byte) ([]domain.RawRow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []domain.RawRow
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

type redisStore struct {
	client *goredis.Client
}

func (r redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, errMiss
	}
	return data, err
}

func (r redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}
