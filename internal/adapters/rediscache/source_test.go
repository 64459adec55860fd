package rediscache

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/internal/domain"
	"klineforge/internal/ingest"
	"klineforge/internal/metrics"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errMiss
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("connection refused")
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingSource struct {
	calls int
	rows  []domain.RawRow
	err   error
}

func (c *countingSource) GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.RawRow, error) {
	c.calls++
	return c.rows, c.err
}

func sampleRows() []domain.RawRow {
	return []domain.RawRow{
		{int64(1704067200000), "100.10", "101", "99", "100.5", "12", int64(1704067259999), "1206", int64(31), "6", "603", "0"},
		{int64(1704067260000), "100.5", "102", "100", "101.25", "8", int64(1704067319999), "810", int64(17), "4", "405", "0"},
	}
}

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = start.Add(2 * time.Minute)
)

func TestSource_MissThenHit(t *testing.T) {
	next := &countingSource{rows: sampleRows()}
	st := newMemStore()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := newSource(next, st, Config{TTL: time.Hour, Logger: &mockLogger{}, Metrics: m})

	first, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
	require.NoError(t, err)
	second, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Hour, st.ttls[Key("ETHUSDT", "1m", start, end)])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))

	// cached rows ingest to the same bars
	want, err := ingest.FromRows("ETHUSDT", "1m", first)
	require.NoError(t, err)
	got, err := ingest.FromRows("ETHUSDT", "1m", second)
	require.NoError(t, err)
	assert.Equal(t, want.Bars, got.Bars)
}

func TestSource_OpenEndedBypassesCache(t *testing.T) {
	next := &countingSource{rows: sampleRows()}
	st := newMemStore()
	s := newSource(next, st, Config{Logger: &mockLogger{}})

	for i := 0; i < 2; i++ {
		_, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, time.Time{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.calls)
	assert.Empty(t, st.data)
}

func TestSource_FormingRangeBypassesCache(t *testing.T) {
	next := &countingSource{rows: sampleRows()}
	st := newMemStore()
	s := newSource(next, st, Config{TTL: time.Hour, Logger: &mockLogger{}})
	s.now = func() time.Time { return end.Add(-30 * time.Second) }

	for i := 0; i < 2; i++ {
		_, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.calls)
	assert.Empty(t, st.data)
}

func TestSource_StoreFailuresDoNotFailFetch(t *testing.T) {
	next := &countingSource{rows: sampleRows()}
	st := newMemStore()
	st.failGet, st.failSet = true, true
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := newSource(next, st, Config{Logger: &mockLogger{}, Metrics: m})

	rows, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("error")))
}

func TestSource_CorruptEntryIsRefetched(t *testing.T) {
	next := &countingSource{rows: sampleRows()}
	st := newMemStore()
	st.data[Key("ETHUSDT", "1m", start, end)] = []byte("{not json")
	s := newSource(next, st, Config{Logger: &mockLogger{}})

	rows, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, next.calls)
	assert.NotEqual(t, "{not json", string(st.data[Key("ETHUSDT", "1m", start, end)]))
}

func TestSource_SourceErrorIsNotCached(t *testing.T) {
	next := &countingSource{err: errors.New("exchange down")}
	st := newMemStore()
	s := newSource(next, st, Config{Logger: &mockLogger{}})

	_, err := s.GetHistoricalKlines(context.Background(), "ETHUSDT", "1m", start, end)
	assert.EqualError(t, err, "exchange down")
	assert.Empty(t, st.data)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "klineforge:klines:ETHUSDT:1h:1704067200000:1704067320000", Key("ETHUSDT", "1h", start, end))
}

func TestNew_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	next := &countingSource{rows: sampleRows()}
	s, err := New(context.Background(), next, Config{Addr: addr, TTL: time.Minute, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer s.Close()

	rangeStart := time.Now().UTC().Truncate(time.Minute)
	rangeEnd := rangeStart.Add(time.Minute)
	_, err = s.GetHistoricalKlines(context.Background(), "TESTUSDT", "1m", rangeStart, rangeEnd)
	require.NoError(t, err)
	rows, err := s.GetHistoricalKlines(context.Background(), "TESTUSDT", "1m", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, next.calls)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(context.Background(), &countingSource{}, Config{Addr: "127.0.0.1:1", Logger: &mockLogger{}})
	assert.Error(t, err)
}
