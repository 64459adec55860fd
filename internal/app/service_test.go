package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/config"
	"klineforge/internal/adapters/rediscache"
	"klineforge/internal/domain"
	"klineforge/internal/pipeline"
	"klineforge/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type fetchCall struct {
	symbol, interval string
	start, end       time.Time
}

type mockSource struct {
	mu     sync.Mutex
	rows   map[string][]domain.RawRow
	errs   map[string]error
	called []fetchCall
}

func (m *mockSource) GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.RawRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called = append(m.called, fetchCall{symbol, interval, start, end})
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return m.rows[symbol], nil
}

type mockRuns struct {
	mu    sync.Mutex
	saved []*domain.RunReport
	err   error
}

func (m *mockRuns) SaveRun(ctx context.Context, rep *domain.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rep)
	return nil
}

func (m *mockRuns) FindRun(ctx context.Context, id string) (*domain.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRuns) ListRuns(ctx context.Context, symbol string, limit int) ([]*domain.RunReport, error) {
	return nil, nil
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func hourlyRows(n int) []domain.RawRow {
	const hour = int64(3_600_000)
	base := fixedNow.Add(-time.Duration(n) * time.Hour).Truncate(time.Hour).UnixMilli()
	rows := make([]domain.RawRow, n)
	for i := range rows {
		ot := base + int64(i)*hour
		c := strconv.FormatFloat(100+float64(i%7), 'f', -1, 64)
		rows[i] = domain.RawRow{ot, c, "110", "95", c, "5", ot + hour - 1, "500", int64(9), "2", "200", "0"}
	}
	return rows
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Symbols:       []string{"ETHUSDT", "BTCUSDT"},
		Interval:      "1h",
		Lookback:      "3d",
		OutputDir:     filepath.Join(t.TempDir(), "features"),
		OutputFormats: []string{"csv", "parquet"},
		LabelSteps:    2,
		LabelBinary:   true,
	}
}

func newTestService(t *testing.T, cfg *config.Config, src ports.KlineSource, runs ports.RunRepository) (*FeatureService, *mockLogger) {
	t.Helper()
	log := &mockLogger{}
	pipe, err := pipeline.New(pipeline.Config{Logger: log})
	require.NoError(t, err)
	svc, err := NewFeatureService(cfg, log, src, runs, pipe)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return svc, log
}

func TestNewFeatureService(t *testing.T) {
	log := &mockLogger{}
	pipe, err := pipeline.New(pipeline.Config{Logger: log})
	require.NoError(t, err)
	src := &mockSource{}

	tests := []struct {
		name    string
		cfg     func(*config.Config) *config.Config
		logger  ports.Logger
		source  ports.KlineSource
		wantErr bool
		errIs   error
	}{
		{name: "valid", cfg: func(c *config.Config) *config.Config { return c }, logger: log, source: src},
		{name: "nil config", cfg: func(*config.Config) *config.Config { return nil }, logger: log, source: src, wantErr: true},
		{name: "nil logger", cfg: func(c *config.Config) *config.Config { return c }, source: src, wantErr: true},
		{name: "nil source", cfg: func(c *config.Config) *config.Config { return c }, logger: log, wantErr: true},
		{
			name:    "no symbols",
			cfg:     func(c *config.Config) *config.Config { c.Symbols = nil; return c },
			logger:  log,
			source:  src,
			wantErr: true,
			errIs:   domain.ErrConfiguration,
		},
		{
			name:    "unknown format",
			cfg:     func(c *config.Config) *config.Config { c.OutputFormats = []string{"xlsx"}; return c },
			logger:  log,
			source:  src,
			wantErr: true,
			errIs:   domain.ErrConfiguration,
		},
		{
			name:    "missing plan file",
			cfg:     func(c *config.Config) *config.Config { c.PlanFile = filepath.Join(t.TempDir(), "nope.yaml"); return c },
			logger:  log,
			source:  src,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewFeatureService(tt.cfg(testConfig(t)), tt.logger, tt.source, nil, pipe)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, svc)
				return
			}
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}
}

func TestPlanFromConfig(t *testing.T) {
	cfg := testConfig(t)
	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultPlan().Preset, plan.Preset)
	require.NotNil(t, plan.Label)
	assert.Equal(t, 2, plan.Label.Steps)
	assert.True(t, plan.Label.Binary)

	cfg.LabelSteps = 0
	plan, err = PlanFromConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, plan.Label)

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indicators:\n  - name: ema\n    params: {period: 5}\nlabel:\n  steps: 4\n"), 0o644))
	cfg.PlanFile = path
	cfg.LabelSteps = 9
	plan, err = PlanFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, plan.Indicators, 1)
	require.NotNil(t, plan.Label)
	assert.Equal(t, 4, plan.Label.Steps, "label from the plan file wins")
}

func TestFeatureService_Run(t *testing.T) {
	cfg := testConfig(t)
	src := &mockSource{rows: map[string][]domain.RawRow{
		"ETHUSDT": hourlyRows(72),
		"BTCUSDT": hourlyRows(72),
	}}
	runs := &mockRuns{}
	svc, log := newTestService(t, cfg, src, runs)

	outcomes, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	forming := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	require.Len(t, src.called, 2)
	for _, c := range src.called {
		assert.Equal(t, "1h", c.interval)
		assert.True(t, forming.Add(-time.Millisecond).Equal(c.end), "end stops before the forming kline")
		assert.True(t, forming.Add(-72*time.Hour).Equal(c.start))
	}

	for _, symbol := range cfg.Symbols {
		out := outcomes[symbol]
		require.NotNil(t, out, symbol)
		assert.Equal(t, symbol, out.Report.Symbol)
		assert.Equal(t, 72, out.Report.Clean.RowsOut)
		assert.Contains(t, out.Report.Columns, "future_price")
		require.Len(t, out.Paths, 2)
		assert.Equal(t, filepath.Join(cfg.OutputDir, symbol+"_1h_3d_2025-03-14.csv"), out.Paths[0])
		assert.Equal(t, filepath.Join(cfg.OutputDir, symbol+"_1h_3d_2025-03-14.parquet"), out.Paths[1])
		for _, p := range out.Paths {
			assert.FileExists(t, p)
		}
	}

	assert.Len(t, runs.saved, 2)
	assert.Contains(t, log.infoMsgs, "Feature table saved")
	assert.Empty(t, log.errorMsgs)
}

func TestFeatureService_RangeStableWithinInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbols = []string{"ETHUSDT"}
	src := &mockSource{rows: map[string][]domain.RawRow{"ETHUSDT": hourlyRows(72)}}
	svc, _ := newTestService(t, cfg, src, nil)

	for _, now := range []time.Time{
		time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		time.Date(2025, 3, 14, 9, 59, 59, 0, time.UTC),
		time.Date(2025, 3, 14, 10, 0, 1, 0, time.UTC),
	} {
		svc.now = func() time.Time { return now }
		_, err := svc.Run(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, src.called, 4)
	keys := make([]string, len(src.called))
	for i, c := range src.called {
		keys[i] = rediscache.Key(c.symbol, c.interval, c.start, c.end)
	}
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[0], keys[2])
	assert.NotEqual(t, keys[0], keys[3], "a new interval moves the range")
}

func TestFeatureService_RunPartialFailure(t *testing.T) {
	cfg := testConfig(t)
	fetchErr := errors.New("exchange down")
	src := &mockSource{
		rows: map[string][]domain.RawRow{"ETHUSDT": hourlyRows(72)},
		errs: map[string]error{"BTCUSDT": fetchErr},
	}
	svc, log := newTestService(t, cfg, src, nil)

	outcomes, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)
	assert.Contains(t, err.Error(), "BTCUSDT")
	require.Len(t, outcomes, 1)
	assert.NotNil(t, outcomes["ETHUSDT"])
	assert.Contains(t, log.errorMsgs, "Failed to fetch klines")
}

func TestFeatureService_RunRecordFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbols = []string{"ETHUSDT"}
	src := &mockSource{rows: map[string][]domain.RawRow{"ETHUSDT": hourlyRows(72)}}
	runs := &mockRuns{err: ports.ErrDBConnection}
	svc, _ := newTestService(t, cfg, src, runs)

	outcomes, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrDBConnection)
	assert.Empty(t, outcomes)
}

func TestFeatureService_RunBadRange(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		lookback string
	}{
		{name: "bad lookback", interval: "1h", lookback: "forever"},
		{name: "bad interval", interval: "7x", lookback: "3d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Interval = tt.interval
			cfg.Lookback = tt.lookback
			src := &mockSource{}
			svc, _ := newTestService(t, cfg, src, nil)

			_, err := svc.Run(context.Background())
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Empty(t, src.called)
		})
	}
}

func TestFeatureService_StartCanceled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbols = []string{"ETHUSDT"}
	src := &mockSource{rows: map[string][]domain.RawRow{"ETHUSDT": hourlyRows(72)}}
	svc, log := newTestService(t, cfg, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, log.infoMsgs, "Starting Feature Service...")
	assert.Contains(t, log.infoMsgs, "Feature Service finished")
}
