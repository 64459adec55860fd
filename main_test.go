package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/internal/adapters/sqlstore"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const hourMs = int64(3_600_000)

// hourlyExchange serves /api/v3/klines with one hourly kline per open time
// inside the requested range.
func hourlyExchange(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v3/klines" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	out := [][]interface{}{}
	first := (start + hourMs - 1) / hourMs * hourMs
	for ot := first; ot <= end && len(out) < limit; ot += hourMs {
		c := strconv.FormatInt(100+(ot/hourMs)%9, 10)
		out = append(out, []interface{}{ot, c, "110", "95", c, "3", ot + hourMs - 1, "300", 5, "1", "100", "0"})
	}
	json.NewEncoder(w).Encode(out)
}

func setEnv(t *testing.T, exchangeURL, dir string) string {
	t.Helper()
	dsn := filepath.Join(dir, "runs.db")
	for k, v := range map[string]string{
		"BINANCE_BASE_URL": exchangeURL,
		"SYMBOLS":          "ETHUSDT",
		"INTERVAL":         "1h",
		"LOOKBACK":         "3d",
		"OUTPUT_DIR":       filepath.Join(dir, "features"),
		"OUTPUT_FORMATS":   "csv",
		"LABEL_STEPS":      "2",
		"LOG_LEVEL":        "ERROR",
		"LOG_FORMAT":       "text",
		"DB_DRIVER":        "sqlite3",
		"DB_DSN":           dsn,
		"REDIS_ADDR":       "",
		"METRICS_ADDR":     "",
		"PLAN_FILE":        "",
	} {
		t.Setenv(k, v)
	}
	return dsn
}

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(hourlyExchange))
	defer srv.Close()
	dir := t.TempDir()
	dsn := setEnv(t, srv.URL, dir)

	require.NoError(t, run(context.Background()))

	files, err := filepath.Glob(filepath.Join(dir, "features", "ETHUSDT_1h_3d_*.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// the repository was closed on return, so it reopens cleanly
	repo, err := sqlstore.NewRepository(context.Background(), sqlstore.Config{DSN: dsn, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer repo.Close()
	runs, err := repo.ListRuns(context.Background(), "ETHUSDT", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 72, runs[0].Clean.RowsIn)
	assert.Contains(t, runs[0].Columns, "future_price")
}

func TestRun_ReturnsErrorsAfterCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(hourlyExchange))
	defer srv.Close()
	dir := t.TempDir()
	dsn := setEnv(t, srv.URL, dir)
	t.Setenv("PLAN_FILE", filepath.Join(dir, "missing.yaml"))

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature service")

	repo, err := sqlstore.NewRepository(context.Background(), sqlstore.Config{DSN: dsn, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.NoError(t, repo.Close())
}

func TestRun_InvalidConfig(t *testing.T) {
	setEnv(t, "", t.TempDir())
	t.Setenv("LOG_FORMAT", "xml")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}
