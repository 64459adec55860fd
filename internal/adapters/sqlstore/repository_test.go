package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/internal/domain"
	"klineforge/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(context.Background(), Config{
		DSN:    filepath.Join(t.TempDir(), "data", "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testReport(symbol string, started time.Time) *domain.RunReport {
	return &domain.RunReport{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Interval:   "1h",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Clean: domain.CleanReport{
			RowsIn:                120,
			CoercedValues:         3,
			DuplicatesDropped:     2,
			HighLowSwapped:        1,
			HighsClamped:          4,
			LowsClamped:           5,
			NaNDropped:            6,
			RowsAfterNaN:          112,
			NonPositivePriceDrops: 1,
			RowsAfterPrice:        111,
			NegativeVolumeDropped: 0,
			RowsOut:               111,
		},
		Columns: []string{"ema_12", "rsi_14", "future_price"},
	}
}

func TestRepository_SaveAndFindRun(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	want := testReport("ETHUSDT", time.Date(2025, 9, 9, 10, 0, 0, 123_000_000, time.UTC))

	require.NoError(t, repo.SaveRun(ctx, want))

	got, err := repo.FindRun(ctx, want.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, want.Interval, got.Interval)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, want.Clean, got.Clean)
	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
}

func TestRepository_FindRunMissing(t *testing.T) {
	repo := setupTestDB(t)
	got, err := repo.FindRun(context.Background(), "does-not-exist")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_SaveRunDuplicate(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	rep := testReport("ETHUSDT", time.Now().UTC())

	require.NoError(t, repo.SaveRun(ctx, rep))
	err := repo.SaveRun(ctx, rep)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestRepository_SaveRunWithoutColumns(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	rep := testReport("ETHUSDT", time.Now().UTC())
	rep.Columns = nil

	require.NoError(t, repo.SaveRun(ctx, rep))
	got, err := repo.FindRun(ctx, rep.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Columns)
}

func TestRepository_ListRuns(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.SaveRun(ctx, testReport("ETHUSDT", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.SaveRun(ctx, testReport("BTCUSDT", base)))

	tests := []struct {
		name   string
		symbol string
		limit  int
		want   int
	}{
		{name: "limited", symbol: "ETHUSDT", limit: 2, want: 2},
		{name: "all", symbol: "ETHUSDT", limit: 10, want: 4},
		{name: "other symbol", symbol: "BTCUSDT", limit: 10, want: 1},
		{name: "unknown symbol", symbol: "SOLUSDT", limit: 10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := repo.ListRuns(ctx, tt.symbol, tt.limit)
			require.NoError(t, err)
			require.Len(t, runs, tt.want)
			for i := 1; i < len(runs); i++ {
				assert.True(t, runs[i-1].StartedAt.After(runs[i].StartedAt), "newest first")
			}
		})
	}

	runs, err := repo.ListRuns(ctx, "ETHUSDT", 1)
	require.NoError(t, err)
	assert.True(t, base.Add(3*time.Hour).Equal(runs[0].StartedAt))

	_, err = repo.ListRuns(ctx, "ETHUSDT", 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestNewRepository_Config(t *testing.T) {
	_, err := NewRepository(context.Background(), Config{DSN: "x"})
	assert.Error(t, err)

	_, err = NewRepository(context.Background(), Config{Driver: "mysql", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewRepository(context.Background(), Config{Driver: DriverPostgres, Logger: &mockLogger{}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewRepository_ReopensExistingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()
	rep := testReport("ETHUSDT", time.Now().UTC())

	first, err := NewRepository(ctx, Config{DSN: path, Logger: &mockLogger{}})
	require.NoError(t, err)
	require.NoError(t, first.SaveRun(ctx, rep))
	require.NoError(t, first.Close())

	second, err := NewRepository(ctx, Config{DSN: path, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer second.Close()
	got, err := second.FindRun(ctx, rep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	repo, err := NewRepository(ctx, Config{Driver: DriverPostgres, DSN: dsn, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer repo.Close()

	symbol := fmt.Sprintf("TEST%d", time.Now().UnixNano())
	rep := testReport(symbol, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.SaveRun(ctx, rep))
	assert.ErrorIs(t, repo.SaveRun(ctx, rep), ports.ErrDuplicateEntry)

	runs, err := repo.ListRuns(ctx, symbol, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.Clean, runs[0].Clean)
}
