package labels

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/internal/domain"
)

func closeSeries(closes ...float64) *domain.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{OpenTime: start.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return domain.NewSeries("ETHUSDT", "1m", bars)
}

func TestAddFuturePrice(t *testing.T) {
	s := closeSeries(1, 2, 3, 4, 5)
	require.NoError(t, AddFuturePrice(s, 1))

	future, ok := s.Column(FuturePriceColumn)
	require.True(t, ok)
	pct, ok := s.Column(PctChangeColumn)
	require.True(t, ok)

	assert.Equal(t, []float64{2, 3, 4, 5}, future[:4])
	assert.True(t, math.IsNaN(future[4]))

	wantPct := []float64{1.0, 0.5, 1.0 / 3, 0.25}
	for i, w := range wantPct {
		assert.InDelta(t, w, pct[i], 1e-12)
	}
	assert.True(t, math.IsNaN(pct[4]))
}

func TestAddFuturePrice_Steps(t *testing.T) {
	tests := []struct {
		name      string
		steps     int
		undefined int
		wantErr   bool
	}{
		{name: "three steps", steps: 3, undefined: 3},
		{name: "steps beyond length", steps: 10, undefined: 5},
		{name: "zero steps", steps: 0, wantErr: true},
		{name: "negative steps", steps: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := closeSeries(1, 2, 3, 4, 5)
			err := AddFuturePrice(s, tt.steps)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			future, _ := s.Column(FuturePriceColumn)
			count := 0
			for i, v := range future {
				if math.IsNaN(v) {
					count++
					continue
				}
				assert.Equal(t, s.Bars[i+tt.steps].Close, v)
			}
			assert.Equal(t, tt.undefined, count)
		})
	}
}

func TestAddBinaryLabel(t *testing.T) {
	s := closeSeries(1, 2, 3, 4, 5)
	require.NoError(t, AddFuturePrice(s, 1))
	require.NoError(t, AddBinaryLabel(s, 0.4))

	label, ok := s.Column(BinaryLabelColumn)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1, 0, 0}, label[:4])
	assert.True(t, math.IsNaN(label[4]), "undefined pct_change must not become a negative label")
}

func TestAddBinaryLabel_ThresholdIsInclusive(t *testing.T) {
	s := closeSeries(4, 5)
	require.NoError(t, AddFuturePrice(s, 1))
	require.NoError(t, AddBinaryLabel(s, 0.25))
	label, _ := s.Column(BinaryLabelColumn)
	assert.Equal(t, 1.0, label[0])
}

func TestAddBinaryLabel_MissingColumns(t *testing.T) {
	s := closeSeries(1, 2, 3)
	err := AddBinaryLabel(s, 0.01)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), FuturePriceColumn)

	require.NoError(t, s.SetColumn(FuturePriceColumn, []float64{2, 3, math.NaN()}))
	err = AddBinaryLabel(s, 0.01)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), PctChangeColumn)
}

func TestBuilder(t *testing.T) {
	s := closeSeries(10, 11, 10, 12)
	b := Builder{Steps: 1, Threshold: 0.05, Binary: true}
	require.NoError(t, b.Apply(s))
	assert.Equal(t, b.Columns(), s.Columns())

	label, _ := s.Column(BinaryLabelColumn)
	assert.Equal(t, []float64{1, 0, 1}, label[:3])

	plain := Builder{Steps: 2}
	s2 := closeSeries(10, 11, 10, 12)
	require.NoError(t, plain.Apply(s2))
	assert.Equal(t, []string{FuturePriceColumn, PctChangeColumn}, s2.Columns())
}
