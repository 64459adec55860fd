package cleaner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"klineforge/internal/domain"
)

// NormalizeTypes coerces every numeric field to a finite float or undefined
// and every trade count to a non-negative integer or unknown. It returns the
// number of cells that were coerced.
func NormalizeTypes(s *domain.Series) int {
	coerced := 0
	fix := func(v *float64) {
		if math.IsInf(*v, 0) {
			*v = math.NaN()
			coerced++
		}
	}
	for i := range s.Bars {
		b := &s.Bars[i]
		fix(&b.Open)
		fix(&b.High)
		fix(&b.Low)
		fix(&b.Close)
		fix(&b.Volume)
		fix(&b.QuoteAssetVolume)
		fix(&b.TakerBuyBase)
		fix(&b.TakerBuyQuote)
		if b.NumberOfTrades != nil && *b.NumberOfTrades < 0 {
			b.NumberOfTrades = nil
			coerced++
		}
	}
	return coerced
}

// IndexByTime converts both timestamps to UTC and sorts rows ascending by
// OpenTime. Rows sharing an OpenTime keep their arrival order.
func IndexByTime(s *domain.Series) error {
	for i := range s.Bars {
		b := &s.Bars[i]
		if b.OpenTime.IsZero() {
			return fmt.Errorf("row %d: column open_time is not set: %w", i, domain.ErrTimeParse)
		}
		if b.CloseTime.IsZero() {
			return fmt.Errorf("row %d: column close_time is not set: %w", i, domain.ErrTimeParse)
		}
		b.OpenTime = b.OpenTime.UTC()
		b.CloseTime = b.CloseTime.UTC()
	}

	if sort.SliceIsSorted(s.Bars, func(i, j int) bool { return s.Bars[i].OpenTime.Before(s.Bars[j].OpenTime) }) {
		return nil
	}
	perm := make([]int, s.Len())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return s.Bars[perm[i]].OpenTime.Before(s.Bars[perm[j]].OpenTime)
	})
	s.Reorder(perm)
	return nil
}

// DropDuplicates keeps only the last-arriving row for each OpenTime. The
// series must already be sorted by IndexByTime, which preserves arrival
// order among equal keys. It returns the number of rows removed.
func DropDuplicates(s *domain.Series) int {
	n := s.Len()
	return s.Filter(func(i int, b domain.Bar) bool {
		return i == n-1 || !s.Bars[i+1].OpenTime.Equal(b.OpenTime)
	})
}

// RepairCounts reports what RepairOHLC changed.
type RepairCounts struct {
	Swapped      int
	HighsClamped int
	LowsClamped  int
}

// RepairOHLC swaps inverted high/low values and then clamps high and low so
// they bracket open and close. Undefined values never trigger a repair.
func RepairOHLC(s *domain.Series) RepairCounts {
	var rc RepairCounts
	for i := range s.Bars {
		b := &s.Bars[i]
		if b.High < b.Low {
			b.High, b.Low = b.Low, b.High
			rc.Swapped++
		}
	}
	for i := range s.Bars {
		b := &s.Bars[i]
		maxOC := math.Max(b.Open, b.Close)
		minOC := math.Min(b.Open, b.Close)
		if b.High < maxOC {
			b.High = maxOC
			rc.HighsClamped++
		}
		if b.Low > minOC {
			b.Low = minOC
			rc.LowsClamped++
		}
	}
	return rc
}

// DropCounts reports each DropInvalid stage.
type DropCounts struct {
	NaN            int
	AfterNaN       int
	NonPositive    int
	AfterPrice     int
	NegativeVolume int
	Remaining      int
}

// DropInvalid removes rows with undefined required fields, then rows with a
// non-positive price, then rows with negative volume. The order matters: the
// sign checks never see undefined values.
func DropInvalid(s *domain.Series) DropCounts {
	var dc DropCounts

	dc.NaN = s.Filter(func(_ int, b domain.Bar) bool {
		for _, v := range requiredValues(b) {
			if math.IsNaN(v) {
				return false
			}
		}
		return true
	})
	dc.AfterNaN = s.Len()

	dc.NonPositive = s.Filter(func(_ int, b domain.Bar) bool {
		return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0
	})
	dc.AfterPrice = s.Len()

	dc.NegativeVolume = s.Filter(func(_ int, b domain.Bar) bool {
		return b.Volume >= 0
	})
	dc.Remaining = s.Len()
	return dc
}

func requiredValues(b domain.Bar) [8]float64 {
	return [8]float64{b.Open, b.High, b.Low, b.Close, b.Volume, b.QuoteAssetVolume, b.TakerBuyBase, b.TakerBuyQuote}
}

// strictlyIncreasing reports whether OpenTime keys are strictly increasing.
func strictlyIncreasing(bars []domain.Bar) bool {
	var prev time.Time
	for i, b := range bars {
		if i > 0 && !b.OpenTime.After(prev) {
			return false
		}
		prev = b.OpenTime
	}
	return true
}
