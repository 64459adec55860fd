package domain

import "time"

// CleanReport collects the repair and drop counts of every Cleaner stage.
type CleanReport struct {
	RowsIn int `db:"rows_in"`

	CoercedValues int `db:"coerced_values"` // cells turned into undefined by type normalization

	DuplicatesDropped int `db:"duplicates_dropped"`

	HighLowSwapped int `db:"high_low_swapped"`
	HighsClamped   int `db:"highs_clamped"`
	LowsClamped    int `db:"lows_clamped"`

	NaNDropped            int `db:"nan_dropped"`
	RowsAfterNaN          int `db:"rows_after_nan"`
	NonPositivePriceDrops int `db:"non_positive_price_dropped"`
	RowsAfterPrice        int `db:"rows_after_price"`
	NegativeVolumeDropped int `db:"negative_volume_dropped"`

	RowsOut int `db:"rows_out"`
}

// Dropped returns the total number of rows removed by the cleaner.
func (r CleanReport) Dropped() int {
	return r.DuplicatesDropped + r.NaNDropped + r.NonPositivePriceDrops + r.NegativeVolumeDropped
}

// RunReport summarises one pipeline run over one symbol.
type RunReport struct {
	ID         string
	Symbol     string
	Interval   string
	StartedAt  time.Time
	FinishedAt time.Time

	Clean   CleanReport
	Columns []string // feature columns in the order they were produced
}

// Duration returns how long the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
