// Package pipeline runs ingestion, cleaning, indicators and labelling over
// one symbol's raw klines and reports what every stage did.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"klineforge/internal/cleaner"
	"klineforge/internal/domain"
	"klineforge/internal/indicators"
	"klineforge/internal/ingest"
	"klineforge/internal/metrics"
	"klineforge/internal/ports"
)

// Stage names a pipeline step in progress events.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageClean     Stage = "clean"
	StageIndicator Stage = "indicator"
	StageLabel     Stage = "label"
	StageDone      Stage = "done"
)

// Event is a structured progress notification.
type Event struct {
	RunID  string
	Symbol string
	Stage  Stage
	Rows   int    // rows in the series after the stage
	Detail string // indicator name, column list, ...
}

// Observer receives progress events. Under RunMany it is called from several
// goroutines and must be safe for concurrent use.
type Observer func(Event)

// Config holds the collaborators of a Pipeline. Metrics and Observer are
// optional.
type Config struct {
	Logger   ports.Logger
	Metrics  *metrics.Metrics
	Observer Observer
	Now      func() time.Time
}

// Pipeline is safe for concurrent use; every Run works on its own series.
type Pipeline struct {
	logger   ports.Logger
	metrics  *metrics.Metrics
	observer Observer
	cleaner  *cleaner.Cleaner
	now      func() time.Time
}

// Input is one symbol's raw klines.
type Input struct {
	Symbol   string
	Interval string
	Rows     []domain.RawRow
}

// Result is the feature-augmented series and the run report.
type Result struct {
	Series *domain.Series
	Report domain.RunReport
}

// New creates a new Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for pipeline")
	}
	c, err := cleaner.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		observer: cfg.Observer,
		cleaner:  c,
		now:      now,
	}, nil
}

// Run ingests in.Rows, cleans the series, applies the plan's indicators in
// order and finally the label. Context cancellation is checked between
// stages.
func (p *Pipeline) Run(ctx context.Context, in Input, plan Plan) (res *Result, err error) {
	report := domain.RunReport{
		ID:        uuid.NewString(),
		Symbol:    in.Symbol,
		Interval:  in.Interval,
		StartedAt: p.now().UTC(),
	}
	logFields := map[string]interface{}{"run_id": report.ID, "symbol": in.Symbol, "interval": in.Interval}
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveRun(in.Symbol, err, p.now().Sub(report.StartedAt))
		}
		if err != nil {
			p.logger.Error(ctx, err, "Pipeline run failed", logFields)
		}
	}()

	// Validate the whole plan before touching data.
	reqs, err := plan.Requests()
	if err != nil {
		return nil, err
	}
	inds, err := indicators.BuildAll(reqs)
	if err != nil {
		return nil, err
	}

	// 1. Ingestion
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := ingest.FromRows(in.Symbol, in.Interval, in.Rows)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", in.Symbol, err)
	}
	p.emit(Event{RunID: report.ID, Symbol: in.Symbol, Stage: StageIngest, Rows: s.Len()})

	// 2. Cleaning
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Clean, err = p.cleaner.Run(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", in.Symbol, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveClean(in.Symbol, report.Clean)
	}
	p.emit(Event{RunID: report.ID, Symbol: in.Symbol, Stage: StageClean, Rows: s.Len(),
		Detail: fmt.Sprintf("dropped %d, repaired %d", report.Clean.Dropped(), report.Clean.HighLowSwapped+report.Clean.HighsClamped+report.Clean.LowsClamped)})

	// 3. Indicators, in plan order
	for _, ind := range inds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Len() < ind.RequiredDataPoints() {
			p.logger.Warn(ctx, "Series shorter than indicator warm-up, columns will be mostly undefined", map[string]interface{}{
				"symbol":    in.Symbol,
				"indicator": ind.Name(),
				"rows":      s.Len(),
				"required":  ind.RequiredDataPoints(),
			})
		}
		start := time.Now()
		if err := ind.Apply(ctx, s); err != nil {
			return nil, fmt.Errorf("indicator %s on %s: %w", ind.Name(), in.Symbol, err)
		}
		if p.metrics != nil {
			p.metrics.IndicatorDuration.WithLabelValues(ind.Name()).Observe(time.Since(start).Seconds())
		}
		p.emit(Event{RunID: report.ID, Symbol: in.Symbol, Stage: StageIndicator, Rows: s.Len(), Detail: ind.Name()})
	}

	// 4. Label
	if plan.Label != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := plan.Label.Apply(s); err != nil {
			return nil, fmt.Errorf("label %s: %w", in.Symbol, err)
		}
		p.emit(Event{RunID: report.ID, Symbol: in.Symbol, Stage: StageLabel, Rows: s.Len()})
	}

	report.Columns = s.Columns()
	report.FinishedAt = p.now().UTC()
	p.emit(Event{RunID: report.ID, Symbol: in.Symbol, Stage: StageDone, Rows: s.Len()})
	p.logger.Info(ctx, "Pipeline run finished", map[string]interface{}{
		"run_id":   report.ID,
		"symbol":   in.Symbol,
		"rows_in":  report.Clean.RowsIn,
		"rows_out": report.Clean.RowsOut,
		"columns":  len(report.Columns),
		"duration": report.Duration().String(),
	})
	return &Result{Series: s, Report: report}, nil
}

// RunMany runs one independent pipeline per input concurrently and returns
// the results keyed by symbol. Failed symbols are absent from the map and
// their errors are joined in the returned error.
func (p *Pipeline) RunMany(ctx context.Context, inputs []Input, plan Plan) (map[string]*Result, error) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Symbol] {
			return nil, fmt.Errorf("symbol %s requested twice: %w", in.Symbol, domain.ErrConfiguration)
		}
		seen[in.Symbol] = true
	}

	results := make(map[string]*Result, len(inputs))
	var errs []error
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, in := range inputs {
		wg.Add(1)
		go func(in Input) {
			defer wg.Done()
			res, err := p.Run(ctx, in, plan)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", in.Symbol, err))
				return
			}
			results[in.Symbol] = res
		}(in)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

func (p *Pipeline) emit(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}
