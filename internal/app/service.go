package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"klineforge/config"
	"klineforge/internal/adapters/binanceclient"
	"klineforge/internal/domain"
	"klineforge/internal/labels"
	"klineforge/internal/pipeline"
	"klineforge/internal/ports"
	"klineforge/internal/tableio"
)

// FeatureService fetches klines for every configured symbol, runs the
// feature pipeline over them, saves the tables and records the runs.
type FeatureService struct {
	cfg      *config.Config
	logger   ports.Logger
	source   ports.KlineSource
	runs     ports.RunRepository // optional
	pipeline *pipeline.Pipeline
	plan     pipeline.Plan
	savers   []tableio.Saver
	now      func() time.Time
}

// Outcome is what one symbol's run produced.
type Outcome struct {
	Report domain.RunReport
	Paths  []string
}

// NewFeatureService creates a new application service instance. runs may be
// nil when run bookkeeping is disabled.
func NewFeatureService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.KlineSource,
	runs ports.RunRepository,
	pipe *pipeline.Pipeline,
) (*FeatureService, error) {
	if cfg == nil || logger == nil || source == nil || pipe == nil {
		return nil, fmt.Errorf("missing required dependencies for FeatureService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required: %w", domain.ErrConfiguration)
	}

	plan, err := PlanFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	savers := make([]tableio.Saver, 0, len(cfg.OutputFormats))
	for _, f := range cfg.OutputFormats {
		codec, err := tableio.ForFormat(f)
		if err != nil {
			return nil, err
		}
		savers = append(savers, codec)
	}

	return &FeatureService{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		runs:     runs,
		pipeline: pipe,
		plan:     plan,
		savers:   savers,
		now:      time.Now,
	}, nil
}

// PlanFromConfig loads the plan file, or the default preset when none is
// set, and applies the label settings unless the plan file has its own.
func PlanFromConfig(cfg *config.Config) (pipeline.Plan, error) {
	plan := pipeline.DefaultPlan()
	if cfg.PlanFile != "" {
		var err error
		if plan, err = pipeline.LoadPlan(cfg.PlanFile); err != nil {
			return pipeline.Plan{}, err
		}
	}
	if plan.Label == nil && cfg.LabelSteps > 0 {
		plan.Label = &labels.Builder{Steps: cfg.LabelSteps, Threshold: cfg.LabelThreshold, Binary: cfg.LabelBinary}
	}
	if err := plan.Validate(); err != nil {
		return pipeline.Plan{}, err
	}
	return plan, nil
}

// Start runs the service once, stopping early on SIGINT/SIGTERM.
func (s *FeatureService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Feature Service...", map[string]interface{}{"symbols": s.cfg.Symbols, "interval": s.cfg.Interval, "lookback": s.cfg.Lookback})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	outcomes, err := s.Run(ctx)
	s.logger.Info(ctx, "Feature Service finished", map[string]interface{}{"succeeded": len(outcomes), "requested": len(s.cfg.Symbols)})
	return err
}

// Run processes every symbol. Symbols fail independently: the outcomes of
// the ones that succeeded are returned together with the joined errors of
// the rest.
func (s *FeatureService) Run(ctx context.Context) (map[string]*Outcome, error) {
	start, end, err := binanceclient.ClosedRange(s.cfg.Interval, s.cfg.Lookback, s.now())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", s.cfg.OutputDir, err)
	}

	inputs, fetchErr := s.fetchAll(ctx, start, end)

	results, runErr := s.pipeline.RunMany(ctx, inputs, s.plan)

	outcomes := make(map[string]*Outcome, len(results))
	var errs []error
	for _, in := range inputs {
		res, ok := results[in.Symbol]
		if !ok {
			continue
		}
		out, err := s.persist(ctx, res, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", in.Symbol, err))
			continue
		}
		outcomes[in.Symbol] = out
	}

	return outcomes, errors.Join(append([]error{fetchErr, runErr}, errs...)...)
}

// fetchAll downloads every symbol concurrently.
func (s *FeatureService) fetchAll(ctx context.Context, start, end time.Time) ([]pipeline.Input, error) {
	inputs := make([]pipeline.Input, len(s.cfg.Symbols))
	fetched := make([]bool, len(s.cfg.Symbols))
	errs := make([]error, len(s.cfg.Symbols))

	var wg sync.WaitGroup
	for i, symbol := range s.cfg.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			rows, err := s.source.GetHistoricalKlines(ctx, symbol, s.cfg.Interval, start, end)
			if err != nil {
				s.logger.Error(ctx, err, "Failed to fetch klines", map[string]interface{}{"symbol": symbol})
				errs[i] = fmt.Errorf("fetch %s: %w", symbol, err)
				return
			}
			inputs[i] = pipeline.Input{Symbol: symbol, Interval: s.cfg.Interval, Rows: rows}
			fetched[i] = true
		}(i, symbol)
	}
	wg.Wait()

	out := make([]pipeline.Input, 0, len(inputs))
	for i, in := range inputs {
		if fetched[i] {
			out = append(out, in)
		}
	}
	return out, errors.Join(errs...)
}

func (s *FeatureService) persist(ctx context.Context, res *pipeline.Result, end time.Time) (*Outcome, error) {
	rep := res.Report
	stem := tableio.FileStem(rep.Symbol, rep.Interval, s.cfg.Lookback, end)
	paths, err := tableio.SaveAll(res.Series, s.cfg.OutputDir, stem, s.savers...)
	if err != nil {
		return nil, err
	}
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, &rep); err != nil {
			return nil, fmt.Errorf("record run %s: %w", rep.ID, err)
		}
	}
	s.logger.Info(ctx, "Feature table saved", map[string]interface{}{
		"symbol":   rep.Symbol,
		"run_id":   rep.ID,
		"rows":     res.Series.Len(),
		"dropped":  rep.Clean.Dropped(),
		"columns":  len(rep.Columns),
		"paths":    paths,
		"duration": rep.Duration().String(),
	})
	return &Outcome{Report: rep, Paths: paths}, nil
}
