// Command build_features runs the feature pipeline over raw kline CSV files
// written by fetch_klines, without touching the network.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"klineforge/internal/adapters/logger"
	"klineforge/internal/labels"
	"klineforge/internal/pipeline"
	"klineforge/internal/tableio"
)

func main() {
	inFiles := flag.String("in", "", "Comma separated raw kline CSV files")
	symbols := flag.String("symbols", "", "Comma separated symbols, one per input file (default: file name prefix)")
	interval := flag.String("interval", "1h", "Kline interval of the input files")
	lookback := flag.String("lookback", "custom", "Lookback tag used in output file names")
	planFile := flag.String("plan", "", "YAML feature plan (default: the default preset)")
	preset := flag.String("preset", "", "Indicator preset, overrides the plan's preset")
	labelSteps := flag.Int("label-steps", 0, "Add future_price/pct_change this many rows ahead (0 disables)")
	labelThreshold := flag.Float64("label-threshold", 0, "Threshold for binary_label")
	outDir := flag.String("out", "data/features", "Output directory")
	formats := flag.String("formats", "csv,parquet", "Comma separated output formats")
	logLevel := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	appLogger, err := logger.New("text", *logLevel, os.Stderr)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	files := splitList(*inFiles)
	if len(files) == 0 {
		log.Fatalf("FATAL: -in is required")
	}
	names := splitList(*symbols)
	if len(names) != 0 && len(names) != len(files) {
		log.Fatalf("FATAL: -symbols lists %d symbols for %d files", len(names), len(files))
	}

	plan := pipeline.DefaultPlan()
	if *planFile != "" {
		if plan, err = pipeline.LoadPlan(*planFile); err != nil {
			log.Fatalf("FATAL: Failed to load plan: %v", err)
		}
	}
	if *preset != "" {
		plan.Preset = *preset
	}
	if *labelSteps > 0 {
		plan.Label = &labels.Builder{Steps: *labelSteps, Threshold: *labelThreshold, Binary: true}
	}
	if err := plan.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid plan: %v", err)
	}

	var savers []tableio.Saver
	for _, f := range splitList(*formats) {
		codec, err := tableio.ForFormat(f)
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		savers = append(savers, codec)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create output directory: %v", err)
	}

	// Load the raw files concurrently
	inputs := make([]pipeline.Input, len(files))
	loadErrs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, path := range files {
		symbol := symbolFromPath(path)
		if len(names) > 0 {
			symbol = strings.ToUpper(names[i])
		}
		wg.Add(1)
		go func(i int, path, symbol string) {
			defer wg.Done()
			rows, err := tableio.LoadRawRows(path)
			if err != nil {
				loadErrs[i] = fmt.Errorf("%s: %w", path, err)
				return
			}
			inputs[i] = pipeline.Input{Symbol: symbol, Interval: *interval, Rows: rows}
			appLogger.Info(ctx, "Loaded klines", map[string]interface{}{"file": path, "symbol": symbol, "count": len(rows)})
		}(i, path, symbol)
	}
	wg.Wait()
	for _, err := range loadErrs {
		if err != nil {
			log.Fatalf("FATAL: Failed to load klines: %v", err)
		}
	}

	pipe, err := pipeline.New(pipeline.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize pipeline: %v", err)
	}
	results, runErr := pipe.RunMany(ctx, inputs, plan)

	today := time.Now().UTC()
	failed := runErr != nil
	for _, in := range inputs {
		res, ok := results[in.Symbol]
		if !ok {
			continue
		}
		stem := tableio.FileStem(in.Symbol, in.Interval, *lookback, today)
		paths, err := tableio.SaveAll(res.Series, *outDir, stem, savers...)
		if err != nil {
			appLogger.Error(ctx, err, "Failed to save features", map[string]interface{}{"symbol": in.Symbol})
			failed = true
			continue
		}
		printReport(res, paths)
	}
	if runErr != nil {
		appLogger.Error(ctx, runErr, "Some pipelines failed")
	}
	if failed {
		os.Exit(1)
	}
}

func printReport(res *pipeline.Result, paths []string) {
	r := res.Report
	c := r.Clean
	fmt.Printf("\n=== %s %s (run %s) ===\n", r.Symbol, r.Interval, r.ID)
	fmt.Printf("Rows in:                %d\n", c.RowsIn)
	fmt.Printf("Coerced values:         %d\n", c.CoercedValues)
	fmt.Printf("Duplicates dropped:     %d\n", c.DuplicatesDropped)
	fmt.Printf("High/low swapped:       %d\n", c.HighLowSwapped)
	fmt.Printf("Highs / lows clamped:   %d / %d\n", c.HighsClamped, c.LowsClamped)
	fmt.Printf("Undefined rows dropped: %d\n", c.NaNDropped)
	fmt.Printf("Bad prices dropped:     %d\n", c.NonPositivePriceDrops)
	fmt.Printf("Bad volumes dropped:    %d\n", c.NegativeVolumeDropped)
	fmt.Printf("Rows out:               %d\n", c.RowsOut)
	fmt.Printf("Feature columns:        %d (%s)\n", len(r.Columns), strings.Join(r.Columns, ", "))
	fmt.Printf("Duration:               %s\n", r.Duration())
	for _, p := range paths {
		fmt.Printf("Saved:                  %s\n", p)
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// symbolFromPath takes the symbol from names like ETHUSDT_1h_..._to_....csv.
func symbolFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "_"); i > 0 {
		base = base[:i]
	}
	return strings.ToUpper(base)
}
