package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"klineforge/config"
	"klineforge/internal/adapters/binanceclient"
	"klineforge/internal/adapters/logger"
	"klineforge/internal/tableio"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "Trading pair")
	interval := flag.String("interval", "1h", "Kline interval")
	lookback := flag.String("lookback", "90d", "Window ending now, e.g. 720d, 12h, 4w")
	outDir := flag.String("out", "data", "Directory for the raw CSV")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String(), os.Stderr)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now().UTC().Truncate(time.Minute)
	start, err := binanceclient.StartFor(*lookback, end)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	pair := strings.ToUpper(*symbol)

	fmt.Printf("Fetching klines for %s %s from %s to %s...\n", pair, *interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	rows, err := binanceClient.GetHistoricalKlines(ctx, pair, *interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"count": len(rows)})

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", pair, *interval, start.Format("20060102"), end.Format("20060102")))
	if err := tableio.SaveRawRows(rows, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
