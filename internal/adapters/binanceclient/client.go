package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"klineforge/internal/domain"
	"klineforge/internal/metrics"
	"klineforge/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// MaxKlinesPerRequest is the page size of the spot klines endpoint.
	MaxKlinesPerRequest = 1000
)

// Client implements the ports.KlineSource interface using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	metrics    *metrics.Metrics
	pageSize   int
	now        func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production/testnet URL when set
	PageSize   int    // klines per request, at most MaxKlinesPerRequest
	Logger     ports.Logger
	Metrics    *metrics.Metrics // optional
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty. Client will only use public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxKlinesPerRequest {
		pageSize = MaxKlinesPerRequest
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		pageSize:   pageSize,
		now:        time.Now,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case 0, -1001, -1008, -1016: // No API body (gateway 5xx), internal error, server overloaded, service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format invalid, or invalid key/IP/permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetHistoricalKlines fetches all klines for a symbol/interval between start
// and end, paging forward from start. A zero end means now.
func (c *Client) GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.RawRow, error) {
	op := "GetHistoricalKlines"
	if end.IsZero() {
		end = c.now()
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%s: end %s before start %s: %w", op, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339), ports.ErrInvalidRequest)
	}
	if c.metrics != nil {
		began := time.Now()
		defer func() { c.metrics.FetchDuration.Observe(time.Since(began).Seconds()) }()
	}

	var rows []domain.RawRow
	from := start.UnixMilli()
	to := end.UnixMilli()
	for page := 1; ; page++ {
		klines, err := c.spotClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from).
			EndTime(to).
			Limit(c.pageSize).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		c.logger.Debug(ctx, op+": page fetched", map[string]interface{}{"symbol": symbol, "interval": interval, "page": page, "klines": len(klines)})
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			if bk == nil {
				return nil, c.handleError(ctx, errors.New("received nil historical kline"), op)
			}
			rows = append(rows, translateKline(bk))
		}
		from = klines[len(klines)-1].CloseTime + 1
		if from > to || len(klines) < c.pageSize {
			break
		}
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"start":    start.UTC().Format(time.RFC3339),
		"end":      end.UTC().Format(time.RFC3339),
		"klines":   len(rows),
	})
	return rows, nil
}

// --- Translation Helpers ---

// translateKline keeps the exchange's string encoding of numeric fields so
// coercion happens in one place, during ingestion.
func translateKline(bk *binance.Kline) domain.RawRow {
	return domain.RawRow{
		bk.OpenTime,
		bk.Open,
		bk.High,
		bk.Low,
		bk.Close,
		bk.Volume,
		bk.CloseTime,
		bk.QuoteAssetVolume,
		bk.TradeNum,
		bk.TakerBuyBaseAssetVolume,
		bk.TakerBuyQuoteAssetVolume,
		"0",
	}
}
