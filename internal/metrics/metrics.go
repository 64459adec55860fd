package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"klineforge/internal/domain"
)

// Metrics holds all Prometheus metrics for the feature pipeline.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec // labels: symbol, status
	RunDuration  prometheus.Histogram
	RowsIngested *prometheus.CounterVec // labels: symbol
	RowsOut      *prometheus.CounterVec // labels: symbol

	// Cleaner
	RowsDropped   *prometheus.CounterVec // labels: stage=duplicate|nan|non_positive|negative_volume
	RepairsTotal  *prometheus.CounterVec // labels: kind=swap|clamp_high|clamp_low
	CoercedValues prometheus.Counter

	// Indicator engine
	IndicatorDuration *prometheus.HistogramVec // labels: indicator

	// Kline source
	FetchDuration prometheus.Histogram
	CacheRequests *prometheus.CounterVec // labels: result=hit|miss|error
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_runs_total",
			Help: "Pipeline runs by symbol and outcome",
		}, []string{"symbol", "status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klineforge_run_duration_seconds",
			Help:    "Wall time of one pipeline run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_rows_ingested_total",
			Help: "Raw kline rows accepted by ingestion",
		}, []string{"symbol"}),
		RowsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_rows_out_total",
			Help: "Rows remaining after cleaning",
		}, []string{"symbol"}),

		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_cleaner_rows_dropped_total",
			Help: "Rows removed by the cleaner, by stage",
		}, []string{"stage"}),
		RepairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_cleaner_repairs_total",
			Help: "OHLC repairs applied, by kind",
		}, []string{"kind"}),
		CoercedValues: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klineforge_cleaner_coerced_values_total",
			Help: "Cells coerced to undefined or unknown during type normalization",
		}),

		IndicatorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "klineforge_indicator_duration_seconds",
			Help:    "Time to compute one indicator over a series",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"indicator"}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klineforge_fetch_duration_seconds",
			Help:    "Time to fetch one symbol's klines from the source",
			Buckets: prometheus.DefBuckets,
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klineforge_cache_requests_total",
			Help: "Raw kline cache lookups by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RowsIngested,
		m.RowsOut,
		m.RowsDropped,
		m.RepairsTotal,
		m.CoercedValues,
		m.IndicatorDuration,
		m.FetchDuration,
		m.CacheRequests,
	)

	return m
}

// ObserveClean records the counts of one cleaner run.
func (m *Metrics) ObserveClean(symbol string, r domain.CleanReport) {
	m.RowsIngested.WithLabelValues(symbol).Add(float64(r.RowsIn))
	m.RowsOut.WithLabelValues(symbol).Add(float64(r.RowsOut))
	m.CoercedValues.Add(float64(r.CoercedValues))

	m.RowsDropped.WithLabelValues("duplicate").Add(float64(r.DuplicatesDropped))
	m.RowsDropped.WithLabelValues("nan").Add(float64(r.NaNDropped))
	m.RowsDropped.WithLabelValues("non_positive").Add(float64(r.NonPositivePriceDrops))
	m.RowsDropped.WithLabelValues("negative_volume").Add(float64(r.NegativeVolumeDropped))

	m.RepairsTotal.WithLabelValues("swap").Add(float64(r.HighLowSwapped))
	m.RepairsTotal.WithLabelValues("clamp_high").Add(float64(r.HighsClamped))
	m.RepairsTotal.WithLabelValues("clamp_low").Add(float64(r.LowsClamped))
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(symbol string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(symbol, status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// Server exposes /metrics over HTTP.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics server for the given gatherer.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
