package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus series the tracker exports
type Metrics struct {
	LedgerOperationsTotal   *prometheus.CounterVec
	LedgerOperationDuration *prometheus.HistogramVec
	ProfitLossViewsTotal    *prometheus.CounterVec
	ProfitLossViewDuration  *prometheus.HistogramVec

	// set by the scheduled refresher
	PortfolioCost          *prometheus.GaugeVec
	PortfolioProfitLoss    *prometheus.GaugeVec
	PortfolioOpenPositions *prometheus.GaugeVec
	RefreshRunsTotal       *prometheus.CounterVec

	QuoteCacheHitsTotal   *prometheus.CounterVec
	QuoteCacheMissesTotal *prometheus.CounterVec
	QuoteSourceState      *prometheus.GaugeVec
	QuoteSourceTrips      *prometheus.CounterVec

	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec

	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

const namespace = "investment_tracker"

// latencyBuckets span a SQLite lookup up to a slow quote endpoint, in seconds
var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

var (
	globalMu      sync.Mutex
	globalMetrics *Metrics
)

// builder registers every series under one namespace
type builder struct {
	f promauto.Factory
}

func (b builder) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (b builder) gauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return b.f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (b builder) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// NewMetrics registers all series with reg, or with the default registerer when reg is nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	b := builder{f: promauto.With(reg)}

	return &Metrics{
		LedgerOperationsTotal: b.counter("ledger", "operations_total",
			"Ledger commands by operation and outcome", "operation", "status"),
		LedgerOperationDuration: b.histogram("ledger", "operation_duration_seconds",
			"Ledger command latency", latencyBuckets, "operation"),
		ProfitLossViewsTotal: b.counter("profit_loss", "views_total",
			"Profit and loss views by quote source and outcome", "source", "status"),
		ProfitLossViewDuration: b.histogram("profit_loss", "view_duration_seconds",
			"Profit and loss view latency, quote resolution included", latencyBuckets, "source"),

		PortfolioCost: b.gauge("portfolio", "position_cost",
			"Sum of open position cost", "portfolio"),
		PortfolioProfitLoss: b.gauge("portfolio", "profit_loss",
			"Unrealized profit and loss", "portfolio"),
		PortfolioOpenPositions: b.gauge("portfolio", "open_positions",
			"Open lots", "portfolio"),
		RefreshRunsTotal: b.counter("refresh", "runs_total",
			"Scheduled profit and loss refreshes by outcome", "status"),

		QuoteCacheHitsTotal: b.counter("quote_cache", "hits_total",
			"Quotes served from cache", "backend"),
		QuoteCacheMissesTotal: b.counter("quote_cache", "misses_total",
			"Quotes fetched from the live source", "backend"),
		QuoteSourceState: b.gauge("quote_source", "breaker_state",
			"Breaker state per quote source: 0 closed, 1 half-open, 2 open", "source"),
		QuoteSourceTrips: b.counter("quote_source", "breaker_trips_total",
			"Times a quote source breaker opened", "source"),

		ExternalAPIRequestsTotal: b.counter("external_api", "requests_total",
			"Requests sent to quote sources", "service", "operation"),
		ExternalAPIErrorsTotal: b.counter("external_api", "errors_total",
			"Failed quote source requests", "service", "operation", "error_type"),
		ExternalAPIDuration: b.histogram("external_api", "duration_seconds",
			"Quote source request latency", latencyBuckets, "service", "operation"),

		DBQueryDuration: b.histogram("database", "query_duration_seconds",
			"Ledger store query latency", latencyBuckets, "operation", "table"),
		DBQueryTotal: b.counter("database", "queries_total",
			"Ledger store queries", "operation", "table"),
		DBErrorsTotal: b.counter("database", "errors_total",
			"Failed ledger store queries", "operation", "table"),

		HTTPRequestsTotal: b.counter("http", "requests_total",
			"API requests by route and status", "method", "path", "status_code"),
		HTTPRequestDuration: b.histogram("http", "request_duration_seconds",
			"API request latency", latencyBuckets, "method", "path"),
		HTTPResponseSize: b.histogram("http", "response_size_bytes",
			"API response body size", prometheus.ExponentialBuckets(100, 10, 6), "method", "path"),
	}
}

// InitMetrics registers a fresh global instance with the default registerer
func InitMetrics() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global instance, registering it on first use
func GetMetrics() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = NewMetrics(nil)
	}
	return globalMetrics
}

// RecordLedgerOperation records the outcome and duration of a ledger operation
func (m *Metrics) RecordLedgerOperation(operation, status string, duration time.Duration) {
	m.LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
	m.LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProfitLossView records a computed profit and loss view
func (m *Metrics) RecordProfitLossView(source, status string, duration time.Duration) {
	m.ProfitLossViewsTotal.WithLabelValues(source, status).Inc()
	m.ProfitLossViewDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// SetPortfolioGauges sets the cost, profit and loss, and open lot count of a portfolio
func (m *Metrics) SetPortfolioGauges(portfolio string, cost, profitLoss float64, openPositions int) {
	m.PortfolioCost.WithLabelValues(portfolio).Set(cost)
	m.PortfolioProfitLoss.WithLabelValues(portfolio).Set(profitLoss)
	m.PortfolioOpenPositions.WithLabelValues(portfolio).Set(float64(openPositions))
}

// ResetPortfolioGauges drops every portfolio series so closed-out portfolios disappear
func (m *Metrics) ResetPortfolioGauges() {
	m.PortfolioCost.Reset()
	m.PortfolioProfitLoss.Reset()
	m.PortfolioOpenPositions.Reset()
}

// RecordRefreshRun records a scheduled refresh outcome
func (m *Metrics) RecordRefreshRun(status string) {
	m.RefreshRunsTotal.WithLabelValues(status).Inc()
}

// RecordQuoteCacheHit records a quote served from cache
func (m *Metrics) RecordQuoteCacheHit(backend string) {
	m.QuoteCacheHitsTotal.WithLabelValues(backend).Inc()
}

// RecordQuoteCacheMiss records a quote that had to be fetched
func (m *Metrics) RecordQuoteCacheMiss(backend string) {
	m.QuoteCacheMissesTotal.WithLabelValues(backend).Inc()
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordExternalAPIError records an external API error
func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordExternalAPIDuration records the duration of an external API call
func (m *Metrics) RecordExternalAPIDuration(service, operation string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetQuoteSourceState sets the breaker state gauge of a quote source
func (m *Metrics) SetQuoteSourceState(source string, state int) {
	m.QuoteSourceState.WithLabelValues(source).Set(float64(state))
}

// RecordQuoteSourceTrip counts a quote source breaker opening
func (m *Metrics) RecordQuoteSourceTrip(source string) {
	m.QuoteSourceTrips.WithLabelValues(source).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveLedger records a ledger operation with its outcome
func (t *Timer) ObserveLedger(operation string, err error) {
	t.metrics.RecordLedgerOperation(operation, StatusOf(err), time.Since(t.start))
}

// ObserveProfitLossView records a profit and loss view with its outcome
func (t *Timer) ObserveProfitLossView(source string, err error) {
	t.metrics.RecordProfitLossView(source, StatusOf(err), time.Since(t.start))
}

// ObserveExternalAPI records the external API duration
func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// StatusOf is the status label for an operation outcome
func StatusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
