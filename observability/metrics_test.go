package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.LedgerOperationsTotal == nil {
		t.Error("LedgerOperationsTotal is nil")
	}
	if m.ProfitLossViewsTotal == nil {
		t.Error("ProfitLossViewsTotal is nil")
	}
	if m.PortfolioCost == nil {
		t.Error("PortfolioCost is nil")
	}
	if m.QuoteCacheHitsTotal == nil {
		t.Error("QuoteCacheHitsTotal is nil")
	}
	if m.ExternalAPIRequestsTotal == nil {
		t.Error("ExternalAPIRequestsTotal is nil")
	}
	if m.DBQueryTotal == nil {
		t.Error("DBQueryTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.QuoteSourceState == nil {
		t.Error("QuoteSourceState is nil")
	}
}

func TestRecordLedgerOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordLedgerOperation("buy", "success", 5*time.Millisecond)
	m.RecordLedgerOperation("buy", "success", 3*time.Millisecond)
	m.RecordLedgerOperation("close", "error", time.Millisecond)

	if got := testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("buy", "success")); got != 2 {
		t.Errorf("buy success count = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("close", "error")); got != 1 {
		t.Errorf("close error count = %f, want 1", got)
	}
}

func TestTimer_ObserveLedger(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.NewTimer().ObserveLedger("reduce", nil)
	m.NewTimer().ObserveLedger("reduce", errors.New("boom"))

	if got := testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("reduce", "success")); got != 1 {
		t.Errorf("reduce success count = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerOperationsTotal.WithLabelValues("reduce", "error")); got != 1 {
		t.Errorf("reduce error count = %f, want 1", got)
	}
}

func TestRecordProfitLossView(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.NewTimer().ObserveProfitLossView("mock", nil)
	m.RecordProfitLossView("live", "error", time.Second)

	if got := testutil.ToFloat64(m.ProfitLossViewsTotal.WithLabelValues("mock", "success")); got != 1 {
		t.Errorf("mock success count = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProfitLossViewsTotal.WithLabelValues("live", "error")); got != 1 {
		t.Errorf("live error count = %f, want 1", got)
	}
}

func TestPortfolioGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetPortfolioGauges("core", 1600, 50, 2)

	if got := testutil.ToFloat64(m.PortfolioCost.WithLabelValues("core")); got != 1600 {
		t.Errorf("cost = %f, want 1600", got)
	}
	if got := testutil.ToFloat64(m.PortfolioProfitLoss.WithLabelValues("core")); got != 50 {
		t.Errorf("profit loss = %f, want 50", got)
	}
	if got := testutil.ToFloat64(m.PortfolioOpenPositions.WithLabelValues("core")); got != 2 {
		t.Errorf("open positions = %f, want 2", got)
	}

	m.ResetPortfolioGauges()
	if got := testutil.CollectAndCount(m.PortfolioCost); got != 0 {
		t.Errorf("series after reset = %d, want 0", got)
	}
}

func TestRecordQuoteCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordQuoteCacheHit("redis")
	m.RecordQuoteCacheHit("redis")
	m.RecordQuoteCacheMiss("redis")

	if got := testutil.ToFloat64(m.QuoteCacheHitsTotal.WithLabelValues("redis")); got != 2 {
		t.Errorf("hits = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.QuoteCacheMissesTotal.WithLabelValues("redis")); got != 1 {
		t.Errorf("misses = %f, want 1", got)
	}
}

func TestRecordExternalAPI(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordExternalAPIRequest("tencent", "quote")
	m.RecordExternalAPIRequest("tencent", "quote")
	m.RecordExternalAPIError("tencent", "quote", "timeout")
	m.NewTimer().ObserveExternalAPI("tencent", "quote")

	if got := testutil.ToFloat64(m.ExternalAPIRequestsTotal.WithLabelValues("tencent", "quote")); got != 2 {
		t.Errorf("requests = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExternalAPIErrorsTotal.WithLabelValues("tencent", "quote", "timeout")); got != 1 {
		t.Errorf("errors = %f, want 1", got)
	}
}

func TestRecordDB(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDBQuery("select", "positions", 10*time.Millisecond)
	m.NewTimer().ObserveDB("select", "positions")
	m.RecordDBError("insert", "positions")

	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "positions")); got != 2 {
		t.Errorf("queries = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("insert", "positions")); got != 1 {
		t.Errorf("errors = %f, want 1", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/positions", "200", 100*time.Millisecond, 1024)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/positions", "200")); got != 1 {
		t.Errorf("requests = %f, want 1", got)
	}
}

func TestQuoteSourceMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetQuoteSourceState("tencent", 2)
	m.RecordQuoteSourceTrip("tencent")

	if got := testutil.ToFloat64(m.QuoteSourceState.WithLabelValues("tencent")); got != 2 {
		t.Errorf("state = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.QuoteSourceTrips.WithLabelValues("tencent")); got != 1 {
		t.Errorf("trips = %f, want 1", got)
	}
}

func TestTimer_Duration(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	timer := m.NewTimer()
	time.Sleep(5 * time.Millisecond)

	if timer.Duration() < 5*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 5ms", timer.Duration())
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != "success" {
		t.Error("StatusOf(nil) should be success")
	}
	if StatusOf(errors.New("x")) != "error" {
		t.Error("StatusOf(err) should be error")
	}
}

func TestNewMetrics_SeriesNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRefreshRun("success")
	m.SetQuoteSourceState("alpaca", 0)

	n, err := testutil.GatherAndCount(reg,
		"investment_tracker_refresh_runs_total",
		"investment_tracker_quote_source_breaker_state")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 series, got %d", n)
	}
}

func TestGetMetrics_ReturnsSameInstance(t *testing.T) {
	if GetMetrics() != GetMetrics() {
		t.Error("expected GetMetrics to reuse the global instance")
	}
}
