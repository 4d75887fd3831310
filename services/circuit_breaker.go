package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"investment-tracker/models"
	"investment-tracker/observability"
)

// Quote source names, used as breaker names and metric labels
const (
	BreakerTencent = "tencent"
	BreakerAlpaca  = "alpaca"
)

// ErrBreakerOpen is returned while a quote source is rejecting calls
var ErrBreakerOpen = errors.New("quote source circuit open")

// BreakerConfig controls when a quote source is taken out of rotation
type BreakerConfig struct {
	HalfOpenProbes uint32        // calls let through while half-open
	Window         time.Duration // closed-state counting window
	Cooldown       time.Duration // time spent open before probing
	MinRequests    uint32        // calls in the window before the ratio is considered
	FailureRatio   float64
}

var DefaultBreakerConfig = BreakerConfig{
	HalfOpenProbes: 2,
	Window:         time.Minute,
	Cooldown:       30 * time.Second,
	MinRequests:    5,
	FailureRatio:   0.5,
}

type quoteBreaker = gobreaker.CircuitBreaker[map[string]models.Quote]

// BreakerRegistry holds one breaker per quote source
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*quoteBreaker
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*quoteBreaker),
	}
}

func (r *BreakerRegistry) breaker(source string) *quoteBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[source]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[map[string]models.Quote](gobreaker.Settings{
		Name:          source,
		MaxRequests:   r.cfg.HalfOpenProbes,
		Interval:      r.cfg.Window,
		Timeout:       r.cfg.Cooldown,
		ReadyToTrip:   r.readyToTrip,
		IsSuccessful:  sourceHealthy,
		OnStateChange: onBreakerStateChange,
	})
	r.breakers[source] = cb
	return cb
}

func (r *BreakerRegistry) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < r.cfg.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= r.cfg.FailureRatio
}

// sourceHealthy reports whether err leaves the source's record clean.
// A cancelled caller or a rejected request says nothing about the source.
func sourceHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var p *permanentError
	return errors.As(err, &p)
}

func onBreakerStateChange(source string, from, to gobreaker.State) {
	observability.Warn("quote source breaker changed state",
		"source", source,
		"from", from.String(),
		"to", to.String())

	metrics := observability.GetMetrics()
	metrics.SetQuoteSourceState(source, breakerStateValue(to))
	if to == gobreaker.StateOpen {
		metrics.RecordQuoteSourceTrip(source)
	}
}

// Guard runs fetch through the source's breaker.
// A rejected call returns an error wrapping ErrBreakerOpen without calling fetch.
func (r *BreakerRegistry) Guard(ctx context.Context, source string, fetch func(context.Context) (map[string]models.Quote, error)) (map[string]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cb := r.breaker(source)
	quotes, err := cb.Execute(func() (map[string]models.Quote, error) {
		return fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.Warn("quote request rejected", "source", source, "state", cb.State().String())
		return nil, fmt.Errorf("%s: %w", source, ErrBreakerOpen)
	}
	return quotes, err
}

// BreakerStatus is the health view of one quote source
type BreakerStatus struct {
	Source              string `json:"source"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	Failures            uint32 `json:"failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Status lists every source that has been called, sorted by name
func (r *BreakerRegistry) Status() []BreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerStatus, 0, len(r.breakers))
	for source, cb := range r.breakers {
		counts := cb.Counts()
		out = append(out, BreakerStatus{
			Source:              source,
			State:               cb.State().String(),
			Requests:            counts.Requests,
			Failures:            counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Open reports whether any source is currently rejecting calls
func (r *BreakerRegistry) Open() bool {
	for _, s := range r.Status() {
		if s.State == gobreaker.StateOpen.String() {
			return true
		}
	}
	return false
}

var (
	globalMu       sync.Mutex
	globalBreakers *BreakerRegistry
)

// GetGlobalRegistry returns the process-wide registry, creating it on first use
func GetGlobalRegistry() *BreakerRegistry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalBreakers == nil {
		globalBreakers = NewBreakerRegistry(DefaultBreakerConfig)
	}
	return globalBreakers
}

// SetGlobalRegistry replaces the process-wide registry; nil resets it
func SetGlobalRegistry(r *BreakerRegistry) {
	globalMu.Lock()
	globalBreakers = r
	globalMu.Unlock()
}

// breakerStateValue maps a state to the quote_source_breaker_state gauge:
// 0 closed, 1 half-open, 2 open
func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
