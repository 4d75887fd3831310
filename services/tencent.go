package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const (
	DefaultTencentBaseURL = "http://qt.gtimg.cn/"
	tencentBatchSize      = 60
)

// TencentQuoteProvider fetches CN/HK/US quotes from the Tencent quote endpoint.
// One request carries a batch of codes: GET {base}q=sh600519,sz000001
// and the GBK body holds one line per code: v_sh600519="1~name~600519~price~...";
type TencentQuoteProvider struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breakers   *BreakerRegistry
	retry      RetryConfig
	metrics    *observability.Metrics
}

// NewTencentQuoteProvider creates a provider; requestsPerSecond <= 0 disables rate limiting
func NewTencentQuoteProvider(baseURL string, timeout time.Duration, requestsPerSecond float64, breakers *BreakerRegistry) *TencentQuoteProvider {
	if baseURL == "" {
		baseURL = DefaultTencentBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if breakers == nil {
		breakers = GetGlobalRegistry()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &TencentQuoteProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limiter:    limiter,
		breakers:   breakers,
		retry:      QuoteRetryConfig,
		metrics:    observability.GetMetrics(),
	}
}

func (p *TencentQuoteProvider) Name() string { return BreakerTencent }

// Quotes fetches codes in batches; a failing batch fails the call
func (p *TencentQuoteProvider) Quotes(ctx context.Context, codes []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote, len(codes))

	for start := 0; start < len(codes); start += tencentBatchSize {
		end := min(start+tencentBatchSize, len(codes))
		batch := codes[start:end]

		parsed, err := Retry(ctx, p.retry, "tencent quotes", func(ctx context.Context) (map[string]models.Quote, error) {
			return p.breakers.Guard(ctx, BreakerTencent, func(ctx context.Context) (map[string]models.Quote, error) {
				return p.fetchBatch(ctx, batch)
			})
		})
		if err != nil {
			return nil, err
		}

		for _, code := range batch {
			if q, ok := parsed[models.NormalizeCode(code)]; ok {
				q.Code = code
				quotes[code] = q
			}
		}
	}

	return quotes, nil
}

func (p *TencentQuoteProvider) fetchBatch(ctx context.Context, codes []string) (map[string]models.Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	p.metrics.RecordExternalAPIRequest(BreakerTencent, "quote")
	timer := p.metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerTencent, "quote")

	url := p.baseURL + "q=" + strings.Join(codes, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordExternalAPIError(BreakerTencent, "quote", "transport")
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordExternalAPIError(BreakerTencent, "quote", "status")
		err := fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		p.metrics.RecordExternalAPIError(BreakerTencent, "quote", "decode")
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	quotes := ParseTencentQuotes(string(body), time.Now().UTC())
	observability.Debug("fetched quotes", "provider", BreakerTencent, "requested", len(codes), "resolved", len(quotes))
	return quotes, nil
}

// ParseTencentQuotes parses a decoded response body into quotes keyed by lower-case code.
// Lines that are unknown, malformed, or carry a non-positive price are skipped.
func ParseTencentQuotes(body string, at time.Time) map[string]models.Quote {
	quotes := make(map[string]models.Quote)

	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "v_") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		code := models.NormalizeCode(line[len("v_"):eq])
		data := strings.Trim(strings.TrimSpace(line[eq+1:]), `"`)

		fields := strings.Split(data, "~")
		if len(fields) < 4 {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
		if err != nil || !price.IsPositive() {
			continue
		}

		quotes[code] = models.Quote{
			Code:      code,
			Name:      strings.TrimSpace(fields[1]),
			Price:     price,
			Source:    BreakerTencent,
			Timestamp: at,
		}
	}

	return quotes
}
