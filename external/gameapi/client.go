// Package gameapi is the HTTP plumbing shared by the per-game adapters: a
// local rate budget, a circuit breaker, single-flight for identical GETs and
// the mapping of provider responses onto the ingestion error taxonomy.
package gameapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/platform/resilience"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxResponseBytes  = 2 << 20
	regionPlaceholder = "{region}"
)

// Request addresses one GET. Region replaces the {region} placeholder of the
// base URL.
type Request struct {
	Region string
	Path   string
	Query  url.Values
}

// CallObserver receives one result label per provider call.
type CallObserver interface {
	ObserveProviderCall(provider, result string)
}

type Config struct {
	Provider       string
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	RatePerMinute  int
	Burst          int
	Headers        map[string]string
	Secrets        []string
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Observer       CallObserver
}

type Client struct {
	provider       string
	httpClient     *http.Client
	baseURL        string
	headers        map[string]string
	secrets        []string
	logger         *logging.Logger
	budget         *Budget
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.Group[[]byte]
	observer       CallObserver
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = "gameapi"
	}
	logger = logger.With("provider", provider)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}

	breakerCfg := cfg.CircuitBreaker
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
			logger.Warn("provider circuit state changed", "from", from, "to", to)
		}
	}

	secrets := make([]string, 0, len(cfg.Secrets))
	for _, secret := range cfg.Secrets {
		if secret = strings.TrimSpace(secret); secret != "" {
			secrets = append(secrets, secret)
		}
	}

	return &Client{
		provider:       provider,
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		headers:        cfg.Headers,
		secrets:        secrets,
		logger:         logger,
		budget:         NewBudget(cfg.RatePerMinute, cfg.Burst),
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
		observer:       cfg.Observer,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Budget() *Budget {
	return c.budget
}

// GetJSON consumes one budget unit, performs the GET and decodes the body into
// target. The raw body is returned for auditing.
func (c *Client) GetJSON(ctx context.Context, req Request, target any) ([]byte, error) {
	raw, err := c.get(ctx, req)
	if err != nil {
		c.observe(err)
		return nil, err
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		err = fmt.Errorf("%w: decode %s payload: %v", usecase.ErrUpstreamSchema, c.provider, err)
		c.observe(err)
		return nil, err
	}
	c.observe(nil)
	return raw, nil
}

func (c *Client) get(ctx context.Context, req Request) ([]byte, error) {
	if err := c.budget.Take(); err != nil {
		return nil, err
	}

	fullURL, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	if !c.circuitEnabled {
		raw, err, _ := c.flight.Do(fullURL, func() ([]byte, error) {
			return c.execute(ctx, fullURL)
		})
		return raw, err
	}

	var raw []byte
	err = c.breaker.Do(func() error {
		out, reqErr, _ := c.flight.Do(fullURL, func() ([]byte, error) {
			return c.execute(ctx, fullURL)
		})
		raw = out
		return reqErr
	}, isCircuitFailure)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.WarnContext(ctx, "provider circuit breaker rejected request", "state", c.breaker.State())
		return nil, fmt.Errorf("%w: %s is temporarily unavailable", usecase.ErrUpstreamUnavailable, c.provider)
	}
	return raw, err
}

func (c *Client) buildURL(req Request) (string, error) {
	base := c.baseURL
	if strings.Contains(base, regionPlaceholder) {
		region := strings.ToLower(strings.TrimSpace(req.Region))
		if region == "" {
			return "", fmt.Errorf("%w: %s requires a region", usecase.ErrIdentityNotFound, c.provider)
		}
		base = strings.ReplaceAll(base, regionPlaceholder, url.PathEscape(region))
	}
	fullURL := base + req.Path
	if encoded := req.Query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}
	return fullURL, nil
}

func (c *Client) execute(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	req.Header.Set("accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: send %s request: %s", usecase.ErrUpstreamUnavailable, c.provider, c.sanitize(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %s", usecase.ErrUpstreamUnavailable, c.provider, c.sanitize(err.Error()))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	statusErr := c.statusError(resp, raw)
	c.logger.WarnContext(ctx, "provider request failed",
		"url", c.sanitize(fullURL),
		"status", resp.StatusCode,
		"error", statusErr,
	)
	return nil, statusErr
}

func (c *Client) statusError(resp *http.Response, raw []byte) error {
	body := c.sanitize(abbreviateBody(raw))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		c.budget.Penalize(retryAfter)
		return &usecase.RateLimitedError{
			RetryAfter: retryAfter,
			Cause:      crerr.Newf("%s status=%d body=%s", c.provider, resp.StatusCode, body),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s status=%d body=%s", usecase.ErrIdentityNotFound, c.provider, resp.StatusCode, body)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return crerr.WithHint(
			fmt.Errorf("%w: %s status=%d", usecase.ErrUpstreamUnavailable, c.provider, resp.StatusCode),
			"check the provider api key",
		)
	default:
		return fmt.Errorf("%w: %s status=%d body=%s", usecase.ErrUpstreamUnavailable, c.provider, resp.StatusCode, body)
	}
}

func (c *Client) sanitize(value string) string {
	return sanitizeSensitiveText(value, c.secrets)
}

func (c *Client) observe(err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveProviderCall(c.provider, CallResult(err))
}

// CallResult labels a provider call outcome.
func CallResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, usecase.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, usecase.ErrIdentityNotFound):
		return "not_found"
	case errors.Is(err, usecase.ErrUpstreamSchema):
		return "schema"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unavailable"
	}
}

// isCircuitFailure counts outages only; a missing player or a throttle says
// nothing about provider health.
func isCircuitFailure(err error) bool {
	return errors.Is(err, usecase.ErrUpstreamUnavailable)
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(value + "s"); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

func sanitizeSensitiveText(value string, secrets []string) string {
	value = strings.TrimSpace(value)
	for _, secret := range secrets {
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return value
}

func abbreviateBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > 256 {
		return text[:256] + "..."
	}
	return text
}
