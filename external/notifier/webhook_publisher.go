package notifier

import (
	"bytes"
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
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/platform/resilience"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxEmbedsPerMessage = 10
	maxFieldValueLength = 1024

	colorUp   = 0x2ECC71
	colorDown = 0xE74C3C
	colorNone = 0x95A5A6
)

var errWebhookTransient = crerr.New("webhook transient failure")

type WebhookConfig struct {
	// Channels maps a channel ref to its webhook URL.
	Channels       map[string]string
	HTTPClient     *http.Client
	Timeout        time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

// WebhookPublisher posts reports to Discord or Slack incoming webhooks.
type WebhookPublisher struct {
	client         *http.Client
	channels       map[string]string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewWebhookPublisher(cfg WebhookConfig, logger *logging.Logger) (*WebhookPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}

	channels := make(map[string]string, len(cfg.Channels))
	for ref, raw := range cfg.Channels {
		ref = strings.TrimSpace(ref)
		target, err := validateHTTPURL(raw)
		if err != nil {
			return nil, crerr.Wrapf(err, "invalid webhook url for channel %q", ref)
		}
		channels[ref] = target
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	breakerCfg := cfg.CircuitBreaker
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		logger.Warn("webhook circuit state changed", "from", from, "to", to)
	}

	return &WebhookPublisher{
		client:         client,
		channels:       channels,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}, nil
}

// Handles reports whether ref is a configured webhook channel.
func (p *WebhookPublisher) Handles(ref string) bool {
	_, ok := p.channels[strings.TrimSpace(ref)]
	return ok
}

func (p *WebhookPublisher) Publish(ctx context.Context, channelRef string, formatted report.Formatted) error {
	target, ok := p.channels[strings.TrimSpace(channelRef)]
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", usecase.ErrDeliveryFailed, channelRef)
	}

	payloads := buildPayloads(target, formatted)
	for i, payload := range payloads {
		err := p.post(ctx, channelRef, target, payload)
		if err != nil {
			return fmt.Errorf("%w: channel=%s part=%d/%d: %v", usecase.ErrDeliveryFailed, channelRef, i+1, len(payloads), err)
		}
	}

	p.logger.InfoContext(ctx, "report delivered", "channel", channelRef, "parts", len(payloads), "entries", len(formatted.Entries))
	return nil
}

func (p *WebhookPublisher) post(ctx context.Context, channelRef, target string, payload any) error {
	if !p.circuitEnabled {
		return p.send(ctx, channelRef, target, payload)
	}
	err := p.breaker.Do(func() error {
		return p.send(ctx, channelRef, target, payload)
	}, isWebhookCircuitFailure)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		p.logger.WarnContext(ctx, "webhook circuit breaker rejected request", "channel", channelRef, "state", p.breaker.State())
	}
	return err
}

func (p *WebhookPublisher) send(ctx context.Context, channelRef, target string, payload any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(payload); err != nil {
		return crerr.Wrap(err, "marshal webhook payload")
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("notify.channel", channelRef),
			attribute.String("notify.host", hostOf(target)),
			attribute.Int("notify.body_bytes", buf.Len()),
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf.B))
	if err != nil {
		return crerr.Wrap(err, "create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post webhook host=%s: %v", errWebhookTransient, hostOf(target), redactURLError(err, target))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if isRetryableStatus(resp.StatusCode) {
		return fmt.Errorf("%w: webhook status=%d body=%s", errWebhookTransient, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return fmt.Errorf("webhook status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type slackMessage struct {
	Text string `json:"text"`
}

func buildPayloads(target string, formatted report.Formatted) []any {
	if isSlackWebhook(target) {
		return []any{slackMessage{Text: formatted.PlainText()}}
	}

	header := formatted.Title
	if formatted.Description != "" {
		header += "\n" + formatted.Description
	}
	if len(formatted.Entries) == 0 {
		return []any{discordMessage{Content: header + "\nNo tracked players."}}
	}

	timestamp := ""
	if !formatted.GeneratedAt.IsZero() {
		timestamp = formatted.GeneratedAt.UTC().Format(time.RFC3339)
	}

	out := make([]any, 0, (len(formatted.Entries)+maxEmbedsPerMessage-1)/maxEmbedsPerMessage)
	for start := 0; start < len(formatted.Entries); start += maxEmbedsPerMessage {
		end := min(start+maxEmbedsPerMessage, len(formatted.Entries))
		message := discordMessage{Embeds: make([]discordEmbed, 0, end-start)}
		if start == 0 {
			message.Content = header
		}
		for _, entry := range formatted.Entries[start:end] {
			message.Embeds = append(message.Embeds, toEmbed(entry, timestamp))
		}
		out = append(out, message)
	}
	return out
}

func toEmbed(entry report.Entry, timestamp string) discordEmbed {
	embed := discordEmbed{
		Title:       entry.Title,
		Description: strings.Join(entry.Lines, "\n"),
		Color:       movementColor(entry.Movement),
		Timestamp:   timestamp,
	}
	for _, field := range entry.Fields {
		embed.Fields = append(embed.Fields, discordField{
			Name:   field.Name,
			Value:  truncate(field.Value, maxFieldValueLength),
			Inline: field.Inline,
		})
	}
	return embed
}

func movementColor(movement string) int {
	switch movement {
	case "up":
		return colorUp
	case "down":
		return colorDown
	default:
		return colorNone
	}
}

func isSlackWebhook(target string) bool {
	return strings.EqualFold(hostOf(target), "hooks.slack.com")
}

func hostOf(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// redactURLError drops the webhook path, which carries the secret token.
func redactURLError(err error, target string) string {
	text := err.Error()
	if target != "" {
		text = strings.ReplaceAll(text, target, "https://"+hostOf(target)+"/REDACTED")
	}
	return text
}

func validateHTTPURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrap(err, "parse url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("unsupported scheme=%q; expected http or https", parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.New("url has empty host")
	}
	return candidate, nil
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func isWebhookCircuitFailure(err error) bool {
	return errors.Is(err, errWebhookTransient)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}
