package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/topicflow/topicflow/pkg/logger"
)

var tracer = otel.Tracer("pkg/external")

// WebhookConfig configures a webhook writer.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	// RateLimit is the number of requests per second; zero means unlimited.
	RateLimit  float64
	Burst      int
	MaxRetries int
	Timeout    time.Duration
}

// Webhook posts every event as JSON to a URL. Failed requests are retried with backoff for
// connection errors and 5xx/429 responses.
type Webhook struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

var _ Writer = (*Webhook)(nil)

func NewWebhook(cfg WebhookConfig, l logger.Logger) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 && l != nil {
			l.WarnWithContext(req.Context(), "retrying webhook")
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Webhook{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
		limiter: limiter,
	}, nil
}

func (w *Webhook) Write(ctx context.Context, event *Event) error {
	ctx, span := tracer.Start(ctx, "webhook.Write")
	defer span.End()
	span.SetAttributes(attribute.String("event_code", event.Code))

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event '%s': %w", event.Code, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("post event '%s': unexpected status %d", event.Code, resp.StatusCode)
	}
	return nil
}
