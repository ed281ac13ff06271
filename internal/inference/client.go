// Package inference — HTTP клиент inference worker'а: readiness probe
// и проксирование predict-запросов.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/telemetry"
)

// PredictPath — endpoint inference worker'а.
const PredictPath = "/predict"

// maxResponseSize — лимит тела ответа worker'а.
const maxResponseSize = 10 << 20

// Response — ответ worker'а, передаётся клиенту без изменений.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client обращается к inference worker'у по baseURL.
type Client struct {
	baseURL        string
	probeTimeout   time.Duration
	predictTimeout time.Duration
	http           *http.Client
}

// NewClient создаёт клиент.
func NewClient(baseURL string, probeTimeout, predictTimeout time.Duration) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		probeTimeout:   probeTimeout,
		predictTimeout: predictTimeout,
		http:           &http.Client{},
	}
}

// URL возвращает адрес predict endpoint.
func (c *Client) URL() string {
	return c.baseURL + PredictPath
}

// Probe выполняет GET на predict endpoint. Любой HTTP-ответ (даже 405)
// означает, что worker слушает порт.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ServiceUnavailableError{URL: c.URL(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	return nil
}

// Predict пересылает JSON payload worker'у и возвращает его ответ как есть.
// Недоступность worker'а — *domain.ServiceUnavailableError.
func (c *Client) Predict(ctx context.Context, payload []byte) (*Response, error) {
	ctx, cancel := withTimeout(ctx, c.predictTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.PredictRequests.WithLabelValues("unavailable").Inc()
		return nil, &domain.ServiceUnavailableError{URL: c.URL(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		telemetry.PredictRequests.WithLabelValues("unavailable").Inc()
		return nil, &domain.ServiceUnavailableError{URL: c.URL(), Err: err}
	}

	telemetry.PredictRequests.WithLabelValues("relayed").Inc()
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
