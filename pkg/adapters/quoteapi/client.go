// Package quoteapi is an HTTP client for a LI.FI-style quote, relay and
// transfer status API.
package quoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/cenkalti/backoff/v5"
)

// DefaultBaseURL is the public LI.FI API.
const DefaultBaseURL = "https://li.quest/v1"

var (
	_ ports.QuoteService  = (*Client)(nil)
	_ ports.Relayer       = (*Client)(nil)
	_ ports.StatusService = (*Client)(nil)
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quote api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("quote api returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	integrator string
	http       *http.Client
	maxTries   uint
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAPIKey sends key in the x-lifi-api-key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithIntegrator identifies the integrator on every request.
func WithIntegrator(name string) Option {
	return func(c *Client) {
		c.integrator = name
	}
}

// WithMaxTries bounds attempts for idempotent requests. 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		c.maxTries = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for baseURL, or DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		maxTries: 3,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStepTransaction returns step populated with a TransactionRequest.
func (c *Client) GetStepTransaction(ctx context.Context, step *domain.Step) (*domain.Step, error) {
	var out domain.Step
	if err := c.do(ctx, http.MethodPost, "/advanced/stepTransaction", step, &out, true); err != nil {
		return nil, fmt.Errorf("failed to get step transaction: %w", err)
	}
	return &out, nil
}

// GetRelayerQuote returns step refreshed for relayed, signature-based submission.
func (c *Client) GetRelayerQuote(ctx context.Context, step *domain.Step) (*domain.Step, error) {
	var env relayerEnvelope[domain.Step]
	if err := c.do(ctx, http.MethodPost, "/relayer/quote", step, &env, true); err != nil {
		return nil, fmt.Errorf("failed to get relayer quote: %w", err)
	}
	if err := env.err(); err != nil {
		return nil, fmt.Errorf("failed to get relayer quote: %w", err)
	}
	return &env.Data, nil
}

// RelayTransaction hands signed typed data to the relayer. It is never retried.
func (c *Client) RelayTransaction(ctx context.Context, req ports.RelayRequest) (string, error) {
	var env relayerEnvelope[struct {
		TaskID string `json:"taskId"`
	}]
	if err := c.do(ctx, http.MethodPost, "/advanced/relay", req, &env, false); err != nil {
		return "", fmt.Errorf("failed to relay transaction: %w", err)
	}
	if err := env.err(); err != nil {
		return "", fmt.Errorf("failed to relay transaction: %w", err)
	}
	if env.Data.TaskID == "" {
		return "", errors.New("failed to relay transaction: empty task id")
	}
	return env.Data.TaskID, nil
}

// RelayedTransactionStatus reports the state of a relayer task.
func (c *Client) RelayedTransactionStatus(ctx context.Context, taskID string) (*ports.RelayStatus, error) {
	var env relayerEnvelope[ports.RelayStatus]
	if err := c.do(ctx, http.MethodGet, "/relayer/status/"+url.PathEscape(taskID), nil, &env, true); err != nil {
		return nil, fmt.Errorf("failed to get relay status: %w", err)
	}
	if err := env.err(); err != nil {
		return nil, fmt.Errorf("failed to get relay status: %w", err)
	}
	return &env.Data, nil
}

// GetStatus reports the state of a bridge transfer. An unknown transfer is
// reported as NOT_FOUND rather than an error.
func (c *Client) GetStatus(ctx context.Context, req ports.StatusRequest) (*ports.TransferStatus, error) {
	q := url.Values{}
	q.Set("txHash", req.TxHash)
	if req.Bridge != "" {
		q.Set("bridge", req.Bridge)
	}
	if req.FromChain != 0 {
		q.Set("fromChain", strconv.FormatUint(req.FromChain, 10))
	}
	if req.ToChain != 0 {
		q.Set("toChain", strconv.FormatUint(req.ToChain, 10))
	}

	var out ports.TransferStatus
	err := c.do(ctx, http.MethodGet, "/status?"+q.Encode(), nil, &out, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &ports.TransferStatus{Status: ports.TransferNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer status: %w", err)
	}
	return &out, nil
}

// relayerEnvelope is the {status, data} wrapper of relayer endpoints.
type relayerEnvelope[T any] struct {
	Status string          `json:"status"`
	Data   T               `json:"data"`
	Error  json.RawMessage `json:"-"`
}

func (e *relayerEnvelope[T]) UnmarshalJSON(b []byte) error {
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Status = raw.Status
	if raw.Status == "error" {
		e.Error = raw.Data
		return nil
	}
	if len(raw.Data) == 0 {
		return nil
	}
	return json.Unmarshal(raw.Data, &e.Data)
}

func (e *relayerEnvelope[T]) err() error {
	if e.Status != "error" {
		return nil
	}
	apiErr := &APIError{StatusCode: http.StatusOK}
	if len(e.Error) > 0 {
		_ = json.Unmarshal(e.Error, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = "relayer error"
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	tries := c.maxTries
	if !retry || tries == 0 {
		tries = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.once(ctx, method, path, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Debug("quote api request failed", "method", method, "path", path, "attempt", attempt, "err", err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
	)
	return err
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-lifi-api-key", c.apiKey)
	}
	if c.integrator != "" {
		req.Header.Set("x-lifi-integrator", c.integrator)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
