package orderbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"orderbot-client/internal/domain"
	"orderbot-client/internal/retry"
)

const (
	DefaultBaseURL = "http://157.173.218.48:8001"
	userAgent      = "orderbot-client/1.0"
)

// Client submits chat input to the ordering service. It keeps no conversation
// state; callers pass the thread on every call.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
	observer   func(retry.Event)

	transport *retry.Transport
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver receives an event for every retry the client performs.
func WithObserver(fn func(retry.Event)) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// NewClient builds a Client. All submissions share one retry transport.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.New("orderbot: base URL must not be empty")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	transportOpts := []retry.Option{
		retry.WithHTTPClient(c.httpClient),
		retry.WithLogger(c.logger),
	}
	if c.observer != nil {
		transportOpts = append(transportOpts, retry.WithObserver(c.observer))
	}
	transport, err := retry.New(c.policy, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("orderbot: %w", err)
	}
	c.transport = transport
	return c, nil
}

func orderURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/order/"
}

// Submit sends payload, tagged with thread when it is non-empty, and decodes the
// reply. Errors are *EncodingError, *TransportError or *ProtocolError.
func (c *Client) Submit(ctx context.Context, payload Payload, thread string) (*domain.ServiceResponse, error) {
	body, contentType, err := encode(payload, thread)
	if err != nil {
		return nil, err
	}

	requestID := newRequestID()
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Accept", "application/json")
	header.Set("User-Agent", userAgent)
	header.Set("X-Request-Id", requestID)
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("submitting order input",
		"input_type", payload.InputType(), "request_id", requestID, "has_thread", thread != "", "bytes", len(body))

	res, err := c.transport.Execute(ctx, retry.Request{
		Method:  http.MethodPost,
		URL:     orderURL(c.baseURL),
		Header:  header,
		Body:    body,
		Timeout: payload.timeout(),
	})
	if err != nil {
		mapped := mapTransportError(err)
		c.logger.Error("order request failed",
			"input_type", payload.InputType(), "request_id", requestID, "err", mapped)
		return nil, mapped
	}

	var out domain.ServiceResponse
	if decErr := json.Unmarshal(res.Body, &out); decErr != nil {
		return nil, &ProtocolError{
			StatusCode: res.StatusCode,
			Body:       truncate(string(res.Body), 4096),
			Err:        fmt.Errorf("decode response: %w", decErr),
		}
	}
	return &out, nil
}

// SendText submits a typed message.
func (c *Client) SendText(ctx context.Context, text, thread string) (*domain.ServiceResponse, error) {
	return c.Submit(ctx, Text{Content: text}, thread)
}

// SendVoice submits the recording at path as an mp3 voice message.
func (c *Client) SendVoice(ctx context.Context, path, thread string) (*domain.ServiceResponse, error) {
	return c.Submit(ctx, Audio{Source: FileSource(path)}, thread)
}

// SendImage submits the photo at path as a jpeg.
func (c *Client) SendImage(ctx context.Context, path, thread string) (*domain.ServiceResponse, error) {
	return c.Submit(ctx, Image{Source: FileSource(path)}, thread)
}

func mapTransportError(err error) error {
	attempts := 1
	exhausted := false
	var retryErr *retry.Error
	if errors.As(err, &retryErr) {
		attempts = retryErr.Attempts
		exhausted = retryErr.Exhausted
	}

	var tooLarge *retry.ResponseTooLargeError
	if errors.As(err, &tooLarge) {
		return &ProtocolError{StatusCode: tooLarge.StatusCode, Err: tooLarge}
	}

	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) && !exhausted && statusErr.StatusCode < 500 {
		return &ProtocolError{
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
			Err:        statusErr,
		}
	}
	return &TransportError{Attempts: attempts, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var newRequestID = func() string {
	return uuid.NewString()
}
