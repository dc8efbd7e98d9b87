package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxErrorBody    = 4096
	maxResponseBody = 1 << 20
)


// Request describes one logical outbound call. Body is replayed on every attempt.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is a successful (2xx) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Attempt tracks a single try of a request.
type Attempt struct {
	Number    int
	StartedAt time.Time
}

// Event is emitted before each retry.
type Event struct {
	Attempt    int
	Delay      time.Duration
	ErrorClass string
	Err        error
}

// StatusError captures a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retry: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ResponseTooLargeError is a successful reply whose body exceeds 1 MiB. It is
// not retried.
type ResponseTooLargeError struct {
	StatusCode int
	URL        string
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("retry: response body from %s exceeds 1 MiB (status %d)", e.URL, e.StatusCode)
}

// Error is returned when a request finally fails. Exhausted is set when every
// allowed attempt failed with a retryable error.
type Error struct {
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retry: attempt %d failed: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport executes requests with bounded exponential-backoff retry.
type Transport struct {
	httpClient *http.Client
	policy     Policy
	logger     *slog.Logger
	observer   func(Event)
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Transport)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *Transport) {
		t.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithObserver registers fn to receive an Event before every retry.
func WithObserver(fn func(Event)) Option {
	return func(t *Transport) {
		t.observer = fn
	}
}

// New creates a Transport. Negative retry counts or delays are rejected.
func New(policy Policy, opts ...Option) (*Transport, error) {
	if policy.MaxRetries < 0 {
		return nil, errors.New("retry: max retries must not be negative")
	}
	if policy.BaseDelay < 0 || policy.MaxDelay < 0 {
		return nil, errors.New("retry: delays must not be negative")
	}
	if policy.MaxDelay > 0 && policy.BaseDelay > policy.MaxDelay {
		return nil, errors.New("retry: base delay must not exceed max delay")
	}
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}
	t := &Transport{
		httpClient: &http.Client{},
		policy:     policy,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t, nil
}

// Policy returns the policy the transport was built with.
func (t *Transport) Policy() Policy {
	return t.policy
}

// Execute runs req, retrying retryable failures until the policy's budget is spent.
func (t *Transport) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodPost
	}

	started := time.Now()
	for n := 0; ; n++ {
		attempt := Attempt{Number: n, StartedAt: time.Now()}
		resp, err := t.do(ctx, req)
		t.logger.Debug("request attempt finished",
			"url", req.URL, "attempt", attempt.Number, "duration", time.Since(attempt.StartedAt), "ok", err == nil)
		if err == nil {
			if n > 0 {
				t.logger.Info("request succeeded after retry",
					"url", req.URL, "attempt", n, "elapsed", time.Since(started))
			}
			return resp, nil
		}

		// a caller that has gone away is never retried
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Attempts: n + 1, Err: err}
		}
		if !t.policy.retryable(err) {
			return nil, &Error{Attempts: n + 1, Err: err}
		}
		if n >= t.policy.MaxRetries {
			return nil, &Error{Attempts: n + 1, Exhausted: true, Err: err}
		}

		class, _ := Classify(err)
		delay := t.policy.Delay(n + 1)
		t.logger.Warn("retrying request",
			"url", req.URL, "attempt", n+1, "delay", delay, "class", class, "err", err)
		if t.observer != nil {
			t.observer(Event{Attempt: n + 1, Delay: delay, ErrorClass: class, Err: err})
		}
		if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
			return nil, &Error{Attempts: n + 1, Err: err}
		}
	}
}

func (t *Transport) do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("retry: create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	res, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("retry: read response body: %w", err)
	}
	if len(buf) > maxResponseBody {
		return nil, &ResponseTooLargeError{StatusCode: res.StatusCode, URL: req.URL}
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: buf}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
