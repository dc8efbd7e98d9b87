package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 10 * time.Second
)

// Error classes reported on retry events.
const (
	ClassTimeout           = "timeout"
	ClassConnectionRefused = "connection_refused"
	ClassConnectionAborted = "connection_aborted"
	ClassDNS               = "dns"
	ClassServerError       = "server_error"
	ClassRateLimited       = "rate_limited"
	ClassCanceled          = "canceled"
	ClassClientError       = "client_error"
	ClassOther             = "other"
)

// Policy decides how many times and how far apart a failed request is retried.
// It is read-only once handed to New.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetryable func(error) bool
}

// DefaultPolicy retries three times with delays of 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  defaultMaxRetries,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		IsRetryable: IsRetryable,
	}
}

// Delay returns the wait before retry k, counted from 1.
func (p Policy) Delay(k int) time.Duration {
	if k < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < k; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		// stop doubling before the duration overflows
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.IsRetryable == nil {
		return IsRetryable(err)
	}
	return p.IsRetryable(err)
}

// IsRetryable reports whether err is transient: connection refused, DNS failure,
// timeout, aborted connection or a 5xx status.
func IsRetryable(err error) bool {
	_, ok := Classify(err)
	return ok
}

// RetryRateLimited extends pred so that HTTP 429 responses are retried too.
func RetryRateLimited(pred func(error) bool) func(error) bool {
	if pred == nil {
		pred = IsRetryable
	}
	return func(err error) bool {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return pred(err)
	}
}

// Classify names the failure class of err and whether the default policy retries it.
func Classify(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500 && statusErr.StatusCode <= 599:
			return ClassServerError, true
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimited, false
		default:
			return ClassClientError, false
		}
	}

	if errors.Is(err, context.Canceled) {
		return ClassCanceled, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassDNS, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassConnectionRefused, true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return ClassConnectionAborted, true
	}
	// a peer that hangs up mid-exchange surfaces as EOF, not as a reset
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassConnectionAborted, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout, true
	}

	return ClassOther, false
}
