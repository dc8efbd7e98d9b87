package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"orderbot-client/internal/domain"
	"orderbot-client/internal/orderbot"
	"orderbot-client/internal/retry"
)

func TestRecordRetry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRetry(retry.Event{Attempt: 1, Delay: time.Second, ErrorClass: retry.ClassServerError})
	m.RecordRetry(retry.Event{Attempt: 2, Delay: 2 * time.Second, ErrorClass: retry.ClassServerError})
	m.RecordRetry(retry.Event{Attempt: 1, Delay: time.Second, ErrorClass: retry.ClassConnectionAborted})

	require.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues(retry.ClassServerError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues(retry.ClassConnectionAborted)))
	require.Equal(t, 1, testutil.CollectAndCount(m.RetryDelay))

	want := `
# HELP orderbot_retries_total Total number of retries by failure class
# TYPE orderbot_retries_total counter
orderbot_retries_total{class="connection_aborted"} 1
orderbot_retries_total{class="server_error"} 2
`
	require.NoError(t, testutil.CollectAndCompare(m.Retries, strings.NewReader(want)))
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeOK},
		{"encoding", &orderbot.EncodingError{InputType: orderbot.InputText, Reason: "empty text"}, OutcomeEncoding},
		{"transport", &orderbot.TransportError{Attempts: 4, Err: errors.New("refused")}, OutcomeTransport},
		{"protocol", &orderbot.ProtocolError{StatusCode: 404}, OutcomeProtocol},
		{"other", errors.New("boom"), OutcomeOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Outcome(tc.err))
		})
	}
}

type stubSubmitter struct {
	err error
}

func (s stubSubmitter) Submit(_ context.Context, _ orderbot.Payload, _ string) (*domain.ServiceResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ServiceResponse{ThreadID: "abc123"}, nil
}

func TestInstrument(t *testing.T) {
	m := New(nil)

	ok := m.Instrument(stubSubmitter{})
	resp, err := ok.Submit(context.Background(), orderbot.Text{Content: "hi"}, "")
	require.NoError(t, err)
	require.Equal(t, "abc123", resp.ThreadID)

	failing := m.Instrument(stubSubmitter{err: &orderbot.TransportError{Attempts: 4}})
	_, err = failing.Submit(context.Background(), orderbot.Audio{Source: orderbot.BytesSource("x")}, "")
	var trErr *orderbot.TransportError
	require.True(t, errors.As(err, &trErr))

	require.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(orderbot.InputText, OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(orderbot.InputAudio, OutcomeTransport)))
	require.Equal(t, 2, testutil.CollectAndCount(m.SubmissionDuration))
}

func TestInstrument_RecordsDuration(t *testing.T) {
	m := New(nil)
	sub := m.Instrument(stubSubmitter{}).(*instrumented)
	ticks := []time.Time{time.Unix(0, 0), time.Unix(3, 0)}
	sub.now = func() time.Time {
		now := ticks[0]
		ticks = ticks[1:]
		return now
	}

	_, err := sub.Submit(context.Background(), orderbot.Image{Source: orderbot.BytesSource("x")}, "")
	require.NoError(t, err)

	want := `
# HELP orderbot_submission_duration_seconds Duration of submissions including retries
# TYPE orderbot_submission_duration_seconds histogram
orderbot_submission_duration_seconds_bucket{input_type="image",le="0.1"} 0
orderbot_submission_duration_seconds_bucket{input_type="image",le="0.2"} 0
orderbot_submission_duration_seconds_bucket{input_type="image",le="0.4"} 0
orderbot_submission_duration_seconds_bucket{input_type="image",le="0.8"} 0
orderbot_submission_duration_seconds_bucket{input_type="image",le="1.6"} 0
orderbot_submission_duration_seconds_bucket{input_type="image",le="3.2"} 1
orderbot_submission_duration_seconds_bucket{input_type="image",le="6.4"} 1
orderbot_submission_duration_seconds_bucket{input_type="image",le="12.8"} 1
orderbot_submission_duration_seconds_bucket{input_type="image",le="25.6"} 1
orderbot_submission_duration_seconds_bucket{input_type="image",le="51.2"} 1
orderbot_submission_duration_seconds_bucket{input_type="image",le="+Inf"} 1
orderbot_submission_duration_seconds_sum{input_type="image"} 3
orderbot_submission_duration_seconds_count{input_type="image"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.SubmissionDuration, strings.NewReader(want)))
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.RecordRetry(retry.Event{Attempt: 1, Delay: time.Second, ErrorClass: retry.ClassTimeout})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `orderbot_retries_total{class="timeout"} 1`)
}
