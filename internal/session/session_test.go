package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbot-client/internal/domain"
	"orderbot-client/internal/orderbot"
)

type submitCall struct {
	payload orderbot.Payload
	thread  string
}

type stubSubmitter struct {
	responses []*domain.ServiceResponse
	errs      []error
	calls     []submitCall
}

func (s *stubSubmitter) Submit(_ context.Context, payload orderbot.Payload, thread string) (*domain.ServiceResponse, error) {
	i := len(s.calls)
	s.calls = append(s.calls, submitCall{payload: payload, thread: thread})
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &domain.ServiceResponse{}, nil
}

func reply(thread, intent, message string) *domain.ServiceResponse {
	return &domain.ServiceResponse{
		ThreadID:  thread,
		Assistant: domain.AssistantResponse{Intent: intent, Message: message},
	}
}

func mustNew(t *testing.T, s Submitter) *Session {
	t.Helper()
	sess, err := New(s, nil)
	require.NoError(t, err)
	return sess
}

func TestNew_ValidatesDependency(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestSend_AdoptsFirstThreadOnly(t *testing.T) {
	stub := &stubSubmitter{responses: []*domain.ServiceResponse{
		reply("abc123", "greeting", "Hi"),
		reply("other", "product_search", "Found"),
		reply("", "product_search", ""),
	}}
	sess := mustNew(t, stub)

	_, err := sess.SendText(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "abc123", sess.Thread())

	_, err = sess.SendText(context.Background(), "apples")
	require.NoError(t, err)
	require.Equal(t, "abc123", sess.Thread())

	_, err = sess.SendText(context.Background(), "more")
	require.NoError(t, err)

	require.Equal(t, "", stub.calls[0].thread)
	require.Equal(t, "abc123", stub.calls[1].thread)
	require.Equal(t, "abc123", stub.calls[2].thread)
}

func TestSend_ResetStartsNewConversation(t *testing.T) {
	stub := &stubSubmitter{responses: []*domain.ServiceResponse{
		reply("abc123", "greeting", "Hi"),
		reply("def456", "greeting", "Hi again"),
	}}
	sess := mustNew(t, stub)

	_, err := sess.SendText(context.Background(), "hello")
	require.NoError(t, err)
	sess.Reset()
	require.Empty(t, sess.Thread())
	require.Nil(t, sess.Last())

	_, err = sess.SendText(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "", stub.calls[1].thread)
	require.Equal(t, "def456", sess.Thread())
}

func TestSend_ReplyTextFallsBack(t *testing.T) {
	stub := &stubSubmitter{responses: []*domain.ServiceResponse{
		reply("t", "confirm", "Your order is placed"),
		reply("t", "confirm", "  "),
	}}
	sess := mustNew(t, stub)

	r, err := sess.SendText(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "Your order is placed", r.Text)

	r, err = sess.SendText(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, "Response received", r.Text)
	require.NotNil(t, r.Response)
}

func TestSend_ThreadKeptOnFailure(t *testing.T) {
	stub := &stubSubmitter{
		responses: []*domain.ServiceResponse{reply("abc123", "greeting", "Hi")},
		errs:      []error{nil, &orderbot.TransportError{Attempts: 4, Err: errors.New("503")}},
	}
	sess := mustNew(t, stub)

	_, err := sess.SendText(context.Background(), "hello")
	require.NoError(t, err)
	_, err = sess.SendText(context.Background(), "again")
	require.Error(t, err)
	require.Equal(t, "abc123", sess.Thread())
}

func TestSendText_BlankRejectedLocally(t *testing.T) {
	stub := &stubSubmitter{}
	sess := mustNew(t, stub)

	_, err := sess.SendText(context.Background(), "   ")
	var sessErr *Error
	require.True(t, errors.As(err, &sessErr))
	require.Equal(t, ErrorInvalidInput, sessErr.Code)
	require.Empty(t, stub.calls)
}

func TestCannedMessages(t *testing.T) {
	stub := &stubSubmitter{}
	sess := mustNew(t, stub)
	ctx := context.Background()

	_, err := sess.SelectProduct(ctx, domain.Product{Name: "Apple"})
	require.NoError(t, err)
	_, err = sess.ConfirmQuantity(ctx, 3)
	require.NoError(t, err)
	_, err = sess.ConfirmAddress(ctx, " 221B Baker Street ")
	require.NoError(t, err)
	_, err = sess.PlaceOrder(ctx)
	require.NoError(t, err)

	var texts []string
	for _, c := range stub.calls {
		text, ok := c.payload.(orderbot.Text)
		require.True(t, ok)
		texts = append(texts, text.Content)
	}
	require.Equal(t, []string{
		"I want to buy this: Apple",
		"3 units",
		"221B Baker Street",
		"place my order",
	}, texts)

	_, err = sess.ConfirmQuantity(ctx, 0)
	require.Error(t, err)
	require.Len(t, stub.calls, 4)
}

func TestProductsAndQuantityPrompt(t *testing.T) {
	apple := domain.Product{Name: "Apple"}
	stub := &stubSubmitter{responses: []*domain.ServiceResponse{
		{Assistant: domain.AssistantResponse{Intent: "product_search", Products: []domain.Product{apple, {Name: "Pear"}}}},
		{Assistant: domain.AssistantResponse{Intent: "quantity_selection", Product: &apple}},
	}}
	sess := mustNew(t, stub)
	require.Nil(t, sess.Products())
	require.False(t, sess.AwaitingQuantity())

	_, err := sess.SendText(context.Background(), "fruit")
	require.NoError(t, err)
	require.Len(t, sess.Products(), 2)
	require.False(t, sess.AwaitingQuantity())

	_, err = sess.SelectProduct(context.Background(), apple)
	require.NoError(t, err)
	require.Equal(t, []domain.Product{apple}, sess.Products())
	require.True(t, sess.AwaitingQuantity())
}

func TestSend_MapsClientErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      ErrorCode
		reason    string
		retryable bool
		attempts  int
		status    int
	}{
		{name: "encoding", err: &orderbot.EncodingError{InputType: "audio", Reason: "missing source"}, code: ErrorInvalidInput, reason: "missing source"},
		{name: "transport", err: &orderbot.TransportError{Attempts: 4, Err: errors.New("refused")}, code: ErrorUpstreamUnavailable, reason: "orderbot_unreachable", retryable: true, attempts: 4},
		{name: "rejected", err: &orderbot.ProtocolError{StatusCode: 404, Err: errors.New("not found")}, code: ErrorUpstreamRejected, reason: "orderbot_rejected", status: 404},
		{name: "malformed", err: &orderbot.ProtocolError{StatusCode: 200, Err: errors.New("decode")}, code: ErrorUpstreamRejected, reason: "orderbot_malformed_response", status: 200},
		{name: "unexpected", err: errors.New("boom"), code: ErrorInternal, reason: "unexpected_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := mustNew(t, &stubSubmitter{errs: []error{tc.err}})
			_, err := sess.Send(context.Background(), orderbot.Text{Content: "x"})

			var sessErr *Error
			require.True(t, errors.As(err, &sessErr))
			require.Equal(t, tc.code, sessErr.Code)
			require.Equal(t, tc.reason, sessErr.Reason)
			require.Equal(t, tc.retryable, sessErr.Retryable())
			require.Equal(t, tc.attempts, sessErr.Attempts)
			require.Equal(t, tc.status, sessErr.Status)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestUserMessage(t *testing.T) {
	require.Empty(t, UserMessage(nil))
	require.Equal(t, genericFailure, UserMessage(&Error{Code: ErrorUpstreamUnavailable}))
	require.Equal(t, genericFailure, UserMessage(errors.New("boom")))
	require.Contains(t, UserMessage(&Error{Code: ErrorInvalidInput}), "could not be sent")
}
