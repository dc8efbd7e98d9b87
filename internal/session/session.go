package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"orderbot-client/internal/domain"
	"orderbot-client/internal/orderbot"
)

const (
	fallbackReply = "Response received"
	placeOrderMsg = "place my order"

	intentQuantitySelection = "quantity_selection"

	// Greeting opens every new conversation.
	Greeting = "Hello! I'm your AI order assistant. How can I help you today?"
)

// Submitter is the client operation the session needs.
type Submitter interface {
	Submit(ctx context.Context, payload orderbot.Payload, thread string) (*domain.ServiceResponse, error)
}

// Reply is the outcome of one successful send.
type Reply struct {
	Text     string
	Response *domain.ServiceResponse
}

// Session is one chat conversation. It owns the thread token: the first reply
// that carries one fixes it until Reset.
type Session struct {
	submitter Submitter
	logger    *slog.Logger

	mu     sync.Mutex
	thread string
	last   *domain.ServiceResponse
}

func New(s Submitter, logger *slog.Logger) (*Session, error) {
	if s == nil {
		return nil, errors.New("session: submitter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{submitter: s, logger: logger}, nil
}

// Thread returns the current thread, empty before the first reply.
func (s *Session) Thread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}

// Last returns the most recent reply, or nil.
func (s *Session) Last() *domain.ServiceResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset starts a new conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = ""
	s.last = nil
}

// Send submits payload within the current conversation.
func (s *Session) Send(ctx context.Context, payload orderbot.Payload) (Reply, error) {
	thread := s.Thread()
	s.logger.Debug("sending message", "thread_id", thread)

	resp, err := s.submitter.Submit(ctx, payload, thread)
	if err != nil {
		return Reply{}, classify(err)
	}
	if resp == nil {
		return Reply{}, newError(ErrorInternal, "empty_response", nil)
	}

	s.mu.Lock()
	if s.thread == "" && resp.ThreadID != "" {
		s.thread = resp.ThreadID
		s.logger.Info("thread captured", "thread_id", resp.ThreadID)
	}
	s.last = resp
	s.mu.Unlock()

	text := resp.Assistant.Message
	if strings.TrimSpace(text) == "" {
		text = fallbackReply
	}
	return Reply{Text: text, Response: resp}, nil
}

// SendText sends a trimmed text message. Blank input is rejected locally.
func (s *Session) SendText(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	return s.Send(ctx, orderbot.Text{Content: text})
}

// SelectProduct asks to buy p.
func (s *Session) SelectProduct(ctx context.Context, p domain.Product) (Reply, error) {
	return s.SendText(ctx, "I want to buy this: "+p.Name)
}

// ConfirmQuantity answers a quantity prompt.
func (s *Session) ConfirmQuantity(ctx context.Context, quantity int) (Reply, error) {
	if quantity <= 0 {
		return Reply{}, newError(ErrorInvalidInput, "invalid_quantity", nil)
	}
	return s.SendText(ctx, fmt.Sprintf("%d units", quantity))
}

// ConfirmAddress answers an address prompt.
func (s *Session) ConfirmAddress(ctx context.Context, address string) (Reply, error) {
	return s.SendText(ctx, address)
}

func (s *Session) PlaceOrder(ctx context.Context) (Reply, error) {
	return s.SendText(ctx, placeOrderMsg)
}

// Products lists the products offered by the last reply.
func (s *Session) Products() []domain.Product {
	last := s.Last()
	if last == nil {
		return nil
	}
	if len(last.Assistant.Products) > 0 {
		return last.Assistant.Products
	}
	if last.Assistant.Product != nil {
		return []domain.Product{*last.Assistant.Product}
	}
	return nil
}

// AwaitingQuantity reports whether the last reply asked for a quantity, in which
// case a product pick should be followed by ConfirmQuantity instead of
// SelectProduct.
func (s *Session) AwaitingQuantity() bool {
	last := s.Last()
	return last != nil && last.Assistant.Intent == intentQuantitySelection
}
