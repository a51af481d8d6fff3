package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/nexus-communicator/config"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// OutboundMessage is one rendered campaign message for one recipient
type OutboundMessage struct {
	DeliveryID uint
	Phone      string
	Body       string
}

// SendResult is the provider's answer for one OutboundMessage
type SendResult struct {
	DeliveryID        uint
	ProviderMessageID string
	Status            models.DeliveryStatus
	Error             string
}

// MessageSender pushes campaign messages to the messaging provider.
// A returned error means the transport itself failed; results gathered
// before the failure are still returned.
type MessageSender interface {
	Send(ctx context.Context, credential string, messages []OutboundMessage) ([]SendResult, error)
}

// ErrTransportUnavailable wraps failures that abort a whole batch
var ErrTransportUnavailable = errors.New("messaging transport unavailable")

// NewMessageSender picks the transport configured for the process
func NewMessageSender(cfg config.WhatsAppConfig) MessageSender {
	if strings.EqualFold(cfg.Mode, "cloud") {
		return NewWhatsAppCloudSender(cfg)
	}
	return NewMockMessageSender()
}

// WhatsAppCloudSender talks to the WhatsApp Cloud API
type WhatsAppCloudSender struct {
	cfg     config.WhatsAppConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewWhatsAppCloudSender creates a rate limited, circuit broken Cloud API client
func NewWhatsAppCloudSender(cfg config.WhatsAppConfig) *WhatsAppCloudSender {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp-cloud",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &WhatsAppCloudSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

type cloudTextRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID            string `json:"id"`
		MessageStatus string `json:"message_status"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// recipientError marks a per-recipient rejection that must not trip the breaker
type recipientError struct {
	status int
	msg    string
}

func (e *recipientError) Error() string {
	return fmt.Sprintf("provider rejected message (%d): %s", e.status, e.msg)
}

func (s *WhatsAppCloudSender) Send(ctx context.Context, credential string, messages []OutboundMessage) ([]SendResult, error) {
	results := make([]SendResult, 0, len(messages))

	for _, msg := range messages {
		if err := s.limiter.Wait(ctx); err != nil {
			return results, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}

		out, err := s.breaker.Execute(func() (interface{}, error) {
			id, err := s.post(ctx, credential, msg)
			var rejected *recipientError
			if errors.As(err, &rejected) {
				// recipient problems are successes from the breaker's point of view
				return &SendResult{DeliveryID: msg.DeliveryID, Status: models.DeliveryStatusFailed, Error: rejected.Error()}, nil
			}
			if err != nil {
				return nil, err
			}
			return &SendResult{DeliveryID: msg.DeliveryID, ProviderMessageID: id, Status: models.DeliveryStatusSent}, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return results, fmt.Errorf("%w: circuit open", ErrTransportUnavailable)
			}
			return results, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}

		results = append(results, *out.(*SendResult))
	}

	return results, nil
}

func (s *WhatsAppCloudSender) post(ctx context.Context, credential string, msg OutboundMessage) (string, error) {
	payload := cloudTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(msg.Phone, "+"),
		Type:             "text",
	}
	payload.Text.Body = msg.Body

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.cfg.APIBaseURL, "/"), s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read provider response: %w", err)
	}

	var decoded cloudSendResponse
	_ = json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	case resp.StatusCode >= 400:
		msg := strings.TrimSpace(string(raw))
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", &recipientError{status: resp.StatusCode, msg: msg}
	}

	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return "", &recipientError{status: resp.StatusCode, msg: "response carried no message id"}
	}
	return decoded.Messages[0].ID, nil
}

// MockMessageSender accepts everything and reports it delivered straight away
type MockMessageSender struct {
	mu   sync.Mutex
	sent []OutboundMessage
}

func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

func (m *MockMessageSender) Send(ctx context.Context, credential string, messages []OutboundMessage) ([]SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]SendResult, 0, len(messages))
	for _, msg := range messages {
		m.sent = append(m.sent, msg)
		results = append(results, SendResult{
			DeliveryID:        msg.DeliveryID,
			ProviderMessageID: "mock-" + uuid.NewString(),
			Status:            models.DeliveryStatusDelivered,
		})
	}

	logrus.WithField("count", len(messages)).Debug("Mock sender accepted messages")
	return results, nil
}

// Sent returns a copy of everything the mock accepted
func (m *MockMessageSender) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.sent...)
}
