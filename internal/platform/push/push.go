// Package push provides push notification delivery to patient devices. It
// defines a transport-agnostic Gateway interface, an FCM-backed
// implementation, and a mock gateway for tests.
package push

import (
	"context"
	"errors"
	"sync"
)

// Message is a single push notification addressed to one device token.
type Message struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// BatchResult summarises the outcome of a batch send. The gateway reports
// aggregate counts only; it does not say which individual tokens failed.
type BatchResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Gateway delivers batches of push messages. SendBatch returns an error only
// when the batch as a whole could not be attempted; partial failures are
// reported through the BatchResult counts.
type Gateway interface {
	SendBatch(ctx context.Context, messages []Message) (*BatchResult, error)
}

// ---------------------------------------------------------------------------
// Mock Gateway (test double)
// ---------------------------------------------------------------------------

// BatchCall records a single call to SendBatch.
type BatchCall struct {
	Messages []Message
}

// MockGateway is a test double for Gateway.
type MockGateway struct {
	mu         sync.Mutex
	calls      []BatchCall
	ShouldFail bool
	FailError  string
	// FailTokens marks individual tokens as failed in the returned counts.
	FailTokens map[string]bool
}

// SendBatch records the call. When ShouldFail is set the whole batch errors;
// otherwise tokens listed in FailTokens count as failures and the rest as
// successes.
func (m *MockGateway) SendBatch(_ context.Context, messages []Message) (*BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]Message, len(messages))
	copy(copied, messages)
	m.calls = append(m.calls, BatchCall{Messages: copied})

	if m.ShouldFail {
		if m.FailError == "" {
			return nil, errors.New("send batch failed")
		}
		return nil, errors.New(m.FailError)
	}

	result := &BatchResult{}
	for _, msg := range messages {
		if m.FailTokens[msg.Token] {
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
	}
	return result, nil
}

// Calls returns a copy of recorded batch calls.
func (m *MockGateway) Calls() []BatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BatchCall, len(m.calls))
	copy(out, m.calls)
	return out
}
