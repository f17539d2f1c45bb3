package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultFCMBaseURL = "https://fcm.googleapis.com"

// TokenSource supplies OAuth2 bearer tokens for the FCM v1 API. Implementations
// are expected to cache and refresh tokens internally.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a TokenSource that always yields the same token.
// Useful for development and tests.
func StaticTokenSource(token string) TokenSource {
	return staticToken(token)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// FCMGateway sends push notifications through the Firebase Cloud Messaging
// HTTP v1 API. Each message in a batch is sent as its own request; failures
// of individual messages are absorbed into the aggregate counts.
type FCMGateway struct {
	projectID string
	tokens    TokenSource
	baseURL   string
	client    *http.Client
	logger    zerolog.Logger
}

// FCMOption configures an FCMGateway.
type FCMOption func(*FCMGateway)

// WithHTTPClient overrides the HTTP client used for FCM requests.
func WithHTTPClient(client *http.Client) FCMOption {
	return func(g *FCMGateway) {
		g.client = client
	}
}

// WithBaseURL overrides the FCM endpoint, primarily for tests.
func WithBaseURL(url string) FCMOption {
	return func(g *FCMGateway) {
		g.baseURL = url
	}
}

// NewFCMGateway creates a gateway for the given Firebase project.
func NewFCMGateway(projectID string, tokens TokenSource, logger zerolog.Logger, opts ...FCMOption) *FCMGateway {
	g := &FCMGateway{
		projectID: projectID,
		tokens:    tokens,
		baseURL:   defaultFCMBaseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// fcmMessage is the request body for the FCM v1 messages:send endpoint.
type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

// SendBatch delivers each message individually and aggregates the results.
// An error is returned only when no message could be attempted at all (e.g.
// the token source fails); per-message errors are counted as failures.
func (g *FCMGateway) SendBatch(ctx context.Context, messages []Message) (*BatchResult, error) {
	if len(messages) == 0 {
		return &BatchResult{}, nil
	}

	bearer, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch FCM access token: %w", err)
	}

	result := &BatchResult{}
	for _, msg := range messages {
		if err := g.send(ctx, bearer, msg); err != nil {
			g.logger.Warn().
				Err(err).
				Str("token_suffix", tokenSuffix(msg.Token)).
				Msg("push message failed")
			result.FailureCount++
			continue
		}
		result.SuccessCount++
	}

	g.logger.Debug().
		Int("success", result.SuccessCount).
		Int("failure", result.FailureCount).
		Msg("push batch sent")

	return result, nil
}

func (g *FCMGateway) send(ctx context.Context, bearer string, msg Message) error {
	var body fcmMessage
	body.Message.Token = msg.Token
	body.Message.Notification = map[string]string{
		"title": msg.Title,
		"body":  msg.Body,
	}
	body.Message.Data = msg.Data

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", g.baseURL, g.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("FCM returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// tokenSuffix returns the last few characters of a device token for logging
// without exposing the full token.
func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "..." + token[len(token)-6:]
}
