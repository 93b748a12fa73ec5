package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/signature"
)

const maxResponseBytes = 64 << 10

// Client posts verified events to the downstream target. The original body
// bytes are forwarded untouched and re-signed with the target's own secret.
type Client struct {
	httpClient *http.Client
	targetURL  string
	secret     string
}

type Response struct {
	StatusCode int
	Body       string
}

func New(targetURL, secret string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		targetURL: targetURL,
		secret:    secret,
	}
}

func (c *Client) Forward(ctx context.Context, ev event.Event) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.targetURL, bytes.NewReader(ev.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", ev.EventType)
	req.Header.Set("X-Webhook-Delivery", ev.ID)
	req.Header.Set("X-Hub-Signature-256", signature.Sign(ev.Body, c.secret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}
