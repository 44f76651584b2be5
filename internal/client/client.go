// Package client is the HTTP client for the signaling relay's submit and
// poll operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mindhaven/signaling/internal/errs"
	"github.com/mindhaven/signaling/internal/models"
)

// Client talks to one signaling server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit posts a signaling message and returns the stored message with
// its server-assigned timestamp.
func (c *Client) Submit(ctx context.Context, req models.SubmitRequest) (models.SignalMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.SignalMessage{}, fmt.Errorf("encoding submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/signaling", bytes.NewReader(body))
	if err != nil {
		return models.SignalMessage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.SignalMessage{}, fmt.Errorf("submitting %s message: %w", req.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SignalMessage{}, statusError(resp.StatusCode)
	}

	var out models.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.SignalMessage{}, fmt.Errorf("decoding submit response: %w", err)
	}
	return out.Message, nil
}

// Poll fetches messages for requesterID newer than the since watermark.
func (c *Client) Poll(ctx context.Context, sessionID, requesterID string, since int64) ([]models.SignalMessage, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("requesterId", requesterID)
	q.Set("since", strconv.FormatInt(since, 10))

	var out models.PollResponse
	if err := c.get(ctx, q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// CheckSession looks up session metadata without touching the message
// store. Returns errs.ErrSessionNotFound for unknown sessions.
func (c *Client) CheckSession(ctx context.Context, sessionID string) (models.SessionRecord, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("checkSessionOnly", "true")

	var out models.SessionCheckResponse
	if err := c.get(ctx, q, &out); err != nil {
		return models.SessionRecord{}, err
	}
	if !out.Exists || out.Session == nil {
		return models.SessionRecord{}, errs.ErrSessionNotFound
	}
	return *out.Session, nil
}

func (c *Client) get(ctx context.Context, q url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/signaling?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("polling signaling server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding poll response: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusNotFound:
		return errs.ErrSessionNotFound
	case http.StatusBadRequest:
		return errs.ErrMissingField
	default:
		return fmt.Errorf("signaling server returned status %d", code)
	}
}
