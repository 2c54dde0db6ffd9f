// Package client talks to the gamification service on behalf of the action
// surfaces (quiz, module, portfolio screens).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finquest-gamification/models"
	"finquest-gamification/sequencer"
	"finquest-gamification/services"

	"go.uber.org/zap"
)

// EventResponse is the body of POST /user/gamification/event.
type EventResponse struct {
	Result *models.GamificationResult `json:"result"`
	Plan   []sequencer.Step           `json:"plan"`
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ProcessEvent sends ev for userID. Engine failures come back as the
// services error taxonomy.
func (c *Client) ProcessEvent(ctx context.Context, userID string, ev models.GamificationEvent) (*EventResponse, error) {
	var out EventResponse
	if err := c.do(ctx, http.MethodPost, "/user/gamification/event", userID, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot fetches the authoritative state for userID.
func (c *Client) Snapshot(ctx context.Context, userID string) (*models.StateSnapshot, error) {
	var out models.StateSnapshot
	if err := c.do(ctx, http.MethodGet, "/user/gamification/me", userID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches one page of activity.
func (c *Client) History(ctx context.Context, userID string, page, size int) (*services.HistoryPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("size", fmt.Sprint(size))

	var out services.HistoryPage
	if err := c.do(ctx, http.MethodGet, "/user/gamification/history?"+q.Encode(), userID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Emit reports ev after the primary action already succeeded. Failures are
// logged and yield a nil result, which the sequencer treats as nothing to show.
func (c *Client) Emit(ctx context.Context, userID string, ev models.GamificationEvent) *models.GamificationResult {
	resp, err := c.ProcessEvent(ctx, userID, ev)
	if err != nil {
		zap.L().Warn("gamification event failed",
			zap.String("user_id", userID),
			zap.String("event_type", string(ev.Type)),
			zap.Bool("retryable", services.Retryable(err)),
			zap.Error(err))
		return nil
	}
	return resp.Result
}

func (c *Client) do(ctx context.Context, method, path, userID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", services.ErrInvalidEvent, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("X-User-ID", userID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return statusError(resp.StatusCode, eb)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", services.ErrUnavailable, err)
	}
	return nil
}

func statusError(status int, eb errorBody) error {
	cause := eb.Cause
	if cause == "" {
		cause = eb.Error
	}
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", services.ErrInvalidEvent, cause)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", services.ErrNotFound, cause)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", services.ErrConflict, cause)
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", services.ErrUnavailable, cause)
	}
	return fmt.Errorf("gamification service returned %d: %s", status, cause)
}
