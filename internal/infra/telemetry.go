package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/trackzen/trackd/internal/domain"
)

// DefaultRequestTimeout bounds every collector call so a hung request cannot
// starve the sync scheduler's exclusivity guard.
const DefaultRequestTimeout = 30 * time.Second

// CollectorClient implements domain.TelemetryClient against the TrackZen
// collector HTTP API. Requests carry a bearer token; non-2xx responses and
// transport errors are returned to the caller, which treats them as
// retriable.
type CollectorClient struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewCollectorClient creates a client for the collector at baseURL.
// A zero timeout falls back to DefaultRequestTimeout.
func NewCollectorClient(baseURL, token string, timeout time.Duration) *CollectorClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &CollectorClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type sessionPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Duration  int    `json:"duration"`
	TotalTabs int    `json:"totalTabs"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type activityPayload struct {
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Title     string `json:"title"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Duration  int    `json:"duration"`
	SessionID string `json:"sessionId"`
}

func sessionPayloadFrom(up domain.SessionUpsert) sessionPayload {
	p := sessionPayload{
		StartTime: up.StartTime.UTC().Format(time.RFC3339),
		Duration:  up.Duration,
		TotalTabs: up.TotalTabs,
	}
	if up.EndTime != nil {
		p.EndTime = up.EndTime.UTC().Format(time.RFC3339)
	}
	return p
}

// CreateSession registers a session and returns the collector-assigned id.
func (c *CollectorClient) CreateSession(ctx context.Context, up domain.SessionUpsert) (string, error) {
	var resp createSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/session", sessionPayloadFrom(up), &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("collector returned empty session id")
	}
	return resp.SessionID, nil
}

// UpdateSession updates an already-registered session.
func (c *CollectorClient) UpdateSession(ctx context.Context, sessionID string, up domain.SessionUpsert) error {
	payload := sessionPayloadFrom(up)
	payload.SessionID = sessionID
	return c.doJSON(ctx, http.MethodPut, "/session", payload, nil)
}

// CreateActivity reports one closed activity under a session.
func (c *CollectorClient) CreateActivity(ctx context.Context, activity domain.Activity, sessionID string) error {
	payload := activityPayload{
		URL:       activity.URL,
		Domain:    activity.Domain,
		Title:     activity.Title,
		StartTime: activity.StartTime.UTC().Format(time.RFC3339),
		EndTime:   activity.EndTime.UTC().Format(time.RFC3339),
		Duration:  activity.Duration,
		SessionID: sessionID,
	}
	return c.doJSON(ctx, http.MethodPost, "/activities", payload, nil)
}

// doJSON sends one JSON request and decodes the response into out when
// non-nil. Any non-2xx status is an error.
func (c *CollectorClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("collector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// Ensure CollectorClient implements domain.TelemetryClient.
var _ domain.TelemetryClient = (*CollectorClient)(nil)
