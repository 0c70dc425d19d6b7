// Package client talks to the attendance API on behalf of the scanner and
// participant command-line tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/presence"
	"qrattend/internal/scan"
)

// Client calls the attendance API with a bearer token.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a client with a short timeout.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response without a scan outcome.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// RequestToken asks the API to mint a token for the signed-in participant.
func (c *Client) RequestToken(ctx context.Context, activityID string) (presence.Issued, error) {
	var out struct {
		Payload   string    `json:"payload"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := "/v1/activities/" + url.PathEscape(activityID) + "/tokens"
	if _, err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return presence.Issued{}, err
	}
	return presence.Issued{Payload: out.Payload, ExpiresAt: out.ExpiresAt}, nil
}

// AttendanceRecorded reports whether the signed-in participant is recorded.
func (c *Client) AttendanceRecorded(ctx context.Context, activityID string) (bool, error) {
	var out struct {
		Recorded bool `json:"recorded"`
	}
	path := "/v1/activities/" + url.PathEscape(activityID) + "/attendance/me"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Recorded, nil
}

// Scan submits a scanned payload as the signed-in staff member. Rejections
// come back as the matching sentinel errors; transport failures are treated
// as a store outage so the operator may rescan.
func (c *Client) Scan(ctx context.Context, activityID, payload string) (attendance.Record, error) {
	body := map[string]string{"activity_id": activityID, "payload": payload}
	var res scan.Result
	status, err := c.do(ctx, http.MethodPost, "/v1/scans", body, &res)
	if err != nil && res.Outcome == "" {
		var apiErr *APIError
		if errors.As(err, &apiErr) && status != http.StatusTooManyRequests {
			return attendance.Record{}, err
		}
		return attendance.Record{}, fmt.Errorf("%w: %w", attendance.ErrStoreUnavailable, err)
	}
	if res.Outcome != scan.OutcomeRecorded {
		return attendance.Record{}, fmt.Errorf("%w: %s", scan.ErrorFor(res.Outcome), res.Message)
	}
	if res.Record == nil {
		return attendance.Record{}, errors.New("scan response without record")
	}
	return *res.Record, nil
}

// do sends a JSON request and decodes a JSON response into out. Error
// responses are decoded into out as well before an *APIError is returned.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if jerr := json.Unmarshal(raw, out); jerr != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decode response: %w", jerr)
		}
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return resp.StatusCode, nil
}
