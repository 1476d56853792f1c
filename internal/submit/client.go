package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeServerRejected Outcome = "server_rejected"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeTimeout        Outcome = "timeout"
)

// Result is the classified outcome of one submission.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Message    string
}

// Payload is the presence record posted to the backend.
type Payload struct {
	Identity  string  `json:"identity"`
	Kind      string  `json:"kind"`
	Selfie    string  `json:"selfie"` // base64 JPEG
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"` // RFC 3339
}

// Client posts presence records under a hard deadline. The deadline drives a
// cancellable request context, so an overdue request is cancelled at the
// transport rather than abandoned mid-flight.
type Client struct {
	BaseURL    string
	LoginPath  string
	LogoutPath string
	Token      string // optional bearer token attached to every request
	Deadline   time.Duration
	HTTP       *http.Client
}

// New creates a client with the default track endpoints.
func New(baseURL string, deadline time.Duration) *Client {
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		LoginPath:  "/api/staff/app/loginTrack",
		LogoutPath: "/api/staff/app/logoutTrack",
		Deadline:   deadline,
		// no client-level timeout: the per-request context is the deadline
		HTTP: &http.Client{},
	}
}

// Submit posts the payload and classifies the response. If the deadline fires
// first the result is Timeout regardless of how the request would have ended.
func (c *Client) Submit(ctx context.Context, p Payload) Result {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	path := c.LoginPath
	if p.Kind == "LOGOUT" {
		path = c.LogoutPath
	}

	body, err := json.Marshal(p)
	if err != nil {
		return Result{Outcome: OutcomeTransportError, Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransportError, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Outcome: OutcomeTimeout, Message: "submission deadline exceeded"}
		}
		return Result{Outcome: OutcomeTransportError, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Outcome: OutcomeTimeout, Message: "submission deadline exceeded"}
		}
		return Result{Outcome: OutcomeTransportError, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Outcome:    OutcomeServerRejected,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(raw, resp.Status),
		}
	}

	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || (out.Status == "" && out.Message == "") {
		return Result{Outcome: OutcomeProtocolError, StatusCode: resp.StatusCode, Message: "malformed response body"}
	}

	msg := out.Message
	if msg == "" {
		msg = out.Status
	}
	return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode, Message: msg}
}

// rejectionMessage pulls a message out of a JSON error body, falling back to
// the raw text; some deployments return HTML error pages.
func rejectionMessage(raw []byte, status string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if len(raw) > 0 {
		return string(raw)
	}
	return status
}
