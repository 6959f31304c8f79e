// Package donut provides a signed operator client for the donut service.
package donut

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/donut/internal/crypto"
	"github.com/eldtechnologies/donut/internal/handlers"
	"github.com/eldtechnologies/donut/internal/rounds"
)

// Client is a donut API client.
type Client struct {
	BaseURL    string
	PrivateKey ed25519.PrivateKey
	HTTPClient *http.Client
	now        func() time.Time
}

// NewClient creates a new client. A nil key sends unsigned requests.
func NewClient(baseURL string, key ed25519.PrivateKey) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PrivateKey: key,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		now:        time.Now,
	}
}

// NewClientFromEnv reads DONUT_URL and DONUT_OPERATOR_KEY.
func NewClientFromEnv() (*Client, error) {
	var key ed25519.PrivateKey
	if raw := os.Getenv("DONUT_OPERATOR_KEY"); raw != "" {
		var err error
		key, err = crypto.ParsePrivateKey(raw)
		if err != nil {
			return nil, err
		}
	}
	return NewClient(os.Getenv("DONUT_URL"), key), nil
}

// signRequest sets the operator headers for a request.
func (c *Client) signRequest(req *http.Request, body []byte) {
	nonce := ulid.Make().String()
	ts := c.now().UnixMilli()
	payload := crypto.SignaturePayload(req.Method, req.URL.Path, crypto.BodyHash(body), nonce, ts)

	req.Header.Set("X-Donut-Nonce", nonce)
	req.Header.Set("X-Donut-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Donut-Signature", crypto.Sign(c.PrivateKey, payload))
}

// APIError is returned for error responses that carry no outcome.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("donut error %d: %s", e.StatusCode, e.Message)
}

// do performs a request and decodes the JSON response into out. Outcome
// endpoints report failures in the body, so any response whose body has a
// status field is decoded regardless of the HTTP code.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.PrivateKey != nil {
		c.signRequest(req, body)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var probe struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	_ = json.Unmarshal(respBody, &probe)
	if resp.StatusCode >= 400 && probe.Status == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: probe.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// StartRound asks the service to create a round if one is due.
func (c *Client) StartRound(ctx context.Context) (*rounds.RoundOutcome, error) {
	var out rounds.RoundOutcome
	if err := c.do(ctx, http.MethodPost, "/rounds/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendReminders prompts pending matches of the latest round.
func (c *Client) SendReminders(ctx context.Context) (*rounds.ReminderOutcome, error) {
	var out rounds.ReminderOutcome
	if err := c.do(ctx, http.MethodPost, "/rounds/remind", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostSummary posts the latest round's results to the pairing channel.
func (c *Client) PostSummary(ctx context.Context) (*rounds.SummaryOutcome, error) {
	var out rounds.SummaryOutcome
	if err := c.do(ctx, http.MethodPost, "/rounds/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RoundSummary returns the latest round's results without posting.
func (c *Client) RoundSummary(ctx context.Context) (*rounds.SummaryOutcome, error) {
	var out rounds.SummaryOutcome
	if err := c.do(ctx, http.MethodGet, "/rounds/latest/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConfig returns the round settings.
func (c *Client) GetConfig(ctx context.Context) (*handlers.ConfigResponse, error) {
	var out handlers.ConfigResponse
	if err := c.do(ctx, http.MethodGet, "/admin/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetChannel sets the pairing channel.
func (c *Client) SetChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodPut, "/admin/config/channel", handlers.UpdateChannelRequest{ChannelID: channelID}, nil)
}

// SetInterval sets the pairing interval in days.
func (c *Client) SetInterval(ctx context.Context, days int) error {
	return c.do(ctx, http.MethodPut, "/admin/config/interval", handlers.UpdateIntervalRequest{Days: days}, nil)
}

// Avoid forbids two users from being grouped.
func (c *Client) Avoid(ctx context.Context, userID, avoidUserID string) error {
	return c.do(ctx, http.MethodPost, "/admin/avoid", handlers.AvoidRequest{UserID: userID, AvoidUserID: avoidUserID}, nil)
}

// Health returns the service health report.
func (c *Client) Health(ctx context.Context) (*handlers.HealthResponse, error) {
	var out handlers.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
