// Package twilio is a minimal REST client for the Twilio Voice API covering
// what the outbound agent needs: placing calls, ending them, and reading
// call logs. Callback URLs are derived from the configured webhook base so
// every asynchronous event carries the call's correlation id.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

// Call status values reported by the provider's status callbacks.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusAnswered   = "answered"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

type Config struct {
	AccountSID     string        `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken      string        `envconfig:"AUTH_TOKEN" split_words:"true" required:"true"`
	FromNumber     string        `envconfig:"FROM_NUMBER" split_words:"true" required:"true"`
	WebhookBaseURL string        `envconfig:"WEBHOOK_BASE_URL" split_words:"true" required:"true"`
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.twilio.com/2010-04-01"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Client struct {
	accountSID     string
	authToken      string
	fromNumber     string
	webhookBaseURL string
	baseURL        string
	httpClient     *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("twilio from number is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.WebhookBaseURL), "/")
	if base == "" {
		return nil, errors.New("webhook base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid webhook base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		accountSID:     strings.TrimSpace(cfg.AccountSID),
		authToken:      strings.TrimSpace(cfg.AuthToken),
		fromNumber:     strings.TrimSpace(cfg.FromNumber),
		webhookBaseURL: base,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Call is the provider's view of a call resource.
type Call struct {
	SID      string `json:"sid"`
	To       string `json:"to"`
	From     string `json:"from"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

type account struct {
	SID          string `json:"sid"`
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
}

// PlaceCall dials the lead. The voice webhook, status callback, and
// recording callback all carry correlationID so the dispatcher can route
// events back to the session.
func (c *Client) PlaceCall(ctx context.Context, phone, correlationID string) (Call, error) {
	form := url.Values{}
	form.Set("To", FormatPhone(phone))
	form.Set("From", c.fromNumber)
	form.Set("Url", fmt.Sprintf("%s/twilio/voice/%s", c.webhookBaseURL, url.PathEscape(correlationID)))
	form.Set("Method", http.MethodPost)
	form.Set("StatusCallback", fmt.Sprintf("%s/twilio/status?cid=%s", c.webhookBaseURL, url.QueryEscape(correlationID)))
	form.Set("StatusCallbackMethod", http.MethodPost)
	form.Add("StatusCallbackEvent", "initiated")
	form.Add("StatusCallbackEvent", "ringing")
	form.Add("StatusCallbackEvent", "answered")
	form.Add("StatusCallbackEvent", "completed")
	form.Set("Record", "true")
	form.Set("RecordingStatusCallback", fmt.Sprintf("%s/twilio/recording?cid=%s", c.webhookBaseURL, url.QueryEscape(correlationID)))
	form.Set("RecordingStatusCallbackMethod", http.MethodPost)

	var call Call
	if err := c.do(ctx, http.MethodPost, c.callsURL(""), form, &call); err != nil {
		return Call{}, err
	}
	return call, nil
}

// EndCall asks the provider to complete a live call.
func (c *Client) EndCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", StatusCompleted)
	return c.do(ctx, http.MethodPost, c.callsURL(callSID), form, nil)
}

// GetCall fetches the current state of a call resource.
func (c *Client) GetCall(ctx context.Context, callSID string) (Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodGet, c.callsURL(callSID), nil, &call); err != nil {
		return Call{}, err
	}
	return call, nil
}

// ListCalls returns the most recent calls on the account.
func (c *Client) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json?PageSize=%d", c.baseURL, c.accountSID, limit)

	var page struct {
		Calls []Call `json:"calls"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return page.Calls, nil
}

// TestConnection verifies the credentials by fetching the account resource.
func (c *Client) TestConnection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", c.baseURL, c.accountSID)

	var acct account
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &acct); err != nil {
		return err
	}
	if acct.SID == "" {
		return errors.New("twilio account lookup returned empty sid")
	}
	return nil
}

func (c *Client) callsURL(callSID string) string {
	if callSID == "" {
		return fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	}
	return fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, url.PathEscape(callSID))
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read twilio response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("twilio http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode twilio response: %w", err)
	}
	return nil
}

// FormatPhone normalizes a dialable number to E.164, defaulting bare 10-digit
// numbers to India and 0-prefixed 11-digit numbers to Pakistan.
func FormatPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	switch {
	case strings.HasPrefix(cleaned, "91") && len(cleaned) == 12:
		return "+" + cleaned
	case len(cleaned) == 10:
		return "+91" + cleaned
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 11:
		return "+92" + cleaned[1:]
	default:
		return "+" + cleaned
	}
}
