// Package zoho is a REST client for the Zoho CRM v3 Leads module. It covers
// lead search, fetch, field updates, and note appending, the surface the
// qualification engine writes results through.
package zoho

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
)

const maxResponseSizeBytes = 2 << 20

var ErrLeadNotFound = errors.New("zoho lead not found")

type Config struct {
	ClientID     string        `envconfig:"CLIENT_ID" split_words:"true" required:"true"`
	ClientSecret string        `envconfig:"CLIENT_SECRET" split_words:"true" required:"true"`
	RefreshToken string        `envconfig:"REFRESH_TOKEN" split_words:"true" required:"true"`
	APIBaseURL   string        `envconfig:"API_BASE_URL" split_words:"true" default:"https://www.zohoapis.com/crm/v3"`
	AccountsURL  string        `envconfig:"ACCOUNTS_URL" split_words:"true" default:"https://accounts.zoho.com"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Client struct {
	baseURL    string
	auth       *auth
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("zoho client id and secret are required")
	}
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, errors.New("zoho refresh token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		auth: &auth{
			accountsURL:  cfg.AccountsURL,
			clientID:     strings.TrimSpace(cfg.ClientID),
			clientSecret: strings.TrimSpace(cfg.ClientSecret),
			refreshToken: strings.TrimSpace(cfg.RefreshToken),
			httpClient:   httpClient,
		},
		httpClient: httpClient,
	}, nil
}

func MustNew(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Record is the raw CRM lead payload.
type Record struct {
	ID          string `json:"id"`
	FirstName   string `json:"First_Name"`
	LastName    string `json:"Last_Name"`
	Phone       string `json:"Phone"`
	Company     string `json:"Company"`
	LeadStatus  string `json:"Lead_Status"`
	Description string `json:"Description"`
}

func (r Record) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// SearchLeads returns up to limit leads with the given Lead_Status.
func (c *Client) SearchLeads(ctx context.Context, status string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("fields", "id,First_Name,Last_Name,Phone,Company,Lead_Status,Description")
	params.Set("per_page", fmt.Sprint(limit))
	if status != "" {
		params.Set("criteria", fmt.Sprintf("(Lead_Status:equals:%s)", status))
	}

	endpoint := fmt.Sprintf("%s/Leads/search?%s", c.baseURL, params.Encode())
	var page struct {
		Data []Record `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// GetLead fetches one lead by id. Returns ErrLeadNotFound for unknown ids.
func (c *Client) GetLead(ctx context.Context, leadID string) (Record, error) {
	endpoint := fmt.Sprintf("%s/Leads/%s", c.baseURL, url.PathEscape(leadID))

	var page struct {
		Data []Record `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return Record{}, err
	}
	if len(page.Data) == 0 {
		return Record{}, fmt.Errorf("%w: id=%s", ErrLeadNotFound, leadID)
	}
	return page.Data[0], nil
}

// CreateLead inserts a new lead record and returns its CRM id.
func (c *Client) CreateLead(ctx context.Context, fields map[string]any) (string, error) {
	endpoint := c.baseURL + "/Leads"
	payload := map[string]any{"data": []map[string]any{fields}}

	var result struct {
		Data []struct {
			Status  string `json:"status"`
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				ID string `json:"id"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return "", err
	}
	if len(result.Data) == 0 {
		return "", errors.New("zoho create returned no result")
	}
	item := result.Data[0]
	if item.Status != "success" {
		return "", fmt.Errorf("zoho create rejected: code=%s message=%s", item.Code, item.Message)
	}
	return item.Details.ID, nil
}

// UpdateLead writes arbitrary fields onto a lead record.
func (c *Client) UpdateLead(ctx context.Context, leadID string, fields map[string]any) error {
	endpoint := fmt.Sprintf("%s/Leads/%s", c.baseURL, url.PathEscape(leadID))
	payload := map[string]any{"data": []map[string]any{fields}}

	var result struct {
		Data []struct {
			Status  string `json:"status"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPut, endpoint, payload, &result); err != nil {
		return err
	}
	for _, item := range result.Data {
		if item.Status != "success" {
			if item.Code == "INVALID_DATA" || item.Code == "RESOURCE_NOT_FOUND" {
				return fmt.Errorf("%w: id=%s", ErrLeadNotFound, leadID)
			}
			return fmt.Errorf("zoho update rejected: code=%s message=%s", item.Code, item.Message)
		}
	}
	return nil
}

// AppendDescription appends a timestamped note onto the lead's Description
// field, the way call notes accumulate in the CRM timeline.
func (c *Client) AppendDescription(ctx context.Context, leadID, note string) error {
	lead, err := c.GetLead(ctx, leadID)
	if err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	desc := strings.TrimSpace(lead.Description)
	if desc != "" {
		desc += "\n\n"
	}
	desc += fmt.Sprintf("[%s] %s", stamp, note)

	return c.UpdateLead(ctx, leadID, map[string]any{"Description": desc})
}

// TestConnection verifies credentials with a one-lead search.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.SearchLeads(ctx, "", 1)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	token, err := c.auth.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("zoho auth: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal zoho payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build zoho request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute zoho request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read zoho response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrLeadNotFound, endpoint)
	}
	// 204 means an empty result set, not an error.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("zoho http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode zoho response: %w", err)
	}
	return nil
}
