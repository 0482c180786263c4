// Package facebook is a Graph API client for Lead Ads: webhook
// verification, leadgen fetch with field mapping, and a credentials check.
package facebook

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

type Config struct {
	AccessToken  string        `envconfig:"ACCESS_TOKEN" split_words:"true" required:"true"`
	PageID       string        `envconfig:"PAGE_ID" split_words:"true" required:"true"`
	VerifyToken  string        `envconfig:"VERIFY_TOKEN" split_words:"true" default:"ai_sales_agent_verify"`
	GraphBaseURL string        `envconfig:"GRAPH_BASE_URL" split_words:"true" default:"https://graph.facebook.com/v18.0"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Client struct {
	accessToken string
	pageID      string
	verifyToken string
	baseURL     string
	httpClient  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" || strings.TrimSpace(cfg.PageID) == "" {
		return nil, errors.New("facebook access token and page id are required")
	}
	verifyToken := strings.TrimSpace(cfg.VerifyToken)
	if verifyToken == "" {
		verifyToken = "ai_sales_agent_verify"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		pageID:      strings.TrimSpace(cfg.PageID),
		verifyToken: verifyToken,
		baseURL:     strings.TrimRight(cfg.GraphBaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// VerifyToken checks the hub.verify_token of a webhook subscription
// handshake against the configured token.
func (c *Client) VerifyToken(token string) bool {
	return token != "" && token == c.verifyToken
}

// Lead is one submitted Lead Ads form, flattened from the Graph API's
// field_data list.
type Lead struct {
	LeadgenID   string
	CreatedTime string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	Company     string
	City        string
	State       string
	Interest    string
}

func (l Lead) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(l.FirstName) + " " + strings.TrimSpace(l.LastName))
}

type leadPayload struct {
	ID          string `json:"id"`
	CreatedTime string `json:"created_time"`
	FieldData   []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"field_data"`
}

// FetchLead pulls one leadgen submission by id.
func (c *Client) FetchLead(ctx context.Context, leadgenID string) (Lead, error) {
	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("fields", "id,created_time,field_data")
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(leadgenID), params.Encode())

	var payload leadPayload
	if err := c.do(ctx, endpoint, &payload); err != nil {
		return Lead{}, err
	}
	return parseLead(payload), nil
}

// parseLead maps the form's field names onto the lead shape. Forms use
// loose naming, so common aliases are folded together; unmapped fields
// are dropped.
func parseLead(payload leadPayload) Lead {
	lead := Lead{LeadgenID: payload.ID, CreatedTime: payload.CreatedTime}
	for _, field := range payload.FieldData {
		if len(field.Values) == 0 {
			continue
		}
		value := strings.TrimSpace(field.Values[0])
		switch strings.ToLower(field.Name) {
		case "full_name", "name":
			first, last, _ := strings.Cut(value, " ")
			lead.FirstName = first
			lead.LastName = strings.TrimSpace(last)
		case "first_name":
			lead.FirstName = value
		case "last_name":
			lead.LastName = value
		case "phone_number", "phone":
			lead.Phone = value
		case "email":
			lead.Email = value
		case "company", "company_name":
			lead.Company = value
		case "city":
			lead.City = value
		case "state":
			lead.State = value
		case "interest", "product_interest":
			lead.Interest = value
		}
	}
	return lead
}

// TestConnection verifies the access token against the page resource.
func (c *Client) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("fields", "id,name")
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(c.pageID), params.Encode())

	var page struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, endpoint, &page); err != nil {
		return err
	}
	if page.ID == "" {
		return errors.New("facebook page lookup returned empty id")
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build facebook request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute facebook request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read facebook response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("facebook http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode facebook response: %w", err)
	}
	return nil
}
