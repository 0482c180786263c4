package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenExpirySlack refreshes tokens slightly early so in-flight requests
// never carry one that expires mid-request.
const tokenExpirySlack = 2 * time.Minute

type auth struct {
	accountsURL  string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a valid OAuth access token, refreshing via the
// long-lived refresh token when the cached one is stale.
func (a *auth) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiresAt.Add(-tokenExpirySlack)) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	form.Set("refresh_token", a.refreshToken)

	endpoint := fmt.Sprintf("%s/oauth/v2/token", strings.TrimRight(a.accountsURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("token refresh rejected: %s", parsed.Error)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("token refresh returned empty access token")
	}

	a.token = parsed.AccessToken
	ttl := parsed.ExpiresIn
	if ttl <= 0 {
		ttl = 3600
	}
	a.expiresAt = time.Now().Add(time.Duration(ttl) * time.Second)
	return a.token, nil
}
