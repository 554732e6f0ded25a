// Package gmailapi adapts the Gmail REST v1 API to the provider
// interface, for accounts authenticated through Google OAuth2.
package gmailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/rs/zerolog"
)

const apiBase = "https://gmail.googleapis.com/gmail/v1/users/me"

// oauthClientID/oauthClientSecret are set once at daemon startup via
// Configure, since provider.Constructor takes no arguments and every
// account shares the same registered OAuth application.
var (
	oauthClientID     string
	oauthClientSecret string
)

// Configure sets the OAuth2 application credentials used to refresh
// every Gmail account's access token. Must be called before any Gmail
// account is synced.
func Configure(clientID, clientSecret string) {
	oauthClientID = clientID
	oauthClientSecret = clientSecret
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://mail.google.com/"},
	}
}

// client wraps an authenticated http.Client for one call, refreshing the
// access token up front when it is within provider.RefreshWindow of
// expiry and reporting back
// whatever new token resulted so the caller can persist it.
type client struct {
	http      *http.Client
	log       zerolog.Logger
	refreshed *provider.RefreshedTokens
}

func newClient(ctx context.Context, creds provider.Credentials) (*client, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.TokenExpiry,
		TokenType:    "Bearer",
	}
	if provider.NeedsRefresh(creds) {
		// Present the token as already expired so the source refreshes it now.
		token.Expiry = creds.TokenExpiry.Add(-provider.RefreshWindow)
	}

	cfg := oauthConfig()
	source := cfg.TokenSource(ctx, token)
	refreshedToken, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("gmailapi: refresh token: %w", err)
	}

	c := &client{
		http: oauth2.NewClient(ctx, oauth2.StaticTokenSource(refreshedToken)),
		log:  logging.WithComponent("provider.gmail"),
	}
	if refreshedToken.AccessToken != creds.AccessToken {
		c.refreshed = &provider.RefreshedTokens{
			AccessToken:  refreshedToken.AccessToken,
			RefreshToken: refreshedToken.RefreshToken,
			TokenExpiry:  refreshedToken.Expiry,
		}
	}
	return c, nil
}

func (c *client) get(path string, out interface{}) error {
	resp, err := c.http.Get(apiBase + path)
	if err != nil {
		return fmt.Errorf("gmailapi: request: %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *client) post(path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gmailapi: encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequest(http.MethodPost, apiBase+path, payload)
	if err != nil {
		return fmt.Errorf("gmailapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gmailapi: request: %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("gmailapi: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gmailapi: request: %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, nil)
}

func decodeOrError(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return apiError{status: resp.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	status int
	body   string
}

func (e apiError) Error() string {
	return fmt.Sprintf("gmail api error (%d): %s", e.status, e.body)
}

func (e apiError) RateLimited() bool {
	if e.status == http.StatusTooManyRequests {
		return true
	}
	return e.status == http.StatusForbidden && containsQuotaHint(e.body)
}

func containsQuotaHint(body string) bool {
	return strings.Contains(body, "rateLimitExceeded") ||
		strings.Contains(body, "quotaExceeded") ||
		strings.Contains(body, "userRateLimitExceeded")
}
