// Package graphapi adapts the Microsoft Graph v1.0 API to the provider
// interface, for accounts authenticated through Azure AD (Outlook/Office
// 365) OAuth2.
package graphapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/rs/zerolog"
)

const apiBase = "https://graph.microsoft.com/v1.0/me"

// oauthClientID/oauthClientSecret/oauthTenantID are set once at daemon
// startup via Configure, mirroring gmailapi's Configure — every Outlook
// account shares the same registered Azure AD application.
var (
	oauthClientID     string
	oauthClientSecret string
	oauthTenantID     string
)

// Configure sets the OAuth2 application credentials used to refresh every
// Outlook account's access token. tenantID may be "common" for a
// multi-tenant app registration. Must be called before any Outlook
// account is synced.
func Configure(clientID, clientSecret, tenantID string) {
	oauthClientID = clientID
	oauthClientSecret = clientSecret
	if tenantID == "" {
		tenantID = "common"
	}
	oauthTenantID = tenantID
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(oauthTenantID),
		Scopes:       []string{"https://graph.microsoft.com/Mail.ReadWrite", "https://graph.microsoft.com/Mail.Send", "offline_access"},
	}
}

// client wraps an authenticated http.Client for one call, refreshing the
// access token up front and reporting back whatever new token resulted.
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
		return nil, fmt.Errorf("graphapi: refresh token: %w", err)
	}

	c := &client{
		http: oauth2.NewClient(ctx, oauth2.StaticTokenSource(refreshedToken)),
		log:  logging.WithComponent("provider.graph"),
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

func (c *client) get(url string, out interface{}) error {
	if !strings.HasPrefix(url, "http") {
		url = apiBase + url
	}
	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("graphapi: request: %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("graphapi: encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, apiBase+path, payload)
	if err != nil {
		return fmt.Errorf("graphapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphapi: request: %w", err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *client) post(path string, body interface{}, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *client) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

func decodeOrError(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return apiError{status: resp.StatusCode, body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	status int
	body   string
}

func (e apiError) Error() string {
	return fmt.Sprintf("graph api error (%d): %s", e.status, e.body)
}

func (e apiError) RateLimited() bool {
	return e.status == http.StatusTooManyRequests
}
