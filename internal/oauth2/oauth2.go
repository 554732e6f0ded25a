// Package oauth2 drives the Authorization Code + PKCE flow the façade
// needs to onboard a Gmail or Outlook account: it builds the
// provider-specific oauth2.Config (mirroring gmailapi's and graphapi's
// own oauthConfig helpers), generates the PKCE verifier/challenge and
// state, and exchanges the authorization code for tokens. Driving a
// browser to the authorization URL and listening for the redirect is an
// external collaborator's job, not this package's.
package oauth2

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/intentmail/intentmail/internal/apperrors"
)

// Token is the provider-agnostic result of a completed exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Flow is a single provider's OAuth2 application registration, capable
// of starting and completing PKCE authorization attempts.
type Flow struct {
	cfg *oauth2.Config
}

// NewGmailFlow builds the flow for a Google OAuth application, scoped to
// full Gmail access (matching gmailapi's adapter scope).
func NewGmailFlow(clientID, clientSecret, redirectURI string) *Flow {
	return &Flow{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://mail.google.com/"},
	}}
}

// NewOutlookFlow builds the flow for an Azure AD application registered
// against tenantID ("common" if empty), scoped to read/write mail and
// send (matching graphapi's adapter scope).
func NewOutlookFlow(clientID, clientSecret, redirectURI, tenantID string) *Flow {
	if tenantID == "" {
		tenantID = "common"
	}
	return &Flow{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     microsoft.AzureADEndpoint(tenantID),
		Scopes: []string{
			"https://graph.microsoft.com/Mail.ReadWrite",
			"https://graph.microsoft.com/Mail.Send",
			"offline_access",
		},
	}}
}

// Attempt is the state one in-flight authorization carries between
// StartAuth and CompleteAuth: the verifier must never leave the
// process, and state guards against a callback for a stale or forged
// attempt.
type Attempt struct {
	State    string
	Verifier string
}

// NewAttempt generates a fresh PKCE verifier and a random state token.
func NewAttempt() Attempt {
	return Attempt{State: uuid.NewString(), Verifier: oauth2.GenerateVerifier()}
}

// AuthCodeURL returns the URL the user's browser should be sent to.
// AccessTypeOffline and ApprovalForce ensure Google always returns a
// refresh token even on a re-consent; Azure AD ignores both and relies
// on the offline_access scope instead.
func (f *Flow) AuthCodeURL(a Attempt) string {
	return f.cfg.AuthCodeURL(a.State,
		oauth2.S256ChallengeOption(a.Verifier),
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)
}

// Exchange trades the authorization code for tokens, verifying the PKCE
// code verifier server-side. callbackState must match a's State before
// Exchange is called; that check is the caller's since only the caller
// knows which Attempt the callback claims to answer.
func (f *Flow) Exchange(ctx context.Context, a Attempt, code string) (*Token, error) {
	tok, err := f.cfg.Exchange(ctx, code, oauth2.VerifierOption(a.Verifier))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthFailed, "oauth2: code exchange failed", err)
	}
	if tok.RefreshToken == "" {
		return nil, apperrors.New(apperrors.KindAuthFailed, "oauth2: provider did not return a refresh token")
	}
	return &Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
}

// VerifyState reports whether callbackState matches the attempt that
// produced the authorization URL the callback is answering.
func VerifyState(a Attempt, callbackState string) error {
	if a.State == "" || callbackState != a.State {
		return apperrors.New(apperrors.KindAuthFailed, "oauth2: state mismatch")
	}
	return nil
}
