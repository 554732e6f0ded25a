package facade

import (
	"context"
	"fmt"

	"github.com/intentmail/intentmail/internal/apperrors"
	oauth2flow "github.com/intentmail/intentmail/internal/oauth2"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/provider/imapsmtp"
	"github.com/intentmail/intentmail/internal/store"
)

// ListAccountsResponse is listAccounts' output.
type ListAccountsResponse struct {
	Result
	Accounts []AccountView `json:"accounts,omitempty"`
}

// ListAccounts returns every configured account.
func (f *Facade) ListAccounts() ListAccountsResponse {
	accounts, err := f.accounts.List()
	if err != nil {
		return ListAccountsResponse{Result: fail(err)}
	}
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView(a))
	}
	return ListAccountsResponse{Result: ok(""), Accounts: views}
}

// StartOAuthRequest requests an authorization URL for provider
// ("gmail" or "outlook").
type StartOAuthRequest struct {
	Provider string `json:"provider"`
}

// StartOAuthResponse carries the URL the user's browser must visit and
// the opaque state identifying this attempt, so the caller can match it
// up with the eventual completeOAuth call.
type StartOAuthResponse struct {
	Result
	AuthURL string `json:"authUrl,omitempty"`
	State   string `json:"state,omitempty"`
}

// StartOAuth begins a PKCE authorization attempt for the given provider.
func (f *Facade) StartOAuth(req StartOAuthRequest) StartOAuthResponse {
	var flow *oauth2flow.Flow
	switch req.Provider {
	case "gmail":
		flow = f.gmailFlow
	case "outlook":
		flow = f.outlookFlow
	default:
		return StartOAuthResponse{Result: failMsg(fmt.Sprintf("facade: unknown oauth provider %q", req.Provider))}
	}
	if flow == nil {
		return StartOAuthResponse{Result: failMsg(fmt.Sprintf("facade: %s oauth is not configured", req.Provider))}
	}

	attempt := oauth2flow.NewAttempt()
	f.pendingMu.Lock()
	f.pending[attempt.State] = pendingOAuth{provider: req.Provider, attempt: attempt}
	f.pendingMu.Unlock()

	return StartOAuthResponse{Result: ok(""), AuthURL: flow.AuthCodeURL(attempt), State: attempt.State}
}

// CompleteOAuthRequest carries the authorization code and state returned
// by the provider's redirect callback. Driving the browser and catching
// that redirect is an external collaborator's job, not the façade's.
type CompleteOAuthRequest struct {
	State string `json:"state"`
	Code  string `json:"code"`
}

// CompleteOAuthResponse reports the newly created account.
type CompleteOAuthResponse struct {
	Result
	Account AccountView `json:"account,omitempty"`
}

// CompleteOAuth exchanges the callback's code for tokens, fetches the
// account's profile to learn its address, and persists a new account
// row. A second completeOAuth for the same state fails: the attempt is
// consumed on first use.
func (f *Facade) CompleteOAuth(ctx context.Context, req CompleteOAuthRequest) CompleteOAuthResponse {
	f.pendingMu.Lock()
	p, found := f.pending[req.State]
	if found {
		delete(f.pending, req.State)
	}
	f.pendingMu.Unlock()
	if !found {
		return CompleteOAuthResponse{Result: fail(apperrors.New(apperrors.KindAuthFailed, "facade: unknown or expired oauth attempt"))}
	}

	var flow *oauth2flow.Flow
	var providerTag string
	switch p.provider {
	case "gmail":
		flow, providerTag = f.gmailFlow, "gmail"
	case "outlook":
		flow, providerTag = f.outlookFlow, "outlook"
	}
	if flow == nil {
		return CompleteOAuthResponse{Result: failMsg(fmt.Sprintf("facade: %s oauth is not configured", p.provider))}
	}

	token, err := flow.Exchange(ctx, p.attempt, req.Code)
	if err != nil {
		return CompleteOAuthResponse{Result: fail(err)}
	}

	adapter, ok := provider.New(providerTag)
	if !ok {
		return CompleteOAuthResponse{Result: failMsg(fmt.Sprintf("facade: no provider registered for %q", providerTag))}
	}
	profile, _, err := adapter.UserProfile(ctx, provider.Credentials{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, TokenExpiry: token.Expiry})
	if err != nil {
		return CompleteOAuthResponse{Result: fail(err)}
	}

	account, err := f.accounts.Create(&store.Account{
		Provider:     providerTag,
		Email:        profile.Email,
		DisplayName:  profile.DisplayName,
		AuthType:     "oauth",
		IsActive:     true,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  &token.Expiry,
	})
	if err != nil {
		return CompleteOAuthResponse{Result: fail(err)}
	}

	return CompleteOAuthResponse{Result: ok(""), Account: accountView(account)}
}

// ImapAuthRequest carries the credentials for a generic IMAP/SMTP
// account. Host/port fields are optional: when empty they're filled in
// from imapsmtp.DetectSettings by the email's domain.
type ImapAuthRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	IMAPHost    string `json:"imapHost"`
	IMAPPort    int    `json:"imapPort"`
	SMTPHost    string `json:"smtpHost"`
	SMTPPort    int    `json:"smtpPort"`
}

// ImapAuthResponse reports whether the test connection succeeded and the
// newly created account.
type ImapAuthResponse struct {
	Result
	Account       AccountView `json:"account,omitempty"`
	ImapConnected bool        `json:"imapConnected"`
}

// ImapAuth validates the given IMAP/SMTP credentials with a live login
// before persisting anything, then stores the account and its password
// in the credential vault.
func (f *Facade) ImapAuth(ctx context.Context, req ImapAuthRequest) ImapAuthResponse {
	if req.Email == "" || req.Password == "" {
		return ImapAuthResponse{Result: failMsg("facade: email and password are required")}
	}

	host, port, smtpHost, smtpPort := req.IMAPHost, req.IMAPPort, req.SMTPHost, req.SMTPPort
	if host == "" || smtpHost == "" {
		if detected, found := imapsmtp.DetectSettings(req.Email); found {
			if host == "" {
				host, port = detected.IMAPHost, detected.IMAPPort
			}
			if smtpHost == "" {
				smtpHost, smtpPort = detected.SMTPHost, detected.SMTPPort
			}
		}
	}
	if host == "" || smtpHost == "" {
		return ImapAuthResponse{Result: failMsg("facade: could not determine IMAP/SMTP settings for this address; supply them explicitly")}
	}

	adapter, ok := provider.New("imap")
	if !ok {
		return ImapAuthResponse{Result: failMsg("facade: imap provider not registered")}
	}

	creds := provider.Credentials{
		Username:     req.Email,
		IMAPPassword: req.Password,
		IMAPHost:     host,
		IMAPPort:     port,
		SMTPHost:     smtpHost,
		SMTPPort:     smtpPort,
	}
	if _, _, err := adapter.UserProfile(ctx, creds); err != nil {
		return ImapAuthResponse{Result: fail(err), ImapConnected: false}
	}

	account, err := f.accounts.Create(&store.Account{
		Provider:    "imap",
		Email:       req.Email,
		DisplayName: req.DisplayName,
		AuthType:    "imap",
		IsActive:    true,
		IMAPHost:    host,
		IMAPPort:    port,
		SMTPHost:    smtpHost,
		SMTPPort:    smtpPort,
	})
	if err != nil {
		return ImapAuthResponse{Result: fail(err)}
	}
	if err := f.creds.SetIMAPPassword(account.ID, req.Password); err != nil {
		return ImapAuthResponse{Result: fail(err), ImapConnected: true}
	}

	return ImapAuthResponse{Result: ok(""), Account: accountView(account), ImapConnected: true}
}
