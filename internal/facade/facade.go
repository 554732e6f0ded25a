// Package facade exposes the stateless operation catalogue consumed by
// an external driver: every exported method takes a typed request and
// returns a typed response embedding Result, composing the stores and
// engines below it without holding any state of its own beyond wiring.
// It narrows the teacher's app.App DI-container pattern — every
// store/service as a struct field, bound methods as the public surface
// — to exactly the operation list an external driver needs.
package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/intentmail/intentmail/internal/attachment"
	"github.com/intentmail/intentmail/internal/config"
	"github.com/intentmail/intentmail/internal/credentials"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	oauth2flow "github.com/intentmail/intentmail/internal/oauth2"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/rules"
	"github.com/intentmail/intentmail/internal/search"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/intentmail/intentmail/internal/sync"
	"github.com/rs/zerolog"
)

// backgroundSyncInterval is how often the scheduler sweeps every active
// account for a delta sync, per the structured-concurrency model.
const backgroundSyncInterval = 2 * time.Minute

// Facade is the stateless operation catalogue. Every field is either a
// store, an engine built over those stores, or configuration needed to
// drive the OAuth handshake; nothing here is per-request state.
type Facade struct {
	accounts    *store.AccountStore
	emails      *store.EmailStore
	attachments *store.AttachmentStore
	rules       *store.RuleStore
	audit       *store.AuditStore
	metrics     *store.MetricStore

	creds *credentials.Store
	cache *attachment.Cache

	syncEngine  *sync.Engine
	scheduler   *sync.Scheduler
	rulesEngine *rules.Engine
	searchSvc   *search.Service

	gmailFlow   *oauth2flow.Flow
	outlookFlow *oauth2flow.Flow

	pendingMu sync.Mutex
	pending   map[string]pendingOAuth

	log zerolog.Logger
}

type pendingOAuth struct {
	provider string
	attempt  oauth2flow.Attempt
}

// New wires a Facade over an already-migrated database and loaded
// configuration. gmailapi.Configure/graphapi.Configure must already have
// been called for whichever providers are configured, so the provider
// registry's adapters can refresh tokens.
func New(cfg *config.Config, db *database.DB, creds *credentials.Store) *Facade {
	accounts := store.NewAccountStore(db)
	emails := store.NewEmailStore(db)
	attachments := store.NewAttachmentStore(db)
	ruleStore := store.NewRuleStore(db)
	audit := store.NewAuditStore(db)
	metrics := store.NewMetricStore(db)

	syncEngine := sync.NewEngine(accounts, emails, attachments, metrics, creds)

	f := &Facade{
		accounts:    accounts,
		emails:      emails,
		attachments: attachments,
		rules:       ruleStore,
		audit:       audit,
		metrics:     metrics,
		creds:       creds,
		cache:       attachment.NewCache(cfg.AttachmentDir, cfg.MaxCacheBytes, attachments),
		syncEngine:  syncEngine,
		scheduler:   sync.NewScheduler(syncEngine, accounts, backgroundSyncInterval),
		rulesEngine: rules.NewEngine(ruleStore, emails, audit, creds),
		searchSvc:   search.NewService(emails),
		pending:     make(map[string]pendingOAuth),
		log:         logging.WithComponent("facade"),
	}

	if cfg.IsGmailConfigured() {
		f.gmailFlow = oauth2flow.NewGmailFlow(cfg.GmailClientID, cfg.GmailClientSecret, cfg.GmailRedirectURI)
	}
	if cfg.IsOutlookConfigured() {
		f.outlookFlow = oauth2flow.NewOutlookFlow(cfg.OutlookClientID, cfg.OutlookClientSecret, cfg.OutlookRedirectURI, cfg.OutlookTenantID)
	}

	return f
}

// StartBackgroundSync launches the scheduler's periodic sweep over every
// active account; it returns immediately and runs until ctx is cancelled
// or StopBackgroundSync is called. Per §4.F's structured-concurrency
// requirement, every launched sync run is tracked and joined rather than
// left as a detached goroutine.
func (f *Facade) StartBackgroundSync(ctx context.Context) {
	f.scheduler.Start(ctx)
}

// StopBackgroundSync cancels the scheduler and blocks until every
// in-flight sync run it launched has finished. Call this before a final
// database checkpoint so no sync write races the shutdown.
func (f *Facade) StopBackgroundSync() {
	f.scheduler.Stop()
}

// Result is the common envelope every operation's response embeds:
// {success, ...payload, message} on success, {success:false, message} on
// failure, exactly per the façade's response-shape contract.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func ok(msg string) Result      { return Result{Success: true, Message: msg} }
func fail(err error) Result     { return Result{Success: false, Message: err.Error()} }
func failMsg(msg string) Result { return Result{Success: false, Message: msg} }

// providerFor resolves the registered adapter for account, falling back
// to the generic IMAP adapter for any account whose provider tag isn't
// separately registered, mirroring the sync engine's own fallback.
func providerFor(account *store.Account) (provider.Provider, error) {
	if p, ok := provider.New(account.Provider); ok {
		return p, nil
	}
	if p, ok := provider.New("imap"); ok {
		return p, nil
	}
	return nil, fmt.Errorf("facade: no provider registered for %q", account.Provider)
}

func credentialsForAccount(account *store.Account, creds *credentials.Store) provider.Credentials {
	c := provider.Credentials{
		Username:     account.Email,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		IMAPHost:     account.IMAPHost,
		SMTPHost:     account.SMTPHost,
		IMAPPort:     account.IMAPPort,
		SMTPPort:     account.SMTPPort,
	}
	if account.TokenExpiry != nil {
		c.TokenExpiry = *account.TokenExpiry
	}
	if account.AuthType == "imap" && creds != nil {
		if pw, err := creds.GetIMAPPassword(account.ID); err == nil {
			c.IMAPPassword = pw
		}
	}
	return c
}

func persistRefresh(accounts *store.AccountStore, account *store.Account, refreshed *provider.RefreshedTokens) {
	if refreshed == nil {
		return
	}
	account.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		account.RefreshToken = refreshed.RefreshToken
	}
	expiry := refreshed.TokenExpiry
	account.TokenExpiry = &expiry
	accounts.UpdateTokens(account.ID, account.AccessToken, account.RefreshToken, &expiry)
}
