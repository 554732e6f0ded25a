// Package sync drives per-account mailbox synchronization: paging a
// provider's initial listing or delta feed, normalizing each message into
// the store, and recording a SyncMetric for every run.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/rs/zerolog"
)

// PasswordLookup resolves the cleartext IMAP password for an account, a
// narrow view of *credentials.Store so this package doesn't need to
// import the vault's keyring/encryption machinery directly.
type PasswordLookup interface {
	GetIMAPPassword(accountID int64) (string, error)
}

const (
	// maxMessagesInitialSync bounds how many messages one initial sync
	// run will ingest, regardless of how many the mailbox actually holds.
	maxMessagesInitialSync = 1000
	// listPageSize is the page size requested from Provider.ListMessages.
	listPageSize = 100
	// fetchWorkers bounds per-message fetch concurrency within one run,
	// adapted from the teacher's folderStatusWorkers semaphore pattern.
	fetchWorkers = 8
	// metricRetention is how many SyncMetric rows are kept globally.
	metricRetention = 1000
)

// Engine coordinates sync runs across all configured providers.
type Engine struct {
	accounts    *store.AccountStore
	emails      *store.EmailStore
	attachments *store.AttachmentStore
	metrics     *store.MetricStore
	passwords   PasswordLookup
	log         zerolog.Logger
}

// NewEngine builds an Engine over the given stores. passwords resolves
// IMAP account passwords, which live in the credential vault rather than
// the accounts table (see internal/credentials); it may be nil for
// OAuth-only deployments.
func NewEngine(accounts *store.AccountStore, emails *store.EmailStore, attachments *store.AttachmentStore, metrics *store.MetricStore, passwords PasswordLookup) *Engine {
	return &Engine{
		accounts:    accounts,
		emails:      emails,
		attachments: attachments,
		metrics:     metrics,
		passwords:   passwords,
		log:         logging.WithComponent("sync"),
	}
}

// Sync runs one sync pass for account, dispatching initial or delta sync by
// cursor presence, or forcing an initial sync when forceInitial is set.
func (e *Engine) Sync(ctx context.Context, account *store.Account, forceInitial bool) (*store.SyncMetric, error) {
	p, ok := provider.New(account.Provider)
	if !ok {
		p, ok = provider.New("imap")
		if !ok {
			return nil, apperrors.New(apperrors.KindPermanent, fmt.Sprintf("sync: no provider registered for %q", account.Provider))
		}
	}

	creds := e.credentialsFor(account)
	start := time.Now()

	var (
		metric *store.SyncMetric
		err    error
	)
	if account.SyncCursor == "" || forceInitial {
		metric, err = e.initialSync(ctx, p, account, creds)
	} else {
		metric, err = e.deltaSync(ctx, p, account, creds)
	}

	if metric == nil {
		metric = &store.SyncMetric{AccountID: account.ID, Provider: account.Provider}
	}
	metric.DurationMs = time.Since(start).Milliseconds()
	metric.Success = err == nil
	if err != nil {
		metric.Error = err.Error()
	}
	metric.SyncedAt = time.Now()

	saved, appendErr := e.metrics.Append(metric)
	if appendErr != nil {
		e.log.Warn().Err(appendErr).Int64("account", account.ID).Msg("failed to record sync metric")
	} else {
		metric = saved
	}

	return metric, err
}

func (e *Engine) credentialsFor(account *store.Account) provider.Credentials {
	creds := provider.Credentials{
		Username:     account.Email,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		IMAPHost:     account.IMAPHost,
		SMTPHost:     account.SMTPHost,
		IMAPPort:     account.IMAPPort,
		SMTPPort:     account.SMTPPort,
	}
	if account.TokenExpiry != nil {
		creds.TokenExpiry = *account.TokenExpiry
	}
	if account.AuthType == "imap" && e.passwords != nil {
		if pw, err := e.passwords.GetIMAPPassword(account.ID); err == nil {
			creds.IMAPPassword = pw
		} else {
			e.log.Warn().Err(err).Int64("account", account.ID).Msg("failed to resolve imap password")
		}
	}
	return creds
}

// persistRefresh saves any rotated OAuth tokens the provider handed back
// before the caller's result is used, per the Credentials contract.
func (e *Engine) persistRefresh(account *store.Account, refreshed *provider.RefreshedTokens) {
	if refreshed == nil {
		return
	}
	account.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		account.RefreshToken = refreshed.RefreshToken
	}
	expiry := refreshed.TokenExpiry
	account.TokenExpiry = &expiry
	if err := e.accounts.UpdateTokens(account.ID, account.AccessToken, account.RefreshToken, &expiry); err != nil {
		e.log.Warn().Err(err).Int64("account", account.ID).Msg("failed to persist refreshed tokens")
	}
}

// initialSync pages through Provider.ListMessages up to
// maxMessagesInitialSync, fetching and upserting each message; the cursor
// is only persisted once the provider's terminal "current" cursor is
// known, matching §4.F's cursor-persistence rule.
func (e *Engine) initialSync(ctx context.Context, p provider.Provider, account *store.Account, creds provider.Credentials) (*store.SyncMetric, error) {
	metric := &store.SyncMetric{AccountID: account.ID, Provider: account.Provider, SyncType: "initial"}

	cursor := ""
	fetched := 0
	seen := make(map[string]bool)

	for fetched < maxMessagesInitialSync {
		page, refreshed, err := p.ListMessages(ctx, creds, cursor, listPageSize)
		e.persistRefresh(account, refreshed)
		if err != nil {
			result := classify(err)
			if result.Outcome == OutcomeFatal {
				return metric, apperrors.Wrap(apperrors.KindAuthFailed, "sync: list messages", err)
			}
			return metric, fmt.Errorf("sync: list messages: %w", err)
		}

		ids := make([]string, 0, len(page.Envelopes))
		for _, env := range page.Envelopes {
			if seen[env.ProviderMessageID] {
				continue
			}
			seen[env.ProviderMessageID] = true
			ids = append(ids, env.ProviderMessageID)
		}

		added := e.fetchAndUpsert(ctx, p, account, creds, ids, metric)
		fetched += added

		if page.NextCursor == "" {
			cursor = page.NextCursor
			break
		}
		cursor = page.NextCursor
	}

	account.SyncCursor = cursor
	account.LastSyncAt = timePtr(time.Now())
	if err := e.accounts.UpdateSyncState(account.ID, cursor, account.UIDValidity, account.HighestModseq); err != nil {
		return metric, fmt.Errorf("sync: persist cursor: %w", err)
	}

	return metric, nil
}

// deltaSync pages through Provider.ListDelta, applying additions,
// deletions, and label-changes; the cursor is only persisted once the
// whole run completes without a fatal error.
func (e *Engine) deltaSync(ctx context.Context, p provider.Provider, account *store.Account, creds provider.Credentials) (*store.SyncMetric, error) {
	metric := &store.SyncMetric{AccountID: account.ID, Provider: account.Provider, SyncType: "delta"}

	cursor := account.SyncCursor
	seen := make(map[string]bool)

	for {
		delta, refreshed, err := p.ListDelta(ctx, creds, cursor)
		e.persistRefresh(account, refreshed)
		if err != nil {
			result := classify(err)
			if result.Outcome == OutcomeFatal {
				return metric, apperrors.Wrap(apperrors.KindAuthFailed, "sync: list delta", err)
			}
			if apperrors.Is(err, apperrors.KindPermanent) {
				// Expired cursor (e.g. Gmail historyId too old): fall back
				// to a full resync rather than aborting the account.
				account.SyncCursor = ""
				return e.initialSync(ctx, p, account, creds)
			}
			return metric, fmt.Errorf("sync: list delta: %w", err)
		}

		additions := dedupeAgainst(delta.Additions, seen)
		e.fetchAndUpsert(ctx, p, account, creds, additions, metric)

		for _, id := range delta.Deletions {
			if seen["del:"+id] {
				continue
			}
			seen["del:"+id] = true
			if existing, err := e.emails.GetByProviderMessageID(account.ID, id); err == nil && existing != nil {
				if err := e.emails.Delete(existing.ID); err != nil {
					e.log.Warn().Err(err).Str("providerMessageId", id).Msg("failed to delete removed message")
				} else {
					metric.Deleted++
				}
			}
		}

		labelChanges := dedupeAgainst(delta.LabelChanges, seen)
		e.fetchAndUpsert(ctx, p, account, creds, labelChanges, metric)
		metric.LabelsChanged += len(labelChanges)

		cursor = delta.NewCursor
		if cursor == account.SyncCursor || cursor == "" {
			break
		}
		account.SyncCursor = cursor
	}

	if err := e.accounts.UpdateSyncState(account.ID, cursor, account.UIDValidity, account.HighestModseq); err != nil {
		return metric, fmt.Errorf("sync: persist cursor: %w", err)
	}

	return metric, nil
}

func dedupeAgainst(ids []string, seen map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// fetchAndUpsert fetches each providerMessageId with a bounded worker
// pool and upserts the result; a single message's failure is logged and
// the run continues, per §4.F's per-message-failure contract.
func (e *Engine) fetchAndUpsert(ctx context.Context, p provider.Provider, account *store.Account, creds provider.Credentials, ids []string, metric *store.SyncMetric) int {
	if len(ids) == 0 {
		return 0
	}

	sem := make(chan struct{}, fetchWorkers)
	var wg gosync.WaitGroup
	var mu gosync.Mutex
	added := 0

	for _, id := range ids {
		wg.Add(1)
		go func(providerMessageID string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			msg, refreshed, err := p.GetMessage(ctx, creds, providerMessageID)
			mu.Lock()
			e.persistRefresh(account, refreshed)
			mu.Unlock()

			if err != nil {
				result := classify(err)
				e.log.Warn().Err(err).Str("providerMessageId", providerMessageID).Str("outcome", result.Outcome.String()).Msg("failed to fetch message")
				return
			}

			if err := e.upsertMessage(account.ID, msg); err != nil {
				e.log.Warn().Err(err).Str("providerMessageId", providerMessageID).Msg("failed to upsert message")
				return
			}

			mu.Lock()
			added++
			metric.Added++
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return added
}

func (e *Engine) upsertMessage(accountID int64, msg provider.Message) error {
	email := &store.Email{
		AccountID:         accountID,
		ProviderMessageID: msg.ProviderMessageID,
		ThreadID:          msg.ThreadID,
		FromAddress:       msg.FromAddress,
		FromName:          msg.FromName,
		To:                msg.To,
		CC:                msg.CC,
		BCC:               msg.BCC,
		Subject:           msg.Subject,
		BodyText:          msg.BodyText,
		BodyHTML:          msg.BodyHTML,
		Flags:             msg.Flags,
		Labels:            msg.Labels,
		InReplyTo:         msg.InReplyTo,
		References:        msg.References,
		Headers:           msg.Headers,
		SizeBytes:         msg.SizeBytes,
		HasAttachments:    len(msg.Attachments) > 0,
	}
	if !msg.Date.IsZero() {
		email.Date = timePtr(msg.Date)
	}
	if !msg.ReceivedAt.IsZero() {
		email.ReceivedAt = timePtr(msg.ReceivedAt)
	}

	saved, err := e.emails.Upsert(email)
	if err != nil {
		return err
	}

	attachments := make([]*store.Attachment, 0, len(msg.Attachments))
	for _, part := range msg.Attachments {
		attachments = append(attachments, &store.Attachment{
			EmailID:              saved.ID,
			Filename:             part.Filename,
			MimeType:             part.MimeType,
			SizeBytes:            part.SizeBytes,
			ContentID:            part.ContentID,
			ProviderAttachmentID: part.ProviderAttachmentID,
		})
	}
	return e.attachments.ReplaceForEmail(saved.ID, attachments)
}

func timePtr(t time.Time) *time.Time { return &t }
