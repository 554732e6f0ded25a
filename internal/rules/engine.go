// Package rules implements rule evaluation, action application, and the
// audit/rollback trail that makes every rule execution reversible. See
// evaluator.go for condition matching, applier.go for action semantics,
// and validator.go for the shape checks a rule must pass before it is
// stored.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/rs/zerolog"
)

// PasswordLookup resolves the cleartext IMAP password for an account,
// needed when a forward action's target provider is IMAP/SMTP.
type PasswordLookup interface {
	GetIMAPPassword(accountID int64) (string, error)
}

// Engine evaluates and applies rules against emails, recording every
// non-dry execution to the audit log.
type Engine struct {
	rules     *store.RuleStore
	emails    *store.EmailStore
	audit     *store.AuditStore
	passwords PasswordLookup
	log       zerolog.Logger
}

// NewEngine builds an Engine over the given stores. passwords may be nil
// for deployments with no IMAP/SMTP accounts.
func NewEngine(rules *store.RuleStore, emails *store.EmailStore, audit *store.AuditStore, passwords PasswordLookup) *Engine {
	return &Engine{rules: rules, emails: emails, audit: audit, passwords: passwords, log: logging.WithComponent("rules")}
}

// ApplyResult is the outcome of one rule-against-one-email execution.
type ApplyResult struct {
	Matched bool
	Actions []string
	Entry   *store.AuditLogEntry // nil when dryRun or when the rule did not match
}

func (e *Engine) credentialsForAccount(account *store.Account) provider.Credentials {
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

// Apply evaluates rule against email and, unless dryRun, applies its
// actions and appends an audit entry. A dry run never mutates the store
// and never appends an audit row, per the testable invariant that dry
// and real runs report identical match/action output.
func (e *Engine) Apply(ctx context.Context, account *store.Account, rule *store.Rule, email *store.Email, dryRun bool) (*ApplyResult, error) {
	matched, err := Matches(rule.Conditions, email)
	if err != nil {
		return nil, err
	}
	if !matched {
		return &ApplyResult{Matched: false}, nil
	}

	st := stateFromEmail(email)
	var descriptions []string

	var p provider.Provider
	var creds provider.Credentials
	for _, a := range rule.Actions {
		if a.Type == "forward" {
			var ok bool
			p, ok = provider.New(account.Provider)
			if !ok {
				return nil, apperrors.New(apperrors.KindPermanent, fmt.Sprintf("rules: no provider registered for %q", account.Provider))
			}
			creds = e.credentialsForAccount(account)
			break
		}
	}

	if dryRun {
		for _, a := range rule.Actions {
			desc, err := describeDryRun(a)
			if err != nil {
				return nil, err
			}
			descriptions = append(descriptions, desc)
		}
		return &ApplyResult{Matched: true, Actions: descriptions}, nil
	}

	stateBefore := &store.EmailState{Labels: append([]string(nil), email.Labels...), Flags: append([]string(nil), email.Flags...), LastModified: email.UpdatedAt}

	var applyErr error
	for _, a := range rule.Actions {
		desc, err := applyAction(ctx, a, email, &st, p, creds, account.Provider)
		if err != nil {
			applyErr = err
			break
		}
		descriptions = append(descriptions, desc)
	}

	entry := &store.AuditLogEntry{
		RuleID:         rule.ID,
		EmailID:        email.ID,
		Matched:        true,
		AppliedActions: descriptions,
		DryRun:         false,
		StateBefore:    stateBefore,
	}

	if applyErr != nil {
		entry.Error = applyErr.Error()
		saved, auditErr := e.audit.Append(entry)
		if auditErr != nil {
			return nil, fmt.Errorf("rules: append failed-execution audit: %w", auditErr)
		}
		return &ApplyResult{Matched: true, Actions: descriptions, Entry: saved}, applyErr
	}

	updated, err := e.commitState(email.ID, st)
	if err != nil {
		return nil, fmt.Errorf("rules: commit state: %w", err)
	}

	entry.StateAfter = &store.EmailState{Labels: updated.Labels, Flags: updated.Flags, LastModified: updated.UpdatedAt}
	saved, err := e.audit.Append(entry)
	if err != nil {
		return nil, fmt.Errorf("rules: append audit: %w", err)
	}

	return &ApplyResult{Matched: true, Actions: descriptions, Entry: saved}, nil
}

// commitState persists st's flags with SetFlags, then adds and removes
// only the labels that differ from the stored set, and returns the fresh
// row.
func (e *Engine) commitState(emailID int64, st emailState) (*store.Email, error) {
	if _, err := e.emails.SetFlags(emailID, st.flags); err != nil {
		return nil, err
	}
	current, err := e.emails.Get(emailID)
	if err != nil {
		return nil, err
	}
	add := subtractStrings(st.labels, current.Labels)
	remove := subtractStrings(current.Labels, st.labels)
	if len(add) > 0 {
		if current, err = e.emails.AddLabels(emailID, add); err != nil {
			return nil, err
		}
	}
	if len(remove) > 0 {
		if current, err = e.emails.RemoveLabels(emailID, remove); err != nil {
			return nil, err
		}
	}
	return current, nil
}

func subtractStrings(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	var out []string
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}

func describeDryRun(a store.Action) (string, error) {
	if !actionTypes[a.Type] {
		return "", apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: unknown action %q", a.Type))
	}
	if a.Parameter == "" {
		return a.Type, nil
	}
	return fmt.Sprintf("%s(%s)", a.Type, a.Parameter), nil
}

// RunTrigger evaluates and applies every active rule for account matching
// trigger against email, in rule creation order, stopping at the first
// rule whose action set deletes/trashes the email since later rules
// would operate on an already-removed message.
func (e *Engine) RunTrigger(ctx context.Context, account *store.Account, trigger string, email *store.Email, dryRun bool) ([]*ApplyResult, error) {
	active, err := e.rules.ListActiveByTrigger(account.ID, trigger)
	if err != nil {
		return nil, err
	}

	var results []*ApplyResult
	for _, r := range active {
		res, err := e.Apply(ctx, account, r, email, dryRun)
		if err != nil {
			e.log.Warn().Err(err).Int64("rule", r.ID).Int64("email", email.ID).Msg("rule application failed")
			results = append(results, res)
			continue
		}
		results = append(results, res)
		if res.Matched && !dryRun && containsTerminal(res.Actions) {
			break
		}
	}
	return results, nil
}

func containsTerminal(actions []string) bool {
	for _, a := range actions {
		if len(a) >= len("moveToTrash") && a[:len("moveToTrash")] == "moveToTrash" {
			return true
		}
		if len(a) >= len("delete") && a[:len("delete")] == "delete" {
			return true
		}
	}
	return false
}

// RollbackDiff is the inverse diff for an audit entry, as computed by
// PreviewRollback without applying it.
type RollbackDiff struct {
	AddLabels    []string
	RemoveLabels []string
	Flags        []string
}

func diffForRollback(entry *store.AuditLogEntry, current *store.Email) (RollbackDiff, error) {
	if entry.StateAfter == nil {
		return RollbackDiff{}, apperrors.New(apperrors.KindValidationError, "rules: entry has no stateAfter and cannot be rolled back")
	}
	return RollbackDiff{
		AddLabels:    subtractStrings(entry.StateBefore.Labels, current.Labels),
		RemoveLabels: subtractStrings(current.Labels, entry.StateBefore.Labels),
		Flags:        entry.StateBefore.Flags,
	}, nil
}

// PreviewRollback returns the diff rollback would apply, without
// mutating the store or marking the entry rolled back.
func (e *Engine) PreviewRollback(id int64) (RollbackDiff, error) {
	entry, err := e.audit.Get(id)
	if err != nil {
		return RollbackDiff{}, err
	}
	current, err := e.emails.Get(entry.EmailID)
	if err != nil {
		return RollbackDiff{}, err
	}
	return diffForRollback(entry, current)
}

// Rollback restores the audit entry's email to stateBefore regardless of
// any sync activity interleaved since the entry was recorded — a
// deliberate simplicity-for-determinism trade-off: rollback is a
// snapshot restore, not a three-way merge.
func (e *Engine) Rollback(id int64) error {
	entry, err := e.audit.Get(id)
	if err != nil {
		return err
	}
	if entry.RolledBack {
		return apperrors.New(apperrors.KindAlreadyRolledBack, fmt.Sprintf("audit entry %d already rolled back", id))
	}

	if _, err := e.emails.SetFlags(entry.EmailID, entry.StateBefore.Flags); err != nil {
		return err
	}
	current, err := e.emails.Get(entry.EmailID)
	if err != nil {
		return err
	}
	add := subtractStrings(entry.StateBefore.Labels, current.Labels)
	remove := subtractStrings(current.Labels, entry.StateBefore.Labels)
	if len(add) > 0 {
		if _, err := e.emails.AddLabels(entry.EmailID, add); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		if _, err := e.emails.RemoveLabels(entry.EmailID, remove); err != nil {
			return err
		}
	}

	return e.audit.MarkRolledBack(id, time.Now())
}

// RollbackAllForRule rolls back every rollbackable entry for rule,
// newest first, stopping at the first failure.
func (e *Engine) RollbackAllForRule(ruleID int64) (int, error) {
	entries, err := e.audit.ListRollbackableForRule(ruleID)
	if err != nil {
		return 0, err
	}
	return e.rollbackAll(entries)
}

// RollbackAllForEmail rolls back every rollbackable entry for email,
// newest first, stopping at the first failure.
func (e *Engine) RollbackAllForEmail(emailID int64) (int, error) {
	entries, err := e.audit.ListRollbackableForEmail(emailID)
	if err != nil {
		return 0, err
	}
	return e.rollbackAll(entries)
}

func (e *Engine) rollbackAll(entries []*store.AuditLogEntry) (int, error) {
	n := 0
	for _, entry := range entries {
		if err := e.Rollback(entry.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
