package facade

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/rules"
	"github.com/intentmail/intentmail/internal/search"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFacade builds a Facade directly over fresh stores, bypassing
// New's config/credential-vault/provider-registry wiring: these tests
// exercise only the store-backed operations (rules, search, label
// mutation), not the network-backed ones (send, sync, OAuth).
func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	accounts := store.NewAccountStore(db)
	emails := store.NewEmailStore(db)
	attachments := store.NewAttachmentStore(db)
	ruleStore := store.NewRuleStore(db)
	audit := store.NewAuditStore(db)

	return &Facade{
		accounts:    accounts,
		emails:      emails,
		attachments: attachments,
		rules:       ruleStore,
		audit:       audit,
		rulesEngine: rules.NewEngine(ruleStore, emails, audit, nil),
		searchSvc:   search.NewService(emails),
	}
}

func mustTestAccount(t *testing.T, f *Facade) *store.Account {
	t.Helper()
	a, err := f.accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	return a
}

func mustTestEmail(t *testing.T, f *Facade, accountID int64, subject string) *store.Email {
	t.Helper()
	e, err := f.emails.Upsert(&store.Email{
		AccountID:         accountID,
		ProviderMessageID: "msg-" + subject,
		FromAddress:       "sender@example.com",
		Subject:           subject,
		BodyText:          "body of " + subject,
		Labels:            []string{"INBOX"},
	})
	require.NoError(t, err)
	return e
}

// TestCreateRuleRejectsInvalidBeforeWrite covers §8 S5: a rule with
// conflicting actions is rejected and never reaches the store.
func TestCreateRuleRejectsInvalidBeforeWrite(t *testing.T) {
	f := newTestFacade(t)
	acc := mustTestAccount(t, f)

	resp := f.CreateRule(CreateRuleRequest{
		AccountID:  acc.ID,
		Name:       "bad",
		Trigger:    "manual",
		Conditions: []store.Condition{{Field: "from", Operator: "contains", Value: "x"}},
		Actions:    []store.Action{{Type: "markRead"}, {Type: "markUnread"}},
	})
	assert.False(t, resp.Success)

	list := f.ListRules(ListRulesRequest{AccountID: acc.ID})
	require.True(t, list.Success)
	assert.Empty(t, list.Rules)
}

func TestCreateRuleAndApplyRule(t *testing.T) {
	f := newTestFacade(t)
	acc := mustTestAccount(t, f)
	email := mustTestEmail(t, f, acc.ID, "invoice")

	created := f.CreateRule(CreateRuleRequest{
		AccountID: acc.ID,
		Name:      "label invoices",
		Trigger:   "manual",
		Conditions: []store.Condition{
			{Field: "subject", Operator: "contains", Value: "invoice"},
		},
		Actions: []store.Action{{Type: "applyLabel", Parameter: "Finance"}},
	})
	require.True(t, created.Success)
	require.NotZero(t, created.Rule.ID)

	applied := f.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: created.Rule.ID, EmailID: email.ID, DryRun: false})
	require.True(t, applied.Success)
	assert.True(t, applied.Matched)
	assert.Equal(t, []string{"applyLabel(Finance)"}, applied.Actions)
	assert.NotZero(t, applied.AuditID)

	auditLog := f.AuditLog(AuditLogRequest{AccountID: acc.ID, Limit: 10})
	require.True(t, auditLog.Success)
	require.Len(t, auditLog.Entries, 1)
	assert.True(t, auditLog.Entries[0].Matched)

	rollback := f.Rollback(RollbackRequest{AuditID: applied.AuditID})
	assert.True(t, rollback.Success)

	again := f.Rollback(RollbackRequest{AuditID: applied.AuditID})
	assert.False(t, again.Success)
}

// TestSendRejectsEmptyRecipients covers §7's "validate before side
// effects" contract: Send must fail before ever touching a provider.
func TestSendRejectsEmptyRecipients(t *testing.T) {
	f := newTestFacade(t)
	resp := f.Send(context.Background(), SendRequest{AccountID: 1, Subject: "hi", BodyText: "hi"})
	assert.False(t, resp.Success)
	assert.Empty(t, resp.ProviderMessageID)
}

func TestApplyLabelMergesAndSubtracts(t *testing.T) {
	f := newTestFacade(t)
	acc := mustTestAccount(t, f)
	email := mustTestEmail(t, f, acc.ID, "hello")

	resp := f.ApplyLabel(ApplyLabelRequest{EmailID: email.ID, AddLabels: []string{"Important"}, RemoveLabels: []string{"INBOX"}})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Email.Labels, "Important")
	assert.NotContains(t, resp.Email.Labels, "INBOX")
}

func TestSearchFindsByFreeText(t *testing.T) {
	f := newTestFacade(t)
	acc := mustTestAccount(t, f)
	mustTestEmail(t, f, acc.ID, "invoice due")
	mustTestEmail(t, f, acc.ID, "lunch plans")

	resp := f.Search(SearchRequest{AccountID: acc.ID, Query: "invoice"})
	require.True(t, resp.Success)
	require.Len(t, resp.Emails, 1)
	assert.Equal(t, "invoice due", resp.Emails[0].Subject)
}

func TestGetThreadOrdersOldestFirst(t *testing.T) {
	f := newTestFacade(t)
	acc := mustTestAccount(t, f)
	older := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	_, err := f.emails.Upsert(&store.Email{AccountID: acc.ID, ProviderMessageID: "m1", FromAddress: "a@example.com", ThreadID: "t1", Subject: "first", Date: &older})
	require.NoError(t, err)
	_, err = f.emails.Upsert(&store.Email{AccountID: acc.ID, ProviderMessageID: "m2", FromAddress: "a@example.com", ThreadID: "t1", Subject: "second", Date: &newer})
	require.NoError(t, err)

	resp := f.GetThread(GetThreadRequest{AccountID: acc.ID, ThreadID: "t1"})
	require.True(t, resp.Success)
	require.Len(t, resp.Emails, 2)
	assert.Equal(t, "first", resp.Emails[0].Subject)
	assert.Equal(t, "second", resp.Emails[1].Subject)
}
