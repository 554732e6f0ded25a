package rules

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.AccountStore, *store.EmailStore, *store.RuleStore, *store.AuditStore) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	accounts := store.NewAccountStore(db)
	emails := store.NewEmailStore(db)
	rules := store.NewRuleStore(db)
	audit := store.NewAuditStore(db)
	return NewEngine(rules, emails, audit, nil), accounts, emails, rules, audit
}

func mustEmail(t *testing.T, es *store.EmailStore, accountID int64, from, subject string, labels []string) *store.Email {
	t.Helper()
	e, err := es.Upsert(&store.Email{
		AccountID:         accountID,
		ProviderMessageID: "msg-" + subject,
		FromAddress:       from,
		Subject:           subject,
		Labels:            labels,
	})
	require.NoError(t, err)
	return e
}

func newsletterRule(accountID int64) *store.Rule {
	return &store.Rule{
		AccountID: accountID,
		Name:      "newsletter",
		Trigger:   "onNewEmail",
		Conditions: []store.Condition{
			{Field: "from", Operator: "contains", Value: "@newsletter"},
		},
		Actions: []store.Action{
			{Type: "applyLabel", Parameter: "News"},
			{Type: "archive"},
		},
	}
}

// TestApplyDryRunDoesNotMutate covers §8 S2: a dry run reports the same
// match/action output as a real run but leaves the store untouched.
func TestApplyDryRunDoesNotMutate(t *testing.T) {
	engine, accounts, emails, ruleStore, _ := newTestEngine(t)
	acc, err := accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	rule, err := ruleStore.Create(newsletterRule(acc.ID))
	require.NoError(t, err)
	email := mustEmail(t, emails, acc.ID, "alice@newsletter.example", "weekly digest", []string{"INBOX"})

	result, err := engine.Apply(context.Background(), acc, rule, email, true)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, []string{"applyLabel(News)", "archive"}, result.Actions)
	assert.Nil(t, result.Entry)

	reloaded, err := emails.Get(email.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INBOX"}, reloaded.Labels)
}

// TestApplyRealRunMutatesAndAudits covers §8 S2's non-dry branch: the
// store mutates and an audit row is appended with stateBefore/stateAfter.
func TestApplyRealRunMutatesAndAudits(t *testing.T) {
	engine, accounts, emails, ruleStore, audit := newTestEngine(t)
	acc, err := accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	rule, err := ruleStore.Create(newsletterRule(acc.ID))
	require.NoError(t, err)
	email := mustEmail(t, emails, acc.ID, "alice@newsletter.example", "weekly digest", []string{"INBOX"})

	result, err := engine.Apply(context.Background(), acc, rule, email, false)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	require.NotNil(t, result.Entry)
	assert.False(t, result.Entry.DryRun)
	assert.ElementsMatch(t, []string{"INBOX"}, result.Entry.StateBefore.Labels)
	assert.ElementsMatch(t, []string{"News"}, result.Entry.StateAfter.Labels)

	reloaded, err := emails.Get(email.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.HasLabel("News"))
	assert.False(t, reloaded.HasLabel("INBOX"))

	entries, err := audit.ListForAccount(acc.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, email.ID, entries[0].EmailID)
}

// TestRollbackRoundTrip covers §8 invariant 4 and S3: apply then rollback
// restores labels/flags exactly, and a second rollback fails.
func TestRollbackRoundTrip(t *testing.T) {
	engine, accounts, emails, ruleStore, _ := newTestEngine(t)
	acc, err := accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	rule, err := ruleStore.Create(newsletterRule(acc.ID))
	require.NoError(t, err)
	email := mustEmail(t, emails, acc.ID, "alice@newsletter.example", "weekly digest", []string{"INBOX"})

	result, err := engine.Apply(context.Background(), acc, rule, email, false)
	require.NoError(t, err)
	require.NotNil(t, result.Entry)

	require.NoError(t, engine.Rollback(result.Entry.ID))

	reloaded, err := emails.Get(email.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INBOX"}, reloaded.Labels)

	err = engine.Rollback(result.Entry.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAlreadyRolledBack))
}

// TestPreviewRollbackDoesNotMutate exercises the rollback preview mode:
// it reports the diff without marking the entry rolled back or touching
// the store.
func TestPreviewRollbackDoesNotMutate(t *testing.T) {
	engine, accounts, emails, ruleStore, audit := newTestEngine(t)
	acc, err := accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	rule, err := ruleStore.Create(newsletterRule(acc.ID))
	require.NoError(t, err)
	email := mustEmail(t, emails, acc.ID, "alice@newsletter.example", "weekly digest", []string{"INBOX"})

	result, err := engine.Apply(context.Background(), acc, rule, email, false)
	require.NoError(t, err)

	diff, err := engine.PreviewRollback(result.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX"}, diff.AddLabels)
	assert.Equal(t, []string{"News"}, diff.RemoveLabels)

	entry, err := audit.Get(result.Entry.ID)
	require.NoError(t, err)
	assert.False(t, entry.RolledBack)
}

// TestRuleDoesNotMatchMismatchedSender exercises the AND-only evaluator:
// a condition that fails means the rule doesn't match and nothing is
// applied or audited.
func TestRuleDoesNotMatchMismatchedSender(t *testing.T) {
	engine, accounts, emails, ruleStore, audit := newTestEngine(t)
	acc, err := accounts.Create(&store.Account{Provider: "gmail", Email: "me@example.com", AuthType: "oauth"})
	require.NoError(t, err)
	rule, err := ruleStore.Create(newsletterRule(acc.ID))
	require.NoError(t, err)
	email := mustEmail(t, emails, acc.ID, "bob@example.com", "hello", []string{"INBOX"})

	result, err := engine.Apply(context.Background(), acc, rule, email, false)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Entry)

	entries, err := audit.ListForAccount(acc.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestValidateRejectsConflictingActions covers §8 invariant 8 / S5.
func TestValidateRejectsConflictingActions(t *testing.T) {
	rule := &store.Rule{
		Name:       "bad",
		Trigger:    "manual",
		Conditions: []store.Condition{{Field: "from", Operator: "contains", Value: "x"}},
		Actions:    []store.Action{{Type: "markRead"}, {Type: "markUnread"}},
	}
	verr := Validate(rule)
	require.NotNil(t, verr)
	var codes []string
	for _, issue := range verr.Issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, "CONFLICTING_ACTIONS")
}

// TestValidateRejectsDeleteNotLast covers §8 invariant 8's other half.
func TestValidateRejectsDeleteNotLast(t *testing.T) {
	rule := &store.Rule{
		Name:       "bad",
		Trigger:    "manual",
		Conditions: []store.Condition{{Field: "from", Operator: "contains", Value: "x"}},
		Actions:    []store.Action{{Type: "delete"}, {Type: "archive"}},
	}
	verr := Validate(rule)
	require.NotNil(t, verr)
	var codes []string
	for _, issue := range verr.Issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, "DELETE_NOT_LAST")
}

func TestValidateRejectsForwardWithoutAddress(t *testing.T) {
	rule := &store.Rule{
		Name:       "bad-forward",
		Trigger:    "manual",
		Conditions: []store.Condition{{Field: "from", Operator: "contains", Value: "x"}},
		Actions:    []store.Action{{Type: "forward"}},
	}
	verr := Validate(rule)
	require.NotNil(t, verr)
	assert.Equal(t, "REQUIRED_PARAMETER", verr.Issues[0].Code)
}

func TestValidateAcceptsWellFormedRule(t *testing.T) {
	verr := Validate(newsletterRule(1))
	assert.Nil(t, verr)
}

// TestDiffForRollbackComputesInverse exercises diffForRollback's pure
// computation directly (no store round-trip), comparing the full struct
// with cmp.Diff so a field added later that's missed by the computation
// shows up as a diff rather than silently passing.
func TestDiffForRollbackComputesInverse(t *testing.T) {
	entry := &store.AuditLogEntry{
		StateBefore: &store.EmailState{Labels: []string{"INBOX"}, Flags: []string{"SEEN"}},
		StateAfter:  &store.EmailState{Labels: []string{"News"}, Flags: []string{"SEEN"}},
	}
	current := &store.Email{Labels: []string{"News"}, Flags: []string{"SEEN"}}

	got, err := diffForRollback(entry, current)
	require.NoError(t, err)

	want := RollbackDiff{
		AddLabels:    []string{"INBOX"},
		RemoveLabels: []string{"News"},
		Flags:        []string{"SEEN"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diffForRollback mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchesIsANDOnly(t *testing.T) {
	email := &store.Email{FromAddress: "alice@newsletter.example", Subject: "deals", Labels: []string{"INBOX"}}
	conditions := []store.Condition{
		{Field: "from", Operator: "contains", Value: "@newsletter"},
		{Field: "subject", Operator: "equals", Value: "no such subject"},
	}
	matched, err := Matches(conditions, email)
	require.NoError(t, err)
	assert.False(t, matched, "AND semantics: one failing condition fails the whole rule")
}
