package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/intentmail/intentmail/internal/database"
)

func newTestStores(t *testing.T) (*database.DB, *AccountStore, *EmailStore, *AttachmentStore) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db, NewAccountStore(db), NewEmailStore(db), NewAttachmentStore(db)
}

func mustAccount(t *testing.T, as *AccountStore) *Account {
	t.Helper()
	a, err := as.Create(&Account{Provider: "imap", Email: "user@example.com", AuthType: "imap"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func TestUpsertEmailIdempotent(t *testing.T) {
	_, as, es, _ := newTestStores(t)
	acc := mustAccount(t, as)

	msg := &Email{
		AccountID:         acc.ID,
		ProviderMessageID: "msg-1",
		FromAddress:       "sender@example.com",
		Subject:           "hello",
		Labels:            []string{"INBOX"},
	}

	first, err := es.Upsert(msg)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := es.Upsert(msg)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same row id across repeated upsert, got %d and %d", first.ID, second.ID)
	}

	all, err := es.Search(SearchFilter{AccountID: acc.ID})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if all.Total != 1 {
		t.Fatalf("expected exactly 1 email row after repeated upsert, got %d", all.Total)
	}
}

func TestLabelSetOperations(t *testing.T) {
	_, as, es, _ := newTestStores(t)
	acc := mustAccount(t, as)

	e, err := es.Upsert(&Email{
		AccountID:         acc.ID,
		ProviderMessageID: "msg-2",
		FromAddress:       "sender@example.com",
		Labels:            []string{"INBOX"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	e, err = es.AddLabels(e.ID, []string{"News", "INBOX"})
	if err != nil {
		t.Fatalf("add labels: %v", err)
	}
	if len(e.Labels) != 2 {
		t.Fatalf("expected addLabels to dedupe, got %v", e.Labels)
	}

	e, err = es.RemoveLabels(e.ID, []string{"INBOX"})
	if err != nil {
		t.Fatalf("remove labels: %v", err)
	}
	if e.HasLabel("INBOX") || !e.HasLabel("News") {
		t.Fatalf("expected labels [News] after removing INBOX, got %v", e.Labels)
	}
}

func TestSearchFreeTextIntersectsStructuredFilters(t *testing.T) {
	_, as, es, _ := newTestStores(t)
	acc1 := mustAccount(t, as)
	acc2, err := as.Create(&Account{Provider: "imap", Email: "other@example.com", AuthType: "imap"})
	if err != nil {
		t.Fatalf("create second account: %v", err)
	}

	now := time.Now().UTC()
	mk := func(accountID int64, providerID, subject, body string) {
		if _, err := es.Upsert(&Email{
			AccountID: accountID, ProviderMessageID: providerID,
			FromAddress: "sender@example.com", Subject: subject, BodyText: body,
			Date: &now,
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	mk(acc1.ID, "a1", "Your invoice is ready", "please pay the invoice")
	mk(acc1.ID, "a2", "Meeting notes", "nothing about billing here")
	mk(acc2.ID, "b1", "Invoice for account 2", "invoice attached")

	res, err := es.Search(SearchFilter{AccountID: acc1.ID, Query: "invoice"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("expected 1 result scoped to account 1 matching 'invoice', got %d", res.Total)
	}
}

func TestAttachmentCacheFullReplace(t *testing.T) {
	_, as, es, ats := newTestStores(t)
	acc := mustAccount(t, as)

	e, err := es.Upsert(&Email{AccountID: acc.ID, ProviderMessageID: "m1", FromAddress: "a@b.com"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := ats.ReplaceForEmail(e.ID, []*Attachment{
		{Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 10},
		{Filename: "b.png", MimeType: "image/png", SizeBytes: 20},
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	list, err := ats.ListForEmail(e.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(list))
	}

	if err := ats.ReplaceForEmail(e.ID, []*Attachment{{Filename: "c.txt", MimeType: "text/plain", SizeBytes: 5}}); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	list, err = ats.ListForEmail(e.ID)
	if err != nil {
		t.Fatalf("list after replace: %v", err)
	}
	if len(list) != 1 || list[0].Filename != "c.txt" {
		t.Fatalf("expected full replace to leave exactly [c.txt], got %v", list)
	}
}

func TestAccountDuplicateRejected(t *testing.T) {
	_, as, _, _ := newTestStores(t)
	mustAccount(t, as)

	_, err := as.Create(&Account{Provider: "imap", Email: "user@example.com", AuthType: "imap"})
	if err == nil {
		t.Fatalf("expected duplicate account creation to fail")
	}
}

func TestAccountDeleteCascadesEmails(t *testing.T) {
	_, as, es, _ := newTestStores(t)
	acc := mustAccount(t, as)

	e, err := es.Upsert(&Email{AccountID: acc.ID, ProviderMessageID: "m1", FromAddress: "a@b.com"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := as.Delete(acc.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := es.Get(e.ID); err == nil {
		t.Fatalf("expected email to be cascade-deleted with its account")
	}
}
