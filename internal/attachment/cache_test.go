package attachment

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/store"
)

// testFixture opens a fresh migrated store and seeds one account, one
// email, and one attachment row, returning the attachment's id alongside
// the stores a test needs.
func testFixture(t *testing.T) (*store.AttachmentStore, int64) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	accounts := store.NewAccountStore(db)
	emails := store.NewEmailStore(db)
	attachments := store.NewAttachmentStore(db)

	account, err := accounts.Create(&store.Account{Provider: "imap", Email: "a@example.com", AuthType: "imap"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	email, err := emails.Upsert(&store.Email{AccountID: account.ID, ProviderMessageID: "m1", FromAddress: "x@example.com"})
	if err != nil {
		t.Fatalf("upsert email: %v", err)
	}
	if err := attachments.ReplaceForEmail(email.ID, []*store.Attachment{
		{EmailID: email.ID, Filename: "doc.pdf", MimeType: "application/pdf", SizeBytes: 10},
	}); err != nil {
		t.Fatalf("replace attachments: %v", err)
	}

	list, err := attachments.ListForEmail(email.ID)
	if err != nil || len(list) == 0 {
		t.Fatalf("list attachments: %v", err)
	}
	return attachments, list[0].ID
}

func TestCacheWriteThenRead(t *testing.T) {
	attachments, id := testFixture(t)
	cache := NewCache(filepath.Join(t.TempDir(), "cache"), DefaultMaxCacheBytes, attachments)

	content := base64.StdEncoding.EncodeToString([]byte("hello world"))
	if err := cache.Cache(id, content); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	cached, err := cache.IsCached(id)
	if err != nil {
		t.Fatalf("IsCached: %v", err)
	}
	if !cached {
		t.Fatalf("expected cached=true")
	}

	got, err := cache.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != content {
		t.Fatalf("Read mismatch: got %q want %q", got, content)
	}
}

func TestReadUncachedFailsNotCached(t *testing.T) {
	attachments, id := testFixture(t)
	cache := NewCache(filepath.Join(t.TempDir(), "cache"), DefaultMaxCacheBytes, attachments)

	if _, err := cache.Read(id); err == nil {
		t.Fatalf("expected Read of uncached attachment to fail")
	}
}

func TestIsCachedSelfHealsOnMissingFile(t *testing.T) {
	attachments, id := testFixture(t)
	cache := NewCache(filepath.Join(t.TempDir(), "cache"), DefaultMaxCacheBytes, attachments)

	if err := cache.Cache(id, base64.StdEncoding.EncodeToString([]byte("data"))); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	a, err := attachments.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := os.Remove(a.LocalPath); err != nil {
		t.Fatalf("remove underlying file: %v", err)
	}

	cached, err := cache.IsCached(id)
	if err != nil {
		t.Fatalf("IsCached: %v", err)
	}
	if cached {
		t.Fatalf("expected IsCached to self-heal to false after file removal")
	}

	a, err = attachments.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.LocalPath != "" {
		t.Fatalf("expected local_path cleared, got %q", a.LocalPath)
	}

	if err := cache.Cache(id, base64.StdEncoding.EncodeToString([]byte("data2"))); err != nil {
		t.Fatalf("re-Cache after self-heal: %v", err)
	}
}

func TestEvictionKeepsUnderLimit(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	accounts := store.NewAccountStore(db)
	emails := store.NewEmailStore(db)
	attachments := store.NewAttachmentStore(db)

	account, err := accounts.Create(&store.Account{Provider: "imap", Email: "b@example.com", AuthType: "imap"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	var ids []int64
	for i := 0; i < 5; i++ {
		email, err := emails.Upsert(&store.Email{AccountID: account.ID, ProviderMessageID: string(rune('a' + i)), FromAddress: "x@example.com"})
		if err != nil {
			t.Fatalf("upsert email %d: %v", i, err)
		}
		if err := attachments.ReplaceForEmail(email.ID, []*store.Attachment{
			{EmailID: email.ID, Filename: "f.bin", MimeType: "application/octet-stream", SizeBytes: 100},
		}); err != nil {
			t.Fatalf("replace attachments %d: %v", i, err)
		}
		list, err := attachments.ListForEmail(email.ID)
		if err != nil || len(list) == 0 {
			t.Fatalf("list for email %d: %v", i, err)
		}
		ids = append(ids, list[0].ID)
	}

	cache := NewCache(filepath.Join(t.TempDir(), "cache"), 250, attachments)
	payload := base64.StdEncoding.EncodeToString(make([]byte, 100))
	for _, id := range ids {
		if err := cache.Cache(id, payload); err != nil {
			t.Fatalf("Cache(%d): %v", id, err)
		}
	}

	cached, err := attachments.ListCached()
	if err != nil {
		t.Fatalf("ListCached: %v", err)
	}

	var total int64
	for _, a := range cached {
		info, err := os.Stat(a.LocalPath)
		if err != nil {
			t.Fatalf("stat %s: %v", a.LocalPath, err)
		}
		total += info.Size()
	}
	if total > 250 {
		t.Fatalf("expected total cached bytes <= 250, got %d", total)
	}

	first, err := attachments.Get(ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.LocalPath != "" {
		t.Fatalf("expected oldest attachment evicted, still has local_path %q", first.LocalPath)
	}
}

func TestClearRemovesAllFiles(t *testing.T) {
	attachments, id := testFixture(t)
	cache := NewCache(filepath.Join(t.TempDir(), "cache"), DefaultMaxCacheBytes, attachments)

	if err := cache.Cache(id, base64.StdEncoding.EncodeToString([]byte("data"))); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	a, err := attachments.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.LocalPath != "" {
		t.Fatalf("expected local_path cleared after Clear, got %q", a.LocalPath)
	}
}

func TestCacheFilenamePreservesExtension(t *testing.T) {
	if got := cacheExtOf("report.PDF"); got != ".pdf" {
		t.Fatalf("cacheExtOf: got %q want .pdf", got)
	}
	name := cacheFilename(42, "report.pdf")
	if filepath.Ext(name) != ".pdf" {
		t.Fatalf("cacheFilename: expected .pdf extension, got %q", name)
	}
	if len(name) != len(".pdf")+16 {
		t.Fatalf("cacheFilename: unexpected length %d", len(name))
	}
}
