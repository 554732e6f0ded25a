package credentials

import (
	"path/filepath"
	"testing"

	"github.com/intentmail/intentmail/internal/database"
)

func newTestStore(t *testing.T) (*database.DB, *Store) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	res, err := db.Exec("INSERT INTO accounts (provider, email, auth_type) VALUES ('imap', 'user@example.com', 'imap')")
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	accountID, _ := res.LastInsertId()
	_ = accountID

	cs := NewStore(db.DB, "test-encryption-secret")
	return db, cs
}

func TestIMAPPasswordRoundTripFallback(t *testing.T) {
	db, cs := newTestStore(t)

	var accountID int64
	if err := db.QueryRow("SELECT id FROM accounts LIMIT 1").Scan(&accountID); err != nil {
		t.Fatalf("lookup account: %v", err)
	}

	// Force the encrypted-DB fallback path so the test is deterministic
	// regardless of whether an OS keyring is present in CI.
	cs.keyringEnabled = false

	if err := cs.SetIMAPPassword(accountID, "s3cret-app-password"); err != nil {
		t.Fatalf("SetIMAPPassword: %v", err)
	}

	got, err := cs.GetIMAPPassword(accountID)
	if err != nil {
		t.Fatalf("GetIMAPPassword: %v", err)
	}
	if got != "s3cret-app-password" {
		t.Fatalf("expected round-tripped password, got %q", got)
	}

	cs.DeleteIMAPPassword(accountID)
	if _, err := cs.GetIMAPPassword(accountID); err == nil {
		t.Fatalf("expected GetIMAPPassword to fail after delete")
	}
}

func TestOAuthTokensRoundTrip(t *testing.T) {
	db, cs := newTestStore(t)

	var accountID int64
	if err := db.QueryRow("SELECT id FROM accounts LIMIT 1").Scan(&accountID); err != nil {
		t.Fatalf("lookup account: %v", err)
	}

	if err := cs.SetOAuthTokens(accountID, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetOAuthTokens: %v", err)
	}

	access, refresh, err := cs.GetOAuthTokens(accountID)
	if err != nil {
		t.Fatalf("GetOAuthTokens: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" {
		t.Fatalf("unexpected tokens: %q %q", access, refresh)
	}
}
