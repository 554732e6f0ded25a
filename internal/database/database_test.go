package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intentmail.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateAppliesAllMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate should be a no-op, got: %v", err)
	}
}

func TestMigrateDetectsChecksumTampering(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if _, err := db.Exec("UPDATE migrations SET checksum = 'tampered' WHERE version = 1"); err != nil {
		t.Fatalf("tamper update: %v", err)
	}

	if err := db.Migrate(); err == nil {
		t.Fatalf("expected Migrate to fail after checksum tampering")
	}
}

func TestFTSTriggersKeepIndexInSync(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	res, err := db.Exec(`INSERT INTO accounts (provider, email, auth_type) VALUES ('gmail', 'a@example.com', 'oauth')`)
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	accountID, _ := res.LastInsertId()

	if _, err := db.Exec(`
		INSERT INTO emails (account_id, provider_message_id, from_address, subject, body_text)
		VALUES (?, 'm1', 'sender@example.com', 'Invoice attached', 'please find the invoice')
	`, accountID); err != nil {
		t.Fatalf("insert email: %v", err)
	}

	var ftsCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM emails_fts WHERE emails_fts MATCH 'invoice'`).Scan(&ftsCount); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if ftsCount != 1 {
		t.Fatalf("expected 1 FTS hit for 'invoice', got %d", ftsCount)
	}

	if _, err := db.Exec(`DELETE FROM emails WHERE account_id = ?`, accountID); err != nil {
		t.Fatalf("delete email: %v", err)
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM emails_fts`).Scan(&remaining); err != nil {
		t.Fatalf("fts count after delete: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected no orphan FTS rows after email delete, got %d", remaining)
	}
}
