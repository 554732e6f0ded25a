package database

// Migration is one ordered, checksum-verified schema change.
type Migration struct {
	Version int
	SQL     string
}

// migrations is the ordered list of all schema migrations. Each entry's
// SQL is hashed and recorded at apply time; do not edit an applied
// migration's SQL in place, since that is indistinguishable from
// tampering and will fail startup on the next run.
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE accounts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				provider TEXT NOT NULL,
				email TEXT NOT NULL,
				auth_type TEXT NOT NULL,
				display_name TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,

				-- OAuth branch
				access_token TEXT,
				refresh_token TEXT,
				token_expiry DATETIME,

				-- IMAP branch
				imap_host TEXT,
				imap_port INTEGER,
				smtp_host TEXT,
				smtp_port INTEGER,
				imap_password_enc TEXT,

				-- Sync state
				sync_cursor TEXT,
				uid_validity INTEGER,
				highest_modseq INTEGER,
				last_sync_at DATETIME,

				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

				UNIQUE (provider, email)
			);
		`,
	},
	{
		Version: 2,
		SQL: `
			CREATE TABLE emails (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				provider_message_id TEXT NOT NULL,
				thread_id TEXT,

				from_address TEXT NOT NULL,
				from_name TEXT,
				to_json TEXT NOT NULL DEFAULT '[]',
				cc_json TEXT NOT NULL DEFAULT '[]',
				bcc_json TEXT NOT NULL DEFAULT '[]',

				subject TEXT,
				body_text TEXT,
				body_html TEXT,
				snippet TEXT,

				date DATETIME,
				received_at DATETIME,

				flags TEXT NOT NULL DEFAULT '',
				labels_json TEXT NOT NULL DEFAULT '[]',

				in_reply_to TEXT,
				references_json TEXT NOT NULL DEFAULT '[]',
				headers_json TEXT NOT NULL DEFAULT '{}',

				size_bytes INTEGER NOT NULL DEFAULT 0,
				has_attachments INTEGER NOT NULL DEFAULT 0,

				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

				UNIQUE (account_id, provider_message_id)
			);

			CREATE INDEX idx_emails_account_date ON emails(account_id, date DESC);
			CREATE INDEX idx_emails_thread ON emails(thread_id);
		`,
	},
	{
		Version: 3,
		SQL: `
			CREATE TABLE attachments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email_id INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
				size_bytes INTEGER NOT NULL DEFAULT 0,
				content_id TEXT,
				provider_attachment_id TEXT,
				local_path TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_attachments_email ON attachments(email_id);
		`,
	},
	{
		// FTS5 external-content table projecting (subject, body_text,
		// from_name, from_address) from emails, kept in sync by triggers
		// so the service layer only ever writes to the emails table.
		Version: 4,
		SQL: `
			CREATE VIRTUAL TABLE emails_fts USING fts5(
				subject, body_text, from_name, from_address,
				content='emails', content_rowid='id',
				tokenize='porter unicode61'
			);

			CREATE TRIGGER emails_fts_ai AFTER INSERT ON emails BEGIN
				INSERT INTO emails_fts(rowid, subject, body_text, from_name, from_address)
				VALUES (new.id, new.subject, new.body_text, new.from_name, new.from_address);
			END;

			CREATE TRIGGER emails_fts_ad AFTER DELETE ON emails BEGIN
				INSERT INTO emails_fts(emails_fts, rowid, subject, body_text, from_name, from_address)
				VALUES ('delete', old.id, old.subject, old.body_text, old.from_name, old.from_address);
			END;

			CREATE TRIGGER emails_fts_au AFTER UPDATE ON emails BEGIN
				INSERT INTO emails_fts(emails_fts, rowid, subject, body_text, from_name, from_address)
				VALUES ('delete', old.id, old.subject, old.body_text, old.from_name, old.from_address);
				INSERT INTO emails_fts(rowid, subject, body_text, from_name, from_address)
				VALUES (new.id, new.subject, new.body_text, new.from_name, new.from_address);
			END;
		`,
	},
	{
		Version: 5,
		SQL: `
			CREATE TABLE rules (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				description TEXT,
				trigger TEXT NOT NULL,
				conditions_json TEXT NOT NULL,
				actions_json TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_rules_account ON rules(account_id);
		`,
	},
	{
		Version: 6,
		SQL: `
			CREATE TABLE audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				rule_id INTEGER REFERENCES rules(id) ON DELETE SET NULL,
				email_id INTEGER REFERENCES emails(id) ON DELETE SET NULL,
				matched INTEGER NOT NULL,
				applied_actions_json TEXT NOT NULL DEFAULT '[]',
				dry_run INTEGER NOT NULL DEFAULT 0,
				executed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				error TEXT,
				state_before_json TEXT,
				state_after_json TEXT,
				rolled_back INTEGER NOT NULL DEFAULT 0,
				rolled_back_at DATETIME
			);

			CREATE INDEX idx_audit_rule ON audit_log(rule_id, executed_at DESC);
			CREATE INDEX idx_audit_email ON audit_log(email_id, executed_at DESC);
		`,
	},
	{
		Version: 7,
		SQL: `
			CREATE TABLE sync_metrics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				sync_type TEXT NOT NULL,
				added INTEGER NOT NULL DEFAULT 0,
				deleted INTEGER NOT NULL DEFAULT 0,
				labels_changed INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				success INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_sync_metrics_account ON sync_metrics(account_id, synced_at DESC);
		`,
	},
}
