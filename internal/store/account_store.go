package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// AccountStore persists Account rows.
type AccountStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewAccountStore(db *database.DB) *AccountStore {
	return &AccountStore{db: db, log: logging.WithComponent("store.account")}
}

func (s *AccountStore) Create(a *Account) (*Account, error) {
	var created *Account
	err := s.db.WithWrite(func() error {
		res, err := s.db.Exec(`
			INSERT INTO accounts (
				provider, email, auth_type, display_name, is_active,
				access_token, refresh_token, token_expiry,
				imap_host, imap_port, smtp_host, smtp_port, imap_password_enc,
				sync_cursor, uid_validity, highest_modseq, last_sync_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			a.Provider, a.Email, a.AuthType, nullString(a.DisplayName), a.IsActive,
			nullString(a.AccessToken), nullString(a.RefreshToken), nullTime(a.TokenExpiry),
			nullString(a.IMAPHost), nullZeroInt(a.IMAPPort), nullString(a.SMTPHost), nullZeroInt(a.SMTPPort), nullString(a.IMAPPasswordEnc),
			nullString(a.SyncCursor), nullZeroInt64(a.UIDValidity), nullZeroInt64(a.HighestModseq), nullTime(a.LastSyncAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Duplicate(fmt.Sprintf("account %s/%s already exists", a.Provider, a.Email))
			}
			return fmt.Errorf("store: create account: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err = s.get(id)
		return err
	})
	return created, err
}

func (s *AccountStore) Get(id int64) (*Account, error) {
	return s.get(id)
}

func (s *AccountStore) get(id int64) (*Account, error) {
	row := s.db.QueryRow(accountSelectSQL+" WHERE id = ?", id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("account %d not found", id))
	}
	return a, err
}

func (s *AccountStore) List() ([]*Account, error) {
	rows, err := s.db.Query(accountSelectSQL + " ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateTokens persists a refreshed OAuth access/refresh token pair.
func (s *AccountStore) UpdateTokens(id int64, accessToken, refreshToken string, expiry *time.Time) error {
	return s.db.WithWrite(func() error {
		_, err := s.db.Exec(`
			UPDATE accounts SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, accessToken, refreshToken, nullTime(expiry), id)
		if err != nil {
			return fmt.Errorf("store: update tokens: %w", err)
		}
		return nil
	})
}

// UpdateSyncState persists the cursor advanced by a completed sync run.
func (s *AccountStore) UpdateSyncState(id int64, cursor string, uidValidity, highestModseq int64) error {
	return s.db.WithWrite(func() error {
		_, err := s.db.Exec(`
			UPDATE accounts
			SET sync_cursor = ?, uid_validity = ?, highest_modseq = ?,
			    last_sync_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, nullString(cursor), nullZeroInt64(uidValidity), nullZeroInt64(highestModseq), id)
		if err != nil {
			return fmt.Errorf("store: update sync state: %w", err)
		}
		return nil
	})
}

// Delete cascades to emails, attachments, rules, and audit rows via FK
// ON DELETE CASCADE (audit rows keep a historical copy with rule_id/email_id
// set NULL rather than being removed, since AuditLogEntry is a record of
// what happened, not a live reference).
func (s *AccountStore) Delete(id int64) error {
	return s.db.WithWrite(func() error {
		res, err := s.db.Exec("DELETE FROM accounts WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("store: delete account: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperrors.NotFound(fmt.Sprintf("account %d not found", id))
		}
		return nil
	})
}

const accountSelectSQL = `
	SELECT id, provider, email, auth_type, display_name, is_active,
	       access_token, refresh_token, token_expiry,
	       imap_host, imap_port, smtp_host, smtp_port, imap_password_enc,
	       sync_cursor, uid_validity, highest_modseq, last_sync_at,
	       created_at, updated_at
	FROM accounts
`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var displayName, accessToken, refreshToken, tokenExpiry sql.NullString
	var imapHost, smtpHost, imapPasswordEnc, syncCursor, lastSyncAt sql.NullString
	var imapPort, smtpPort sql.NullInt64
	var uidValidity, highestModseq sql.NullInt64
	var createdAt, updatedAt string

	if err := row.Scan(
		&a.ID, &a.Provider, &a.Email, &a.AuthType, &displayName, &a.IsActive,
		&accessToken, &refreshToken, &tokenExpiry,
		&imapHost, &imapPort, &smtpHost, &smtpPort, &imapPasswordEnc,
		&syncCursor, &uidValidity, &highestModseq, &lastSyncAt,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	a.DisplayName = displayName.String
	a.AccessToken = accessToken.String
	a.RefreshToken = refreshToken.String
	a.TokenExpiry = parseTimeString(tokenExpiry)
	a.IMAPHost = imapHost.String
	a.IMAPPort = int(imapPort.Int64)
	a.SMTPHost = smtpHost.String
	a.SMTPPort = int(smtpPort.Int64)
	a.IMAPPasswordEnc = imapPasswordEnc.String
	a.SyncCursor = syncCursor.String
	a.UIDValidity = uidValidity.Int64
	a.HighestModseq = highestModseq.Int64
	a.LastSyncAt = parseTimeString(lastSyncAt)
	a.CreatedAt = mustTimeString(createdAt)
	a.UpdatedAt = mustTimeString(updatedAt)

	return &a, nil
}

func nullZeroInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullZeroInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
