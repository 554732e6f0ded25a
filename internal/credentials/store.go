// Package credentials provides the credential vault: OS-keyring-first
// storage of IMAP passwords and OAuth tokens, with an AES-encrypted
// database column as the fallback when no keyring backend is available.
package credentials

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/crypto"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
)

const serviceName = "intentmail"

// Store provides credential storage with OS keyring and encrypted DB fallback.
type Store struct {
	db             *sql.DB
	encryptor      *crypto.Encryptor
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore builds a vault over db, deriving the fallback encryption key
// from encryptionSecret (INTENTMAIL_ENCRYPTION_KEY).
func NewStore(db *sql.DB, encryptionSecret string) *Store {
	log := logging.WithComponent("credentials")

	keyringEnabled := testKeyring()
	if keyringEnabled {
		log.Info().Msg("OS keyring available, using as primary credential storage")
	} else {
		log.Warn().Msg("OS keyring not available, using encrypted database storage")
	}

	return &Store{
		db:             db,
		encryptor:      crypto.NewEncryptor(encryptionSecret),
		keyringEnabled: keyringEnabled,
		log:            log,
	}
}

func testKeyring() bool {
	const testKey = "intentmail-test-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

func keyringKey(accountID int64, suffix string) string {
	return "account:" + strconv.FormatInt(accountID, 10) + ":" + suffix
}

// SetIMAPPassword stores the IMAP password for accountID, per spec
// §4.C's AES-256-CBC ivHex:ciphertextHex fallback when the keyring
// is unavailable.
func (s *Store) SetIMAPPassword(accountID int64, password string) error {
	if password == "" {
		return nil
	}

	if s.keyringEnabled {
		if err := gokeyring.Set(serviceName, keyringKey(accountID, "imap_password"), password); err == nil {
			s.clearColumn(accountID, "imap_password_enc")
			return nil
		}
		s.log.Warn().Int64("account_id", accountID).Msg("keyring write failed, using encrypted fallback")
	}

	encrypted, err := s.encryptor.Encrypt([]byte(password))
	if err != nil {
		return fmt.Errorf("credentials: encrypt imap password: %w", err)
	}

	if _, err := s.db.Exec("UPDATE accounts SET imap_password_enc = ? WHERE id = ?", encrypted, accountID); err != nil {
		return fmt.Errorf("credentials: store encrypted imap password: %w", err)
	}
	return nil
}

// GetIMAPPassword retrieves the IMAP password for accountID.
func (s *Store) GetIMAPPassword(accountID int64) (string, error) {
	if s.keyringEnabled {
		password, err := gokeyring.Get(serviceName, keyringKey(accountID, "imap_password"))
		if err == nil {
			return password, nil
		}
		if err != gokeyring.ErrNotFound {
			s.log.Warn().Err(err).Int64("account_id", accountID).Msg("keyring read failed, trying fallback")
		}
	}

	var encrypted sql.NullString
	err := s.db.QueryRow("SELECT imap_password_enc FROM accounts WHERE id = ?", accountID).Scan(&encrypted)
	if err == sql.ErrNoRows || !encrypted.Valid || encrypted.String == "" {
		return "", apperrors.NotFound("no stored imap password")
	}
	if err != nil {
		return "", fmt.Errorf("credentials: query imap password: %w", err)
	}

	plain, err := s.encryptor.Decrypt(encrypted.String)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt imap password: %w", err)
	}
	return string(plain), nil
}

// DeleteIMAPPassword removes the stored IMAP password for accountID.
func (s *Store) DeleteIMAPPassword(accountID int64) {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, keyringKey(accountID, "imap_password"))
	}
	s.clearColumn(accountID, "imap_password_enc")
}

// SetOAuthTokens stores the OAuth access/refresh token pair for
// accountID. Per spec §4.C these are cleartext today behind the same
// vault interface, so a future upgrade to encrypted-at-rest storage
// doesn't change any caller.
func (s *Store) SetOAuthTokens(accountID int64, accessToken, refreshToken string) error {
	_, err := s.db.Exec(
		"UPDATE accounts SET access_token = ?, refresh_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		accessToken, refreshToken, accountID,
	)
	if err != nil {
		return fmt.Errorf("credentials: store oauth tokens: %w", err)
	}
	return nil
}

// GetOAuthTokens retrieves the OAuth access/refresh token pair.
func (s *Store) GetOAuthTokens(accountID int64) (accessToken, refreshToken string, err error) {
	err = s.db.QueryRow("SELECT access_token, refresh_token FROM accounts WHERE id = ?", accountID).
		Scan(&accessToken, &refreshToken)
	if err == sql.ErrNoRows {
		return "", "", apperrors.NotFound("account not found")
	}
	if err != nil {
		return "", "", fmt.Errorf("credentials: query oauth tokens: %w", err)
	}
	return accessToken, refreshToken, nil
}

// IsKeyringEnabled reports whether the OS keyring is being used.
func (s *Store) IsKeyringEnabled() bool {
	return s.keyringEnabled
}

func (s *Store) clearColumn(accountID int64, column string) {
	s.db.Exec(fmt.Sprintf("UPDATE accounts SET %s = NULL WHERE id = ?", column), accountID)
}
