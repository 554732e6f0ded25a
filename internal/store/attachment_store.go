package store

import (
	"database/sql"
	"fmt"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// AttachmentStore persists Attachment metadata rows. Attachments are
// full-replaced per email by the sync engine inside one transaction.
type AttachmentStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewAttachmentStore(db *database.DB) *AttachmentStore {
	return &AttachmentStore{db: db, log: logging.WithComponent("store.attachment")}
}

// ReplaceForEmail deletes all existing attachment rows for emailID and
// inserts the given set, inside a single transaction.
func (s *AttachmentStore) ReplaceForEmail(emailID int64, attachments []*Attachment) error {
	return s.db.WithWrite(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM attachments WHERE email_id = ?", emailID); err != nil {
			return fmt.Errorf("store: clear attachments: %w", err)
		}

		for _, a := range attachments {
			if _, err := tx.Exec(`
				INSERT INTO attachments (email_id, filename, mime_type, size_bytes, content_id, provider_attachment_id, local_path)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, emailID, a.Filename, a.MimeType, a.SizeBytes, nullString(a.ContentID), nullString(a.ProviderAttachmentID), nullString(a.LocalPath)); err != nil {
				return fmt.Errorf("store: insert attachment: %w", err)
			}
		}

		return tx.Commit()
	})
}

func (s *AttachmentStore) Get(id int64) (*Attachment, error) {
	row := s.db.QueryRow(attachmentSelectSQL+" WHERE id = ?", id)
	a, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("attachment %d not found", id))
	}
	return a, err
}

func (s *AttachmentStore) ListForEmail(emailID int64) ([]*Attachment, error) {
	rows, err := s.db.Query(attachmentSelectSQL+" WHERE email_id = ? ORDER BY id ASC", emailID)
	if err != nil {
		return nil, fmt.Errorf("store: list attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetLocalPath updates the cache pointer for an attachment, or clears it
// (pass "") when the cache self-heals after finding the file missing.
func (s *AttachmentStore) SetLocalPath(id int64, path string) error {
	return s.db.WithWrite(func() error {
		_, err := s.db.Exec("UPDATE attachments SET local_path = ? WHERE id = ?", nullString(path), id)
		if err != nil {
			return fmt.Errorf("store: set local path: %w", err)
		}
		return nil
	})
}

// ListCached returns every attachment with a non-null local_path, ordered
// oldest-first by created_at — the eviction order for the LRU cache.
func (s *AttachmentStore) ListCached() ([]*Attachment, error) {
	rows, err := s.db.Query(attachmentSelectSQL + " WHERE local_path IS NOT NULL ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("store: list cached attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const attachmentSelectSQL = `
	SELECT id, email_id, filename, mime_type, size_bytes, content_id, provider_attachment_id, local_path, created_at
	FROM attachments
`

func scanAttachment(row scanner) (*Attachment, error) {
	var a Attachment
	var contentID, providerAttachmentID, localPath sql.NullString
	var createdAt string

	if err := row.Scan(
		&a.ID, &a.EmailID, &a.Filename, &a.MimeType, &a.SizeBytes,
		&contentID, &providerAttachmentID, &localPath, &createdAt,
	); err != nil {
		return nil, err
	}

	a.ContentID = contentID.String
	a.ProviderAttachmentID = providerAttachmentID.String
	a.LocalPath = localPath.String
	a.CreatedAt = mustTimeString(createdAt)

	return &a, nil
}
