package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// EmailStore persists Email rows and maintains the FTS index via
// database triggers — this store only ever writes to the emails table.
type EmailStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewEmailStore(db *database.DB) *EmailStore {
	return &EmailStore{db: db, log: logging.WithComponent("store.email")}
}

// Upsert is keyed by (accountId, providerMessageId): on conflict it
// overwrites every mutable column except created_at and bumps
// updated_at, producing the same row whether called once or repeatedly.
func (s *EmailStore) Upsert(e *Email) (*Email, error) {
	var result *Email
	err := s.db.WithWrite(func() error {
		_, err := s.db.Exec(`
			INSERT INTO emails (
				account_id, provider_message_id, thread_id,
				from_address, from_name, to_json, cc_json, bcc_json,
				subject, body_text, body_html, snippet,
				date, received_at, flags, labels_json,
				in_reply_to, references_json, headers_json,
				size_bytes, has_attachments
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, provider_message_id) DO UPDATE SET
				thread_id = excluded.thread_id,
				from_address = excluded.from_address,
				from_name = excluded.from_name,
				to_json = excluded.to_json,
				cc_json = excluded.cc_json,
				bcc_json = excluded.bcc_json,
				subject = excluded.subject,
				body_text = excluded.body_text,
				body_html = excluded.body_html,
				snippet = excluded.snippet,
				date = excluded.date,
				received_at = excluded.received_at,
				flags = excluded.flags,
				labels_json = excluded.labels_json,
				in_reply_to = excluded.in_reply_to,
				references_json = excluded.references_json,
				headers_json = excluded.headers_json,
				size_bytes = excluded.size_bytes,
				has_attachments = excluded.has_attachments,
				updated_at = CURRENT_TIMESTAMP
		`,
			e.AccountID, e.ProviderMessageID, nullString(e.ThreadID),
			e.FromAddress, nullString(e.FromName), toJSON(e.To), toJSON(e.CC), toJSON(e.BCC),
			nullString(e.Subject), nullString(e.BodyText), nullString(e.BodyHTML), nullString(e.Snippet),
			nullTime(e.Date), nullTime(e.ReceivedAt), joinTags(e.Flags), toJSON(dedupe(e.Labels)),
			nullString(e.InReplyTo), toJSON(e.References), toJSON(e.Headers),
			e.SizeBytes, e.HasAttachments,
		)
		if err != nil {
			return fmt.Errorf("store: upsert email: %w", err)
		}

		row := s.db.QueryRow(emailSelectSQL+" WHERE account_id = ? AND provider_message_id = ?",
			e.AccountID, e.ProviderMessageID)
		result, err = scanEmail(row)
		return err
	})
	return result, err
}

func (s *EmailStore) Get(id int64) (*Email, error) {
	row := s.db.QueryRow(emailSelectSQL+" WHERE id = ?", id)
	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("email %d not found", id))
	}
	return e, err
}

// GetByProviderMessageID looks up the local row for a provider-delivered
// tombstone/label-change event.
func (s *EmailStore) GetByProviderMessageID(accountID int64, providerMessageID string) (*Email, error) {
	row := s.db.QueryRow(emailSelectSQL+" WHERE account_id = ? AND provider_message_id = ?", accountID, providerMessageID)
	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("email not found")
	}
	return e, err
}

func (s *EmailStore) Delete(id int64) error {
	return s.db.WithWrite(func() error {
		res, err := s.db.Exec("DELETE FROM emails WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("store: delete email: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NotFound(fmt.Sprintf("email %d not found", id))
		}
		return nil
	})
}

// AddLabels merges labels into the existing set (dedup).
func (s *EmailStore) AddLabels(id int64, labels []string) (*Email, error) {
	return s.mutate(id, func(e *Email) {
		e.Labels = unionSet(e.Labels, labels)
	})
}

// RemoveLabels set-subtracts labels from the existing set.
func (s *EmailStore) RemoveLabels(id int64, labels []string) (*Email, error) {
	return s.mutate(id, func(e *Email) {
		e.Labels = subtractSet(e.Labels, labels)
	})
}

// SetFlags replaces the flag set entirely.
func (s *EmailStore) SetFlags(id int64, flags []string) (*Email, error) {
	return s.mutate(id, func(e *Email) {
		e.Flags = dedupe(flags)
	})
}

func (s *EmailStore) mutate(id int64, apply func(*Email)) (*Email, error) {
	var result *Email
	err := s.db.WithWrite(func() error {
		row := s.db.QueryRow(emailSelectSQL+" WHERE id = ?", id)
		e, err := scanEmail(row)
		if err == sql.ErrNoRows {
			return apperrors.NotFound(fmt.Sprintf("email %d not found", id))
		}
		if err != nil {
			return err
		}

		apply(e)

		_, err = s.db.Exec(`
			UPDATE emails SET flags = ?, labels_json = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, joinTags(e.Flags), toJSON(e.Labels), id)
		if err != nil {
			return fmt.Errorf("store: mutate email: %w", err)
		}

		row = s.db.QueryRow(emailSelectSQL+" WHERE id = ?", id)
		result, err = scanEmail(row)
		return err
	})
	return result, err
}

// Search composes structured predicates with AND, intersects with FTS
// hits when Query is set, orders by date DESC, and paginates with limit
// capped at 100.
func (s *EmailStore) Search(f SearchFilter) (*SearchResult[*Email], error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any

	base := "FROM emails e"
	if f.Query != "" {
		base = "FROM emails e JOIN emails_fts ON emails_fts.rowid = e.id"
		where = append(where, "emails_fts MATCH ?")
		args = append(args, quoteFTSQuery(f.Query))
	}

	if f.AccountID != 0 {
		where = append(where, "e.account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.FromPrefix != "" {
		where = append(where, "e.from_address LIKE ?")
		args = append(args, f.FromPrefix+"%")
	}
	if f.SubjectContains != "" {
		where = append(where, "e.subject LIKE ?")
		args = append(args, "%"+f.SubjectContains+"%")
	}
	if f.HasAttachments != nil {
		where = append(where, "e.has_attachments = ?")
		args = append(args, *f.HasAttachments)
	}
	for _, flag := range f.FlagsAll {
		where = append(where, "(',' || e.flags || ',') LIKE ?")
		args = append(args, "%,"+flag+",%")
	}
	for _, label := range f.LabelsAll {
		where = append(where, "e.labels_json LIKE ?")
		args = append(args, "%\""+label+"\"%")
	}
	if f.ThreadID != "" {
		where = append(where, "e.thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.DateFrom != nil {
		where = append(where, "e.date >= ?")
		args = append(args, f.DateFrom.UTC().Format(timeLayout))
	}
	if f.DateTo != nil {
		where = append(where, "e.date <= ?")
		args = append(args, f.DateTo.UTC().Format(timeLayout))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) "+base+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: search count: %w", err)
	}

	columns := strings.Replace(emailSelectSQL, "FROM emails e", base, 1)
	query := columns + whereClause + " ORDER BY e.date DESC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var items []*Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &SearchResult[*Email]{
		Items:   items,
		Total:   total,
		HasMore: offset+len(items) < total,
	}, nil
}

// quoteFTSQuery wraps user input as a single FTS5 string literal,
// doubling internal quotes, so it cannot be used to inject FTS5 operator
// syntax — a deliberate tightening over passthrough for a
// multi-account daemon.
func quoteFTSQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

const emailSelectSQL = `
	SELECT e.id, e.account_id, e.provider_message_id, e.thread_id,
	       e.from_address, e.from_name, e.to_json, e.cc_json, e.bcc_json,
	       e.subject, e.body_text, e.body_html, e.snippet,
	       e.date, e.received_at, e.flags, e.labels_json,
	       e.in_reply_to, e.references_json, e.headers_json,
	       e.size_bytes, e.has_attachments,
	       e.created_at, e.updated_at
	FROM emails e
`

func scanEmail(row scanner) (*Email, error) {
	var e Email
	var threadID, fromName, subject, bodyText, bodyHTML, snippet sql.NullString
	var date, receivedAt sql.NullString
	var toJ, ccJ, bccJ, labelsJ, referencesJ, headersJ string
	var flags string
	var inReplyTo sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&e.ID, &e.AccountID, &e.ProviderMessageID, &threadID,
		&e.FromAddress, &fromName, &toJ, &ccJ, &bccJ,
		&subject, &bodyText, &bodyHTML, &snippet,
		&date, &receivedAt, &flags, &labelsJ,
		&inReplyTo, &referencesJ, &headersJ,
		&e.SizeBytes, &e.HasAttachments,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	e.ThreadID = threadID.String
	e.FromName = fromName.String
	e.To = fromJSONSlice(toJ)
	e.CC = fromJSONSlice(ccJ)
	e.BCC = fromJSONSlice(bccJ)
	e.Subject = subject.String
	e.BodyText = bodyText.String
	e.BodyHTML = bodyHTML.String
	e.Snippet = snippet.String
	e.Date = parseTimeString(date)
	e.ReceivedAt = parseTimeString(receivedAt)
	e.Flags = splitTags(flags)
	e.Labels = fromJSONSlice(labelsJ)
	e.InReplyTo = inReplyTo.String
	e.References = fromJSONSlice(referencesJ)
	e.Headers = fromJSONMap(headersJ)
	e.CreatedAt = mustTimeString(createdAt)
	e.UpdatedAt = mustTimeString(updatedAt)

	return &e, nil
}
