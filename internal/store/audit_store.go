package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// AuditStore persists AuditLogEntry rows — the record of every rule
// execution, sufficient to reconstruct or reverse its effects.
type AuditStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewAuditStore(db *database.DB) *AuditStore {
	return &AuditStore{db: db, log: logging.WithComponent("store.audit")}
}

func (s *AuditStore) Append(e *AuditLogEntry) (*AuditLogEntry, error) {
	actionsJSON, err := json.Marshal(e.AppliedActions)
	if err != nil {
		return nil, fmt.Errorf("store: marshal applied actions: %w", err)
	}

	var stateBeforeJSON, stateAfterJSON sql.NullString
	if e.StateBefore != nil {
		b, err := json.Marshal(e.StateBefore)
		if err != nil {
			return nil, fmt.Errorf("store: marshal state before: %w", err)
		}
		stateBeforeJSON = nullString(string(b))
	}
	if e.StateAfter != nil {
		b, err := json.Marshal(e.StateAfter)
		if err != nil {
			return nil, fmt.Errorf("store: marshal state after: %w", err)
		}
		stateAfterJSON = nullString(string(b))
	}

	var created *AuditLogEntry
	err = s.db.WithWrite(func() error {
		res, err := s.db.Exec(`
			INSERT INTO audit_log (rule_id, email_id, matched, applied_actions_json, dry_run, error, state_before_json, state_after_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.RuleID, e.EmailID, e.Matched, string(actionsJSON), e.DryRun, nullString(e.Error), stateBeforeJSON, stateAfterJSON)
		if err != nil {
			return fmt.Errorf("store: append audit entry: %w", err)
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

func (s *AuditStore) Get(id int64) (*AuditLogEntry, error) {
	return s.get(id)
}

func (s *AuditStore) get(id int64) (*AuditLogEntry, error) {
	row := s.db.QueryRow(auditSelectSQL+" WHERE id = ?", id)
	e, err := scanAudit(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("audit entry %d not found", id))
	}
	return e, err
}

// ListRollbackableForRule returns non-dry, non-rolled-back entries for a
// rule, newest first — the order batch rollback iterates.
func (s *AuditStore) ListRollbackableForRule(ruleID int64) ([]*AuditLogEntry, error) {
	return s.listRollbackable("rule_id", ruleID)
}

// ListRollbackableForEmail returns non-dry, non-rolled-back entries for
// an email, newest first.
func (s *AuditStore) ListRollbackableForEmail(emailID int64) ([]*AuditLogEntry, error) {
	return s.listRollbackable("email_id", emailID)
}

func (s *AuditStore) listRollbackable(column string, id int64) ([]*AuditLogEntry, error) {
	query := auditSelectSQL + fmt.Sprintf(
		" WHERE %s = ? AND dry_run = 0 AND rolled_back = 0 AND state_after_json IS NOT NULL ORDER BY executed_at DESC",
		column,
	)
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("store: list rollbackable: %w", err)
	}
	defer rows.Close()

	var out []*AuditLogEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *AuditStore) ListForAccount(accountID int64, limit, offset int) ([]*AuditLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT a.id, a.rule_id, a.email_id, a.matched, a.applied_actions_json, a.dry_run,
		       a.executed_at, a.error, a.state_before_json, a.state_after_json, a.rolled_back, a.rolled_back_at
		FROM audit_log a
		JOIN rules r ON r.id = a.rule_id
		WHERE r.account_id = ?
		ORDER BY a.executed_at DESC
		LIMIT ? OFFSET ?
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list audit for account: %w", err)
	}
	defer rows.Close()

	var out []*AuditLogEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkRolledBack stamps an audit entry as rolled back at t. Fails
// AlreadyRolledBack if already marked.
func (s *AuditStore) MarkRolledBack(id int64, t time.Time) error {
	return s.db.WithWrite(func() error {
		var rolledBack bool
		if err := s.db.QueryRow("SELECT rolled_back FROM audit_log WHERE id = ?", id).Scan(&rolledBack); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotFound(fmt.Sprintf("audit entry %d not found", id))
			}
			return err
		}
		if rolledBack {
			return apperrors.New(apperrors.KindAlreadyRolledBack, fmt.Sprintf("audit entry %d already rolled back", id))
		}

		_, err := s.db.Exec("UPDATE audit_log SET rolled_back = 1, rolled_back_at = ? WHERE id = ?",
			t.UTC().Format(timeLayout), id)
		if err != nil {
			return fmt.Errorf("store: mark rolled back: %w", err)
		}
		return nil
	})
}

const auditSelectSQL = `
	SELECT id, rule_id, email_id, matched, applied_actions_json, dry_run,
	       executed_at, error, state_before_json, state_after_json, rolled_back, rolled_back_at
	FROM audit_log
`

func scanAudit(row scanner) (*AuditLogEntry, error) {
	var e AuditLogEntry
	var ruleID, emailID sql.NullInt64
	var actionsJSON string
	var executedAt string
	var errMsg, stateBeforeJSON, stateAfterJSON, rolledBackAt sql.NullString

	if err := row.Scan(
		&e.ID, &ruleID, &emailID, &e.Matched, &actionsJSON, &e.DryRun,
		&executedAt, &errMsg, &stateBeforeJSON, &stateAfterJSON, &e.RolledBack, &rolledBackAt,
	); err != nil {
		return nil, err
	}

	e.RuleID = ruleID.Int64
	e.EmailID = emailID.Int64
	if err := json.Unmarshal([]byte(actionsJSON), &e.AppliedActions); err != nil {
		return nil, fmt.Errorf("store: unmarshal applied actions: %w", err)
	}
	e.ExecutedAt = mustTimeString(executedAt)
	e.Error = errMsg.String
	e.RolledBackAt = parseTimeString(rolledBackAt)

	if stateBeforeJSON.Valid {
		var st EmailState
		if err := json.Unmarshal([]byte(stateBeforeJSON.String), &st); err != nil {
			return nil, fmt.Errorf("store: unmarshal state before: %w", err)
		}
		e.StateBefore = &st
	}
	if stateAfterJSON.Valid {
		var st EmailState
		if err := json.Unmarshal([]byte(stateAfterJSON.String), &st); err != nil {
			return nil, fmt.Errorf("store: unmarshal state after: %w", err)
		}
		e.StateAfter = &st
	}

	return &e, nil
}
