package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// RuleStore persists Rule rows.
type RuleStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRuleStore(db *database.DB) *RuleStore {
	return &RuleStore{db: db, log: logging.WithComponent("store.rule")}
}

func (s *RuleStore) Create(r *Rule) (*Rule, error) {
	condJSON, err := json.Marshal(r.Conditions)
	if err != nil {
		return nil, fmt.Errorf("store: marshal conditions: %w", err)
	}
	actJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return nil, fmt.Errorf("store: marshal actions: %w", err)
	}

	var created *Rule
	err = s.db.WithWrite(func() error {
		res, err := s.db.Exec(`
			INSERT INTO rules (account_id, name, description, trigger, conditions_json, actions_json, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.AccountID, r.Name, nullString(r.Description), r.Trigger, string(condJSON), string(actJSON), r.IsActive)
		if err != nil {
			return fmt.Errorf("store: create rule: %w", err)
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

func (s *RuleStore) Get(id int64) (*Rule, error) {
	return s.get(id)
}

func (s *RuleStore) get(id int64) (*Rule, error) {
	row := s.db.QueryRow(ruleSelectSQL+" WHERE id = ?", id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("rule %d not found", id))
	}
	return r, err
}

func (s *RuleStore) ListForAccount(accountID int64) ([]*Rule, error) {
	rows, err := s.db.Query(ruleSelectSQL+" WHERE account_id = ? ORDER BY created_at ASC", accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveByTrigger returns active rules for an account matching the
// given trigger, in declared (creation) order.
func (s *RuleStore) ListActiveByTrigger(accountID int64, trigger string) ([]*Rule, error) {
	rows, err := s.db.Query(ruleSelectSQL+" WHERE account_id = ? AND trigger = ? AND is_active = 1 ORDER BY created_at ASC",
		accountID, trigger)
	if err != nil {
		return nil, fmt.Errorf("store: list active rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) Delete(id int64) error {
	return s.db.WithWrite(func() error {
		res, err := s.db.Exec("DELETE FROM rules WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("store: delete rule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NotFound(fmt.Sprintf("rule %d not found", id))
		}
		return nil
	})
}

const ruleSelectSQL = `
	SELECT id, account_id, name, description, trigger, conditions_json, actions_json, is_active, created_at, updated_at
	FROM rules
`

func scanRule(row scanner) (*Rule, error) {
	var r Rule
	var description sql.NullString
	var condJSON, actJSON string
	var createdAt, updatedAt string

	if err := row.Scan(
		&r.ID, &r.AccountID, &r.Name, &description, &r.Trigger,
		&condJSON, &actJSON, &r.IsActive, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	r.Description = description.String
	if err := json.Unmarshal([]byte(condJSON), &r.Conditions); err != nil {
		return nil, fmt.Errorf("store: unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actJSON), &r.Actions); err != nil {
		return nil, fmt.Errorf("store: unmarshal actions: %w", err)
	}
	r.CreatedAt = mustTimeString(createdAt)
	r.UpdatedAt = mustTimeString(updatedAt)

	return &r, nil
}
