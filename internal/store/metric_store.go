package store

import (
	"database/sql"
	"fmt"

	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// retentionLimit is the newest-N sync metric rows kept globally per the
// sync engine's metrics retention contract.
const retentionLimit = 1000

// MetricStore persists SyncMetric rows and prunes old ones.
type MetricStore struct {
	db  *database.DB
	log zerolog.Logger
}

func NewMetricStore(db *database.DB) *MetricStore {
	return &MetricStore{db: db, log: logging.WithComponent("store.metric")}
}

// Append records a sync attempt and prunes to the newest retentionLimit
// rows globally.
func (s *MetricStore) Append(m *SyncMetric) (*SyncMetric, error) {
	var created *SyncMetric
	err := s.db.WithWrite(func() error {
		res, err := s.db.Exec(`
			INSERT INTO sync_metrics (account_id, provider, sync_type, added, deleted, labels_changed, duration_ms, success, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.AccountID, m.Provider, m.SyncType, m.Added, m.Deleted, m.LabelsChanged, m.DurationMs, m.Success, nullString(m.Error))
		if err != nil {
			return fmt.Errorf("store: append sync metric: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := s.db.Exec(`
			DELETE FROM sync_metrics WHERE id NOT IN (
				SELECT id FROM sync_metrics ORDER BY synced_at DESC LIMIT ?
			)
		`, retentionLimit); err != nil {
			return fmt.Errorf("store: prune sync metrics: %w", err)
		}

		row := s.db.QueryRow(metricSelectSQL+" WHERE id = ?", id)
		created, err = scanMetric(row)
		return err
	})
	return created, err
}

func (s *MetricStore) ListForAccount(accountID int64, limit int) ([]*SyncMetric, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.Query(metricSelectSQL+" WHERE account_id = ? ORDER BY synced_at DESC LIMIT ?", accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sync metrics: %w", err)
	}
	defer rows.Close()

	var out []*SyncMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const metricSelectSQL = `
	SELECT id, account_id, provider, sync_type, added, deleted, labels_changed, duration_ms, success, error, synced_at
	FROM sync_metrics
`

func scanMetric(row scanner) (*SyncMetric, error) {
	var m SyncMetric
	var errMsg sql.NullString
	var syncedAt string

	if err := row.Scan(
		&m.ID, &m.AccountID, &m.Provider, &m.SyncType, &m.Added, &m.Deleted,
		&m.LabelsChanged, &m.DurationMs, &m.Success, &errMsg, &syncedAt,
	); err != nil {
		return nil, err
	}

	m.Error = errMsg.String
	m.SyncedAt = mustTimeString(syncedAt)

	return &m, nil
}
