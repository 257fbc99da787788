package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/delist-sh/delist/pkg/models"
)

// CreateBrokerScans inserts the full broker set for a job in one
// transaction. The UNIQUE(scan_job_id, broker_id) constraint rejects a
// broker appearing twice in the same job.
func (s *Store) CreateBrokerScans(scans []models.BrokerScan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i := range scans {
		bs := &scans[i]
		if _, err := tx.Exec(`
INSERT INTO broker_scans (id, scan_job_id, broker_id, status, error_message, findings_count, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bs.ID, bs.ScanJobID, bs.BrokerID, string(bs.Status), bs.ErrorMessage,
			bs.FindingsCount, fmtTime(bs.StartedAt), fmtTimePtr(bs.CompletedAt)); err != nil {
			return fmt.Errorf("create broker scan %s/%s: %w", bs.ScanJobID, bs.BrokerID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateBrokerScan(id string, status models.BrokerScanStatus, errMsg string, findings int, completedAt *time.Time) error {
	res, err := s.db.Exec(`
UPDATE broker_scans SET status = ?, error_message = ?, findings_count = ?, completed_at = ?
WHERE id = ?`,
		string(status), errMsg, findings, fmtTimePtr(completedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("broker scan %s not found", id)
	}
	return nil
}

func (s *Store) ListBrokerScans(scanJobID string) ([]models.BrokerScan, error) {
	rows, err := s.db.Query(`
SELECT id, scan_job_id, broker_id, status, error_message, findings_count, started_at, completed_at
FROM broker_scans WHERE scan_job_id = ? ORDER BY broker_id`, scanJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []models.BrokerScan
	for rows.Next() {
		var (
			bs          models.BrokerScan
			status      string
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&bs.ID, &bs.ScanJobID, &bs.BrokerID, &status,
			&bs.ErrorMessage, &bs.FindingsCount, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		bs.Status = models.BrokerScanStatus(status)
		bs.StartedAt = parseTime(startedAt)
		bs.CompletedAt = parseTimePtr(completedAt)
		scans = append(scans, bs)
	}
	return scans, rows.Err()
}
