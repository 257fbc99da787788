package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/delist-sh/delist/pkg/models"
)

var ErrScanJobNotFound = errors.New("store: scan job not found")

func (s *Store) CreateScanJob(job *models.ScanJob) error {
	_, err := s.db.Exec(`
INSERT INTO scan_jobs (id, profile_id, status, total_brokers, completed_brokers, error_message, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProfileID, string(job.Status), job.TotalBrokers, job.CompletedBrokers,
		job.ErrorMessage, fmtTime(job.StartedAt), fmtTimePtr(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("create scan job: %w", err)
	}
	return nil
}

func (s *Store) GetScanJob(id string) (*models.ScanJob, error) {
	row := s.db.QueryRow(`
SELECT id, profile_id, status, total_brokers, completed_brokers, error_message, started_at, completed_at
FROM scan_jobs WHERE id = ?`, id)
	job, err := scanScanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanJobNotFound
	}
	return job, err
}

func (s *Store) ListScanJobs(limit int) ([]models.ScanJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
SELECT id, profile_id, status, total_brokers, completed_brokers, error_message, started_at, completed_at
FROM scan_jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ScanJob
	for rows.Next() {
		job, err := scanScanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// IncrementScanJobProgress bumps completed_brokers by one and returns
// the new count, so the orchestrator can detect the last broker without
// holding its own counter across goroutines.
func (s *Store) IncrementScanJobProgress(id string) (int, error) {
	if _, err := s.db.Exec(`
UPDATE scan_jobs SET completed_brokers = completed_brokers + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(`SELECT completed_brokers FROM scan_jobs WHERE id = ?`, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// FinishScanJob moves a job to a terminal status. A job already
// terminal is left untouched.
func (s *Store) FinishScanJob(id string, status models.ScanJobStatus, errMsg string, at time.Time) error {
	res, err := s.db.Exec(`
UPDATE scan_jobs SET status = ?, error_message = ?, completed_at = ?
WHERE id = ? AND status = ?`,
		string(status), errMsg, fmtTime(at), id, string(models.ScanJobInProgress))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scan job %s is not in progress", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScanJob(r rowScanner) (*models.ScanJob, error) {
	var (
		job         models.ScanJob
		status      string
		startedAt   string
		completedAt sql.NullString
	)
	if err := r.Scan(&job.ID, &job.ProfileID, &status, &job.TotalBrokers,
		&job.CompletedBrokers, &job.ErrorMessage, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	job.Status = models.ScanJobStatus(status)
	job.StartedAt = parseTime(startedAt)
	job.CompletedAt = parseTimePtr(completedAt)
	return &job, nil
}
