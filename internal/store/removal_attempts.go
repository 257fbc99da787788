package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delist-sh/delist/pkg/models"
)

var (
	ErrAttemptNotFound   = errors.New("store: removal attempt not found")
	ErrBadStatusTransfer = errors.New("store: status transition rejected")
)

func (s *Store) CreateRemovalAttempt(a *models.RemovalAttempt) error {
	_, err := s.db.Exec(`
INSERT INTO removal_attempts (id, finding_id, broker_id, status, error_message, created_at, updated_at, submitted_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FindingID, a.BrokerID, string(a.Status), a.ErrorMessage,
		fmtTime(a.CreatedAt), fmtTime(a.CreatedAt), fmtTimePtr(a.SubmittedAt), fmtTimePtr(a.CompletedAt))
	if err != nil {
		return fmt.Errorf("create removal attempt: %w", err)
	}
	return nil
}

// CreateAttemptForFinding makes one Pending attempt for a confirmed
// finding and links the finding to it in the same transaction. A
// finding that is not Confirmed, or already linked, is rejected.
func (s *Store) CreateAttemptForFinding(findingID string, now time.Time) (*models.RemovalAttempt, error) {
	f, err := s.GetFinding(findingID)
	if err != nil {
		return nil, err
	}
	if f.VerificationStatus != models.VerificationConfirmed {
		return nil, fmt.Errorf("store: finding %s is not confirmed", findingID)
	}
	if f.RemovalAttemptID != "" {
		return nil, ErrAttemptLinked
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	a := &models.RemovalAttempt{
		ID:        uuid.New().String(),
		FindingID: f.ID,
		BrokerID:  f.BrokerID,
		Status:    models.RemovalPending,
		CreatedAt: now,
	}
	if _, err := tx.Exec(`
INSERT INTO removal_attempts (id, finding_id, broker_id, status, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, '', ?, ?)`,
		a.ID, a.FindingID, a.BrokerID, string(a.Status), fmtTime(now), fmtTime(now)); err != nil {
		return nil, fmt.Errorf("create attempt for finding %s: %w", f.ID, err)
	}
	res, err := tx.Exec(`
UPDATE findings SET removal_attempt_id = ? WHERE id = ? AND removal_attempt_id = ''`,
		a.ID, f.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAttemptLinked
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) GetRemovalAttempt(id string) (*models.RemovalAttempt, error) {
	row := s.db.QueryRow(attemptSelect+` WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

// MarkProcessing claims a Pending attempt for a worker. The guard makes
// two workers racing on the same attempt resolve to a single claim.
func (s *Store) MarkProcessing(id string, now time.Time) error {
	return s.transition(id, models.RemovalProcessing, "", nil, nil, now,
		models.RemovalPending)
}

func (s *Store) MarkSubmitted(id string, now time.Time) error {
	at := now
	return s.transition(id, models.RemovalSubmitted, "", &at, nil, now,
		models.RemovalProcessing)
}

func (s *Store) MarkFailed(id, errMsg string, now time.Time) error {
	return s.transition(id, models.RemovalFailed, errMsg, nil, nil, now,
		models.RemovalProcessing, models.RemovalPending)
}

// MarkCaptchaBlocked parks the attempt back in Pending with the
// challenge URL folded into the error message.
func (s *Store) MarkCaptchaBlocked(id, captchaURL string, now time.Time) error {
	return s.transition(id, models.RemovalPending,
		models.CaptchaErrorPrefix+captchaURL, nil, nil, now,
		models.RemovalProcessing)
}

// MarkCompleted records external confirmation that the listing is gone.
func (s *Store) MarkCompleted(id string, now time.Time) error {
	at := now
	return s.transition(id, models.RemovalCompleted, "", nil, &at, now,
		models.RemovalSubmitted)
}

// ResetToPending rearms a Failed attempt for a manual retry.
func (s *Store) ResetToPending(id string, now time.Time) error {
	return s.transition(id, models.RemovalPending, "", nil, nil, now,
		models.RemovalFailed)
}

func (s *Store) transition(id string, to models.RemovalStatus, errMsg string,
	submittedAt, completedAt *time.Time, now time.Time, from ...models.RemovalStatus) error {

	query := `UPDATE removal_attempts SET status = ?, error_message = ?, updated_at = ?`
	args := []interface{}{string(to), errMsg, fmtTime(now)}
	if submittedAt != nil {
		query += `, submitted_at = ?`
		args = append(args, fmtTime(*submittedAt))
	}
	if completedAt != nil {
		query += `, completed_at = ?`
		args = append(args, fmtTime(*completedAt))
	}
	query += ` WHERE id = ? AND status IN (`
	args = append(args, id)
	for i, f := range from {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(f))
	}
	query += ")"

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRemovalAttempt(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: attempt %s to %s", ErrBadStatusTransfer, id, to)
	}
	return nil
}

// CaptchaQueue lists attempts parked on a challenge, oldest first.
func (s *Store) CaptchaQueue() ([]models.RemovalAttempt, error) {
	return s.queryAttempts(attemptSelect+`
 WHERE status = ? AND error_message LIKE ? ORDER BY created_at ASC`,
		string(models.RemovalPending), models.CaptchaErrorPrefix+"%")
}

// FailedQueue lists failed attempts, most recent first.
func (s *Store) FailedQueue() ([]models.RemovalAttempt, error) {
	return s.queryAttempts(attemptSelect+`
 WHERE status = ? ORDER BY created_at DESC`, string(models.RemovalFailed))
}

// PendingAttempts lists attempts ready for a worker, excluding those
// parked on a CAPTCHA, oldest first.
func (s *Store) PendingAttempts() ([]models.RemovalAttempt, error) {
	return s.queryAttempts(attemptSelect+`
 WHERE status = ? AND error_message NOT LIKE ? ORDER BY created_at ASC`,
		string(models.RemovalPending), models.CaptchaErrorPrefix+"%")
}

// ReconcileStale rolls Processing attempts older than the cutoff back
// to Pending. Run at startup to recover from a crashed worker.
func (s *Store) ReconcileStale(olderThan time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-olderThan)
	res, err := s.db.Exec(`
UPDATE removal_attempts SET status = ?, updated_at = ?
WHERE status = ? AND updated_at < ?`,
		string(models.RemovalPending), fmtTime(now),
		string(models.RemovalProcessing), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const attemptSelect = `
SELECT id, finding_id, broker_id, status, error_message, created_at, submitted_at, completed_at
FROM removal_attempts`

func (s *Store) queryAttempts(query string, args ...interface{}) ([]models.RemovalAttempt, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.RemovalAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanAttempt(r rowScanner) (*models.RemovalAttempt, error) {
	var (
		a           models.RemovalAttempt
		status      string
		createdAt   string
		submittedAt sql.NullString
		completedAt sql.NullString
	)
	if err := r.Scan(&a.ID, &a.FindingID, &a.BrokerID, &status, &a.ErrorMessage,
		&createdAt, &submittedAt, &completedAt); err != nil {
		return nil, err
	}
	a.Status = models.RemovalStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.SubmittedAt = parseTimePtr(submittedAt)
	a.CompletedAt = parseTimePtr(completedAt)
	return &a, nil
}
