package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/delist-sh/delist/pkg/models"
)

var (
	ErrFindingNotFound   = errors.New("store: finding not found")
	ErrVerificationFinal = errors.New("store: verification status is final")
	ErrAttemptLinked     = errors.New("store: finding already has a removal attempt")
)

// urlHash is a cheap indexed fingerprint of the listing URL used for
// dedup lookups across jobs. Uniqueness is still enforced on the URL
// text itself.
func urlHash(listingURL string) string {
	return strconv.FormatUint(xxh3.HashString(listingURL), 16)
}

// InsertFinding stores a finding unless the same listing URL was
// already recorded for the job. Returns whether a row was written.
func (s *Store) InsertFinding(f *models.Finding) (bool, error) {
	extracted, err := json.Marshal(f.Extracted)
	if err != nil {
		return false, fmt.Errorf("encode extracted data: %w", err)
	}

	res, err := s.db.Exec(`
INSERT INTO findings (id, broker_scan_id, scan_job_id, broker_id, profile_id, listing_url, url_hash,
                      verification_status, extracted, discovered_at, verified_at, verified_by_user, removal_attempt_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (scan_job_id, listing_url) DO NOTHING`,
		f.ID, f.BrokerScanID, f.ScanJobID, f.BrokerID, f.ProfileID, f.ListingURL, urlHash(f.ListingURL),
		string(f.VerificationStatus), string(extracted), fmtTime(f.DiscoveredAt),
		fmtTimePtr(f.VerifiedAt), boolToInt(f.VerifiedByUser), f.RemovalAttemptID)
	if err != nil {
		return false, fmt.Errorf("insert finding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetFinding(id string) (*models.Finding, error) {
	row := s.db.QueryRow(findingSelect+` WHERE id = ?`, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFindingNotFound
	}
	return f, err
}

func (s *Store) ListFindings(scanJobID string) ([]models.Finding, error) {
	return s.queryFindings(findingSelect+` WHERE scan_job_id = ? ORDER BY discovered_at`, scanJobID)
}

func (s *Store) ListFindingsByVerification(status models.VerificationStatus) ([]models.Finding, error) {
	return s.queryFindings(findingSelect+` WHERE verification_status = ? ORDER BY discovered_at`, string(status))
}

// SetVerification moves a finding out of PendingVerification. Confirmed
// and Rejected are terminal; revisiting either returns ErrVerificationFinal.
func (s *Store) SetVerification(id string, status models.VerificationStatus, at time.Time) error {
	if status != models.VerificationConfirmed && status != models.VerificationRejected {
		return fmt.Errorf("store: invalid verification target %q", status)
	}
	res, err := s.db.Exec(`
UPDATE findings SET verification_status = ?, verified_at = ?, verified_by_user = 1
WHERE id = ? AND verification_status = ?`,
		string(status), fmtTime(at), id, string(models.VerificationPending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetFinding(id); err != nil {
			return err
		}
		return ErrVerificationFinal
	}
	return nil
}

// LinkRemovalAttempt records the one attempt a finding may carry.
func (s *Store) LinkRemovalAttempt(findingID, attemptID string) error {
	res, err := s.db.Exec(`
UPDATE findings SET removal_attempt_id = ? WHERE id = ? AND removal_attempt_id = ''`,
		attemptID, findingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetFinding(findingID); err != nil {
			return err
		}
		return ErrAttemptLinked
	}
	return nil
}

// ListConfirmedWithoutAttempt returns findings the user confirmed that
// have no removal attempt yet, oldest first.
func (s *Store) ListConfirmedWithoutAttempt() ([]models.Finding, error) {
	return s.queryFindings(findingSelect+`
 WHERE verification_status = ? AND removal_attempt_id = '' ORDER BY verified_at`,
		string(models.VerificationConfirmed))
}

const findingSelect = `
SELECT id, broker_scan_id, scan_job_id, broker_id, profile_id, listing_url,
       verification_status, extracted, discovered_at, verified_at, verified_by_user, removal_attempt_id
FROM findings`

func (s *Store) queryFindings(query string, args ...interface{}) ([]models.Finding, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *f)
	}
	return findings, rows.Err()
}

func scanFinding(r rowScanner) (*models.Finding, error) {
	var (
		f            models.Finding
		status       string
		extracted    string
		discoveredAt string
		verifiedAt   sql.NullString
		verifiedBy   int
	)
	if err := r.Scan(&f.ID, &f.BrokerScanID, &f.ScanJobID, &f.BrokerID, &f.ProfileID,
		&f.ListingURL, &status, &extracted, &discoveredAt, &verifiedAt, &verifiedBy,
		&f.RemovalAttemptID); err != nil {
		return nil, err
	}
	f.VerificationStatus = models.VerificationStatus(status)
	if err := json.Unmarshal([]byte(extracted), &f.Extracted); err != nil {
		return nil, fmt.Errorf("decode extracted data: %w", err)
	}
	f.DiscoveredAt = parseTime(discoveredAt)
	f.VerifiedAt = parseTimePtr(verifiedAt)
	f.VerifiedByUser = verifiedBy != 0
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
