package store

import (
	"time"

	"github.com/google/uuid"
)

// Evidence is an artifact captured during a removal submission,
// currently always a full-page screenshot of the broker form.
type Evidence struct {
	ID         string    `json:"id"`
	AttemptID  string    `json:"attempt_id"`
	Kind       string    `json:"kind"`
	Screenshot []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

const EvidenceScreenshot = "screenshot"

func (s *Store) AddEvidence(attemptID, kind string, screenshot []byte, now time.Time) (*Evidence, error) {
	e := &Evidence{
		ID:         uuid.New().String(),
		AttemptID:  attemptID,
		Kind:       kind,
		Screenshot: screenshot,
		CapturedAt: now,
	}
	_, err := s.db.Exec(`
INSERT INTO removal_evidence (id, attempt_id, kind, screenshot, captured_at)
VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.AttemptID, e.Kind, e.Screenshot, fmtTime(e.CapturedAt))
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListEvidence(attemptID string) ([]Evidence, error) {
	rows, err := s.db.Query(`
SELECT id, attempt_id, kind, screenshot, captured_at
FROM removal_evidence WHERE attempt_id = ? ORDER BY captured_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Evidence
	for rows.Next() {
		var (
			e  Evidence
			at string
		)
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.Kind, &e.Screenshot, &at); err != nil {
			return nil, err
		}
		e.CapturedAt = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
