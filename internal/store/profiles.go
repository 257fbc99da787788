package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrProfileNotFound = errors.New("store: profile not found")

// SaveProfileBlob upserts one encrypted profile blob.
func (s *Store) SaveProfileBlob(id string, blob []byte, updatedAt time.Time) error {
	_, err := s.db.Exec(`
INSERT INTO profiles (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, blob, fmtTime(updatedAt), fmtTime(updatedAt))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfileBlob(id string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT data FROM profiles WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *Store) ListProfileIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteProfileBlob(id string) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}
