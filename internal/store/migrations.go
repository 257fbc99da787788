package store

// Schema versions are stepped through PRAGMA user_version so upgrades
// from any released version replay only the missing steps.

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v < 1 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS profiles (
  id         TEXT PRIMARY KEY,
  data       BLOB NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_jobs (
  id                TEXT PRIMARY KEY,
  profile_id        TEXT NOT NULL,
  status            TEXT NOT NULL,
  total_brokers     INTEGER NOT NULL DEFAULT 0,
  completed_brokers INTEGER NOT NULL DEFAULT 0,
  error_message     TEXT NOT NULL DEFAULT '',
  started_at        TEXT NOT NULL,
  completed_at      TEXT
);

CREATE TABLE IF NOT EXISTS broker_scans (
  id             TEXT PRIMARY KEY,
  scan_job_id    TEXT NOT NULL REFERENCES scan_jobs(id),
  broker_id      TEXT NOT NULL,
  status         TEXT NOT NULL,
  error_message  TEXT NOT NULL DEFAULT '',
  findings_count INTEGER NOT NULL DEFAULT 0,
  started_at     TEXT NOT NULL,
  completed_at   TEXT,
  UNIQUE (scan_job_id, broker_id)
);

CREATE TABLE IF NOT EXISTS findings (
  id                  TEXT PRIMARY KEY,
  broker_scan_id      TEXT NOT NULL REFERENCES broker_scans(id),
  scan_job_id         TEXT NOT NULL REFERENCES scan_jobs(id),
  broker_id           TEXT NOT NULL,
  profile_id          TEXT NOT NULL,
  listing_url         TEXT NOT NULL,
  url_hash            TEXT NOT NULL,
  verification_status TEXT NOT NULL,
  extracted           TEXT NOT NULL DEFAULT '{}',
  discovered_at       TEXT NOT NULL,
  verified_at         TEXT,
  verified_by_user    INTEGER NOT NULL DEFAULT 0,
  removal_attempt_id  TEXT NOT NULL DEFAULT '',
  UNIQUE (scan_job_id, listing_url)
);
CREATE INDEX IF NOT EXISTS idx_findings_url_hash ON findings(url_hash);
CREATE INDEX IF NOT EXISTS idx_findings_verification ON findings(verification_status);

CREATE TABLE IF NOT EXISTS removal_attempts (
  id            TEXT PRIMARY KEY,
  finding_id    TEXT NOT NULL REFERENCES findings(id),
  broker_id     TEXT NOT NULL,
  status        TEXT NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL,
  submitted_at  TEXT,
  completed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_removal_attempts_status ON removal_attempts(status);

CREATE TABLE IF NOT EXISTS removal_evidence (
  id          TEXT PRIMARY KEY,
  attempt_id  TEXT NOT NULL REFERENCES removal_attempts(id),
  kind        TEXT NOT NULL,
  screenshot  BLOB NOT NULL,
  captured_at TEXT NOT NULL
);
`); err != nil {
			return err
		}
		if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
			return err
		}
	}

	return tx.Commit()
}
