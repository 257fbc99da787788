package models

import "time"

// ScanJobStatus tracks the lifecycle of a profile-wide scan run.
type ScanJobStatus string

const (
	ScanJobInProgress ScanJobStatus = "InProgress"
	ScanJobCompleted  ScanJobStatus = "Completed"
	ScanJobFailed     ScanJobStatus = "Failed"
	ScanJobCancelled  ScanJobStatus = "Cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s ScanJobStatus) Terminal() bool {
	return s != ScanJobInProgress
}

// ScanJob is one profile-wide scan run across a resolved broker set.
type ScanJob struct {
	ID               string        `json:"id"`
	ProfileID        string        `json:"profile_id"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Status           ScanJobStatus `json:"status"`
	TotalBrokers     int           `json:"total_brokers"`
	CompletedBrokers int           `json:"completed_brokers"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// BrokerScanStatus tracks one broker's participation in a scan job.
type BrokerScanStatus string

const (
	BrokerScanPending    BrokerScanStatus = "Pending"
	BrokerScanInProgress BrokerScanStatus = "InProgress"
	BrokerScanSuccess    BrokerScanStatus = "Success"
	BrokerScanFailed     BrokerScanStatus = "Failed"
	BrokerScanSkipped    BrokerScanStatus = "Skipped"
)

// BrokerScan is one broker's row within a scan job. One row per
// (job, broker); owned exclusively by the scan orchestrator.
type BrokerScan struct {
	ID            string           `json:"id"`
	ScanJobID     string           `json:"scan_job_id"`
	BrokerID      string           `json:"broker_id"`
	Status        BrokerScanStatus `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	FindingsCount int              `json:"findings_count"`
}

// VerificationStatus of a finding. PendingVerification is initial;
// Confirmed and Rejected are terminal and set only by explicit user action.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "PendingVerification"
	VerificationConfirmed VerificationStatus = "Confirmed"
	VerificationRejected  VerificationStatus = "Rejected"
)

// ExtractedData holds the structured fields pulled out of one broker
// result item. All fields are optional; selectors decide what gets filled.
type ExtractedData struct {
	Name      string   `json:"name,omitempty"`
	Age       int      `json:"age,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Relatives []string `json:"relatives,omitempty"`
	Emails    []string `json:"emails,omitempty"`
}

// Finding is one candidate PII listing discovered on a broker site.
// The listing URL is the dedup key, unique within the scan job.
type Finding struct {
	ID                 string             `json:"id"`
	BrokerScanID       string             `json:"broker_scan_id"`
	ScanJobID          string             `json:"scan_job_id"`
	BrokerID           string             `json:"broker_id"`
	ProfileID          string             `json:"profile_id"`
	ListingURL         string             `json:"listing_url"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Extracted          ExtractedData      `json:"extracted"`
	DiscoveredAt       time.Time          `json:"discovered_at"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	VerifiedByUser     bool               `json:"verified_by_user"`
	RemovalAttemptID   string             `json:"removal_attempt_id,omitempty"`
}

// RemovalStatus of an opt-out request.
type RemovalStatus string

const (
	RemovalPending    RemovalStatus = "Pending"
	RemovalProcessing RemovalStatus = "Processing"
	RemovalSubmitted  RemovalStatus = "Submitted"
	RemovalCompleted  RemovalStatus = "Completed"
	RemovalFailed     RemovalStatus = "Failed"
)

// CaptchaErrorPrefix marks a removal attempt blocked on a challenge. The
// rest of the error message is the challenge URL. Attempts carrying this
// prefix stay Pending and surface in the CAPTCHA queue.
const CaptchaErrorPrefix = "CAPTCHA_REQUIRED:"

// RemovalAttempt is one outstanding or resolved opt-out request for a
// confirmed finding. Completed is reached only via external email
// verification, never by the worker itself.
type RemovalAttempt struct {
	ID           string        `json:"id"`
	FindingID    string        `json:"finding_id"`
	BrokerID     string        `json:"broker_id"`
	Status       RemovalStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// CaptchaBlocked reports whether the attempt is parked in the CAPTCHA queue.
func (a *RemovalAttempt) CaptchaBlocked() bool {
	return a.Status == RemovalPending && len(a.ErrorMessage) > len(CaptchaErrorPrefix) &&
		a.ErrorMessage[:len(CaptchaErrorPrefix)] == CaptchaErrorPrefix
}

// CaptchaURL returns the challenge URL for a CAPTCHA-blocked attempt.
func (a *RemovalAttempt) CaptchaURL() string {
	if !a.CaptchaBlocked() {
		return ""
	}
	return a.ErrorMessage[len(CaptchaErrorPrefix):]
}
