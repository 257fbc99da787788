package events

import (
	"encoding/json"
	"time"
)

// Kinds published by the engine. Consumers (UI polling, CLI progress)
// subscribe to the hub and filter on Type.
const (
	KindScanBroker     = "scan:broker"
	KindRemovalStarted = "removal:started"
	KindRemovalSuccess = "removal:success"
	KindRemovalCaptcha = "removal:captcha"
	KindRemovalFailed  = "removal:failed"
	KindRemovalRetry   = "removal:retry"
)

// Event is the wire form pushed to subscribers. Data carries the
// kind-specific payload as raw JSON.
type Event struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BrokerScanData is the payload for KindScanBroker.
type BrokerScanData struct {
	ScanJobID string `json:"scan_job_id"`
	BrokerID  string `json:"broker_id"`
	Status    string `json:"status"`
	Findings  int    `json:"findings"`
	Error     string `json:"error,omitempty"`
}

// RemovalData is the payload for the removal:* kinds.
type RemovalData struct {
	BatchID   string `json:"batch_id,omitempty"`
	AttemptID string `json:"attempt_id"`
	BrokerID  string `json:"broker_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}

func Make(typ string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: typ, At: time.Now().UTC(), Data: raw}
}
