package contracts

import "time"

type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalUnknown  ApprovalStatus = ""
)

// TransactionRecord is one lending/transaction row after column mapping.
// Type, Region and ApprovalStatus are empty when the source did not map them.
type TransactionRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	Amount         float64        `json:"amount"`
	Type           string         `json:"type,omitempty"`
	Region         string         `json:"region,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus,omitempty"`
}

// Schema records which optional columns the ingestion mapping supplied.
// A false flag disables the scoring factor that depends on the column.
type Schema struct {
	HasType     bool `json:"hasType"`
	HasRegion   bool `json:"hasRegion"`
	HasApproval bool `json:"hasApproval"`
}

// Dataset is an immutable snapshot handed to the engine.
type Dataset struct {
	ID      string              `json:"id"`
	Version string              `json:"version,omitempty"`
	Schema  Schema              `json:"schema"`
	Records []TransactionRecord `json:"records"`
}

// IngestNotice is published after a batch of transactions has been stored.
type IngestNotice struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Accepted  int       `json:"accepted"`
	Skipped   int       `json:"skipped"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type AlertRecord struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	DatasetID   string    `json:"dataset_id"`
	GroupKey    string    `json:"group_key"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Intensity   float64   `json:"intensity"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventNotice carries one detected event from the engine to alerting.
type EventNotice struct {
	DatasetID string    `json:"dataset_id"`
	GroupKey  string    `json:"group_key"`
	TimeRange string    `json:"time_range"`
	Detector  string    `json:"detector"`
	Event     Event     `json:"event"`
	Emitted   time.Time `json:"emitted"`
}
