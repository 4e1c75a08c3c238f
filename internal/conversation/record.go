package conversation

import (
	"encoding/json"
	"time"
)

// ReportStatus tracks a record's position in the report state machine.
type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusGenerating ReportStatus = "generating"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
)

// Default values applied when the webhook payload carried no metadata.
const (
	UnknownAppointment  = "unknown"
	UnknownPatientName  = "Unknown Patient"
	UnknownCallDuration = "Unknown"
)

// Record is a stored voice-consultation conversation. One record is created
// per inbound webhook; the report fields are populated lazily when a
// clinician first requests the report.
type Record struct {
	ConversationID    string
	AppointmentID     string
	Transcript        string
	PatientName       string
	CallDuration      string
	WebhookData       json.RawMessage
	ReportStatus      ReportStatus
	GeneratedReport   *string
	ReportGeneratedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasReport reports whether a completed report is available.
func (r *Record) HasReport() bool {
	return r.ReportStatus == StatusCompleted && r.GeneratedReport != nil
}
