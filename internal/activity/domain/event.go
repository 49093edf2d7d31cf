package domain

import (
	"time"

	"relaydesk-backend/pkg/types"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event kinds written by the pipeline
const (
	KindMeetingBooked      = "meeting_booked"
	KindMeetingFailed      = "meeting_failed"
	KindMeetingCancelled   = "meeting_cancelled"
	KindLedgerWriteFailed  = "ledger_write_failed"
	KindSyncFailing        = "sync_failing"
	KindDeliveryFailed     = "delivery_failed"
	KindProfilesMerged     = "profiles_merged"
	KindReplyGenerationErr = "reply_generation_failed"
)

// ActivityEvent is an append-only operational log entry.
type ActivityEvent struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	OwnerID   string         `json:"owner_id,omitempty" gorm:"index"`
	Kind      string         `json:"kind" gorm:"index"`
	Severity  string         `json:"severity" gorm:"index"`
	Message   string         `json:"message"`
	Metadata  types.Metadata `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Severity string
	Kind     string
	Limit    int
}
