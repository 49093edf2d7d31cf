package domain

import (
	"errors"
	"time"

	"relaydesk-backend/pkg/types"
)

var ErrMessageNotFound = errors.New("message not found")

// Delivery statuses
const (
	StatusReceived   = "received"
	StatusSuppressed = "suppressed"
	StatusQueued     = "queued"
	StatusSent       = "sent"
	StatusDelivered  = "delivered"
	StatusRead       = "read"
	StatusFailed     = "failed"
)

// statusRank orders outbound progress; a status never moves backwards.
var statusRank = map[string]int{
	StatusQueued:    1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// Advances reports whether moving from current to next is progress.
// Failed is terminal, and applies only before delivery.
func Advances(current, next string) bool {
	if current == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return statusRank[current] < statusRank[StatusDelivered]
	}
	return statusRank[next] > statusRank[current]
}

// Message is an ingested or sent transport message. MessageID is the
// transport's id and is unique per owner when present.
type Message struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	OwnerID           string        `json:"owner_id" gorm:"not null;index:idx_messages_recent,priority:1;uniqueIndex:idx_messages_owner_message_id,priority:1"`
	Direction         string        `json:"direction" gorm:"not null;index"`
	Transport         types.Channel `json:"transport" gorm:"not null;index:idx_messages_recent,priority:2"`
	Sender            string        `json:"sender" gorm:"index:idx_messages_recent,priority:3"`
	Recipient         string        `json:"recipient"`
	Subject           string        `json:"subject"`
	Body              string        `json:"body" gorm:"type:text"`
	MediaURL          string        `json:"media_url,omitempty"`
	ReceivedAt        time.Time     `json:"received_at" gorm:"index:idx_messages_recent,priority:4"`
	Status            string        `json:"status" gorm:"index"`
	MessageID         *string       `json:"message_id,omitempty" gorm:"uniqueIndex:idx_messages_owner_message_id,priority:2"`
	ProviderID        string        `json:"provider_id,omitempty"`
	InReplyTo         string        `json:"in_reply_to,omitempty"`
	IsReplied         bool          `json:"is_replied" gorm:"index;default:false"`
	ProfileID         *string       `json:"profile_id,omitempty" gorm:"index"`
	SuppressionReason string        `json:"suppression_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// ExternalID returns the transport message id or "".
func (m *Message) ExternalID() string {
	if m.MessageID == nil {
		return ""
	}
	return *m.MessageID
}

// Decision is the outcome of Accept.
type Decision struct {
	Accepted bool
	// Reason names the duplicate check or loop rule that rejected the message.
	Reason     string
	Duplicate  bool
	Suppressed bool
}

// Rejection reasons for duplicates
const (
	ReasonDuplicateID     = "duplicate_message_id"
	ReasonDuplicateWindow = "duplicate_within_window"
)

// ListFilter narrows the dashboard message list.
type ListFilter struct {
	Direction string
	Transport types.Channel
	Status    string
	Limit     int
	Offset    int
}
