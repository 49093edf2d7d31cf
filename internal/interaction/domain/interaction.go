package domain

import (
	"time"

	"relaydesk-backend/pkg/types"
)

const (
	// SessionWindow bounds default history before the last contact
	SessionWindow       = 24 * time.Hour
	DefaultHistoryLimit = 20
)

// Metadata keys set by the responder
const (
	MetaScheduling = "scheduling"
	MetaMeetingID  = "meeting_id"
	MetaMediaURL   = "media_url"
	MetaMessageID  = "message_id"
)

// Interaction is one immutable message exchanged with a profile.
type Interaction struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	OwnerID    string         `json:"owner_id" gorm:"not null;index"`
	ProfileID  string         `json:"profile_id" gorm:"not null;index:idx_interactions_profile_time,priority:1"`
	Channel    types.Channel  `json:"channel" gorm:"not null"`
	Direction  string         `json:"direction" gorm:"not null"`
	Content    string         `json:"content" gorm:"type:text"`
	Metadata   types.Metadata `json:"metadata" gorm:"type:text"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"not null;index:idx_interactions_profile_time,priority:2"`
	CreatedAt  time.Time      `json:"created_at"`
}

// FromCustomer reports whether the profile sent this interaction.
func (i *Interaction) FromCustomer() bool {
	return i.Direction == types.DirectionInbound
}

// HistoryOptions controls the session window of RecentHistory.
type HistoryOptions struct {
	// Channel picks whose last contact anchors the window; empty means any.
	Channel types.Channel
	// CrossSession disables the window entirely.
	CrossSession bool
}

// HistoryQuery is the repository-level history filter.
type HistoryQuery struct {
	OwnerID   string
	ProfileID string
	Since     *time.Time
	Limit     int
}
