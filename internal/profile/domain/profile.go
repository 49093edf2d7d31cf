package domain

import (
	"errors"
	"time"

	"relaydesk-backend/pkg/types"
)

var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrSelfMerge         = errors.New("cannot merge a profile into itself")
	ErrCrossOwnerMerge   = errors.New("profiles belong to different owners")
	ErrIdentifierTaken   = errors.New("identifier already belongs to another profile")
	ErrMissingIdentifier = errors.New("no identifier to resolve a profile from")
)

// Profile is one contact, unified across channels. Email, phone and chat id
// are unique per owner; NULLs never collide.
type Profile struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	OwnerID     string         `json:"owner_id" gorm:"not null;index;uniqueIndex:idx_profiles_owner_email,priority:1;uniqueIndex:idx_profiles_owner_phone,priority:1;uniqueIndex:idx_profiles_owner_chat,priority:1"`
	Name        *string        `json:"name,omitempty"`
	Email       *string        `json:"email,omitempty" gorm:"uniqueIndex:idx_profiles_owner_email,priority:2"`
	Phone       *string        `json:"phone,omitempty" gorm:"uniqueIndex:idx_profiles_owner_phone,priority:2"`
	ChatID      *string        `json:"chat_id,omitempty" gorm:"uniqueIndex:idx_profiles_owner_chat,priority:2"`
	LastChannel types.Channel  `json:"last_channel"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	Metadata    types.Metadata `json:"metadata" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ResolveRequest identifies an inbound contact.
type ResolveRequest struct {
	OwnerID   string
	Channel   types.Channel
	ContactID string // channel-native identifier: phone, email address or chat id
	Content   string
	ProfileID string // explicit id from a trusted caller, wins over everything
}

// ProfileUpdate overwrites fields from a verified source. Nil leaves a
// field untouched; a pointer to "" clears it.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Phone    *string
	ChatID   *string
	Metadata types.Metadata
}

// MergeSuggestion pairs two profiles that likely describe one person.
type MergeSuggestion struct {
	Source *Profile `json:"source"`
	Target *Profile `json:"target"`
	Reason string   `json:"reason"`
}

// Identifiers are the contact details found in free text.
type Identifiers struct {
	Email string
	Phone string
	Name  string
}

// Column names of the fillable identifier fields
const (
	ColumnName   = "name"
	ColumnEmail  = "email"
	ColumnPhone  = "phone"
	ColumnChatID = "chat_id"
)

// Field returns the current value of column, or "" when unset.
func (p *Profile) Field(column string) string {
	var v *string
	switch column {
	case ColumnName:
		v = p.Name
	case ColumnEmail:
		v = p.Email
	case ColumnPhone:
		v = p.Phone
	case ColumnChatID:
		v = p.ChatID
	}
	if v == nil {
		return ""
	}
	return *v
}

// DisplayName returns the best human label for the profile.
func (p *Profile) DisplayName() string {
	for _, c := range []string{ColumnName, ColumnEmail, ColumnPhone, ColumnChatID} {
		if v := p.Field(c); v != "" {
			return v
		}
	}
	return p.ID
}
