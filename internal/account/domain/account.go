package domain

import (
	"errors"
	"time"

	"relaydesk-backend/pkg/types"
)

// Mail providers
const (
	MailProviderNone  = ""
	MailProviderGmail = "gmail"
	MailProviderIMAP  = "imap"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidProvider    = errors.New("unsupported mail provider")
	ErrMissingCredentials = errors.New("mail credentials are incomplete")
)

// Account owns every profile, message and meeting in the system.
// Secret columns hold ciphertext produced by pkg/crypto.
type Account struct {
	ID    string `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Email string `json:"email" gorm:"index"`

	// Mail integration
	MailProvider string            `json:"mail_provider"`
	AccessToken  string            `json:"-"`
	RefreshToken string            `json:"-"`
	ImapHost     string            `json:"imap_host,omitempty"`
	ImapPort     int               `json:"imap_port,omitempty"`
	ImapUsername string            `json:"imap_username,omitempty"`
	ImapPassword string            `json:"-"`
	MailFolder   string            `json:"mail_folder"`
	MailScope    string            `json:"mail_scope"`
	FetchLimit   int               `json:"fetch_limit"`
	OutboundFrom types.StringArray `json:"outbound_from" gorm:"type:text"`

	// Calendar integration (uses the Google OAuth token)
	CalendarActive bool   `json:"calendar_active"`
	CalendarID     string `json:"calendar_id"`

	// WhatsApp Cloud API
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id,omitempty"`
	WhatsAppAccessToken   string `json:"-"`

	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasMail reports whether the account has a mail integration to poll.
func (a *Account) HasMail() bool {
	switch a.MailProvider {
	case MailProviderGmail:
		return a.AccessToken != "" || a.RefreshToken != ""
	case MailProviderIMAP:
		return a.ImapHost != "" && a.ImapUsername != ""
	}
	return false
}

// SendingAddresses lists every address the responder sends from.
func (a *Account) SendingAddresses() []string {
	out := make([]string, 0, len(a.OutboundFrom)+2)
	if a.Email != "" {
		out = append(out, a.Email)
	}
	if a.ImapUsername != "" {
		out = append(out, a.ImapUsername)
	}
	return append(out, a.OutboundFrom...)
}
