package dto

// UpsertAccountRequest provisions or updates the caller's account.
// Secrets are accepted in plaintext and stored encrypted.
type UpsertAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`

	MailProvider string   `json:"mail_provider" binding:"omitempty,oneof=gmail imap none"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ImapHost     string   `json:"imap_host"`
	ImapPort     int      `json:"imap_port"`
	ImapUsername string   `json:"imap_username"`
	ImapPassword string   `json:"imap_password"`
	MailFolder   string   `json:"mail_folder"`
	MailScope    string   `json:"mail_scope" binding:"omitempty,oneof=unread-only all"`
	FetchLimit   int      `json:"fetch_limit" binding:"omitempty,min=1,max=200"`
	OutboundFrom []string `json:"outbound_from"`

	CalendarActive *bool  `json:"calendar_active"`
	CalendarID     string `json:"calendar_id"`

	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id"`
	WhatsAppAccessToken   string `json:"whatsapp_access_token"`

	SystemPrompt *string `json:"system_prompt"`
}

type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}
