package dto

// BookMeetingRequest is the booking payload of POST /api/meetings.
type BookMeetingRequest struct {
	Email           string `json:"email"`
	Subject         string `json:"subject"`
	DateTime        string `json:"date_time" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description"`
	ProfileID       string `json:"profile_id"`
}
