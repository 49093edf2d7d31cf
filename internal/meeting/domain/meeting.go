package domain

import (
	"context"
	"errors"
	"time"

	"relaydesk-backend/pkg/calendar"
)

var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting statuses
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

// Failure codes returned by Schedule
const (
	CodeCalendarNotConfigured = "CALENDAR_NOT_CONFIGURED"
	CodeInvalidDateFormat     = "INVALID_DATE_FORMAT"
	CodePastDate              = "PAST_DATE"
	CodeTimeConflict          = "TIME_CONFLICT"
	CodeCalendarAPIError      = "CALENDAR_API_ERROR"
)

// Meeting is a booked calendar event. Rows are never deleted.
type Meeting struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	OwnerID         string     `json:"owner_id" gorm:"index;not null"`
	ProfileID       *string    `json:"profile_id,omitempty" gorm:"index"`
	AttendeeEmail   string     `json:"attendee_email"`
	Subject         string     `json:"subject"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"start_time" gorm:"index"`
	EndTime         time.Time  `json:"end_time"`
	Status          string     `json:"status" gorm:"index;default:scheduled"`
	ExternalEventID string     `json:"external_event_id"`
	JoinLink        string     `json:"join_link,omitempty"`
	ReminderSent    bool       `json:"reminder_sent" gorm:"default:false"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BookingRequest asks for one meeting. DateTime is a local wall-clock
// string in one of the supported layouts.
type BookingRequest struct {
	AttendeeEmail   string
	Subject         string
	DateTime        string
	DurationMinutes int
	Description     string
	ProfileID       string
}

// BookingResult is the outcome of Schedule. Message is always safe to show
// to the customer.
type BookingResult struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	EventID   string   `json:"event_id,omitempty"`
	JoinLink  string   `json:"join_link,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Meeting   *Meeting `json:"meeting,omitempty"`
}

// Calendar is one account's external calendar.
type Calendar interface {
	FreeBusy(ctx context.Context, start, end time.Time) ([]calendar.Interval, error)
	CreateEvent(ctx context.Context, in calendar.EventInput) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// CalendarResolver returns the calendar of an owner, or nil when the
// owner has no active calendar integration.
type CalendarResolver interface {
	CalendarFor(ctx context.Context, ownerID string) (Calendar, error)
}
