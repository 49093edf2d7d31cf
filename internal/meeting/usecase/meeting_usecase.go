package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/intent"
	"relaydesk-backend/internal/meeting/domain"
	"relaydesk-backend/internal/meeting/repository"
	"relaydesk-backend/pkg/calendar"
	"relaydesk-backend/pkg/types"

	"github.com/google/uuid"
)

const (
	// CalendarTimeout bounds every calendar provider call
	CalendarTimeout = 20 * time.Second
	// ConflictMargin is kept free on both sides of a booking
	ConflictMargin = 5 * time.Minute
)

// ActivityRecorder receives booking outcomes
type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// MeetingUsecase books and manages meetings on the owner's calendar
type MeetingUsecase interface {
	Schedule(ctx context.Context, ownerID string, req domain.BookingRequest) domain.BookingResult
	Cancel(ctx context.Context, ownerID, meetingID string) (*domain.Meeting, error)
	List(ctx context.Context, ownerID string, upcomingOnly bool) ([]*domain.Meeting, error)
}

type meetingUsecase struct {
	repo      repository.MeetingRepository
	calendars domain.CalendarResolver
	activity  ActivityRecorder
	now       func() time.Time
}

func NewMeetingUsecase(repo repository.MeetingRepository, calendars domain.CalendarResolver, activity ActivityRecorder) MeetingUsecase {
	return &meetingUsecase{repo: repo, calendars: calendars, activity: activity, now: time.Now}
}

func (u *meetingUsecase) Schedule(ctx context.Context, ownerID string, req domain.BookingRequest) domain.BookingResult {
	cal, err := u.calendars.CalendarFor(ctx, ownerID)
	if err != nil {
		return u.fail(ctx, ownerID, req, domain.CodeCalendarAPIError, err)
	}
	if cal == nil {
		return u.fail(ctx, ownerID, req, domain.CodeCalendarNotConfigured, nil)
	}

	now := u.now()
	start, err := intent.ParseDateTime(req.DateTime, now.Location())
	if err != nil {
		return u.fail(ctx, ownerID, req, domain.CodeInvalidDateFormat, err)
	}
	if start.Before(now) {
		return u.fail(ctx, ownerID, req, domain.CodePastDate, nil)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = intent.DefaultDurationMinutes
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	busy, err := u.freeBusy(ctx, cal, start.Add(-ConflictMargin), end.Add(ConflictMargin))
	if err != nil {
		return u.fail(ctx, ownerID, req, domain.CodeCalendarAPIError, err)
	}
	if conflict := firstOverlap(busy, start.Add(-ConflictMargin), end.Add(ConflictMargin)); conflict != nil {
		log.Printf("[Meeting] skip: %s conflicts with busy %s-%s", start.Format(time.RFC3339), conflict.Start.Format(time.RFC3339), conflict.End.Format(time.RFC3339))
		return u.fail(ctx, ownerID, req, domain.CodeTimeConflict, nil)
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "Meeting"
	}
	event, err := u.createEvent(ctx, cal, calendar.EventInput{
		Summary:       subject,
		Description:   req.Description,
		Start:         start,
		End:           end,
		AttendeeEmail: strings.ToLower(strings.TrimSpace(req.AttendeeEmail)),
	})
	if err != nil {
		return u.fail(ctx, ownerID, req, domain.CodeCalendarAPIError, err)
	}

	meeting := &domain.Meeting{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		AttendeeEmail:   strings.ToLower(strings.TrimSpace(req.AttendeeEmail)),
		Subject:         subject,
		Description:     req.Description,
		StartTime:       start,
		EndTime:         end,
		Status:          domain.StatusScheduled,
		ExternalEventID: event.ID,
		JoinLink:        event.JoinLink,
	}
	if req.ProfileID != "" {
		pid := req.ProfileID
		meeting.ProfileID = &pid
	}
	if err := u.repo.Create(ctx, meeting); err != nil {
		// The event exists on the calendar; the customer is still booked
		log.Printf("[Meeting] error: booked event %s but failed to store meeting: %v", event.ID, err)
		u.record(ctx, ownerID, activitydomain.KindMeetingFailed, activitydomain.SeverityWarning,
			fmt.Sprintf("Booked %q but could not save it locally", subject),
			types.Metadata{"event_id": event.ID, "error": err.Error()})
		meeting = nil
	} else {
		u.record(ctx, ownerID, activitydomain.KindMeetingBooked, activitydomain.SeverityInfo,
			fmt.Sprintf("Booked %q for %s", subject, start.Format("Mon Jan 2 15:04")),
			types.Metadata{"meeting_id": meeting.ID, "event_id": event.ID})
	}
	log.Printf("[Meeting] booked event %s for owner %s at %s", event.ID, ownerID, start.Format(time.RFC3339))

	return domain.BookingResult{
		Success:  true,
		Message:  MessageFor("", subject, start, event.JoinLink),
		EventID:  event.ID,
		JoinLink: event.JoinLink,
		Meeting:  meeting,
	}
}

func (u *meetingUsecase) freeBusy(ctx context.Context, cal domain.Calendar, from, to time.Time) ([]calendar.Interval, error) {
	ctx, cancel := context.WithTimeout(ctx, CalendarTimeout)
	defer cancel()
	return cal.FreeBusy(ctx, from, to)
}

func (u *meetingUsecase) createEvent(ctx context.Context, cal domain.Calendar, in calendar.EventInput) (*calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, CalendarTimeout)
	defer cancel()
	return cal.CreateEvent(ctx, in)
}

// firstOverlap returns the first busy interval intersecting [from, to).
func firstOverlap(busy []calendar.Interval, from, to time.Time) *calendar.Interval {
	for i := range busy {
		if busy[i].Start.Before(to) && busy[i].End.After(from) {
			return &busy[i]
		}
	}
	return nil
}

func (u *meetingUsecase) fail(ctx context.Context, ownerID string, req domain.BookingRequest, code string, cause error) domain.BookingResult {
	meta := types.Metadata{
		"error_code":     code,
		"date_time":      req.DateTime,
		"attendee_email": req.AttendeeEmail,
	}
	if cause != nil {
		meta["error"] = cause.Error()
		log.Printf("[Meeting] error: %s for owner %s: %v", code, ownerID, cause)
	} else {
		log.Printf("[Meeting] %s for owner %s (requested %q)", code, ownerID, req.DateTime)
	}

	severity := activitydomain.SeverityWarning
	if code == domain.CodeCalendarAPIError {
		severity = activitydomain.SeverityCritical
	}
	u.record(ctx, ownerID, activitydomain.KindMeetingFailed, severity,
		fmt.Sprintf("Meeting request could not be booked: %s", code), meta)

	return domain.BookingResult{
		Success:   false,
		Message:   MessageFor(code, "", time.Time{}, ""),
		ErrorCode: code,
	}
}

func (u *meetingUsecase) record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata) {
	if u.activity != nil {
		u.activity.Record(ctx, ownerID, kind, severity, message, meta)
	}
}

// Cancel removes the calendar event and marks the meeting cancelled.
// Cancelling twice returns the already cancelled meeting.
func (u *meetingUsecase) Cancel(ctx context.Context, ownerID, meetingID string) (*domain.Meeting, error) {
	meeting, err := u.repo.FindByID(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}
	if meeting == nil || meeting.OwnerID != ownerID {
		return nil, domain.ErrMeetingNotFound
	}
	if meeting.Status == domain.StatusCancelled {
		return meeting, nil
	}

	if meeting.ExternalEventID != "" {
		cal, err := u.calendars.CalendarFor(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load calendar: %w", err)
		}
		if cal != nil {
			delCtx, cancel := context.WithTimeout(ctx, CalendarTimeout)
			err := cal.DeleteEvent(delCtx, meeting.ExternalEventID)
			cancel()
			if err != nil && !calendar.IsGone(err) {
				return nil, fmt.Errorf("failed to delete calendar event: %w", err)
			}
		}
	}

	now := u.now()
	if err := u.repo.MarkCancelled(ctx, meeting.ID, now); err != nil {
		return nil, fmt.Errorf("failed to cancel meeting: %w", err)
	}
	meeting.Status = domain.StatusCancelled
	meeting.CancelledAt = &now

	u.record(ctx, ownerID, activitydomain.KindMeetingCancelled, activitydomain.SeverityInfo,
		fmt.Sprintf("Cancelled %q", meeting.Subject), types.Metadata{"meeting_id": meeting.ID})
	return meeting, nil
}

func (u *meetingUsecase) List(ctx context.Context, ownerID string, upcomingOnly bool) ([]*domain.Meeting, error) {
	var from *time.Time
	if upcomingOnly {
		now := u.now()
		from = &now
	}
	meetings, err := u.repo.List(ctx, ownerID, from, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	return meetings, nil
}
