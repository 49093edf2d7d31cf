package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"relaydesk-backend/pkg/googleauth"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Interval is a busy block on a calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// EventInput describes an event to book.
type EventInput struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
}

// Event is a booked calendar event.
type Event struct {
	ID       string
	JoinLink string
	HTMLLink string
}

type Service struct {
	auth *googleauth.Client
}

func NewService(auth *googleauth.Client) *Service {
	return &Service{auth: auth}
}

// ForAccount binds the service to one account's calendar.
func (s *Service) ForAccount(creds googleauth.Credentials, calendarID string) *AccountCalendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &AccountCalendar{svc: s, creds: creds, calendarID: calendarID}
}

// AccountCalendar talks to a single calendar with a single set of tokens.
type AccountCalendar struct {
	svc        *Service
	creds      googleauth.Credentials
	calendarID string
}

func (c *AccountCalendar) client(ctx context.Context) (*gcal.Service, error) {
	srv, err := gcal.NewService(ctx, option.WithHTTPClient(c.svc.auth.HTTPClient(ctx, c.creds)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return srv, nil
}

// FreeBusy returns the busy intervals between start and end.
func (c *AccountCalendar) FreeBusy(ctx context.Context, start, end time.Time) ([]Interval, error) {
	srv, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, nil
	}
	busy := make([]Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		s, err1 := time.Parse(time.RFC3339, p.Start)
		e, err2 := time.Parse(time.RFC3339, p.End)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, Interval{Start: s, End: e})
	}
	return busy, nil
}

// CreateEvent books an event with a Google Meet conference.
func (c *AccountCalendar) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	srv, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: in.End.Format(time.RFC3339)},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.New().String(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	if in.AttendeeEmail != "" {
		ev.Attendees = []*gcal.EventAttendee{{Email: in.AttendeeEmail}}
	}

	created, err := srv.Events.Insert(c.calendarID, ev).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("event insert failed: %w", err)
	}
	return &Event{ID: created.Id, JoinLink: ExtractJoinLink(created), HTMLLink: created.HtmlLink}, nil
}

// DeleteEvent removes an event and notifies attendees.
func (c *AccountCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	srv, err := c.client(ctx)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(c.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("event delete failed: %w", err)
	}
	return nil
}

// ExtractJoinLink picks the Meet link, then the first video entry point,
// then any entry point.
func ExtractJoinLink(ev *gcal.Event) string {
	if ev == nil {
		return ""
	}
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri
		}
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep != nil && ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}

// IsGone reports whether err means the event no longer exists.
func IsGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
