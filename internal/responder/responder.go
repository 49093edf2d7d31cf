// Package responder turns one inbound customer message into a reply: it
// resolves the contact, rebuilds context, drafts text and books meetings
// the draft asks for.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/intent"
	interactiondomain "relaydesk-backend/internal/interaction/domain"
	ledger "relaydesk-backend/internal/interaction/usecase"
	meetingdomain "relaydesk-backend/internal/meeting/domain"
	profiledomain "relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/pkg/ai"
	"relaydesk-backend/pkg/types"
)

const (
	// GenerateTimeout is the default bound on one call to the text provider
	GenerateTimeout = 45 * time.Second
	// SimilarLimit is how many past replies are offered as examples
	SimilarLimit = 3
	// FallbackReply is sent when no provider could draft a reply
	FallbackReply = "Thanks for your message! Our team will get back to you shortly."
)

var ErrEmptyMessage = errors.New("message is empty")

type ProfileResolver interface {
	Resolve(ctx context.Context, req profiledomain.ResolveRequest) (*profiledomain.Profile, error)
}

type Ledger interface {
	Record(ctx context.Context, in ledger.RecordInput) *interactiondomain.Interaction
	RecentHistory(ctx context.Context, profileID string, limit int, opts interactiondomain.HistoryOptions) ([]*interactiondomain.Interaction, error)
	SimilarExchanges(ctx context.Context, ownerID, text string, k int) ([]*interactiondomain.Interaction, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, ownerID string, req meetingdomain.BookingRequest) meetingdomain.BookingResult
}

type Accounts interface {
	Get(ctx context.Context, id string) (*accountdomain.Account, error)
}

// ProfileLinker attaches the resolved profile to the stored inbox message
type ProfileLinker interface {
	LinkProfile(ctx context.Context, id, profileID string) error
}

type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// Inbound is one customer message on any channel.
type Inbound struct {
	OwnerID   string
	Channel   types.Channel
	ContactID string
	Subject   string
	Body      string
	MediaURL  string
	// InboxMessageID is the stored inbox record, when the message came
	// through ingestion.
	InboxMessageID string
	ExternalID     string
	At             time.Time
}

// Reply is the text to send back and what happened on the way.
type Reply struct {
	Text      string
	ProfileID string
	Generated bool
	Booking   *meetingdomain.BookingResult
}

type Responder struct {
	profiles  ProfileResolver
	ledger    Ledger
	generator ai.ReplyGenerator
	extractor *intent.Extractor
	meetings  Scheduler
	accounts  Accounts
	inbox     ProfileLinker
	activity  ActivityRecorder
	timeout   time.Duration
	now       func() time.Time
}

func NewResponder(
	profiles ProfileResolver,
	ledger Ledger,
	generator ai.ReplyGenerator,
	extractor *intent.Extractor,
	meetings Scheduler,
	accounts Accounts,
	inbox ProfileLinker,
	activity ActivityRecorder,
) *Responder {
	return &Responder{
		profiles:  profiles,
		ledger:    ledger,
		generator: generator,
		extractor: extractor,
		meetings:  meetings,
		accounts:  accounts,
		inbox:     inbox,
		activity:  activity,
		timeout:   GenerateTimeout,
		now:       time.Now,
	}
}

// SetGenerateTimeout overrides the provider timeout. Non-positive values are ignored.
func (r *Responder) SetGenerateTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// HandleInbound runs the whole pipeline for msg. Only a failure to
// resolve the contact is returned as an error; every later step degrades.
func (r *Responder) HandleInbound(ctx context.Context, msg Inbound) (*Reply, error) {
	body := strings.TrimSpace(msg.Body)
	content := composeContent(msg.Subject, body)
	if content == "" && msg.MediaURL == "" {
		return nil, ErrEmptyMessage
	}
	if msg.At.IsZero() {
		msg.At = r.now()
	}

	profile, err := r.profiles.Resolve(ctx, profiledomain.ResolveRequest{
		OwnerID:   msg.OwnerID,
		Channel:   msg.Channel,
		ContactID: msg.ContactID,
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}

	if msg.InboxMessageID != "" && r.inbox != nil {
		if err := r.inbox.LinkProfile(ctx, msg.InboxMessageID, profile.ID); err != nil {
			log.Printf("[Responder] warning: failed to link message %s to profile %s: %v", msg.InboxMessageID, profile.ID, err)
		}
	}

	meta := types.Metadata{}
	if msg.MediaURL != "" {
		meta[interactiondomain.MetaMediaURL] = msg.MediaURL
	}
	if msg.ExternalID != "" {
		meta[interactiondomain.MetaMessageID] = msg.ExternalID
	}
	inbound := r.ledger.Record(ctx, ledger.RecordInput{
		OwnerID:   msg.OwnerID,
		ProfileID: profile.ID,
		Channel:   msg.Channel,
		Direction: types.DirectionInbound,
		Content:   content,
		Metadata:  meta,
		At:        msg.At,
	})

	req := ai.ReplyRequest{
		SystemPrompt: r.systemPrompt(ctx, msg.OwnerID),
		Channel:      string(msg.Channel),
		History:      r.history(ctx, profile.ID, msg.Channel, inbound),
		Similar:      r.similar(ctx, msg.OwnerID, content),
		Message:      content,
		Now:          r.now(),
	}

	reply := &Reply{ProfileID: profile.ID}
	raw, err := r.generate(ctx, req)
	if err != nil {
		log.Printf("[Responder] warning: reply generation failed for %s: %v", profile.ID, err)
		if r.activity != nil {
			r.activity.Record(ctx, msg.OwnerID, activitydomain.KindReplyGenerationErr, activitydomain.SeverityWarning,
				fmt.Sprintf("could not draft a reply on %s: %v", msg.Channel, err),
				types.Metadata{"profile_id": profile.ID, "channel": string(msg.Channel)})
		}
		reply.Text = FallbackReply
	} else {
		reply.Generated = true
		reply.Text, reply.Booking = r.applyIntent(ctx, msg.OwnerID, profile, raw)
	}

	outMeta := types.Metadata{}
	if reply.Booking != nil {
		outMeta[interactiondomain.MetaScheduling] = true
		if reply.Booking.Meeting != nil {
			outMeta[interactiondomain.MetaMeetingID] = reply.Booking.Meeting.ID
		}
	}
	r.ledger.Record(ctx, ledger.RecordInput{
		OwnerID:   msg.OwnerID,
		ProfileID: profile.ID,
		Channel:   msg.Channel,
		Direction: types.DirectionOutbound,
		Content:   reply.Text,
		Metadata:  outMeta,
		At:        r.now(),
	})
	return reply, nil
}

func (r *Responder) generate(ctx context.Context, req ai.ReplyRequest) (string, error) {
	if r.generator == nil {
		return "", errors.New("no reply generator configured")
	}
	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, err := r.generator.GenerateReply(genCtx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("provider returned an empty reply")
	}
	return text, nil
}

// applyIntent books the meeting a draft asks for and replaces the
// machine payload with customer-facing text. A draft without any
// scheduling marker is returned untouched.
func (r *Responder) applyIntent(ctx context.Context, ownerID string, profile *profiledomain.Profile, raw string) (string, *meetingdomain.BookingResult) {
	res := r.extractor.Parse(raw)
	if res.Signal == nil {
		if !intent.HasPayload(raw) {
			return raw, nil
		}
		return intent.StripPayload(raw), nil
	}
	sig := res.Signal
	text := intent.StripPayload(raw)

	attendee := sig.AttendeeEmail
	if attendee == "" && profile.Email != nil {
		attendee = *profile.Email
	}
	subject := sig.Subject
	if subject == "" {
		subject = "Meeting"
		if profile.Name != nil && *profile.Name != "" {
			subject = "Meeting with " + *profile.Name
		}
	}
	if sig.DateDefaulted {
		log.Printf("[Responder] requested time %q unusable, using %s", sig.RawDateTime, sig.DateTime.Format(time.RFC3339))
	}

	result := r.meetings.Schedule(ctx, ownerID, meetingdomain.BookingRequest{
		AttendeeEmail:   attendee,
		Subject:         subject,
		DateTime:        sig.DateTime.Format(time.RFC3339),
		DurationMinutes: sig.DurationMinutes,
		Description:     sig.Description,
		ProfileID:       profile.ID,
	})
	if text == "" {
		return result.Message, &result
	}
	return text + "\n\n" + result.Message, &result
}

func (r *Responder) systemPrompt(ctx context.Context, ownerID string) string {
	if r.accounts == nil {
		return ""
	}
	account, err := r.accounts.Get(ctx, ownerID)
	if err != nil || account == nil {
		return ""
	}
	return account.SystemPrompt
}

// history is the recent conversation without the message being answered.
func (r *Responder) history(ctx context.Context, profileID string, channel types.Channel, current *interactiondomain.Interaction) []ai.Turn {
	items, err := r.ledger.RecentHistory(ctx, profileID, interactiondomain.DefaultHistoryLimit, interactiondomain.HistoryOptions{Channel: channel})
	if err != nil {
		log.Printf("[Responder] warning: failed to load history for %s: %v", profileID, err)
		return nil
	}
	turns := make([]ai.Turn, 0, len(items))
	for _, it := range items {
		if current != nil && it.ID == current.ID {
			continue
		}
		turns = append(turns, ai.Turn{FromCustomer: it.FromCustomer(), Text: it.Content})
	}
	return turns
}

func (r *Responder) similar(ctx context.Context, ownerID, text string) []string {
	items, err := r.ledger.SimilarExchanges(ctx, ownerID, text, SimilarLimit)
	if err != nil {
		log.Printf("[Responder] warning: similar exchange lookup failed: %v", err)
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Content)
	}
	return out
}

func composeContent(subject, body string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return body
	}
	return strings.TrimSpace("Subject: " + subject + "\n\n" + body)
}
