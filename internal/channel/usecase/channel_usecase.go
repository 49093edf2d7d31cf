package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/channel/domain"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/pkg/types"
	"relaydesk-backend/pkg/whatsapp"
)

// Inbox is the ingestion gate and outbound record
type Inbox interface {
	Accept(ctx context.Context, msg *inboxdomain.Message) (inboxdomain.Decision, error)
	RecordOutbound(ctx context.Context, msg *inboxdomain.Message) error
	MarkReplied(ctx context.Context, id string) error
	UpdateDeliveryStatus(ctx context.Context, externalID, status string) error
}

type Responder interface {
	HandleInbound(ctx context.Context, msg responder.Inbound) (*responder.Reply, error)
}

type WhatsAppSender interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, text string) (string, error)
}

type Credentials interface {
	WhatsAppCredentials(ctx context.Context, ownerID string) (whatsapp.Credentials, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// Result is what happened to one inbound event. Reply is nil when the
// event was a duplicate.
type Result struct {
	Decision inboxdomain.Decision
	Reply    *responder.Reply
}

// ChannelUsecase answers messages arriving on push channels
type ChannelUsecase interface {
	HandleMessage(ctx context.Context, ownerID string, channel types.Channel, ev domain.InboundEvent) (*Result, error)
	HandleStatus(ctx context.Context, update domain.StatusUpdate) error
}

type channelUsecase struct {
	inbox     Inbox
	responder Responder
	whatsapp  WhatsAppSender
	creds     Credentials
	activity  ActivityRecorder
}

func NewChannelUsecase(inbox Inbox, responder Responder, whatsapp WhatsAppSender, creds Credentials, activity ActivityRecorder) ChannelUsecase {
	return &channelUsecase{
		inbox:     inbox,
		responder: responder,
		whatsapp:  whatsapp,
		creds:     creds,
		activity:  activity,
	}
}

// HandleMessage gates ev through the inbox, drafts the reply and, for
// WhatsApp, delivers it. Voice and chat replies are returned to the caller.
func (u *channelUsecase) HandleMessage(ctx context.Context, ownerID string, channel types.Channel, ev domain.InboundEvent) (*Result, error) {
	if ev.Empty() {
		return nil, domain.ErrEmptyEvent
	}

	msg := &inboxdomain.Message{
		OwnerID:    ownerID,
		Direction:  types.DirectionInbound,
		Transport:  channel,
		Sender:     ev.Sender,
		Body:       ev.Message,
		MediaURL:   ev.MediaURL,
		ReceivedAt: ev.Timestamp,
	}
	if id := strings.TrimSpace(ev.ExternalID); id != "" {
		msg.MessageID = &id
	}
	decision, err := u.inbox.Accept(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !decision.Accepted {
		return &Result{Decision: decision}, nil
	}

	reply, err := u.responder.HandleInbound(ctx, responder.Inbound{
		OwnerID:        ownerID,
		Channel:        channel,
		ContactID:      ev.Sender,
		Body:           ev.Message,
		MediaURL:       ev.MediaURL,
		InboxMessageID: msg.ID,
		ExternalID:     ev.ExternalID,
		At:             msg.ReceivedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := u.inbox.MarkReplied(ctx, msg.ID); err != nil {
		log.Printf("[Webhook] warning: %v", err)
	}

	if channel == types.ChannelWhatsApp {
		u.deliverWhatsApp(ctx, ownerID, ev.Sender, reply)
	}
	return &Result{Decision: decision, Reply: reply}, nil
}

func (u *channelUsecase) deliverWhatsApp(ctx context.Context, ownerID, to string, reply *responder.Reply) {
	record := &inboxdomain.Message{
		OwnerID:   ownerID,
		Transport: types.ChannelWhatsApp,
		Recipient: to,
		Body:      reply.Text,
		Status:    inboxdomain.StatusSent,
	}
	if reply.ProfileID != "" {
		record.ProfileID = &reply.ProfileID
	}

	externalID, err := u.send(ctx, ownerID, to, reply.Text, record)
	if externalID != "" {
		record.MessageID = &externalID
	}
	if err != nil {
		record.Status = inboxdomain.StatusFailed
		log.Printf("[Webhook] error: whatsapp reply to %s failed: %v", to, err)
		if u.activity != nil {
			u.activity.Record(ctx, ownerID, activitydomain.KindDeliveryFailed, activitydomain.SeverityWarning,
				fmt.Sprintf("whatsapp reply to %s could not be sent: %v", to, err),
				types.Metadata{"channel": string(types.ChannelWhatsApp)})
		}
	}
	if err := u.inbox.RecordOutbound(ctx, record); err != nil {
		log.Printf("[Webhook] warning: %v", err)
	}
}

func (u *channelUsecase) send(ctx context.Context, ownerID, to, text string, record *inboxdomain.Message) (string, error) {
	if u.whatsapp == nil || u.creds == nil {
		return "", fmt.Errorf("whatsapp sending not configured")
	}
	creds, err := u.creds.WhatsAppCredentials(ctx, ownerID)
	if err != nil {
		return "", err
	}
	record.Sender = creds.PhoneNumberID
	return u.whatsapp.SendText(ctx, creds, to, text)
}

// HandleStatus applies a delivery receipt. Receipts for messages we never
// recorded are ignored.
func (u *channelUsecase) HandleStatus(ctx context.Context, update domain.StatusUpdate) error {
	status := strings.ToLower(strings.TrimSpace(update.Status))
	switch status {
	case inboxdomain.StatusSent, inboxdomain.StatusDelivered, inboxdomain.StatusRead, inboxdomain.StatusFailed:
	default:
		log.Printf("[Webhook] skip status %q for %s", update.Status, update.ExternalID)
		return nil
	}
	err := u.inbox.UpdateDeliveryStatus(ctx, update.ExternalID, status)
	if errors.Is(err, inboxdomain.ErrMessageNotFound) {
		log.Printf("[Webhook] skip status %s for unknown message %s", status, update.ExternalID)
		return nil
	}
	return err
}
