package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/channel/domain"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/pkg/types"
	"relaydesk-backend/pkg/whatsapp"
)

type fakeInbox struct {
	decision inboxdomain.Decision
	accepted []*inboxdomain.Message
	outbound []*inboxdomain.Message
	replied  []string
	statuses map[string]string
}

func (f *fakeInbox) Accept(ctx context.Context, msg *inboxdomain.Message) (inboxdomain.Decision, error) {
	msg.ID = "in-1"
	f.accepted = append(f.accepted, msg)
	return f.decision, nil
}

func (f *fakeInbox) RecordOutbound(ctx context.Context, msg *inboxdomain.Message) error {
	f.outbound = append(f.outbound, msg)
	return nil
}

func (f *fakeInbox) MarkReplied(ctx context.Context, id string) error {
	f.replied = append(f.replied, id)
	return nil
}

func (f *fakeInbox) UpdateDeliveryStatus(ctx context.Context, externalID, status string) error {
	if _, ok := f.statuses[externalID]; !ok {
		return inboxdomain.ErrMessageNotFound
	}
	f.statuses[externalID] = status
	return nil
}

type fakeResponder struct {
	calls []responder.Inbound
}

func (f *fakeResponder) HandleInbound(ctx context.Context, msg responder.Inbound) (*responder.Reply, error) {
	f.calls = append(f.calls, msg)
	return &responder.Reply{Text: "On it!", ProfileID: "p-1", Generated: true}, nil
}

type fakeWhatsApp struct {
	err error
	to  []string
}

func (f *fakeWhatsApp) SendText(ctx context.Context, creds whatsapp.Credentials, to, text string) (string, error) {
	f.to = append(f.to, to)
	if f.err != nil {
		return "", f.err
	}
	return "wamid.OUT", nil
}

type fakeCreds struct{}

func (fakeCreds) WhatsAppCredentials(ctx context.Context, ownerID string) (whatsapp.Credentials, error) {
	return whatsapp.Credentials{PhoneNumberID: "pn-1", AccessToken: "t"}, nil
}

type fakeActivity struct {
	kinds []string
}

func (f *fakeActivity) Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata) {
	f.kinds = append(f.kinds, kind)
}

func event() domain.InboundEvent {
	return domain.InboundEvent{Sender: "+5511999990000", Message: "hello", ExternalID: "wamid.IN", Timestamp: time.Now()}
}

func TestHandleMessage_WhatsAppReplyIsDelivered(t *testing.T) {
	inbox := &fakeInbox{decision: inboxdomain.Decision{Accepted: true}}
	resp := &fakeResponder{}
	wa := &fakeWhatsApp{}
	u := NewChannelUsecase(inbox, resp, wa, fakeCreds{}, &fakeActivity{})

	res, err := u.HandleMessage(context.Background(), "owner-1", types.ChannelWhatsApp, event())
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Reply == nil || res.Reply.Text != "On it!" {
		t.Fatalf("unexpected result %+v", res)
	}
	if inbox.accepted[0].ExternalID() != "wamid.IN" || inbox.accepted[0].Transport != types.ChannelWhatsApp {
		t.Errorf("unexpected ingested message %+v", inbox.accepted[0])
	}
	if resp.calls[0].InboxMessageID != "in-1" || resp.calls[0].ContactID != "+5511999990000" {
		t.Errorf("unexpected responder input %+v", resp.calls[0])
	}
	if len(wa.to) != 1 || wa.to[0] != "+5511999990000" {
		t.Errorf("expected whatsapp send, got %v", wa.to)
	}
	if len(inbox.replied) != 1 {
		t.Error("expected inbound marked replied")
	}
	out := inbox.outbound[0]
	if out.ExternalID() != "wamid.OUT" || out.Status != inboxdomain.StatusSent || out.Sender != "pn-1" || *out.ProfileID != "p-1" {
		t.Errorf("unexpected outbound record %+v", out)
	}
}

func TestHandleMessage_DuplicateIsNotAnswered(t *testing.T) {
	inbox := &fakeInbox{decision: inboxdomain.Decision{Duplicate: true, Reason: inboxdomain.ReasonDuplicateID}}
	resp := &fakeResponder{}
	u := NewChannelUsecase(inbox, resp, &fakeWhatsApp{}, fakeCreds{}, nil)

	res, err := u.HandleMessage(context.Background(), "owner-1", types.ChannelWhatsApp, event())
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Reply != nil || !res.Decision.Duplicate || len(resp.calls) != 0 {
		t.Errorf("duplicate must not reach the responder: %+v", res)
	}
}

func TestHandleMessage_SendFailure(t *testing.T) {
	inbox := &fakeInbox{decision: inboxdomain.Decision{Accepted: true}}
	activity := &fakeActivity{}
	u := NewChannelUsecase(inbox, &fakeResponder{}, &fakeWhatsApp{err: errors.New("401")}, fakeCreds{}, activity)

	if _, err := u.HandleMessage(context.Background(), "owner-1", types.ChannelWhatsApp, event()); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if inbox.outbound[0].Status != inboxdomain.StatusFailed || inbox.outbound[0].MessageID != nil {
		t.Errorf("expected failed outbound record, got %+v", inbox.outbound[0])
	}
	if len(activity.kinds) != 1 || activity.kinds[0] != activitydomain.KindDeliveryFailed {
		t.Errorf("expected delivery failure activity, got %v", activity.kinds)
	}
}

func TestHandleMessage_ChatIsNotSent(t *testing.T) {
	inbox := &fakeInbox{decision: inboxdomain.Decision{Accepted: true}}
	wa := &fakeWhatsApp{}
	u := NewChannelUsecase(inbox, &fakeResponder{}, wa, fakeCreds{}, nil)

	res, err := u.HandleMessage(context.Background(), "owner-1", types.ChannelChat, domain.InboundEvent{Sender: "sess-1", Message: "hi"})
	if err != nil || res.Reply == nil {
		t.Fatalf("unexpected %+v, %v", res, err)
	}
	if len(wa.to) != 0 || len(inbox.outbound) != 0 {
		t.Error("chat replies are returned, not pushed")
	}
	if _, err := u.HandleMessage(context.Background(), "owner-1", types.ChannelChat, domain.InboundEvent{Sender: "sess-1"}); !errors.Is(err, domain.ErrEmptyEvent) {
		t.Errorf("expected ErrEmptyEvent, got %v", err)
	}
}

func TestHandleStatus(t *testing.T) {
	inbox := &fakeInbox{statuses: map[string]string{"wamid.OUT": inboxdomain.StatusSent}}
	u := NewChannelUsecase(inbox, &fakeResponder{}, nil, nil, nil)

	if err := u.HandleStatus(context.Background(), domain.StatusUpdate{ExternalID: "wamid.OUT", Status: "DELIVERED"}); err != nil {
		t.Fatalf("HandleStatus: %v", err)
	}
	if inbox.statuses["wamid.OUT"] != inboxdomain.StatusDelivered {
		t.Errorf("expected delivered, got %s", inbox.statuses["wamid.OUT"])
	}
	if err := u.HandleStatus(context.Background(), domain.StatusUpdate{ExternalID: "unknown", Status: "read"}); err != nil {
		t.Errorf("unknown message should be ignored, got %v", err)
	}
	if err := u.HandleStatus(context.Background(), domain.StatusUpdate{ExternalID: "wamid.OUT", Status: "typing"}); err != nil {
		t.Errorf("unknown status should be ignored, got %v", err)
	}
}
