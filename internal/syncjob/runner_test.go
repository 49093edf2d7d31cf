package syncjob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	activitydomain "relaydesk-backend/internal/activity/domain"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	profiledomain "relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/pkg/googleauth"
	"relaydesk-backend/pkg/imap"
	"relaydesk-backend/pkg/mailbox"
	"relaydesk-backend/pkg/smtp"
)

var (
	gmailAccount = &accountdomain.Account{
		ID: "owner-g", Name: "Acme", Email: "support@acme.com",
		MailProvider: accountdomain.MailProviderGmail, AccessToken: "token",
	}
	imapAccount = &accountdomain.Account{
		ID: "owner-i", Email: "help@shop.com",
		MailProvider: accountdomain.MailProviderIMAP, ImapHost: "imap.shop.com", ImapUsername: "help@shop.com",
	}
)

type fakeAccounts struct {
	accounts []*accountdomain.Account
}

func (f *fakeAccounts) Get(ctx context.Context, id string) (*accountdomain.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) MailAccounts(ctx context.Context) ([]*accountdomain.Account, error) {
	return f.accounts, nil
}

func (f *fakeAccounts) GoogleCredentials(account *accountdomain.Account) (googleauth.Credentials, error) {
	return googleauth.Credentials{AccessToken: account.AccessToken}, nil
}

func (f *fakeAccounts) IMAPAccount(account *accountdomain.Account) (imap.Account, error) {
	return imap.Account{Host: account.ImapHost, Username: account.ImapUsername, Password: "secret"}, nil
}

func (f *fakeAccounts) MailQuery(account *accountdomain.Account) mailbox.Query {
	return mailbox.Query{}.Normalize()
}

type fakeGmail struct {
	messages []*mailbox.Message
	sent     []mailbox.Outgoing
	sendErr  error
	read     []string
}

func (f *fakeGmail) FetchMessages(ctx context.Context, creds googleauth.Credentials, q mailbox.Query) ([]*mailbox.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("fetch without deadline")
	}
	return f.messages, nil
}

func (f *fakeGmail) Send(ctx context.Context, creds googleauth.Credentials, out mailbox.Outgoing) (string, error) {
	f.sent = append(f.sent, out)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "gmail-sent-1", nil
}

func (f *fakeGmail) MarkAsRead(ctx context.Context, creds googleauth.Credentials, providerID string) error {
	f.read = append(f.read, providerID)
	return nil
}

type fakeIMAP struct {
	err  error
	read []string
}

func (f *fakeIMAP) FetchMessages(ctx context.Context, acc imap.Account, q mailbox.Query) ([]*mailbox.Message, error) {
	return nil, f.err
}

func (f *fakeIMAP) MarkAsRead(ctx context.Context, acc imap.Account, folder, providerID string) error {
	f.read = append(f.read, folder+"/"+providerID)
	return nil
}

type fakeSMTP struct {
	accounts []smtp.Account
}

func (f *fakeSMTP) Send(ctx context.Context, acc smtp.Account, out mailbox.Outgoing) (string, error) {
	f.accounts = append(f.accounts, acc)
	return out.MessageID, nil
}

type fakeIngestor struct {
	accepted []*inboxdomain.Message
}

func (f *fakeIngestor) Accept(ctx context.Context, msg *inboxdomain.Message) (inboxdomain.Decision, error) {
	f.accepted = append(f.accepted, msg)
	return inboxdomain.Decision{Accepted: true}, nil
}

type fakeQueue struct {
	pending  []*inboxdomain.Message
	replied  []string
	outbound []*inboxdomain.Message
}

func (f *fakeQueue) PendingReplies(ctx context.Context, limit int) ([]*inboxdomain.Message, error) {
	return f.pending, nil
}

func (f *fakeQueue) MarkReplied(ctx context.Context, id string) error {
	f.replied = append(f.replied, id)
	return nil
}

func (f *fakeQueue) RecordOutbound(ctx context.Context, msg *inboxdomain.Message) error {
	f.outbound = append(f.outbound, msg)
	return nil
}

type fakeResponder struct {
	got  []responder.Inbound
	errs map[string]error
}

func (f *fakeResponder) HandleInbound(ctx context.Context, msg responder.Inbound) (*responder.Reply, error) {
	f.got = append(f.got, msg)
	if err := f.errs[msg.InboxMessageID]; err != nil {
		return nil, err
	}
	return &responder.Reply{Text: "Thanks, we are on it.", ProfileID: "p-1", Generated: true}, nil
}

func TestMailSync_CollectsPerAccountErrors(t *testing.T) {
	gmail := &fakeGmail{messages: []*mailbox.Message{
		{ProviderID: "g-1", MessageID: "abc@mail.com", From: "ana@example.com", Subject: "Hi", Body: "Hello", ReceivedAt: time.Now()},
	}}
	ingest := &fakeIngestor{}
	ms := NewMailSync(&fakeAccounts{accounts: []*accountdomain.Account{gmailAccount, imapAccount}},
		gmail, &fakeIMAP{err: errors.New("login failed")}, ingest, time.Second)

	err := ms.Run(context.Background())

	var owners OwnerErrors
	if !errors.As(err, &owners) {
		t.Fatalf("expected OwnerErrors, got %v", err)
	}
	if len(owners) != 1 || owners["owner-i"] == nil {
		t.Errorf("expected only the imap account to fail, got %v", owners)
	}
	if len(ingest.accepted) != 1 {
		t.Fatalf("expected gmail message ingested, got %d", len(ingest.accepted))
	}
	msg := ingest.accepted[0]
	if msg.OwnerID != "owner-g" || msg.Recipient != "support@acme.com" || msg.ExternalID() != "abc@mail.com" || msg.ProviderID != "g-1" {
		t.Errorf("unexpected converted message %+v", msg)
	}
}

func TestOutbound_RepliesThroughGmail(t *testing.T) {
	gmail := &fakeGmail{}
	queue := &fakeQueue{pending: []*inboxdomain.Message{{
		ID: "in-1", OwnerID: "owner-g", Sender: "ana@example.com", Recipient: "support@acme.com",
		Subject: "Pricing", Body: "How much?", ProviderID: "g-9", MessageID: strPtr("orig@mail.com"),
	}}}
	resp := &fakeResponder{}
	out := NewOutbound(&fakeAccounts{accounts: []*accountdomain.Account{gmailAccount}}, queue, resp,
		gmail, &fakeIMAP{}, &fakeSMTP{}, SMTPSettings{}, &fakeActivity{}, 10)

	if err := out.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.got) != 1 || resp.got[0].InboxMessageID != "in-1" || resp.got[0].ContactID != "ana@example.com" {
		t.Errorf("unexpected responder input %+v", resp.got)
	}
	if len(gmail.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(gmail.sent))
	}
	sent := gmail.sent[0]
	if sent.To != "ana@example.com" || sent.From != "support@acme.com" || sent.Subject != "Re: Pricing" || sent.InReplyTo != "orig@mail.com" {
		t.Errorf("unexpected outgoing %+v", sent)
	}
	if len(queue.replied) != 1 || queue.replied[0] != "in-1" {
		t.Errorf("expected original marked replied, got %v", queue.replied)
	}
	if len(queue.outbound) != 1 || queue.outbound[0].Status != inboxdomain.StatusSent || queue.outbound[0].ProviderID != "gmail-sent-1" {
		t.Errorf("unexpected outbound record %+v", queue.outbound)
	}
	if *queue.outbound[0].ProfileID != "p-1" {
		t.Error("expected outbound linked to profile")
	}
	if len(gmail.read) != 1 || gmail.read[0] != "g-9" {
		t.Errorf("expected original marked read, got %v", gmail.read)
	}
}

func TestOutbound_SendFailureIsRecordedOnce(t *testing.T) {
	gmail := &fakeGmail{sendErr: errors.New("503 backend error")}
	queue := &fakeQueue{pending: []*inboxdomain.Message{{ID: "in-1", OwnerID: "owner-g", Sender: "ana@example.com", Subject: "Hi"}}}
	activity := &fakeActivity{}
	out := NewOutbound(&fakeAccounts{accounts: []*accountdomain.Account{gmailAccount}}, queue, &fakeResponder{},
		gmail, &fakeIMAP{}, &fakeSMTP{}, SMTPSettings{}, activity, 10)

	err := out.Run(context.Background())
	var owners OwnerErrors
	if !errors.As(err, &owners) || owners["owner-g"] == nil {
		t.Fatalf("expected owner error, got %v", err)
	}
	if len(queue.replied) != 1 {
		t.Error("a failed send must still be marked replied")
	}
	if len(queue.outbound) != 1 || queue.outbound[0].Status != inboxdomain.StatusFailed {
		t.Errorf("expected failed outbound record, got %+v", queue.outbound)
	}
	events := activity.snapshot()
	if len(events) != 1 || events[0].kind != activitydomain.KindDeliveryFailed {
		t.Errorf("expected delivery failure activity, got %+v", events)
	}
	if len(gmail.read) != 0 {
		t.Error("original must stay unread when the reply failed")
	}
}

func TestOutbound_IMAPAccountUsesSMTP(t *testing.T) {
	smtpClient := &fakeSMTP{}
	imapClient := &fakeIMAP{}
	queue := &fakeQueue{pending: []*inboxdomain.Message{{ID: "in-2", OwnerID: "owner-i", Sender: "bo@example.com", Subject: "Order", ProviderID: "42"}}}
	out := NewOutbound(&fakeAccounts{accounts: []*accountdomain.Account{imapAccount}}, queue, &fakeResponder{},
		&fakeGmail{}, imapClient, smtpClient, SMTPSettings{Port: 2525}, nil, 10)

	if err := out.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(smtpClient.accounts) != 1 {
		t.Fatalf("expected smtp send, got %d", len(smtpClient.accounts))
	}
	acc := smtpClient.accounts[0]
	if acc.Host != "smtp.shop.com" || acc.Port != 2525 || acc.Username != "help@shop.com" || acc.Password != "secret" {
		t.Errorf("unexpected smtp account %+v", acc)
	}
	if len(imapClient.read) != 1 || imapClient.read[0] != "INBOX/42" {
		t.Errorf("expected imap mark read, got %v", imapClient.read)
	}
}

func TestOutbound_AccountWithoutMailIsSkipped(t *testing.T) {
	queue := &fakeQueue{pending: []*inboxdomain.Message{{ID: "in-3", OwnerID: "gone", Sender: "x@example.com"}}}
	resp := &fakeResponder{}
	out := NewOutbound(&fakeAccounts{}, queue, resp, &fakeGmail{}, &fakeIMAP{}, &fakeSMTP{}, SMTPSettings{}, nil, 10)

	if err := out.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.got) != 0 || len(queue.replied) != 1 {
		t.Errorf("expected skip and mark replied, responder=%d replied=%v", len(resp.got), queue.replied)
	}
}

func strPtr(s string) *string { return &s }

func TestOutbound_UnanswerableMessagesLeaveTheQueue(t *testing.T) {
	gmail := &fakeGmail{}
	queue := &fakeQueue{pending: []*inboxdomain.Message{
		{ID: "in-1", OwnerID: "owner-g", Sender: "ana@example.com", Subject: "Call me tomorrow"},
		{ID: "in-2", OwnerID: "owner-g", Sender: "bot@example.com", Body: "hi"},
		{ID: "in-3", OwnerID: "owner-g", Sender: "bob@example.com", Subject: "Pricing", Body: "How much?"},
	}}
	resp := &fakeResponder{errs: map[string]error{
		"in-1": responder.ErrEmptyMessage,
		"in-2": fmt.Errorf("failed to resolve profile: %w", profiledomain.ErrMissingIdentifier),
	}}
	activity := &fakeActivity{}
	out := NewOutbound(&fakeAccounts{accounts: []*accountdomain.Account{gmailAccount}}, queue, resp,
		gmail, &fakeIMAP{}, &fakeSMTP{}, SMTPSettings{}, activity, 10)
	job := NewJob(JobOutbound, time.Minute, out.Run, DefaultFailureThreshold, activity)

	if !job.Tick(context.Background()) {
		t.Fatal("expected tick to run")
	}
	if st := job.Status(); st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Errorf("unanswerable messages must not fail the tick, got %+v", st)
	}
	if len(queue.replied) != 3 {
		t.Errorf("expected every message marked replied, got %v", queue.replied)
	}
	if len(gmail.sent) != 1 {
		t.Errorf("expected only the answerable message sent, got %d", len(gmail.sent))
	}
}
