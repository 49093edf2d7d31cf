package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	activitydomain "relaydesk-backend/internal/activity/domain"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	profiledomain "relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/pkg/mailbox"
	"relaydesk-backend/pkg/smtp"
	"relaydesk-backend/pkg/types"
)

// SendTimeout bounds one delivery attempt
const SendTimeout = 30 * time.Second

type ReplyQueue interface {
	PendingReplies(ctx context.Context, limit int) ([]*inboxdomain.Message, error)
	MarkReplied(ctx context.Context, id string) error
	RecordOutbound(ctx context.Context, msg *inboxdomain.Message) error
}

type Responder interface {
	HandleInbound(ctx context.Context, msg responder.Inbound) (*responder.Reply, error)
}

type SMTPClient interface {
	Send(ctx context.Context, acc smtp.Account, out mailbox.Outgoing) (string, error)
}

// SMTPSettings overrides the submission server of IMAP accounts. An empty
// Host derives it from the IMAP host.
type SMTPSettings struct {
	Host string
	Port int
}

// Outbound answers pending inbound email.
type Outbound struct {
	accounts  MailAccounts
	queue     ReplyQueue
	responder Responder
	gmail     GmailClient
	imap      IMAPClient
	smtp      SMTPClient
	settings  SMTPSettings
	activity  ActivityRecorder
	batchSize int
}

func NewOutbound(accounts MailAccounts, queue ReplyQueue, responder Responder, gmail GmailClient, imap IMAPClient, smtp SMTPClient, settings SMTPSettings, activity ActivityRecorder, batchSize int) *Outbound {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Outbound{
		accounts:  accounts,
		queue:     queue,
		responder: responder,
		gmail:     gmail,
		imap:      imap,
		smtp:      smtp,
		settings:  settings,
		activity:  activity,
		batchSize: batchSize,
	}
}

// Run is the outbound RunFunc.
func (o *Outbound) Run(ctx context.Context) error {
	pending, err := o.queue.PendingReplies(ctx, o.batchSize)
	if err != nil {
		return err
	}

	failed := OwnerErrors{}
	for _, msg := range pending {
		if err := o.reply(ctx, msg); err != nil {
			log.Printf("[SyncJob] error: reply to %s failed: %v", msg.Sender, err)
			failed[msg.OwnerID] = err
		}
	}
	if len(failed) > 0 {
		return failed
	}
	return nil
}

func (o *Outbound) reply(ctx context.Context, msg *inboxdomain.Message) error {
	account, err := o.accounts.Get(ctx, msg.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || !account.HasMail() {
		log.Printf("[SyncJob] skip reply to %s: account %s has no mail integration", msg.Sender, msg.OwnerID)
		return o.queue.MarkReplied(ctx, msg.ID)
	}

	reply, err := o.responder.HandleInbound(ctx, responder.Inbound{
		OwnerID:        msg.OwnerID,
		Channel:        types.ChannelEmail,
		ContactID:      msg.Sender,
		Subject:        msg.Subject,
		Body:           msg.Body,
		InboxMessageID: msg.ID,
		ExternalID:     msg.ExternalID(),
		At:             msg.ReceivedAt,
	})
	if isUnanswerable(err) {
		log.Printf("[SyncJob] skip reply to %s: %v", msg.Sender, err)
		return o.queue.MarkReplied(ctx, msg.ID)
	}
	if err != nil {
		return err
	}

	// Mark before sending so a crash mid-send never produces a second reply
	if err := o.queue.MarkReplied(ctx, msg.ID); err != nil {
		return err
	}

	from := msg.Recipient
	if addrs := account.SendingAddresses(); len(addrs) > 0 {
		from = addrs[0]
	}
	out := mailbox.Outgoing{
		From:      from,
		FromName:  account.Name,
		To:        msg.Sender,
		Subject:   mailbox.ReplySubject(msg.Subject),
		Body:      reply.Text,
		InReplyTo: msg.ExternalID(),
		MessageID: smtp.NewMessageID(from),
	}

	providerID, sendErr := o.send(ctx, account, out)
	record := &inboxdomain.Message{
		OwnerID:    msg.OwnerID,
		Transport:  types.ChannelEmail,
		Sender:     out.From,
		Recipient:  out.To,
		Subject:    out.Subject,
		Body:       out.Body,
		Status:     inboxdomain.StatusSent,
		MessageID:  &out.MessageID,
		ProviderID: providerID,
		InReplyTo:  out.InReplyTo,
	}
	if reply.ProfileID != "" {
		record.ProfileID = &reply.ProfileID
	}
	if sendErr != nil {
		record.Status = inboxdomain.StatusFailed
	}
	if err := o.queue.RecordOutbound(ctx, record); err != nil {
		log.Printf("[SyncJob] warning: %v", err)
	}

	if sendErr != nil {
		if o.activity != nil {
			o.activity.Record(ctx, msg.OwnerID, activitydomain.KindDeliveryFailed, activitydomain.SeverityWarning,
				fmt.Sprintf("reply to %s could not be sent: %v", msg.Sender, sendErr),
				types.Metadata{"message_id": msg.ID, "channel": string(types.ChannelEmail)})
		}
		return fmt.Errorf("failed to send reply: %w", sendErr)
	}

	o.markRead(ctx, account, msg)
	return nil
}

func (o *Outbound) send(ctx context.Context, account *accountdomain.Account, out mailbox.Outgoing) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	switch account.MailProvider {
	case accountdomain.MailProviderGmail:
		creds, err := o.accounts.GoogleCredentials(account)
		if err != nil {
			return "", err
		}
		return o.gmail.Send(sendCtx, creds, out)
	case accountdomain.MailProviderIMAP:
		acc, err := o.accounts.IMAPAccount(account)
		if err != nil {
			return "", err
		}
		host := o.settings.Host
		if host == "" {
			host = smtp.HostFromIMAP(acc.Host)
		}
		return o.smtp.Send(sendCtx, smtp.Account{
			Host:     host,
			Port:     o.settings.Port,
			Username: acc.Username,
			Password: acc.Password,
		}, out)
	}
	return "", accountdomain.ErrInvalidProvider
}

func (o *Outbound) markRead(ctx context.Context, account *accountdomain.Account, msg *inboxdomain.Message) {
	if msg.ProviderID == "" {
		return
	}
	var err error
	switch account.MailProvider {
	case accountdomain.MailProviderGmail:
		creds, credErr := o.accounts.GoogleCredentials(account)
		if credErr != nil {
			err = credErr
			break
		}
		err = o.gmail.MarkAsRead(ctx, creds, msg.ProviderID)
	case accountdomain.MailProviderIMAP:
		acc, accErr := o.accounts.IMAPAccount(account)
		if accErr != nil {
			err = accErr
			break
		}
		err = o.imap.MarkAsRead(ctx, acc, o.accounts.MailQuery(account).Folder, msg.ProviderID)
	}
	if err != nil {
		log.Printf("[SyncJob] warning: failed to mark %s as read: %v", msg.ProviderID, err)
	}
}

// isUnanswerable reports responder errors that retrying cannot fix. Such
// messages leave the queue so they never block newer mail.
func isUnanswerable(err error) bool {
	return errors.Is(err, responder.ErrEmptyMessage) || errors.Is(err, profiledomain.ErrMissingIdentifier)
}
