package syncjob

import (
	"context"
	"fmt"
	"log"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/pkg/googleauth"
	"relaydesk-backend/pkg/imap"
	"relaydesk-backend/pkg/mailbox"
	"relaydesk-backend/pkg/types"
)

// Job names
const (
	JobMailSync = "mail-sync"
	JobOutbound = "outbound"
)

// MailAccounts resolves accounts and their decrypted mail credentials
type MailAccounts interface {
	Get(ctx context.Context, id string) (*accountdomain.Account, error)
	MailAccounts(ctx context.Context) ([]*accountdomain.Account, error)
	GoogleCredentials(account *accountdomain.Account) (googleauth.Credentials, error)
	IMAPAccount(account *accountdomain.Account) (imap.Account, error)
	MailQuery(account *accountdomain.Account) mailbox.Query
}

type GmailClient interface {
	FetchMessages(ctx context.Context, creds googleauth.Credentials, q mailbox.Query) ([]*mailbox.Message, error)
	Send(ctx context.Context, creds googleauth.Credentials, out mailbox.Outgoing) (string, error)
	MarkAsRead(ctx context.Context, creds googleauth.Credentials, providerID string) error
}

type IMAPClient interface {
	FetchMessages(ctx context.Context, acc imap.Account, q mailbox.Query) ([]*mailbox.Message, error)
	MarkAsRead(ctx context.Context, acc imap.Account, folder, providerID string) error
}

// Ingestor is the dedup and loop gate
type Ingestor interface {
	Accept(ctx context.Context, msg *inboxdomain.Message) (inboxdomain.Decision, error)
}

// MailSync polls every mail-enabled account and feeds new messages
// through the ingestion gate.
type MailSync struct {
	accounts     MailAccounts
	gmail        GmailClient
	imap         IMAPClient
	inbox        Ingestor
	fetchTimeout time.Duration
}

func NewMailSync(accounts MailAccounts, gmail GmailClient, imap IMAPClient, inbox Ingestor, fetchTimeout time.Duration) *MailSync {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &MailSync{accounts: accounts, gmail: gmail, imap: imap, inbox: inbox, fetchTimeout: fetchTimeout}
}

// Run is the mail-sync RunFunc. Failures of single accounts are collected
// into OwnerErrors; the other accounts are still polled.
func (s *MailSync) Run(ctx context.Context) error {
	accounts, err := s.accounts.MailAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mail accounts: %w", err)
	}

	failed := OwnerErrors{}
	for _, account := range accounts {
		stats, err := s.syncAccount(ctx, account)
		if err != nil {
			log.Printf("[SyncJob] error: mail sync for %s failed: %v", account.ID, err)
			failed[account.ID] = err
			continue
		}
		if stats.fetched > 0 {
			log.Printf("[SyncJob] %s: fetched %d, accepted %d, skipped %d", account.ID, stats.fetched, stats.accepted, stats.skipped)
		}
	}
	if len(failed) > 0 {
		return failed
	}
	return nil
}

type syncStats struct {
	fetched  int
	accepted int
	skipped  int
}

func (s *MailSync) syncAccount(ctx context.Context, account *accountdomain.Account) (syncStats, error) {
	var stats syncStats
	messages, err := s.fetch(ctx, account)
	if err != nil {
		return stats, err
	}
	stats.fetched = len(messages)

	for _, m := range messages {
		decision, err := s.inbox.Accept(ctx, toInboxMessage(account, m))
		if err != nil {
			return stats, fmt.Errorf("failed to ingest message from %s: %w", m.From, err)
		}
		if decision.Accepted {
			stats.accepted++
		} else {
			stats.skipped++
		}
	}
	return stats, nil
}

func (s *MailSync) fetch(ctx context.Context, account *accountdomain.Account) ([]*mailbox.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	q := s.accounts.MailQuery(account)
	switch account.MailProvider {
	case accountdomain.MailProviderGmail:
		if s.gmail == nil {
			return nil, fmt.Errorf("gmail client not configured")
		}
		creds, err := s.accounts.GoogleCredentials(account)
		if err != nil {
			return nil, err
		}
		return s.gmail.FetchMessages(fetchCtx, creds, q)
	case accountdomain.MailProviderIMAP:
		if s.imap == nil {
			return nil, fmt.Errorf("imap client not configured")
		}
		acc, err := s.accounts.IMAPAccount(account)
		if err != nil {
			return nil, err
		}
		return s.imap.FetchMessages(fetchCtx, acc, q)
	}
	return nil, accountdomain.ErrInvalidProvider
}

func toInboxMessage(account *accountdomain.Account, m *mailbox.Message) *inboxdomain.Message {
	msg := &inboxdomain.Message{
		OwnerID:    account.ID,
		Direction:  types.DirectionInbound,
		Transport:  types.ChannelEmail,
		Sender:     m.From,
		Recipient:  m.To,
		Subject:    m.Subject,
		Body:       m.Body,
		ReceivedAt: m.ReceivedAt,
		ProviderID: m.ProviderID,
		InReplyTo:  m.InReplyTo,
	}
	if msg.Recipient == "" {
		msg.Recipient = account.Email
	}
	if m.MessageID != "" {
		id := m.MessageID
		msg.MessageID = &id
	}
	return msg
}
