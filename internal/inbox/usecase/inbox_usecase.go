package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/internal/inbox/repository"
	"relaydesk-backend/pkg/mailbox"
	"relaydesk-backend/pkg/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DuplicateWindow is how close two same-sender same-subject emails must
	// be to count as one.
	DuplicateWindow = 5 * time.Minute
	// RepeatWindow catches double submits of chat and voice messages that
	// carry no transport id. Customers repeating "ok" later are kept.
	RepeatWindow = 30 * time.Second
)

// AddressBook lists the addresses an owner sends replies from
type AddressBook interface {
	SendingAddresses(ctx context.Context, ownerID string) ([]string, error)
}

// InboxUsecase gates ingestion and tracks reply and delivery state
type InboxUsecase interface {
	Accept(ctx context.Context, msg *domain.Message) (domain.Decision, error)
	RecordOutbound(ctx context.Context, msg *domain.Message) error
	MarkReplied(ctx context.Context, id string) error
	PendingReplies(ctx context.Context, limit int) ([]*domain.Message, error)
	UpdateDeliveryStatus(ctx context.Context, externalID, status string) error
	LinkProfile(ctx context.Context, id, profileID string) error
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.Message, int64, error)
}

type inboxUsecase struct {
	repo      repository.MessageRepository
	addresses AddressBook
	now       func() time.Time
}

func NewInboxUsecase(repo repository.MessageRepository, addresses AddressBook) InboxUsecase {
	return &inboxUsecase{repo: repo, addresses: addresses, now: time.Now}
}

func normalize(msg *domain.Message, now time.Time) {
	if msg.Transport == types.ChannelEmail {
		msg.Sender = mailbox.Address(msg.Sender)
		msg.Recipient = mailbox.Address(msg.Recipient)
	} else {
		msg.Sender = strings.TrimSpace(msg.Sender)
		msg.Recipient = strings.TrimSpace(msg.Recipient)
	}
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.MessageID != nil {
		id := strings.Trim(strings.TrimSpace(*msg.MessageID), "<>")
		if id == "" {
			msg.MessageID = nil
		} else {
			msg.MessageID = &id
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if msg.Direction == "" {
		msg.Direction = types.DirectionInbound
	}
}

// Accept decides whether an inbound message enters the pipeline. Accepted
// and suppressed messages are stored; duplicates are not.
func (u *inboxUsecase) Accept(ctx context.Context, msg *domain.Message) (domain.Decision, error) {
	normalize(msg, u.now())

	dup, err := u.duplicateReason(ctx, msg)
	if err != nil {
		return domain.Decision{}, err
	}
	if dup != "" {
		log.Printf("[Inbox] skip %s from %s (%s)", msg.Transport, msg.Sender, dup)
		return domain.Decision{Reason: dup, Duplicate: true}, nil
	}

	msg.ID = uuid.New().String()
	msg.Status = domain.StatusReceived
	msg.IsReplied = false

	if msg.Transport == types.ChannelEmail {
		rule, err := u.loopRule(ctx, msg)
		if err != nil {
			return domain.Decision{}, err
		}
		if rule != "" {
			msg.Status = domain.StatusSuppressed
			msg.IsReplied = true
			msg.SuppressionReason = rule
		}
	}

	if err := u.repo.Create(ctx, msg); err != nil {
		// A concurrent poll stored the same message id first
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("[Inbox] skip %s from %s (%s)", msg.Transport, msg.Sender, domain.ReasonDuplicateID)
			return domain.Decision{Reason: domain.ReasonDuplicateID, Duplicate: true}, nil
		}
		return domain.Decision{}, fmt.Errorf("failed to store message: %w", err)
	}

	if msg.Status == domain.StatusSuppressed {
		log.Printf("[Inbox] skip reply to %s: loop rule %s", msg.Sender, msg.SuppressionReason)
		return domain.Decision{Reason: msg.SuppressionReason, Suppressed: true}, nil
	}
	return domain.Decision{Accepted: true}, nil
}

func (u *inboxUsecase) duplicateReason(ctx context.Context, msg *domain.Message) (string, error) {
	if id := msg.ExternalID(); id != "" {
		exists, err := u.repo.ExistsByMessageID(ctx, msg.OwnerID, id)
		if err != nil {
			return "", fmt.Errorf("failed to check message id: %w", err)
		}
		if exists {
			return domain.ReasonDuplicateID, nil
		}
		return "", nil
	}

	window := DuplicateWindow
	if msg.Transport != types.ChannelEmail {
		window = RepeatWindow
	}
	existing, err := u.repo.FindNearDuplicate(ctx, msg, window)
	if err != nil {
		return "", fmt.Errorf("failed to check recent messages: %w", err)
	}
	if existing != nil {
		return domain.ReasonDuplicateWindow, nil
	}
	return "", nil
}

func (u *inboxUsecase) loopRule(ctx context.Context, msg *domain.Message) (string, error) {
	outbound := map[string]bool{}
	if u.addresses != nil {
		addrs, err := u.addresses.SendingAddresses(ctx, msg.OwnerID)
		if err != nil {
			return "", fmt.Errorf("failed to load sending addresses: %w", err)
		}
		for _, a := range addrs {
			if a = mailbox.Address(a); a != "" {
				outbound[a] = true
			}
		}
	}
	return matchLoopRule(envelope{
		sender:    msg.Sender,
		recipient: msg.Recipient,
		subject:   msg.Subject,
		body:      msg.Body,
		outbound:  outbound,
	}), nil
}

// RecordOutbound stores a reply we sent (or failed to send).
func (u *inboxUsecase) RecordOutbound(ctx context.Context, msg *domain.Message) error {
	normalize(msg, u.now())
	msg.Direction = types.DirectionOutbound
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	msg.IsReplied = true
	if err := u.repo.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to record outbound message: %w", err)
	}
	return nil
}

func (u *inboxUsecase) MarkReplied(ctx context.Context, id string) error {
	if _, err := u.repo.MarkReplied(ctx, id); err != nil {
		return fmt.Errorf("failed to mark message replied: %w", err)
	}
	return nil
}

// PendingReplies returns accepted email waiting for the outbound job.
func (u *inboxUsecase) PendingReplies(ctx context.Context, limit int) ([]*domain.Message, error) {
	messages, err := u.repo.ListPending(ctx, types.ChannelEmail, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending replies: %w", err)
	}
	return messages, nil
}

// UpdateDeliveryStatus applies a transport receipt to the outbound message
// with that external id. Stale receipts are ignored.
func (u *inboxUsecase) UpdateDeliveryStatus(ctx context.Context, externalID, status string) error {
	msg, err := u.repo.FindOutboundByMessageID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return domain.ErrMessageNotFound
	}
	if !domain.Advances(msg.Status, status) {
		log.Printf("[Inbox] skip status %s for %s (already %s)", status, externalID, msg.Status)
		return nil
	}
	if err := u.repo.UpdateStatus(ctx, msg.ID, status); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return nil
}

func (u *inboxUsecase) LinkProfile(ctx context.Context, id, profileID string) error {
	if err := u.repo.SetProfile(ctx, id, profileID); err != nil {
		return fmt.Errorf("failed to link profile: %w", err)
	}
	return nil
}

func (u *inboxUsecase) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.Message, int64, error) {
	messages, total, err := u.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, total, nil
}
