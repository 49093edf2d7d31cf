package repository

import (
	"context"
	"errors"
	"time"

	"relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/pkg/types"

	"gorm.io/gorm"
)

// MessageRepository stores ingested and sent messages
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ExistsByMessageID(ctx context.Context, ownerID, messageID string) (bool, error)
	FindNearDuplicate(ctx context.Context, msg *domain.Message, window time.Duration) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindOutboundByMessageID(ctx context.Context, messageID string) (*domain.Message, error)
	ListPending(ctx context.Context, transport types.Channel, limit int) ([]*domain.Message, error)
	MarkReplied(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SetProfile(ctx context.Context, id, profileID string) error
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.Message, int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) ExistsByMessageID(ctx context.Context, ownerID, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("owner_id = ? AND message_id = ?", ownerID, messageID).
		Count(&count).Error
	return count > 0, err
}

// FindNearDuplicate looks for a stored inbound message from the same sender
// on the same transport within window of msg. Email compares subjects;
// transports without subjects compare bodies, so callers pass them a
// short window.
func (r *messageRepository) FindNearDuplicate(ctx context.Context, msg *domain.Message, window time.Duration) (*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ? AND transport = ? AND sender = ? AND direction = ?", msg.OwnerID, msg.Transport, msg.Sender, types.DirectionInbound).
		Where("received_at BETWEEN ? AND ?", msg.ReceivedAt.Add(-window), msg.ReceivedAt.Add(window))
	if msg.Transport == types.ChannelEmail {
		query = query.Where("subject = ?", msg.Subject)
	} else {
		query = query.Where("body = ?", msg.Body)
	}

	var existing domain.Message
	if err := query.First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &existing, nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindOutboundByMessageID finds a sent message by the id its transport
// assigned. Transport ids are global, so no owner is needed.
func (r *messageRepository) FindOutboundByMessageID(ctx context.Context, messageID string) (*domain.Message, error) {
	return r.findOne(ctx, "message_id = ? AND direction = ?", messageID, types.DirectionOutbound)
}

func (r *messageRepository) findOne(ctx context.Context, where string, args ...interface{}) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).Where(where, args...).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListPending returns accepted inbound messages still waiting for a reply,
// oldest first.
func (r *messageRepository) ListPending(ctx context.Context, transport types.Channel, limit int) ([]*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Where("direction = ? AND is_replied = ? AND status = ?", types.DirectionInbound, false, domain.StatusReceived)
	if transport != "" {
		query = query.Where("transport = ?", transport)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*domain.Message
	if err := query.Order("received_at ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkReplied flips is_replied once; it reports whether this call did it.
func (r *messageRepository) MarkReplied(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND is_replied = ?", id, false).
		Updates(map[string]interface{}{"is_replied": true, "updated_at": time.Now()})
	return result.RowsAffected == 1, result.Error
}

func (r *messageRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *messageRepository) SetProfile(ctx context.Context, id, profileID string) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("profile_id", profileID).Error
}

func (r *messageRepository) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.Message, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Message{}).Where("owner_id = ?", ownerID)
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Transport != "" {
		query = query.Where("transport = ?", filter.Transport)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var messages []*domain.Message
	if err := query.Order("received_at DESC").Limit(limit).Offset(filter.Offset).Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// ReassignProfile moves a merged profile's messages to the survivor.
func ReassignProfile(tx *gorm.DB, fromProfileID, toProfileID string) error {
	return tx.Model(&domain.Message{}).
		Where("profile_id = ?", fromProfileID).
		Update("profile_id", toProfileID).Error
}
