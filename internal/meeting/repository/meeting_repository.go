package repository

import (
	"context"
	"errors"
	"time"

	"relaydesk-backend/internal/meeting/domain"

	"gorm.io/gorm"
)

// MeetingRepository stores booked meetings
type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	FindByID(ctx context.Context, id string) (*domain.Meeting, error)
	List(ctx context.Context, ownerID string, from *time.Time, limit int) ([]*domain.Meeting, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	FindPendingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Meeting, error)
	MarkReminderSent(ctx context.Context, id string) error
}

type meetingRepository struct {
	db *gorm.DB
}

func NewMeetingRepository(db *gorm.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

func (r *meetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	return r.db.WithContext(ctx).Create(meeting).Error
}

func (r *meetingRepository) FindByID(ctx context.Context, id string) (*domain.Meeting, error) {
	var meeting domain.Meeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

// List returns meetings by start time. A non-nil from limits the result
// to meetings starting at or after it.
func (r *meetingRepository) List(ctx context.Context, ownerID string, from *time.Time, limit int) ([]*domain.Meeting, error) {
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if from != nil {
		query = query.Where("start_time >= ?", *from)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var meetings []*domain.Meeting
	if err := query.Order("start_time ASC").Find(&meetings).Error; err != nil {
		return nil, err
	}
	return meetings, nil
}

func (r *meetingRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Meeting{}).
		Where("id = ? AND status = ?", id, domain.StatusScheduled).
		Updates(map[string]interface{}{
			"status":       domain.StatusCancelled,
			"cancelled_at": at,
			"updated_at":   time.Now(),
		}).Error
}

// FindPendingReminders returns scheduled meetings starting within lead of
// now whose reminder has not gone out.
func (r *meetingRepository) FindPendingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Meeting, error) {
	var meetings []*domain.Meeting
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ? AND start_time > ? AND start_time <= ?",
			domain.StatusScheduled, false, now, now.Add(lead)).
		Order("start_time ASC").
		Find(&meetings).Error
	return meetings, err
}

func (r *meetingRepository) MarkReminderSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Meeting{}).
		Where("id = ?", id).
		Update("reminder_sent", true).Error
}

// ReassignProfile moves a merged profile's meetings to the survivor.
func ReassignProfile(tx *gorm.DB, fromProfileID, toProfileID string) error {
	return tx.Model(&domain.Meeting{}).
		Where("profile_id = ?", fromProfileID).
		Update("profile_id", toProfileID).Error
}
