package repository

import (
	"context"

	"relaydesk-backend/internal/activity/domain"

	"gorm.io/gorm"
)

// ActivityRepository stores activity events
type ActivityRepository interface {
	Create(ctx context.Context, event *domain.ActivityEvent) error
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.ActivityEvent, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, event *domain.ActivityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// List returns newest first. System events (no owner) are included.
func (r *activityRepository) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.ActivityEvent, error) {
	query := r.db.WithContext(ctx).Where("owner_id = ? OR owner_id = ''", ownerID)
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []*domain.ActivityEvent
	if err := query.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
