package repository

import (
	"context"
	"errors"
	"time"

	"relaydesk-backend/internal/interaction/domain"
	"relaydesk-backend/pkg/types"

	"gorm.io/gorm"
)

// InteractionRepository is append-only storage for interactions
type InteractionRepository interface {
	Create(ctx context.Context, interaction *domain.Interaction) error
	LastContact(ctx context.Context, profileID string, channel types.Channel) (*time.Time, error)
	History(ctx context.Context, q domain.HistoryQuery) ([]*domain.Interaction, error)
	FindByIDs(ctx context.Context, ownerID string, ids []string) ([]*domain.Interaction, error)
}

type interactionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) Create(ctx context.Context, interaction *domain.Interaction) error {
	return r.db.WithContext(ctx).Create(interaction).Error
}

// LastContact returns when the profile was last heard from or answered,
// optionally on one channel. Nil when there is no history.
func (r *interactionRepository) LastContact(ctx context.Context, profileID string, channel types.Channel) (*time.Time, error) {
	query := r.db.WithContext(ctx).Where("profile_id = ?", profileID)
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}

	var latest domain.Interaction
	if err := query.Order("occurred_at DESC").First(&latest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &latest.OccurredAt, nil
}

// History returns the newest q.Limit interactions, newest first.
func (r *interactionRepository) History(ctx context.Context, q domain.HistoryQuery) ([]*domain.Interaction, error) {
	query := r.db.WithContext(ctx).Where("profile_id = ?", q.ProfileID)
	if q.OwnerID != "" {
		query = query.Where("owner_id = ?", q.OwnerID)
	}
	if q.Since != nil {
		query = query.Where("occurred_at >= ?", *q.Since)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var interactions []*domain.Interaction
	if err := query.Order("occurred_at DESC, created_at DESC").Find(&interactions).Error; err != nil {
		return nil, err
	}
	return interactions, nil
}

func (r *interactionRepository) FindByIDs(ctx context.Context, ownerID string, ids []string) ([]*domain.Interaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var interactions []*domain.Interaction
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id IN ?", ownerID, ids).Find(&interactions).Error; err != nil {
		return nil, err
	}
	return interactions, nil
}

// ReassignProfile moves a merged profile's interactions to the survivor.
// It matches the profile repository's ReassignFunc.
func ReassignProfile(tx *gorm.DB, fromProfileID, toProfileID string) error {
	return tx.Model(&domain.Interaction{}).
		Where("profile_id = ?", fromProfileID).
		Update("profile_id", toProfileID).Error
}
