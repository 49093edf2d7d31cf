package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReassignFunc moves rows owned by one profile to another inside a merge
// transaction.
type ReassignFunc func(tx *gorm.DB, fromProfileID, toProfileID string) error

// ProfileRepository persists profiles
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	FindByIdentifier(ctx context.Context, ownerID, column, value string) (*domain.Profile, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Profile, int64, error)
	CreateIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error)
	FillMissing(ctx context.Context, id, column, value string) (bool, error)
	Touch(ctx context.Context, id string, channel types.Channel, at time.Time) error
	Update(ctx context.Context, profile *domain.Profile) error
	Merge(ctx context.Context, sourceID, targetID string, combine func(source, target *domain.Profile)) (*domain.Profile, bool, error)
}

type profileRepository struct {
	db          *gorm.DB
	reassigners []ReassignFunc
}

func NewProfileRepository(db *gorm.DB, reassigners ...ReassignFunc) ProfileRepository {
	return &profileRepository{db: db, reassigners: reassigners}
}

var identifierColumns = map[string]bool{
	domain.ColumnName:   true,
	domain.ColumnEmail:  true,
	domain.ColumnPhone:  true,
	domain.ColumnChatID: true,
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	return findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *profileRepository) FindByIdentifier(ctx context.Context, ownerID, column, value string) (*domain.Profile, error) {
	if !identifierColumns[column] || value == "" {
		return nil, nil
	}
	return findOne(r.db.WithContext(ctx).Where("owner_id = ? AND "+column+" = ?", ownerID, value))
}

func findOne(query *gorm.DB) (*domain.Profile, error) {
	var profile domain.Profile
	if err := query.First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Profile, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Profile{}).Where("owner_id = ?", ownerID).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var profiles []*domain.Profile
	page := query
	if limit > 0 {
		page = query.Limit(limit).Offset(offset)
	}
	if err := page.Order("last_seen DESC, created_at DESC").Find(&profiles).Error; err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

// CreateIfAbsent inserts profile unless one of its unique identifiers is
// already taken. It reports whether a row was inserted.
func (r *profileRepository) CreateIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error) {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if profile.Metadata == nil {
		profile.Metadata = types.Metadata{}
	}

	// INSERT ... ON CONFLICT DO NOTHING
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(profile)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FillMissing sets column only while it is still NULL. A unique collision
// surfaces as gorm.ErrDuplicatedKey.
func (r *profileRepository) FillMissing(ctx context.Context, id, column, value string) (bool, error) {
	if !identifierColumns[column] {
		return false, fmt.Errorf("unknown profile column %q", column)
	}
	result := r.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("id = ? AND "+column+" IS NULL", id).
		Updates(map[string]interface{}{column: value, "updated_at": time.Now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Touch records the latest contact, never moving last_seen backwards.
func (r *profileRepository) Touch(ctx context.Context, id string, channel types.Channel, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("id = ? AND (last_seen IS NULL OR last_seen <= ?)", id, at).
		Updates(map[string]interface{}{"last_channel": channel, "last_seen": at, "updated_at": time.Now()}).Error
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	profile.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(profile).Error
}

// Merge folds source into target in one transaction: dependent rows are
// reassigned, source is deleted, then combine mutates target before it
// is saved. A missing source returns the target with merged=false.
func (r *profileRepository) Merge(ctx context.Context, sourceID, targetID string, combine func(source, target *domain.Profile)) (*domain.Profile, bool, error) {
	var result *domain.Profile
	merged := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := func() *gorm.DB {
			if tx.Dialector.Name() == "postgres" {
				return tx.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			return tx
		}

		target, err := findOne(locked().Where("id = ?", targetID))
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrProfileNotFound
		}
		source, err := findOne(locked().Where("id = ?", sourceID))
		if err != nil {
			return err
		}
		result = target
		if source == nil {
			return nil
		}
		if source.OwnerID != target.OwnerID {
			return domain.ErrCrossOwnerMerge
		}

		for _, reassign := range r.reassigners {
			if err := reassign(tx, source.ID, target.ID); err != nil {
				return fmt.Errorf("failed to reassign records: %w", err)
			}
		}

		// Delete first so the target can take over source's unique identifiers
		if err := tx.Delete(&domain.Profile{}, "id = ?", source.ID).Error; err != nil {
			return fmt.Errorf("failed to delete source profile: %w", err)
		}

		combine(source, target)
		target.UpdatedAt = time.Now()
		if err := tx.Save(target).Error; err != nil {
			return fmt.Errorf("failed to save merged profile: %w", err)
		}
		merged = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, merged, nil
}
