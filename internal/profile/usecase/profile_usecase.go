package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/internal/profile/repository"
	"relaydesk-backend/pkg/fuzzy"
	"relaydesk-backend/pkg/types"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// nameMatchThreshold is the edit distance under which two names are
// offered as a merge candidate.
const nameMatchThreshold = 2

// ActivityRecorder is the subset of the activity log the resolver uses
type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// ProfileUsecase resolves, merges and searches contact profiles
type ProfileUsecase interface {
	Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Profile, error)
	Merge(ctx context.Context, ownerID, sourceID, targetID string) (*domain.Profile, error)
	Update(ctx context.Context, ownerID, id string, upd domain.ProfileUpdate) (*domain.Profile, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Profile, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Profile, int64, error)
	Search(ctx context.Context, ownerID, query string, limit int) ([]*domain.Profile, error)
	Suggestions(ctx context.Context, ownerID string) ([]domain.MergeSuggestion, error)
}

type profileUsecase struct {
	repo     repository.ProfileRepository
	activity ActivityRecorder
	group    singleflight.Group
	now      func() time.Time
}

func NewProfileUsecase(repo repository.ProfileRepository, activity ActivityRecorder) ProfileUsecase {
	return &profileUsecase{repo: repo, activity: activity, now: time.Now}
}

type identifier struct {
	column string
	value  string
}

// candidates lists identifiers in lookup precedence: extracted email,
// extracted phone, then the channel-native id.
func candidates(ids domain.Identifiers, nativeColumn, nativeValue string) []identifier {
	var out []identifier
	if ids.Email != "" {
		out = append(out, identifier{domain.ColumnEmail, ids.Email})
	}
	if ids.Phone != "" {
		out = append(out, identifier{domain.ColumnPhone, ids.Phone})
	}
	if nativeColumn != "" {
		out = append(out, identifier{nativeColumn, nativeValue})
	}
	return out
}

func (u *profileUsecase) Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Profile, error) {
	ids := ExtractIdentifiers(req.Content)
	nativeColumn, nativeValue := NativeIdentifier(req.Channel, req.ContactID)
	lookups := candidates(ids, nativeColumn, nativeValue)

	profile, err := u.lookup(ctx, req, lookups)
	if err != nil {
		return nil, err
	}

	if profile == nil {
		if len(lookups) == 0 {
			return nil, domain.ErrMissingIdentifier
		}
		profile, err = u.createCoalesced(ctx, req, ids, nativeColumn, nativeValue, lookups)
		if err != nil {
			return nil, err
		}
	}

	profile, err = u.enrich(ctx, profile, ids, nativeColumn, nativeValue)
	if err != nil {
		return nil, err
	}

	now := u.now()
	if err := u.repo.Touch(ctx, profile.ID, req.Channel, now); err != nil {
		return nil, fmt.Errorf("failed to touch profile: %w", err)
	}
	if profile.LastSeen == nil || !profile.LastSeen.After(now) {
		profile.LastChannel = req.Channel
		profile.LastSeen = &now
	}
	return profile, nil
}

func (u *profileUsecase) lookup(ctx context.Context, req domain.ResolveRequest, lookups []identifier) (*domain.Profile, error) {
	if req.ProfileID != "" {
		profile, err := u.repo.FindByID(ctx, req.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if profile != nil && profile.OwnerID == req.OwnerID {
			return profile, nil
		}
	}
	for _, id := range lookups {
		profile, err := u.repo.FindByIdentifier(ctx, req.OwnerID, id.column, id.value)
		if err != nil {
			return nil, fmt.Errorf("failed to find profile by %s: %w", id.column, err)
		}
		if profile != nil {
			return profile, nil
		}
	}
	return nil, nil
}

// createCoalesced creates a profile once per identifier even when several
// goroutines resolve the same new contact at the same time.
func (u *profileUsecase) createCoalesced(ctx context.Context, req domain.ResolveRequest, ids domain.Identifiers, nativeColumn, nativeValue string, lookups []identifier) (*domain.Profile, error) {
	key := req.OwnerID + "|" + lookups[0].column + "|" + lookups[0].value
	v, err, _ := u.group.Do(key, func() (interface{}, error) {
		return u.create(ctx, req, ids, nativeColumn, nativeValue, lookups)
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a result must not share the pointer
	shared := *v.(*domain.Profile)
	return &shared, nil
}

func (u *profileUsecase) create(ctx context.Context, req domain.ResolveRequest, ids domain.Identifiers, nativeColumn, nativeValue string, lookups []identifier) (*domain.Profile, error) {
	profile := &domain.Profile{
		ID:       uuid.New().String(),
		OwnerID:  req.OwnerID,
		Metadata: types.Metadata{"first_channel": string(req.Channel)},
	}
	set := func(dst **string, v string) {
		if v != "" && *dst == nil {
			val := v
			*dst = &val
		}
	}
	// The transport's own id is the verified one, so it seeds first
	switch nativeColumn {
	case domain.ColumnPhone:
		set(&profile.Phone, nativeValue)
	case domain.ColumnEmail:
		set(&profile.Email, nativeValue)
	case domain.ColumnChatID:
		set(&profile.ChatID, nativeValue)
	}
	set(&profile.Email, ids.Email)
	set(&profile.Phone, ids.Phone)
	set(&profile.Name, ids.Name)

	created, err := u.repo.CreateIfAbsent(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	if created {
		log.Printf("[Resolver] created profile %s for owner %s via %s", profile.ID, req.OwnerID, req.Channel)
		return profile, nil
	}

	// Lost a race with another writer; the winner is now visible
	existing, err := u.lookup(ctx, domain.ResolveRequest{OwnerID: req.OwnerID}, lookups)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("failed to create profile: conflicting row not found")
	}
	return existing, nil
}

// enrich fills identifiers the profile does not have yet. When another
// profile already holds the value, that profile is merged into this one
// and the fill is retried once.
func (u *profileUsecase) enrich(ctx context.Context, profile *domain.Profile, ids domain.Identifiers, nativeColumn, nativeValue string) (*domain.Profile, error) {
	fills := []identifier{
		{domain.ColumnEmail, ids.Email},
		{domain.ColumnPhone, ids.Phone},
		{domain.ColumnName, ids.Name},
	}
	if nativeColumn != "" {
		fills = append(fills, identifier{nativeColumn, nativeValue})
	}

	for _, f := range fills {
		if f.value == "" || profile.Field(f.column) != "" {
			continue
		}
		filled, err := u.fill(ctx, profile, f)
		if err != nil {
			return nil, err
		}
		profile = filled
	}
	return profile, nil
}

func (u *profileUsecase) fill(ctx context.Context, profile *domain.Profile, f identifier) (*domain.Profile, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := u.repo.FillMissing(ctx, profile.ID, f.column, f.value)
		if err == nil {
			if ok {
				log.Printf("[Resolver] profile %s gained %s", profile.ID, f.column)
			}
			return u.reload(ctx, profile)
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt > 0 {
			return nil, fmt.Errorf("failed to fill %s: %w", f.column, err)
		}

		other, err := u.repo.FindByIdentifier(ctx, profile.OwnerID, f.column, f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to find conflicting profile: %w", err)
		}
		if other == nil || other.ID == profile.ID {
			continue
		}
		log.Printf("[Resolver] %s %s already on profile %s, merging into %s", f.column, f.value, other.ID, profile.ID)
		merged, err := u.Merge(ctx, profile.OwnerID, other.ID, profile.ID)
		if err != nil {
			return nil, err
		}
		profile = merged
		if profile.Field(f.column) != "" {
			return profile, nil
		}
	}
	return u.reload(ctx, profile)
}

func (u *profileUsecase) reload(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	fresh, err := u.repo.FindByID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload profile: %w", err)
	}
	if fresh == nil {
		return nil, domain.ErrProfileNotFound
	}
	return fresh, nil
}

// Merge folds source into target. Merging an already merged (missing)
// source returns the target unchanged.
func (u *profileUsecase) Merge(ctx context.Context, ownerID, sourceID, targetID string) (*domain.Profile, error) {
	if sourceID == targetID {
		return nil, domain.ErrSelfMerge
	}
	if _, err := u.Get(ctx, ownerID, targetID); err != nil {
		return nil, err
	}

	target, merged, err := u.repo.Merge(ctx, sourceID, targetID, combineProfiles)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) || errors.Is(err, domain.ErrCrossOwnerMerge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to merge profiles: %w", err)
	}

	if merged {
		log.Printf("[Resolver] merged profile %s into %s", sourceID, targetID)
		if u.activity != nil {
			u.activity.Record(ctx, ownerID, activitydomain.KindProfilesMerged, activitydomain.SeverityInfo,
				fmt.Sprintf("Merged contact %s into %s", sourceID, target.DisplayName()),
				types.Metadata{"source_id": sourceID, "target_id": targetID})
		}
	}
	return target, nil
}

// combineProfiles copies what target lacks from source. Target wins every
// conflict except LastSeen, where the most recent contact is kept.
func combineProfiles(source, target *domain.Profile) {
	copyIfEmpty := func(dst **string, src *string) {
		if (*dst == nil || **dst == "") && src != nil && *src != "" {
			v := *src
			*dst = &v
		}
	}
	copyIfEmpty(&target.Name, source.Name)
	copyIfEmpty(&target.Email, source.Email)
	copyIfEmpty(&target.Phone, source.Phone)
	copyIfEmpty(&target.ChatID, source.ChatID)

	target.Metadata = types.Merge(source.Metadata, target.Metadata)

	if source.LastSeen != nil && (target.LastSeen == nil || source.LastSeen.After(*target.LastSeen)) {
		seen := *source.LastSeen
		target.LastSeen = &seen
		target.LastChannel = source.LastChannel
	}
	if source.CreatedAt.Before(target.CreatedAt) && !source.CreatedAt.IsZero() {
		target.CreatedAt = source.CreatedAt
	}
}

func (u *profileUsecase) Get(ctx context.Context, ownerID, id string) (*domain.Profile, error) {
	profile, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil || profile.OwnerID != ownerID {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

// Update applies verified changes, overwriting existing values.
func (u *profileUsecase) Update(ctx context.Context, ownerID, id string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	profile, err := u.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	apply := func(dst **string, v *string, normalize func(string) string) {
		if v == nil {
			return
		}
		s := strings.TrimSpace(*v)
		if normalize != nil && s != "" {
			s = normalize(s)
		}
		if s == "" {
			*dst = nil
			return
		}
		*dst = &s
	}
	apply(&profile.Name, upd.Name, nil)
	apply(&profile.Email, upd.Email, NormalizeEmail)
	apply(&profile.Phone, upd.Phone, NormalizePhone)
	apply(&profile.ChatID, upd.ChatID, nil)
	if upd.Metadata != nil {
		profile.Metadata = types.Merge(profile.Metadata, upd.Metadata)
	}

	if err := u.repo.Update(ctx, profile); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrIdentifierTaken
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

func (u *profileUsecase) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Profile, int64, error) {
	profiles, total, err := u.repo.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, total, nil
}

// Search ranks the owner's profiles against a free-text query.
func (u *profileUsecase) Search(ctx context.Context, ownerID, query string, limit int) ([]*domain.Profile, error) {
	profiles, _, err := u.repo.List(ctx, ownerID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	type scored struct {
		profile *domain.Profile
		score   float64
	}
	var hits []scored
	for _, p := range profiles {
		s := fuzzy.ProfileScore(query, p.Field(domain.ColumnName), p.Field(domain.ColumnEmail), p.Field(domain.ColumnPhone))
		if s > 0 {
			hits = append(hits, scored{p, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit <= 0 {
		limit = 20
	}
	out := make([]*domain.Profile, 0, limit)
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].profile)
	}
	return out, nil
}

// Suggestions pairs profiles whose names nearly match. The older profile
// is proposed as the merge target.
func (u *profileUsecase) Suggestions(ctx context.Context, ownerID string) ([]domain.MergeSuggestion, error) {
	profiles, _, err := u.repo.List(ctx, ownerID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	var out []domain.MergeSuggestion
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			if !fuzzy.SameName(a.Field(domain.ColumnName), b.Field(domain.ColumnName), nameMatchThreshold) {
				continue
			}
			source, target := a, b
			if a.CreatedAt.Before(b.CreatedAt) {
				source, target = b, a
			}
			out = append(out, domain.MergeSuggestion{
				Source: source,
				Target: target,
				Reason: fmt.Sprintf("similar names: %q and %q", a.Field(domain.ColumnName), b.Field(domain.ColumnName)),
			})
		}
	}
	return out, nil
}
