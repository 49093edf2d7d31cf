package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/interaction/domain"
	"relaydesk-backend/internal/interaction/repository"
	"relaydesk-backend/pkg/types"

	"github.com/google/uuid"
)

const indexTimeout = 15 * time.Second

// ActivityRecorder receives ledger write failures
type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// ExchangeIndex is the vector index of past replies
type ExchangeIndex interface {
	UpsertExchange(ctx context.Context, id, ownerID, profileID, channel, text string) error
	SemanticSearch(ctx context.Context, ownerID, query string, limit int) ([]string, error)
}

// RecordInput describes one message to append to the ledger.
type RecordInput struct {
	OwnerID   string
	ProfileID string
	Channel   types.Channel
	Direction string
	Content   string
	Metadata  types.Metadata
	At        time.Time
}

// LedgerUsecase records interactions and rebuilds conversation context
type LedgerUsecase interface {
	// Record never fails the caller; nil means the write was lost.
	Record(ctx context.Context, in RecordInput) *domain.Interaction
	RecentHistory(ctx context.Context, profileID string, limit int, opts domain.HistoryOptions) ([]*domain.Interaction, error)
	Timeline(ctx context.Context, ownerID, profileID string, limit int) ([]*domain.Interaction, error)
	SimilarExchanges(ctx context.Context, ownerID, text string, k int) ([]*domain.Interaction, error)
}

type ledgerUsecase struct {
	repo     repository.InteractionRepository
	activity ActivityRecorder
	index    ExchangeIndex
	now      func() time.Time
}

// NewLedgerUsecase builds the ledger. index may be nil when no vector
// store is configured.
func NewLedgerUsecase(repo repository.InteractionRepository, activity ActivityRecorder, index ExchangeIndex) LedgerUsecase {
	return &ledgerUsecase{repo: repo, activity: activity, index: index, now: time.Now}
}

func (u *ledgerUsecase) Record(ctx context.Context, in RecordInput) *domain.Interaction {
	at := in.At
	if at.IsZero() {
		at = u.now()
	}
	meta := in.Metadata
	if meta == nil {
		meta = types.Metadata{}
	}
	interaction := &domain.Interaction{
		ID:         uuid.New().String(),
		OwnerID:    in.OwnerID,
		ProfileID:  in.ProfileID,
		Channel:    in.Channel,
		Direction:  in.Direction,
		Content:    in.Content,
		Metadata:   meta,
		OccurredAt: at,
	}

	if err := u.repo.Create(ctx, interaction); err != nil {
		log.Printf("[Ledger] warning: failed to record %s %s interaction for profile %s: %v", in.Direction, in.Channel, in.ProfileID, err)
		if u.activity != nil {
			u.activity.Record(ctx, in.OwnerID, activitydomain.KindLedgerWriteFailed, activitydomain.SeverityWarning,
				"A conversation message could not be saved",
				types.Metadata{"profile_id": in.ProfileID, "channel": string(in.Channel), "error": err.Error()})
		}
		return nil
	}

	if u.index != nil && interaction.Direction == types.DirectionOutbound && strings.TrimSpace(interaction.Content) != "" {
		go u.indexExchange(interaction)
	}
	return interaction
}

func (u *ledgerUsecase) indexExchange(i *domain.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	if err := u.index.UpsertExchange(ctx, i.ID, i.OwnerID, i.ProfileID, string(i.Channel), i.Content); err != nil {
		log.Printf("[Ledger] warning: failed to index interaction %s: %v", i.ID, err)
	}
}

// RecentHistory returns up to limit interactions, oldest first. Unless
// opts.CrossSession is set, anything older than SessionWindow before the
// last contact is left out.
func (u *ledgerUsecase) RecentHistory(ctx context.Context, profileID string, limit int, opts domain.HistoryOptions) ([]*domain.Interaction, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}

	q := domain.HistoryQuery{ProfileID: profileID, Limit: limit}
	if !opts.CrossSession {
		last, err := u.repo.LastContact(ctx, profileID, opts.Channel)
		if err != nil {
			return nil, fmt.Errorf("failed to find last contact: %w", err)
		}
		if last == nil && opts.Channel != "" {
			// First message on this channel; anchor on any channel
			last, err = u.repo.LastContact(ctx, profileID, "")
			if err != nil {
				return nil, fmt.Errorf("failed to find last contact: %w", err)
			}
		}
		if last == nil {
			return []*domain.Interaction{}, nil
		}
		since := last.Add(-domain.SessionWindow)
		q.Since = &since
	}

	interactions, err := u.repo.History(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	reverse(interactions)
	return interactions, nil
}

// Timeline is the dashboard view of a profile's full history.
func (u *ledgerUsecase) Timeline(ctx context.Context, ownerID, profileID string, limit int) ([]*domain.Interaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	interactions, err := u.repo.History(ctx, domain.HistoryQuery{OwnerID: ownerID, ProfileID: profileID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	reverse(interactions)
	return interactions, nil
}

// SimilarExchanges returns past replies semantically close to text, in
// ranking order. Without an index it returns nothing.
func (u *ledgerUsecase) SimilarExchanges(ctx context.Context, ownerID, text string, k int) ([]*domain.Interaction, error) {
	text = strings.TrimSpace(text)
	if u.index == nil || text == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 3
	}

	ids, err := u.index.SemanticSearch(ctx, ownerID, text, k)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	found, err := u.repo.FindByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}

	byID := make(map[string]*domain.Interaction, len(found))
	for _, i := range found {
		byID[i.ID] = i
	}
	out := make([]*domain.Interaction, 0, len(found))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func reverse(items []*domain.Interaction) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
