package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/activity/repository"
	"relaydesk-backend/pkg/fcm"
	"relaydesk-backend/pkg/types"

	"github.com/google/uuid"
)

// Alerter pushes a notification to an owner's devices
type Alerter interface {
	NotifyOwner(ctx context.Context, ownerID string, n fcm.NotificationData) error
}

// ActivityUsecase records operational events. Recording never fails the caller.
type ActivityUsecase interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.ActivityEvent, error)
}

type activityUsecase struct {
	repo    repository.ActivityRepository
	alerter Alerter
	now     func() time.Time
}

func NewActivityUsecase(repo repository.ActivityRepository, alerter Alerter) ActivityUsecase {
	return &activityUsecase{repo: repo, alerter: alerter, now: time.Now}
}

func (u *activityUsecase) Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata) {
	event := &domain.ActivityEvent{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Metadata:  meta,
		CreatedAt: u.now(),
	}
	if err := u.repo.Create(ctx, event); err != nil {
		log.Printf("[Activity] error: failed to store %s event: %v", kind, err)
	}

	if severity != domain.SeverityCritical {
		return
	}
	log.Printf("[Activity] CRITICAL %s: %s", kind, message)
	if u.alerter == nil || ownerID == "" {
		return
	}
	// Push in the background with its own deadline
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := u.alerter.NotifyOwner(pushCtx, ownerID, fcm.NotificationData{
			Title:    "Action needed",
			Body:     message,
			Critical: true,
			Data: map[string]string{
				"type":     "activity",
				"kind":     kind,
				"event_id": event.ID,
			},
		})
		if err != nil {
			log.Printf("[FCM] failed to push critical alert: %v", err)
		}
	}()
}

func (u *activityUsecase) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]*domain.ActivityEvent, error) {
	events, err := u.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return events, nil
}
