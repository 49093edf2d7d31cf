package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"relaydesk-backend/internal/meeting/repository"
	"relaydesk-backend/pkg/fcm"
)

// Notifier pushes to an owner's registered devices
type Notifier interface {
	NotifyOwner(ctx context.Context, ownerID string, n fcm.NotificationData) error
}

// MeetingReminderScheduler pushes a reminder shortly before each meeting
type MeetingReminderScheduler struct {
	meetingRepo repository.MeetingRepository
	notifier    Notifier
	interval    time.Duration
	lead        time.Duration
	now         func() time.Time
	stopChan    chan struct{}
}

func NewMeetingReminderScheduler(meetingRepo repository.MeetingRepository, notifier Notifier, lead time.Duration) *MeetingReminderScheduler {
	if lead <= 0 {
		lead = 15 * time.Minute
	}
	return &MeetingReminderScheduler{
		meetingRepo: meetingRepo,
		notifier:    notifier,
		interval:    time.Minute,
		lead:        lead,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *MeetingReminderScheduler) Start() {
	if s.notifier == nil {
		log.Println("[MeetingScheduler] no notifier available, reminders disabled")
		return
	}

	log.Printf("[MeetingScheduler] starting meeting reminders (lead: %s)", s.lead)

	go func() {
		s.checkAndSendReminders()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.checkAndSendReminders()
			case <-s.stopChan:
				log.Println("[MeetingScheduler] scheduler stopped")
				return
			}
		}
	}()
}

func (s *MeetingReminderScheduler) Stop() {
	close(s.stopChan)
}

// checkAndSendReminders notifies owners of meetings starting within the
// lead time. Each meeting is reminded at most once.
func (s *MeetingReminderScheduler) checkAndSendReminders() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := s.now()
	meetings, err := s.meetingRepo.FindPendingReminders(ctx, now, s.lead)
	if err != nil {
		log.Printf("[MeetingScheduler] error finding pending reminders: %v", err)
		return 0
	}
	if len(meetings) == 0 {
		return 0
	}

	log.Printf("[MeetingScheduler] found %d meetings needing a reminder", len(meetings))

	sent := 0
	for _, m := range meetings {
		minutes := int(m.StartTime.Sub(now).Round(time.Minute) / time.Minute)
		body := fmt.Sprintf("Starts in %d min", minutes)
		if m.AttendeeEmail != "" {
			body += " with " + m.AttendeeEmail
		}

		data := map[string]string{
			"type":         "meeting_reminder",
			"meeting_id":   m.ID,
			"click_action": "/meetings",
		}
		if m.JoinLink != "" {
			data["join_link"] = m.JoinLink
		}

		err := s.notifier.NotifyOwner(ctx, m.OwnerID, fcm.NotificationData{
			Title: "Upcoming: " + m.Subject,
			Body:  body,
			Data:  data,
		})
		if err != nil {
			log.Printf("[MeetingScheduler] error sending reminder for meeting %s: %v", m.ID, err)
		} else {
			sent++
		}

		// Marked regardless of delivery so a broken device cannot cause a retry storm
		if err := s.meetingRepo.MarkReminderSent(ctx, m.ID); err != nil {
			log.Printf("[MeetingScheduler] error marking reminder sent for meeting %s: %v", m.ID, err)
		}
	}
	return sent
}
