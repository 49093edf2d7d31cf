package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	"relaydesk-backend/pkg/googleauth"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// WatchTimeout bounds one Gmail watch call
const WatchTimeout = 20 * time.Second

type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	MailAccounts(ctx context.Context) ([]*accountdomain.Account, error)
	GoogleCredentials(account *accountdomain.Account) (googleauth.Credentials, error)
}

// SyncTrigger starts an out-of-band mail sync
type SyncTrigger interface {
	TriggerNow(ctx context.Context)
}

type Watcher interface {
	Watch(ctx context.Context, creds googleauth.Credentials, topicName string) error
}

// Service listens for Gmail push notifications and turns them into
// immediate mail-sync runs.
type Service struct {
	pubsubClient *pubsub.Client
	accounts     AccountFinder
	trigger      SyncTrigger
	watcher      Watcher
	projectID    string
	topicName    string
	subName      string

	// Deduplication: last historyId per account
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName string, accounts AccountFinder, trigger SyncTrigger, watcher Watcher, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(accounts, trigger, watcher, projectID, topicName)
	s.pubsubClient = client
	return s, nil
}

func newService(accounts AccountFinder, trigger SyncTrigger, watcher Watcher, projectID, topicName string) *Service {
	// Accept both "gmail-updates" and "projects/p/topics/gmail-updates"
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	if topicName == "" {
		topicName = "gmail-updates"
	}
	return &Service{
		accounts:      accounts,
		trigger:       trigger,
		watcher:       watcher,
		projectID:     projectID,
		topicName:     topicName,
		subName:       topicName + "-sub", // Convention: topic-sub
		lastHistoryID: make(map[string]uint64),
	}
}

// TopicPath is the fully qualified topic Gmail publishes to.
func (s *Service) TopicPath() string {
	return fmt.Sprintf("projects/%s/topics/%s", s.projectID, s.topicName)
}

// WatchAll (re)starts Gmail push for every Gmail account. Watches expire
// after seven days, so this runs at startup and daily.
func (s *Service) WatchAll(ctx context.Context) int {
	if s.watcher == nil {
		return 0
	}
	accounts, err := s.accounts.MailAccounts(ctx)
	if err != nil {
		log.Printf("[PubSub] error: failed to list mail accounts: %v", err)
		return 0
	}
	started := 0
	for _, account := range accounts {
		if account.MailProvider != accountdomain.MailProviderGmail {
			continue
		}
		creds, err := s.accounts.GoogleCredentials(account)
		if err != nil {
			log.Printf("[PubSub] error: credentials for %s: %v", account.ID, err)
			continue
		}
		watchCtx, cancel := context.WithTimeout(ctx, WatchTimeout)
		err = s.watcher.Watch(watchCtx, creds, s.TopicPath())
		cancel()
		if err != nil {
			log.Printf("[PubSub] error: watch for %s: %v", account.ID, err)
			continue
		}
		started++
	}
	log.Printf("[PubSub] Gmail watch active for %d accounts", started)
	return started
}

// RenewWatches calls WatchAll every interval until ctx ends.
func (s *Service) RenewWatches(ctx context.Context, interval time.Duration) {
	s.WatchAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.WatchAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	// Ensure subscription exists
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleData(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

// handleData reports whether the notification triggered a sync.
func (s *Service) handleData(ctx context.Context, data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return false
	}

	account, err := s.accounts.FindByEmail(ctx, notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding account by email %s: %v", notification.EmailAddress, err)
		return false
	}
	if account == nil {
		log.Printf("[PubSub] skip: no account for %s", notification.EmailAddress)
		return false
	}

	s.mu.Lock()
	lastHID, seen := s.lastHistoryID[account.ID]
	if seen && notification.HistoryID <= lastHID {
		s.mu.Unlock()
		log.Printf("[PubSub] skip duplicate notification for %s (historyId %d <= last %d)", account.ID, notification.HistoryID, lastHID)
		return false
	}
	s.lastHistoryID[account.ID] = notification.HistoryID
	s.mu.Unlock()

	log.Printf("[PubSub] New mail for %s (historyId %d), triggering sync", account.ID, notification.HistoryID)
	s.trigger.TriggerNow(context.Background())
	return true
}
