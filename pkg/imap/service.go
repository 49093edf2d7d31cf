package imap

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"strconv"
	"time"

	"relaydesk-backend/pkg/mailbox"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
)

// Account holds the connection settings of one mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (a Account) addr() string {
	port := a.Port
	if port == 0 {
		port = 993
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

// IMAPService polls mailboxes over IMAP with a hard per-call timeout.
type IMAPService struct {
	timeout time.Duration
}

func NewIMAPService(timeout time.Duration) *IMAPService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IMAPService{timeout: timeout}
}

func (s *IMAPService) connect(ctx context.Context, acc Account) (*client.Client, func(), error) {
	dialer := &net.Dialer{Timeout: s.timeout}
	c, err := client.DialWithDialerTLS(dialer, acc.addr(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", acc.Host, err)
	}
	c.Timeout = s.timeout

	// Tear the connection down when ctx ends so blocked commands return
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()
	cleanup := func() {
		close(stop)
		_ = c.Logout()
	}

	if err := c.Login(acc.Username, acc.Password); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to login: %w", err)
	}
	return c, cleanup, nil
}

// FetchMessages returns up to q.Limit most recent messages in q.Folder.
func (s *IMAPService) FetchMessages(ctx context.Context, acc Account, q mailbox.Query) ([]*mailbox.Message, error) {
	q = q.Normalize()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, cleanup, err := s.connect(ctx, acc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err := c.Select(q.Folder, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", q.Folder, err)
	}

	criteria := goimap.NewSearchCriteria()
	if q.Scope == mailbox.ScopeUnreadOnly {
		criteria.WithoutFlags = []string{goimap.SeenFlag}
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", q.Folder, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	uids = newest(uids, q.Limit)

	seqset := new(goimap.SeqSet)
	seqset.AddNum(uids...)
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *goimap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var messages []*mailbox.Message
	for raw := range ch {
		body := raw.GetBody(section)
		if body == nil {
			continue
		}
		msg, err := mailbox.Parse(body)
		if err != nil {
			log.Printf("[IMAP] skip unreadable message uid=%d: %v", raw.Uid, err)
			continue
		}
		msg.ProviderID = strconv.FormatUint(uint64(raw.Uid), 10)
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = raw.InternalDate
		}
		messages = append(messages, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// MarkAsRead sets \Seen on the message with the given UID.
func (s *IMAPService) MarkAsRead(ctx context.Context, acc Account, folder, providerID string) error {
	uid, err := strconv.ParseUint(providerID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid uid %q: %w", providerID, err)
	}
	if folder == "" {
		folder = "INBOX"
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, cleanup, err := s.connect(ctx, acc)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := c.Select(folder, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}
	seqset := new(goimap.SeqSet)
	seqset.AddNum(uint32(uid))
	flags := []interface{}{goimap.SeenFlag}
	if err := c.UidStore(seqset, goimap.FormatFlagsOp(goimap.AddFlags, true), flags, nil); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	return nil
}

// newest keeps the limit highest UIDs.
func newest(uids []uint32, limit int) []uint32 {
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	return uids
}
