package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"relaydesk-backend/pkg/mailbox"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Account holds the submission settings of one mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Sender submits replies over SMTP. STARTTLS is required.
type Sender struct {
	timeout time.Duration
	now     func() time.Time
}

func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{timeout: timeout, now: time.Now}
}

// HostFromIMAP guesses the submission host from an IMAP host
// ("imap.example.com" becomes "smtp.example.com").
func HostFromIMAP(imapHost string) string {
	if rest, ok := strings.CutPrefix(imapHost, "imap."); ok {
		return "smtp." + rest
	}
	return imapHost
}

// NewMessageID builds a Message-ID under the sender's domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.New().String() + "@" + domain
}

// Send delivers out and returns the Message-ID it was sent with.
func (s *Sender) Send(ctx context.Context, acc Account, out mailbox.Outgoing) (string, error) {
	if out.MessageID == "" {
		out.MessageID = NewMessageID(out.From)
	}
	raw, err := mailbox.Compose(out, s.now())
	if err != nil {
		return "", err
	}

	port := acc.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(acc.Host, strconv.Itoa(port))

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	_ = conn.SetDeadline(deadline)

	c, err := gosmtp.NewClientStartTLS(conn, &tls.Config{ServerName: acc.Host})
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("failed to start tls with %s: %w", addr, err)
	}
	defer c.Close()

	if acc.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", acc.Username, acc.Password)); err != nil {
			return "", fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := c.Mail(out.From, nil); err != nil {
		return "", fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(out.To, nil); err != nil {
		return "", fmt.Errorf("failed to set recipient: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("failed to open data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	_ = c.Quit()
	return out.MessageID, nil
}
