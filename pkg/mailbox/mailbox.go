package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Search scopes
const (
	ScopeUnreadOnly = "unread-only"
	ScopeAll        = "all"
)

// Query selects which messages a poll returns.
type Query struct {
	Folder string
	Scope  string
	Limit  int
}

// Normalize fills defaults: INBOX, unread-only, 20 messages.
func (q Query) Normalize() Query {
	if q.Folder == "" {
		q.Folder = "INBOX"
	}
	if q.Scope != ScopeAll {
		q.Scope = ScopeUnreadOnly
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

// Message is a polled mailbox message independent of the provider.
type Message struct {
	ProviderID string // provider-local id (Gmail id, IMAP UID)
	MessageID  string // RFC 5322 Message-ID without brackets
	InReplyTo  string
	From       string
	FromName   string
	To         string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Outgoing is a plain text reply to send.
type Outgoing struct {
	From      string
	FromName  string
	To        string
	Subject   string
	Body      string
	InReplyTo string
	MessageID string
}

// Compose renders an RFC 5322 message for out.
func Compose(out Outgoing, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: out.FromName, Address: out.From}})
	h.SetAddressList("To", []*mail.Address{{Address: out.To}})
	h.SetSubject(out.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if out.MessageID != "" {
		h.SetMessageID(out.MessageID)
	}
	if out.InReplyTo != "" {
		h.Set("In-Reply-To", "<"+out.InReplyTo+">")
		h.Set("References", "<"+out.InReplyTo+">")
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, out.Body); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ReplySubject prefixes subject with "Re: " once.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// Parse reads a raw RFC 5322 message into a Message, preferring the
// text/plain body part.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &Message{}
	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()
	if ids, err := mr.Header.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
		msg.FromName = from[0].Name
	}
	if to, err := mr.Header.AddressList("To"); err == nil && len(to) > 0 {
		msg.To = to[0].Address
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		switch ct {
		case "text/plain":
			if plain == "" {
				plain = string(b)
			}
		case "text/html":
			if html == "" {
				html = string(b)
			}
		}
	}
	if plain != "" {
		msg.Body = strings.TrimSpace(plain)
	} else {
		msg.Body = StripHTML(html)
	}
	return msg, nil
}
