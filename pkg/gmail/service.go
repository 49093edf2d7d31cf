package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"relaydesk-backend/pkg/googleauth"
	"relaydesk-backend/pkg/mailbox"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const user = "me"

type Service struct {
	auth *googleauth.Client
}

func NewService(auth *googleauth.Client) *Service {
	return &Service{auth: auth}
}

// GetGmailService creates a Gmail client for one account's tokens
func (s *Service) GetGmailService(ctx context.Context, creds googleauth.Credentials) (*gmail.Service, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(s.auth.HTTPClient(ctx, creds)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// buildQuery turns a mailbox query into Gmail search syntax.
func buildQuery(q mailbox.Query) string {
	parts := []string{}
	if q.Folder != "" && !strings.EqualFold(q.Folder, "ALL") {
		parts = append(parts, "label:"+strings.ToLower(q.Folder))
	}
	if q.Scope == mailbox.ScopeUnreadOnly {
		parts = append(parts, "is:unread")
	}
	return strings.Join(parts, " ")
}

// FetchMessages lists messages matching q and loads each in full.
func (s *Service) FetchMessages(ctx context.Context, creds googleauth.Credentials, q mailbox.Query) ([]*mailbox.Message, error) {
	q = q.Normalize()
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return nil, err
	}

	listQuery := srv.Users.Messages.List(user).MaxResults(int64(q.Limit)).Context(ctx)
	if query := buildQuery(q); query != "" {
		listQuery = listQuery.Q(query)
	}
	resp, err := listQuery.Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	messages := make([]*mailbox.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		full, err := srv.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Printf("[Gmail] failed to load message %s: %v", ref.Id, err)
			continue
		}
		messages = append(messages, convertMessage(full))
	}
	return messages, nil
}

// Send delivers out and returns the Gmail id of the sent message.
func (s *Service) Send(ctx context.Context, creds googleauth.Credentials, out mailbox.Outgoing) (string, error) {
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return "", err
	}
	raw, err := mailbox.Compose(out, time.Now())
	if err != nil {
		return "", err
	}
	sent, err := srv.Users.Messages.Send(user, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send message: %w", err)
	}
	return sent.Id, nil
}

// MarkAsRead removes the UNREAD label
func (s *Service) MarkAsRead(ctx context.Context, creds googleauth.Credentials, providerID string) error {
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return err
	}
	_, err = srv.Users.Messages.Modify(user, providerID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to mark message as read: %w", err)
	}
	return nil
}

// Watch sets up push notifications for the account's inbox
func (s *Service) Watch(ctx context.Context, creds googleauth.Credentials, topicName string) error {
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return err
	}

	// Only one push client is allowed per mailbox
	_ = srv.Users.Stop(user).Context(ctx).Do()

	resp, err := srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %w", err)
	}
	log.Printf("[Gmail] watch started, expiration %d, history id %d", resp.Expiration, resp.HistoryId)
	return nil
}

// Stop stops push notifications for the account's inbox
func (s *Service) Stop(ctx context.Context, creds googleauth.Credentials) error {
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

func convertMessage(msg *gmail.Message) *mailbox.Message {
	from := getHeader(msg.Payload.Headers, "From")
	fromName := ""
	if idx := strings.Index(from, "<"); idx > 0 {
		fromName = strings.Trim(strings.TrimSpace(from[:idx]), `"`)
	}

	body, isHTML := getEmailBody(msg.Payload)
	if isHTML {
		body = mailbox.StripHTML(body)
	}

	return &mailbox.Message{
		ProviderID: msg.Id,
		MessageID:  strings.Trim(getHeader(msg.Payload.Headers, "Message-ID"), "<> "),
		InReplyTo:  strings.Trim(getHeader(msg.Payload.Headers, "In-Reply-To"), "<> "),
		From:       mailbox.Address(from),
		FromName:   fromName,
		To:         mailbox.Address(getHeader(msg.Payload.Headers, "To")),
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Body:       strings.TrimSpace(body),
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody prefers text/plain and falls back to text/html.
func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	if payload == nil {
		return "", false
	}
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody, plainBody string
	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/plain":
						if plainBody == "" {
							plainBody = string(data)
						}
					case "text/html":
						if htmlBody == "" {
							htmlBody = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}
