package mailbox

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestComposeParse_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	raw, err := Compose(Outgoing{
		From:      "support@acme.io",
		FromName:  "Acme Support",
		To:        "jane@example.com",
		Subject:   ReplySubject("Pricing question"),
		Body:      "Thanks for reaching out.",
		InReplyTo: "abc@mail.example.com",
	}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.From != "support@acme.io" || msg.To != "jane@example.com" {
		t.Errorf("unexpected addresses %q -> %q", msg.From, msg.To)
	}
	if msg.Subject != "Re: Pricing question" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.InReplyTo != "abc@mail.example.com" {
		t.Errorf("unexpected in-reply-to %q", msg.InReplyTo)
	}
	if msg.Body != "Thanks for reaching out." {
		t.Errorf("unexpected body %q", msg.Body)
	}
	if !msg.ReceivedAt.Equal(now) {
		t.Errorf("unexpected date %s", msg.ReceivedAt)
	}
}

func TestParse_HTMLOnly(t *testing.T) {
	raw := strings.Join([]string{
		"From: Bob <bob@example.com>",
		"To: help@acme.io",
		"Subject: Hello",
		"Message-ID: <m1@example.com>",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Hi&nbsp;there</p>",
	}, "\r\n")

	msg, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Body != "Hi there" {
		t.Errorf("expected stripped body, got %q", msg.Body)
	}
	if msg.MessageID != "m1@example.com" {
		t.Errorf("unexpected message id %q", msg.MessageID)
	}
	if msg.FromName != "Bob" {
		t.Errorf("unexpected from name %q", msg.FromName)
	}
}

func TestReplySubject(t *testing.T) {
	if got := ReplySubject("RE: hi"); got != "RE: hi" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := ReplySubject("hi"); got != "Re: hi" {
		t.Errorf("expected prefixed, got %q", got)
	}
}

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"Jane Doe <Jane@Example.com>":    "jane@example.com",
		"  bob@example.com ":             "bob@example.com",
		`"Doe, Jane" <jane@example.com>`: "jane@example.com",
		"not an address":                 "not an address",
		"":                               "",
	}
	for in, want := range cases {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQueryNormalize(t *testing.T) {
	q := Query{}.Normalize()
	if q.Folder != "INBOX" || q.Scope != ScopeUnreadOnly || q.Limit != 20 {
		t.Errorf("unexpected defaults %+v", q)
	}
	q = Query{Folder: "Support", Scope: ScopeAll, Limit: 5}.Normalize()
	if q.Folder != "Support" || q.Scope != ScopeAll || q.Limit != 5 {
		t.Errorf("unexpected overrides %+v", q)
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><title>x</title><style>p { color: red; }</style></head>` +
		`<body><script>alert("hi")</script><p>Caf&eacute; &amp; bar&#39;s</p><br/>Open&nbsp;late</body></html>`
	if got := StripHTML(in); got != "Café & bar's Open late" {
		t.Errorf("unexpected text %q", got)
	}
}
