package usecase

import (
	"strings"
)

// envelope is a message reduced to what loop rules look at. Addresses
// are lower-cased bare addresses.
type envelope struct {
	sender    string
	recipient string
	subject   string
	body      string
	outbound  map[string]bool
}

// LoopRule flags a message that would start a reply loop.
type LoopRule struct {
	Name  string
	Match func(e envelope) bool
}

// loopRules are checked in order; the first match suppresses the message.
var loopRules = []LoopRule{
	{
		Name:  "from_outbound_address",
		Match: func(e envelope) bool { return e.outbound[e.sender] },
	},
	{
		Name:  "sender_is_recipient",
		Match: func(e envelope) bool { return e.sender != "" && e.sender == e.recipient },
	},
	{
		Name: "same_domain_auto_reply",
		Match: func(e envelope) bool {
			d := domainOf(e.sender)
			return d != "" && d == domainOf(e.recipient) && hasAutoReplyMarker(e.subject, e.body)
		},
	},
	{
		Name:  "system_to_system",
		Match: func(e envelope) bool { return e.outbound[e.sender] && e.outbound[e.recipient] },
	},
}

var (
	replySubjectPrefixes = []string{"re:", "aw:", "sv:", "auto:", "automatic reply", "autoreply", "auto-reply", "out of office"}
	autoReplyPhrases     = []string{
		"this is an automated",
		"this is an automatic",
		"auto-generated",
		"automatically generated",
		"do not reply",
		"do-not-reply",
		"please don't reply",
		"out of the office",
		"i am currently away",
		"thank you for contacting us",
		"we have received your message",
	}
)

func hasAutoReplyMarker(subject, body string) bool {
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, p := range replySubjectPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	b := strings.ToLower(body)
	for _, phrase := range autoReplyPhrases {
		if strings.Contains(b, phrase) {
			return true
		}
	}
	return false
}

func domainOf(address string) string {
	i := strings.LastIndexByte(address, '@')
	if i < 0 || i == len(address)-1 {
		return ""
	}
	return address[i+1:]
}

// matchLoopRule returns the name of the first matching rule, or "".
func matchLoopRule(e envelope) string {
	for _, rule := range loopRules {
		if rule.Match(e) {
			return rule.Name
		}
	}
	return ""
}
