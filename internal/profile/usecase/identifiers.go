package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/pkg/types"
)

const minPhoneDigits = 8

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
	namePattern  = regexp.MustCompile(`\b(?i:my name is|this is|i am|i'm|i’m|call me)\s+(\p{Lu}[\p{L}'\-]+(?:\s+\p{Lu}[\p{L}'\-]+)?)`)
)

// Capitalized words that follow "I am"/"this is" without being names
var notNames = map[string]bool{
	"interested": true, "looking": true, "here": true, "not": true, "sorry": true,
	"available": true, "calling": true, "writing": true, "just": true, "so": true,
	"the": true, "a": true, "an": true, "very": true, "still": true, "from": true,
	"urgent": true, "good": true, "fine": true, "ok": true, "okay": true,
}

// NormalizePhone reduces a phone number to "+" and digits. Numbers with
// fewer than 8 digits are rejected with "".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits {
		return ""
	}
	return "+" + digits
}

// NormalizeEmail lower-cases and trims an address, or returns "" when it
// does not look like one.
func NormalizeEmail(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(raw) {
		return ""
	}
	return emailPattern.FindString(raw)
}

// ExtractIdentifiers scans free text for an email address, a phone number
// and a self-introduced name.
func ExtractIdentifiers(content string) domain.Identifiers {
	var ids domain.Identifiers
	if content == "" {
		return ids
	}

	if m := emailPattern.FindString(content); m != "" {
		ids.Email = strings.ToLower(m)
	}

	// Strip emails first so their digits are not read as a phone number
	rest := emailPattern.ReplaceAllString(content, " ")
	for _, m := range phonePattern.FindAllString(rest, -1) {
		if p := NormalizePhone(m); p != "" {
			ids.Phone = p
			break
		}
	}

	for _, m := range namePattern.FindAllStringSubmatch(content, -1) {
		if name := cleanName(m[1]); name != "" {
			ids.Name = name
			break
		}
	}
	return ids
}

func cleanName(raw string) string {
	words := strings.Fields(raw)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimRightFunc(w, func(r rune) bool { return r == '\'' || r == '-' })
		if w == "" || notNames[strings.ToLower(w)] {
			break
		}
		if !unicode.IsUpper([]rune(w)[0]) {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// NativeIdentifier normalizes the transport's own contact id and names the
// profile column it belongs to.
func NativeIdentifier(channel types.Channel, contactID string) (column, value string) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return "", ""
	}
	switch {
	case channel.PhoneBased():
		if p := NormalizePhone(contactID); p != "" {
			return domain.ColumnPhone, p
		}
	case channel == types.ChannelEmail:
		if e := NormalizeEmail(contactID); e != "" {
			return domain.ColumnEmail, e
		}
	case channel == types.ChannelChat:
		return domain.ColumnChatID, contactID
	}
	return "", ""
}
