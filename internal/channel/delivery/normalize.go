package delivery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relaydesk-backend/internal/channel/domain"
)

var (
	senderKeys   = []string{"from", "sender", "phone", "wa_id", "author", "caller"}
	nameKeys     = []string{"name", "sender_name", "pushname", "profile_name"}
	messageKeys  = []string{"body", "message", "text", "transcript", "caption"}
	mediaKeys    = []string{"media_url", "mediaUrl", "media", "url", "link"}
	timeKeys     = []string{"timestamp", "time", "sent_at"}
	idKeys       = []string{"id", "message_id", "messageId", "call_id"}
	statusValues = map[string]bool{"sent": true, "delivered": true, "read": true, "failed": true}
)

// ParsePayload normalizes a webhook body: the Meta Cloud envelope, a
// flat object, an object nested under "message" or "data", or
// form-encoded keys such as data[from].
func ParsePayload(contentType string, raw []byte) (domain.Payload, error) {
	var doc map[string]any
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return domain.Payload{}, fmt.Errorf("invalid form body: %w", err)
		}
		doc = formToMap(values)
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Payload{}, fmt.Errorf("invalid json body: %w", err)
	}

	if entries, ok := doc["entry"].([]any); ok {
		return parseMetaEnvelope(entries), nil
	}
	return parseGeneric(doc), nil
}

// formToMap turns data[from]=x&data[text][body]=y into nested maps.
func formToMap(values url.Values) map[string]any {
	out := map[string]any{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		path := splitFormKey(key)
		node := out
		for i, part := range path {
			if i == len(path)-1 {
				node[part] = vals[0]
				break
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
	}
	return out
}

func splitFormKey(key string) []string {
	first, rest, found := strings.Cut(key, "[")
	if !found {
		return []string{key}
	}
	parts := []string{first}
	for _, p := range strings.Split(rest, "[") {
		if p = strings.TrimSuffix(p, "]"); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func parseMetaEnvelope(entries []any) domain.Payload {
	var p domain.Payload
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		changes, _ := entry["changes"].([]any)
		for _, c := range changes {
			change, _ := c.(map[string]any)
			value, _ := change["value"].(map[string]any)
			if value == nil {
				continue
			}

			names := map[string]string{}
			contacts, _ := value["contacts"].([]any)
			for _, ct := range contacts {
				contact, _ := ct.(map[string]any)
				profile, _ := contact["profile"].(map[string]any)
				if waID := str(contact["wa_id"]); waID != "" {
					names[waID] = str(profile["name"])
				}
			}

			messages, _ := value["messages"].([]any)
			for _, m := range messages {
				msg, _ := m.(map[string]any)
				ev := metaMessage(msg)
				ev.SenderName = names[strings.TrimPrefix(ev.Sender, "+")]
				if !ev.Empty() {
					p.Events = append(p.Events, ev)
				}
			}

			statuses, _ := value["statuses"].([]any)
			for _, s := range statuses {
				st, _ := s.(map[string]any)
				if id := str(st["id"]); id != "" {
					p.Statuses = append(p.Statuses, domain.StatusUpdate{
						ExternalID: id,
						Status:     str(st["status"]),
						Timestamp:  parseTimestamp(st["timestamp"]),
					})
				}
			}
		}
	}
	return p
}

func metaMessage(msg map[string]any) domain.InboundEvent {
	ev := domain.InboundEvent{
		Sender:     normalizePhone(str(msg["from"])),
		ExternalID: str(msg["id"]),
		Timestamp:  parseTimestamp(msg["timestamp"]),
	}
	kind := str(msg["type"])
	switch kind {
	case "text", "":
		text, _ := msg["text"].(map[string]any)
		ev.Message = strings.TrimSpace(str(text["body"]))
	case "button":
		button, _ := msg["button"].(map[string]any)
		ev.Message = strings.TrimSpace(str(button["text"]))
	default:
		media, _ := msg[kind].(map[string]any)
		ev.Message = strings.TrimSpace(str(media["caption"]))
		if link := str(media["link"]); link != "" {
			ev.MediaURL = link
		} else if id := str(media["id"]); id != "" {
			ev.MediaURL = "whatsapp-media:" + id
		}
	}
	return ev
}

// parseGeneric reads a flat object, falling back from the nested
// "message"/"data" object to the top level field by field.
func parseGeneric(doc map[string]any) domain.Payload {
	scopes := make([]map[string]any, 0, 3)
	for _, key := range []string{"message", "data"} {
		if nested, ok := doc[key].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}
	scopes = append(scopes, doc)

	ev := domain.InboundEvent{
		Sender:     normalizePhone(firstString(scopes, senderKeys)),
		SenderName: firstString(scopes, nameKeys),
		Message:    strings.TrimSpace(firstString(scopes, messageKeys)),
		MediaURL:   firstString(scopes, mediaKeys),
		ExternalID: firstString(scopes, idKeys),
	}
	for _, s := range scopes {
		if ts := firstValue(s, timeKeys); ts != nil {
			ev.Timestamp = parseTimestamp(ts)
			break
		}
	}

	status := strings.ToLower(firstString(scopes, []string{"status"}))
	if statusValues[status] && ev.Message == "" && ev.ExternalID != "" {
		return domain.Payload{Statuses: []domain.StatusUpdate{{ExternalID: ev.ExternalID, Status: status, Timestamp: ev.Timestamp}}}
	}
	if ev.Empty() {
		return domain.Payload{}
	}
	return domain.Payload{Events: []domain.InboundEvent{ev}}
}

func firstString(scopes []map[string]any, keys []string) string {
	for _, s := range scopes {
		for _, k := range keys {
			v, ok := s[k]
			if !ok {
				continue
			}
			// "text": {"body": "..."} and similar wrappers
			if inner, ok := v.(map[string]any); ok {
				if got := firstString([]map[string]any{inner}, []string{"body", "text", "url"}); got != "" {
					return got
				}
				continue
			}
			if got := str(v); got != "" {
				return got
			}
		}
	}
	return ""
}

func firstValue(s map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := s[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// parseTimestamp accepts unix seconds (number or string) and RFC 3339.
// Anything else yields the zero time, which ingestion replaces with now.
func parseTimestamp(v any) time.Time {
	s := str(v)
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs > 1e12 {
			return time.UnixMilli(secs)
		}
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// normalizePhone keeps digits and prefixes "+", leaving non-numeric ids
// (chat sessions, emails) untouched.
func normalizePhone(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "whatsapp:"))
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return s
		}
	}
	if digits.Len() == 0 {
		return s
	}
	return "+" + digits.String()
}
