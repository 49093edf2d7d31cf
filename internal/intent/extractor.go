// Package intent finds scheduling requests embedded in generated reply text.
package intent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDurationMinutes = 30
	MinConfidence          = 0.7
)

// Strategy names
const (
	StrategyStrict = "strict"
	StrategyFields = "fields"
)

var (
	flagPattern       = regexp.MustCompile(`(?i)"?is_scheduling_request"?\s*[:=]\s*"?true\b`)
	confidencePattern = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*"?([01](?:\.\d+)?)`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	schedulingKeywords = []string{"meeting", "schedule", "appointment", "book", "calendar", "demo", "call", "reunion", "reunião"}
)

// Signal is a parsed scheduling request.
type Signal struct {
	DateTime        time.Time
	RawDateTime     string
	Subject         string
	DurationMinutes int
	AttendeeEmail   string
	Description     string
	// DateDefaulted is set when RawDateTime was unusable or in the past.
	DateDefaulted bool
	Strategy      string
}

// ParseResult is the outcome of running the strategies: exactly one of
// Signal or Raw is meaningful. Raw keeps the untouched text.
type ParseResult struct {
	Signal *Signal
	Raw    string
}

// payload is the structured object the generator is asked to emit.
type payload struct {
	IsSchedulingRequest *bool   `json:"is_scheduling_request"`
	DateTime            string  `json:"date_time"`
	Email               string  `json:"email"`
	Subject             string  `json:"subject"`
	DurationMinutes     flexInt `json:"duration_minutes"`
	Description         string  `json:"description"`
}

func (p *payload) hasScheduleFields() bool {
	return p.IsSchedulingRequest != nil || p.DateTime != ""
}

// flexInt accepts 30, 30.0 or "30".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type strategy struct {
	name  string
	parse func(text string) (*payload, bool)
}

// strategies run in order; the first that yields a payload wins.
var strategies = []strategy{
	{StrategyStrict, parseStrict},
	{StrategyFields, parseFields},
}

// Extractor turns generated text into scheduling signals.
type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Detect reports whether text carries a scheduling marker: the explicit
// flag, or a scheduling keyword backed by a confident classifier value.
func Detect(text string) bool {
	if flagPattern.MatchString(text) {
		return true
	}
	m := confidencePattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	confidence, err := strconv.ParseFloat(m[1], 64)
	if err != nil || confidence < MinConfidence {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range schedulingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extract returns the scheduling signal in text, if any.
func (e *Extractor) Extract(text string) (*Signal, bool) {
	res := e.Parse(text)
	return res.Signal, res.Signal != nil
}

// Parse runs detection and the ordered strategies.
func (e *Extractor) Parse(text string) ParseResult {
	if !Detect(text) {
		return ParseResult{Raw: text}
	}

	for _, s := range strategies {
		p, ok := s.parse(text)
		if !ok {
			continue
		}
		if p.IsSchedulingRequest != nil && !*p.IsSchedulingRequest {
			return ParseResult{Raw: text}
		}
		return ParseResult{Signal: e.toSignal(p, s.name, text)}
	}
	return ParseResult{Raw: text}
}

func (e *Extractor) toSignal(p *payload, strategyName, text string) *Signal {
	now := e.now()
	start, ok := NormalizeDateTime(p.DateTime, now)

	duration := int(p.DurationMinutes)
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if !emailPattern.MatchString(email) {
		email = strings.ToLower(emailPattern.FindString(text))
	}

	return &Signal{
		DateTime:        start,
		RawDateTime:     p.DateTime,
		Subject:         strings.TrimSpace(p.Subject),
		DurationMinutes: duration,
		AttendeeEmail:   email,
		Description:     strings.TrimSpace(p.Description),
		DateDefaulted:   !ok,
		Strategy:        strategyName,
	}
}

// parseStrict decodes the first well-formed JSON object that looks like a
// scheduling payload.
func parseStrict(text string) (*payload, bool) {
	for _, candidate := range jsonObjects(text) {
		var p payload
		if err := json.Unmarshal([]byte(candidate), &p); err != nil {
			continue
		}
		if p.hasScheduleFields() {
			return &p, true
		}
	}
	return nil, false
}

// fieldPattern matches `name: value`, `"name": "value"` and `name=value`.
func fieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)"?` + name + `"?\s*[:=]\s*(?:"([^"\n]*)"|([^,\n}]+))`)
}

var (
	dateTimeField    = fieldPattern(`date_?time`)
	subjectField     = fieldPattern(`subject`)
	durationField    = fieldPattern(`duration(?:_minutes)?`)
	emailField       = fieldPattern(`(?:attendee_)?email`)
	descriptionField = fieldPattern(`description`)
	flagField        = fieldPattern(`is_scheduling_request`)
)

func fieldValue(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[2])
}

// parseFields pulls each field out independently, for payloads too broken
// to decode.
func parseFields(text string) (*payload, bool) {
	p := &payload{
		DateTime:    fieldValue(dateTimeField, text),
		Email:       fieldValue(emailField, text),
		Subject:     fieldValue(subjectField, text),
		Description: fieldValue(descriptionField, text),
	}
	if d := fieldValue(durationField, text); d != "" {
		var n flexInt
		_ = n.UnmarshalJSON([]byte(d))
		p.DurationMinutes = n
	}
	if flag := strings.ToLower(fieldValue(flagField, text)); flag == "true" || flag == "false" {
		v := flag == "true"
		p.IsSchedulingRequest = &v
	}
	return p, true
}

// jsonObjects returns every balanced {...} span in text, in order. A brace
// that never closes is skipped and the scan resumes right after it.
func jsonObjects(text string) []string {
	var out []string
	for offset := 0; offset < len(text); {
		start, end := findObjectBounds(text[offset:])
		if start < 0 {
			break
		}
		if end < 0 {
			offset += start + 1
			continue
		}
		out = append(out, text[offset+start:offset+end])
		offset += end
	}
	return out
}

// findObjectBounds locates the first '{' in s and the end of the object it
// opens, skipping braces inside strings. start is -1 when s has no '{';
// end is -1 when that brace never closes.
func findObjectBounds(s string) (start, end int) {
	start = strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return start, -1
}
