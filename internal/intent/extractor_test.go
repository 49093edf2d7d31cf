package intent

import (
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	e := NewExtractor()
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestExtract_StrictPayload(t *testing.T) {
	text := "Sure, I've noted a demo for Tuesday morning.\n" +
		`{"is_scheduling_request": true, "date_time": "2026-06-02T10:00", "email": "Ana@Example.com", "subject": "Product demo", "duration_minutes": 45, "description": "Walkthrough"}`

	sig, ok := newTestExtractor().Extract(text)
	if !ok {
		t.Fatal("expected a scheduling signal")
	}
	if sig.Strategy != StrategyStrict {
		t.Errorf("expected strict strategy, got %s", sig.Strategy)
	}
	want := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	if !sig.DateTime.Equal(want) || sig.DateDefaulted {
		t.Errorf("expected %v, got %v (defaulted=%v)", want, sig.DateTime, sig.DateDefaulted)
	}
	if sig.AttendeeEmail != "ana@example.com" || sig.Subject != "Product demo" || sig.DurationMinutes != 45 || sig.Description != "Walkthrough" {
		t.Errorf("unexpected signal %+v", sig)
	}
}

func TestExtract_MalformedFallsBackToFields(t *testing.T) {
	text := "Booked!\n```json\n{is_scheduling_request: true, date_time: \"2026-06-03 14:30\", subject: \"Pricing call\", duration_minutes: \"20\",}\n```\nReach me at bo@example.org"

	sig, ok := newTestExtractor().Extract(text)
	if !ok {
		t.Fatal("expected a scheduling signal")
	}
	if sig.Strategy != StrategyFields {
		t.Errorf("expected fields strategy, got %s", sig.Strategy)
	}
	want := time.Date(2026, 6, 3, 14, 30, 0, 0, time.UTC)
	if !sig.DateTime.Equal(want) {
		t.Errorf("expected %v, got %v", want, sig.DateTime)
	}
	if sig.Subject != "Pricing call" || sig.DurationMinutes != 20 {
		t.Errorf("unexpected signal %+v", sig)
	}
	if sig.AttendeeEmail != "bo@example.org" {
		t.Errorf("expected bare email fallback, got %q", sig.AttendeeEmail)
	}
}

func TestStrictAndFieldsAgree(t *testing.T) {
	inputs := []string{
		`{"is_scheduling_request": true, "date_time": "2026-07-01T09:15", "email": "c@example.com", "subject": "Onboarding", "duration_minutes": 60, "description": "Kickoff"}`,
		`Here you go: {"is_scheduling_request": true, "subject": "Follow up", "date_time": "2026-07-02 16:00"}`,
		`{"date_time": "2026-07-03T11:00:00Z", "duration_minutes": "15", "is_scheduling_request": true}`,
	}
	for _, in := range inputs {
		strict, ok := parseStrict(in)
		if !ok {
			t.Fatalf("strict failed on %s", in)
		}
		fields, _ := parseFields(in)

		if strict.DateTime != fields.DateTime {
			t.Errorf("date_time differs: %q vs %q", strict.DateTime, fields.DateTime)
		}
		if strict.Subject != fields.Subject {
			t.Errorf("subject differs: %q vs %q", strict.Subject, fields.Subject)
		}
		if strict.Email != fields.Email {
			t.Errorf("email differs: %q vs %q", strict.Email, fields.Email)
		}
		if strict.Description != fields.Description {
			t.Errorf("description differs: %q vs %q", strict.Description, fields.Description)
		}
		if strict.DurationMinutes != fields.DurationMinutes {
			t.Errorf("duration differs: %d vs %d", strict.DurationMinutes, fields.DurationMinutes)
		}
		if *strict.IsSchedulingRequest != *fields.IsSchedulingRequest {
			t.Errorf("flag differs on %s", in)
		}
	}
}

func TestNormalizeDateTime_PastOrInvalidDefaultsToNextDay(t *testing.T) {
	nows := []time.Time{
		fixedNow,
		time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 3, 8, 1, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)),
	}
	inputs := []string{
		"",
		"next tuesday",
		"2020-01-01T10:00",
		"2026-01-01 08:00",
		"1999-12-31",
		"2026-03-07T23:59:00Z",
		"31/31/2026 99:99",
	}
	for _, now := range nows {
		y, m, d := now.Date()
		want := time.Date(y, m, d+1, 15, 0, 0, 0, now.Location())
		for _, in := range inputs {
			got, ok := NormalizeDateTime(in, now)
			if ok || !got.Equal(want) {
				t.Errorf("NormalizeDateTime(%q, %v) = %v ok=%v, want %v", in, now, got, ok, want)
			}
			if got.Location() != now.Location() {
				t.Errorf("expected location %v, got %v", now.Location(), got.Location())
			}
		}
	}

	// A moment already gone today still rolls to tomorrow
	got, _ := NormalizeDateTime("2026-06-01T08:59", fixedNow)
	if !got.Equal(time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected %v", got)
	}
}

func TestNormalizeDateTime_FutureKept(t *testing.T) {
	got, ok := NormalizeDateTime("2026-06-01T09:30", fixedNow)
	if !ok || !got.Equal(time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("expected future time kept, got %v ok=%v", got, ok)
	}
	got, ok = NormalizeDateTime("2026-06-05", fixedNow)
	if !ok || got.Hour() != 15 {
		t.Errorf("expected date-only at 15:00, got %v", got)
	}
}

func TestExtract_NoSignal(t *testing.T) {
	e := newTestExtractor()
	cases := map[string]string{
		"plain reply":         "Our office opens at 9am. Anything else?",
		"keyword only":        "Happy to schedule a meeting whenever suits you.",
		"low confidence":      "Let's book a call. confidence: 0.65",
		"confidence, no kw":   "Thanks! confidence: 0.95",
		"explicit false flag": `Let's book a call. confidence: 0.9 {"is_scheduling_request": false, "date_time": "2026-06-02T10:00"}`,
	}
	for name, text := range cases {
		res := e.Parse(text)
		if res.Signal != nil {
			t.Errorf("%s: expected no signal, got %+v", name, res.Signal)
		}
		if res.Raw != text {
			t.Errorf("%s: expected raw text untouched", name)
		}
	}
}

func TestExtract_KeywordWithConfidence(t *testing.T) {
	text := "I can set up a meeting on that date.\nconfidence: 0.82\ndate_time: 2026-06-04 10:00\nsubject: Intro"
	sig, ok := newTestExtractor().Extract(text)
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.DurationMinutes != DefaultDurationMinutes {
		t.Errorf("expected default duration, got %d", sig.DurationMinutes)
	}
	if sig.Subject != "Intro" || sig.DateTime.Day() != 4 {
		t.Errorf("unexpected signal %+v", sig)
	}
}

func TestExtract_PastDateDefaults(t *testing.T) {
	text := `Done! {"is_scheduling_request": true, "date_time": "2025-01-01T10:00"}`
	sig, ok := newTestExtractor().Extract(text)
	if !ok {
		t.Fatal("expected a signal")
	}
	if !sig.DateDefaulted || !sig.DateTime.Equal(time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next-day default, got %v", sig.DateTime)
	}
}

func TestStripPayload(t *testing.T) {
	in := "Great, see you then!\n\n```json\n{\"is_scheduling_request\": true, \"date_time\": \"2026-06-02T10:00\"}\n```\n\nconfidence: 0.9\nBest regards"
	got := StripPayload(in)
	if strings.Contains(got, "{") || strings.Contains(got, "confidence") || strings.Contains(got, "```") {
		t.Errorf("payload not stripped: %q", got)
	}
	if !strings.HasPrefix(got, "Great, see you then!") || !strings.HasSuffix(got, "Best regards") {
		t.Errorf("reply text damaged: %q", got)
	}

	inline := `Booked. {"is_scheduling_request": true}`
	if got := StripPayload(inline); got != "Booked." {
		t.Errorf("expected inline object removed, got %q", got)
	}
	plain := "No braces {here"
	if got := StripPayload(plain); got != plain {
		t.Errorf("expected unbalanced text untouched, got %q", got)
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	if _, err := ParseDateTime("tomorrow at noon", time.UTC); err != ErrInvalidDateTime {
		t.Errorf("expected ErrInvalidDateTime, got %v", err)
	}
}

const strayBraceReply = "Sure :-{ let me book that.\n" +
	`{"is_scheduling_request": true, "date_time": "2026-06-02T10:00", "subject": "Demo", "duration_minutes": 30}`

func TestExtract_StrayBraceBeforePayload(t *testing.T) {
	sig, ok := newTestExtractor().Extract(strayBraceReply)
	if !ok {
		t.Fatal("expected a scheduling signal")
	}
	if sig.Strategy != StrategyStrict {
		t.Errorf("expected strict strategy, got %s", sig.Strategy)
	}
	if sig.Subject != "Demo" || !sig.DateTime.Equal(time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected signal %+v", sig)
	}
}

func TestStripPayload_StrayBrace(t *testing.T) {
	got := StripPayload(strayBraceReply)
	if got != "Sure :-{ let me book that." {
		t.Errorf("expected payload removed, got %q", got)
	}
}

func TestJSONObjects_SkipsUnclosedBraces(t *testing.T) {
	objs := jsonObjects(`a { b {"x": 1} c { d {"y": "}"}`)
	if len(objs) != 2 || objs[0] != `{"x": 1}` || objs[1] != `{"y": "}"}` {
		t.Errorf("unexpected objects %q", objs)
	}
}

func TestHasPayload(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{`Booked. {"is_scheduling_request": true}`, true},
		{`Noted. {"is_scheduling_request": false}`, true},
		{"Let's schedule a call.\nconfidence: 0.9", true},
		{"Your order is {\"order\": 42}\nconfidence: 0.2", false},
		{"Our opening hours are 9 to 5.", false},
	}
	for _, c := range cases {
		if got := HasPayload(c.text); got != c.want {
			t.Errorf("HasPayload(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
