package fcm

import "testing"

func TestBuildMulticast_CriticalIsHighPriority(t *testing.T) {
	msg := buildMulticast([]string{"a", "b"}, NotificationData{Title: "Sync failing", Body: "mail-sync failed 3 times", Critical: true})
	if msg.Android.Priority != "high" {
		t.Errorf("expected high priority, got %q", msg.Android.Priority)
	}
	if msg.Webpush.Headers["Urgency"] != "high" {
		t.Errorf("expected high urgency, got %q", msg.Webpush.Headers["Urgency"])
	}
	if len(msg.Tokens) != 2 {
		t.Errorf("expected 2 tokens, got %d", len(msg.Tokens))
	}
}

func TestBuildMulticast_Normal(t *testing.T) {
	msg := buildMulticast([]string{"a"}, NotificationData{Title: "Reminder"})
	if msg.Android.Priority != "normal" {
		t.Errorf("expected normal priority, got %q", msg.Android.Priority)
	}
}

func TestRedact(t *testing.T) {
	if got := redact("short"); got != "***" {
		t.Errorf("unexpected %q", got)
	}
	if got := redact("0123456789abcdefghij"); got != "0123456789ab..." {
		t.Errorf("unexpected %q", got)
	}
}
