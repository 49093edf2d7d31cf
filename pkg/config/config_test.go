package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAIL_SYNC_INTERVAL", "")
	t.Setenv("SYNC_FAILURE_THRESHOLD", "")
	t.Setenv("DB_DRIVER", "")

	cfg := Load()
	if cfg.MailSyncInterval != time.Minute {
		t.Errorf("expected 1m mail sync interval, got %s", cfg.MailSyncInterval)
	}
	if cfg.SyncFailureThreshold != 3 {
		t.Errorf("expected threshold 3, got %d", cfg.SyncFailureThreshold)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.DBDriver)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAIL_SYNC_INTERVAL", "5m")
	t.Setenv("OUTBOUND_BATCH_SIZE", "7")
	t.Setenv("DB_DRIVER", "SQLite")

	cfg := Load()
	if cfg.MailSyncInterval != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.MailSyncInterval)
	}
	if cfg.OutboundBatchSize != 7 {
		t.Errorf("expected 7, got %d", cfg.OutboundBatchSize)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.DBDriver)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OUTBOUND_INTERVAL", "soon")
	t.Setenv("SMTP_PORT", "-1")

	cfg := Load()
	if cfg.OutboundInterval != 30*time.Second {
		t.Errorf("expected default 30s, got %s", cfg.OutboundInterval)
	}
	if cfg.SMTPPort != 587 {
		t.Errorf("expected default 587, got %d", cfg.SMTPPort)
	}
}
