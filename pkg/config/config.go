package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	JWTSecret     string
	EncryptionKey string

	// Database
	DBDriver string // "postgres" or "sqlite"
	DBDSN    string

	// Google OAuth (Gmail + Calendar)
	GoogleClientID     string
	GoogleClientSecret string

	// Generative text
	AIProvider    string
	GeminiApiKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	AITimeout     time.Duration

	// Vector index
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	// Gmail push + alerts
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	// WhatsApp Cloud API webhooks
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string
	WhatsAppAPIVersion  string

	// SMTP for IMAP accounts
	SMTPHost string
	SMTPPort int

	// Sync scheduler
	MailSyncInterval       time.Duration
	OutboundInterval       time.Duration
	MailFetchTimeout       time.Duration
	SyncFailureThreshold   int
	OutboundBatchSize      int
	MeetingReminderLead    time.Duration
	MeetingReminderEnabled bool
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "relaydesk-dev-encryption-key"),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBDSN:    getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=relaydesk port=5432 sslmode=disable"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),
		AITimeout:     getDuration("AI_TIMEOUT", 45*time.Second),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIVersion:  getEnv("WHATSAPP_API_VERSION", "v21.0"),

		SMTPHost: getEnv("SMTP_HOST", ""),
		SMTPPort: getInt("SMTP_PORT", 587),

		MailSyncInterval:       getDuration("MAIL_SYNC_INTERVAL", time.Minute),
		OutboundInterval:       getDuration("OUTBOUND_INTERVAL", 30*time.Second),
		MailFetchTimeout:       getDuration("MAIL_FETCH_TIMEOUT", 30*time.Second),
		SyncFailureThreshold:   getInt("SYNC_FAILURE_THRESHOLD", 3),
		OutboundBatchSize:      getInt("OUTBOUND_BATCH_SIZE", 20),
		MeetingReminderLead:    getDuration("MEETING_REMINDER_LEAD", 15*time.Minute),
		MeetingReminderEnabled: getEnv("MEETING_REMINDERS", "true") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
