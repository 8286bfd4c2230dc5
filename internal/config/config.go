package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Cfg is the global configuration loaded at startup.
var Cfg Config

// Config holds all application configuration.
type Config struct {
	// Server
	Port    string
	BaseURL string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	// Rate limiter
	RateLimitRPS   int
	RateLimitBurst int

	// Gzip
	GzipEnabled bool

	// Turnstile
	TurnstileSiteKey   string
	TurnstileSecretKey string

	// Admin
	AdminAPIKey string

	// Storage
	DatabasePath string
	SeedPath     string
	CounterPath  string

	// Chatbot
	ChatbotFAQPath string

	// Outbound contact
	WhatsAppNumber   string
	TelegramBotToken string
	TelegramChatID   string
	NotifyTimeout    time.Duration

	// Leads
	LeadRetentionDays int
	LeadRetentionCron string

	// Simulator
	MissingPowerRatePolicy string
}

// Load reads .env (if present) and populates Cfg from environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables")
	}

	Cfg = Config{
		Port:    envOr("PORT", "8080"),
		BaseURL: envOr("BASE_URL", "https://mpgrupo.pt"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "production"),
		SentryRelease:     envOr("SENTRY_RELEASE", "mpgrupo@1.0.0"),

		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),

		GzipEnabled: envBool("GZIP_ENABLED", true),

		TurnstileSiteKey:   os.Getenv("TURNSTILE_SITE_KEY"),
		TurnstileSecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		DatabasePath: envOr("DATABASE_PATH", "mpgrupo.db"),
		SeedPath:     envOr("SEED_PATH", "data/operadoras.yaml"),
		CounterPath:  envOr("COUNTER_PATH", "counter.json"),

		ChatbotFAQPath: os.Getenv("CHATBOT_FAQ_PATH"),

		WhatsAppNumber:   envOr("WHATSAPP_NUMBER", "351928203793"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		NotifyTimeout:    envDuration("NOTIFY_TIMEOUT", 15*time.Second),

		LeadRetentionDays: envInt("LEAD_RETENTION_DAYS", 365),
		LeadRetentionCron: envOr("LEAD_RETENTION_CRON", "0 0 3 * * *"),

		MissingPowerRatePolicy: envOr("MISSING_POWER_RATE_POLICY", "zero"),
	}

	log.Printf("config: loaded (port=%s, db=%s, telegram=%v, power-rate-policy=%s)",
		Cfg.Port, Cfg.DatabasePath, Cfg.TelegramBotToken != "", Cfg.MissingPowerRatePolicy)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
