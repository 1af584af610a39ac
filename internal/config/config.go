package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	NotifyScanInterval time.Duration
	NotifyBatchSize    int
	NotifyMaxAttempts  int
	SMSProvider        string
	EmailProvider      string
	PushProvider       string

	KioskResetDelay   time.Duration
	WaitBufferSeconds int

	RateLimitPerMin int
	RateLimitBurst  int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		OutboxPollInterval: readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1),
		OutboxBatchSize:    readInt("OUTBOX_BATCH_SIZE", 100),

		NotifyScanInterval: readDurationSeconds("NOTIFY_SCAN_INTERVAL_SECONDS", 5),
		NotifyBatchSize:    readInt("NOTIFY_BATCH_SIZE", 50),
		NotifyMaxAttempts:  readInt("NOTIFY_MAX_ATTEMPTS", 3),
		SMSProvider:        os.Getenv("NOTIF_SMS_PROVIDER"),
		EmailProvider:      os.Getenv("NOTIF_EMAIL_PROVIDER"),
		PushProvider:       os.Getenv("NOTIF_PUSH_PROVIDER"),

		KioskResetDelay:   readDurationSeconds("KIOSK_RESET_SECONDS", 10),
		WaitBufferSeconds: readInt("WAIT_BUFFER_SECONDS", 120),

		RateLimitPerMin: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:  readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
