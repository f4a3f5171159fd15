package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT (operational endpoints)
	JWTSecret         string
	AdminPasswordHash string

	// Remote ledger
	LedgerBaseURL        string
	LedgerAPIKey         string
	LedgerTimeoutSeconds int

	// Time window
	// Fixed UTC offset of the civil timezone all windows are defined in.
	// The deployment runs in a single zone; no tzdata lookup is done.
	LocalUTCOffsetSeconds int

	// Closure scheduler
	ClosePassIntervalMinutes int
	AckSweepIntervalMinutes  int
	PastDueAlertHours        int

	// Commit event workers
	WorkerCount     int
	EventMaxRetries int

	// SMTP (ops alerts)
	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
	SMTPFrom  string
	AlertsTo  string
	OpsOrigin string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),

		JWTSecret:         mustGetEnv("JWT_SECRET"),
		AdminPasswordHash: mustGetEnv("ADMIN_PASSWORD_HASH"),

		LedgerBaseURL:        mustGetEnv("LEDGER_BASE_URL"),
		LedgerAPIKey:         getEnvOrDefault("LEDGER_API_KEY", ""),
		LedgerTimeoutSeconds: getEnvAsIntOrDefault("LEDGER_TIMEOUT_SECONDS", 10),

		LocalUTCOffsetSeconds: getEnvAsIntOrDefault("LOCAL_UTC_OFFSET_SECONDS", 32400),

		ClosePassIntervalMinutes: getEnvAsIntOrDefault("CLOSE_PASS_INTERVAL_MINUTES", 60),
		AckSweepIntervalMinutes:  getEnvAsIntOrDefault("ACK_SWEEP_INTERVAL_MINUTES", 15),
		PastDueAlertHours:        getEnvAsIntOrDefault("PAST_DUE_ALERT_HOURS", 6),

		WorkerCount:     getEnvAsIntOrDefault("WORKER_COUNT", 5),
		EventMaxRetries: getEnvAsIntOrDefault("EVENT_MAX_RETRIES", 5),

		SMTPHost:  getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:  getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:  getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:  getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:  getEnvOrDefault("SMTP_FROM", "ops@commitpact.app"),
		AlertsTo:  getEnvOrDefault("ALERTS_TO", ""),
		OpsOrigin: getEnvOrDefault("OPS_ORIGIN", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
