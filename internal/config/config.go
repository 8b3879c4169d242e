package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	// PlatformUserID is the account credited with platform profit. Resolved
	// once here instead of a per-event "first admin" lookup.
	PlatformUserID int64

	RabbitMQURL        string
	RabbitMQWorkerMode string
	CorsAllowedOrigins []string

	DeliveryFeeBase  float64
	DeliveryFeePerKm float64
	DeliveryFeeMin   float64
	DeliveryFeeMax   float64

	StoresMaxSpreadKm    float64
	DriverActivityWindow time.Duration
	ConfirmationWindow   time.Duration
	MaxScheduledOrders   int64

	WSDispatchPollInterval time.Duration
	WSHeartbeatInterval    time.Duration
	SweepInterval          time.Duration
}

func Load() Config {
	cfg := Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8090"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		PlatformUserID: getEnvInt64("PLATFORM_USER_ID", 0),

		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQWorkerMode: getEnv("RABBITMQ_WORKER_MODE", "daemon"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		DeliveryFeeBase:  getEnvFloat("DELIVERY_FEE_BASE", 1000),
		DeliveryFeePerKm: getEnvFloat("DELIVERY_FEE_PER_KM", 500),
		DeliveryFeeMin:   getEnvFloat("DELIVERY_FEE_MIN", 1000),
		DeliveryFeeMax:   getEnvFloat("DELIVERY_FEE_MAX", 0),

		StoresMaxSpreadKm:    getEnvFloat("STORES_MAX_SPREAD_KM", 3),
		DriverActivityWindow: getEnvDuration("DRIVER_ACTIVITY_WINDOW", 5*time.Minute),
		ConfirmationWindow:   getEnvDuration("CONFIRMATION_WINDOW", 5*time.Minute),
		MaxScheduledOrders:   getEnvInt64("MAX_SCHEDULED_ORDERS", 3),

		WSDispatchPollInterval: getEnvDuration("WS_DISPATCH_POLL_INTERVAL", 5*time.Second),
		WSHeartbeatInterval:    getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		SweepInterval:          getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if cfg.StoresMaxSpreadKm <= 0 {
		cfg.StoresMaxSpreadKm = 3
	}
	if cfg.MaxScheduledOrders <= 0 {
		cfg.MaxScheduledOrders = 3
	}

	return cfg
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
