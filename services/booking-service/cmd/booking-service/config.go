package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/sessionbook/libs/config"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
)

type Config struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string

	RedisURL           string
	RedisRateLimit     bool
	RateLimitPerMinute int

	KafkaBrokers     string
	KafkaTopicPrefix string

	JWTSecret string
	JWKSURL   string
	Location  *time.Location

	RescheduleMaxDays     int
	RescheduleParallelism int
	ScheduleCacheTTL      time.Duration

	CORSAllowedOrigins []string
}

func configFromEnv() (Config, error) {
	cfg := Config{
		Service:               config.String("SERVICE_NAME", "booking-service"),
		RedisURL:              config.String("REDIS_URL", ""),
		RedisRateLimit:        config.Bool("REDIS_RATE_LIMIT", true),
		RateLimitPerMinute:    config.Int("RATE_LIMIT_PER_MINUTE", 120),
		KafkaBrokers:          config.String("KAFKA_BROKERS", ""),
		KafkaTopicPrefix:      config.String("KAFKA_TOPIC_PREFIX", ""),
		RescheduleMaxDays:     config.Int("RESCHEDULE_MAX_DAYS", reschedule.DefaultMaxHorizonDays),
		RescheduleParallelism: config.Int("RESCHEDULE_PARALLELISM", reschedule.DefaultParallelism),
		ScheduleCacheTTL:      config.Duration("SCHEDULE_CACHE_TTL", cache.DefaultTTL),
		CORSAllowedOrigins:    config.List("CORS_ALLOWED_ORIGINS"),
		JWKSURL:               config.String("JWT_JWKS_URL", ""),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret, err = config.RequiredString("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.Location, err = config.Location("BOOKING_TIMEZONE"); err != nil {
		return Config{}, err
	}
	if cfg.RescheduleMaxDays < 1 {
		return Config{}, fmt.Errorf("RESCHEDULE_MAX_DAYS must be positive (got %d)", cfg.RescheduleMaxDays)
	}
	return cfg, nil
}
