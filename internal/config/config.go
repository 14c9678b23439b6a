package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Studio   StudioConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerMinute int
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	SnapshotTTL time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// KafkaConfig is optional: with no brokers lifecycle events are not
// published to Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type StudioConfig struct {
	Location      *time.Location
	BufferMinutes int
	// OpenMinute and CloseMinute are minutes after local midnight.
	OpenMinute         int
	CloseMinute        int
	MinDurationMinutes int
	MaxDurationMinutes int
	GranularityMinutes int
}

type SweepConfig struct {
	Interval time.Duration
}

// IsTest reports whether caches must be bypassed.
func (c *Config) IsTest() bool {
	return c.Env == "test"
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateLimit, err := intEnv("RATE_LIMIT_PER_MINUTE", 20)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:               serverHost,
		Port:               serverPort,
		RateLimitPerMinute: rateLimit,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	snapshotTTL, err := durationEnv("SNAPSHOT_TTL", 45*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:        redisAddr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DB:          redisDB,
		SnapshotTTL: snapshotTTL,
	}

	kafkaCfg := KafkaConfig{Topic: os.Getenv("KAFKA_TOPIC")}
	if kafkaCfg.Topic == "" {
		kafkaCfg.Topic = "booking-lifecycle"
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			kafkaCfg.Brokers = append(kafkaCfg.Brokers, b)
		}
	}

	studioCfg, err := studioFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sweepInterval, err := durationEnv("SWEEP_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Env:      os.Getenv("APP_ENV"),
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Kafka:    kafkaCfg,
		Studio:   studioCfg,
		Sweep:    SweepConfig{Interval: sweepInterval},
	}, nil
}

func studioFromEnv() (StudioConfig, error) {
	tz := os.Getenv("STUDIO_TIMEZONE")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return StudioConfig{}, fmt.Errorf("invalid STUDIO_TIMEZONE: %w", err)
	}

	cfg := StudioConfig{Location: loc}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"BUFFER_MINUTES", 0, &cfg.BufferMinutes},
		{"MIN_DURATION_MINUTES", 60, &cfg.MinDurationMinutes},
		{"MAX_DURATION_MINUTES", 480, &cfg.MaxDurationMinutes},
		{"SLOT_GRANULARITY_MINUTES", 30, &cfg.GranularityMinutes},
	}
	for _, i := range ints {
		v, err := intEnv(i.key, i.def)
		if err != nil {
			return StudioConfig{}, err
		}
		if v < 0 {
			return StudioConfig{}, fmt.Errorf("invalid %s: must not be negative", i.key)
		}
		*i.dst = v
	}

	if cfg.OpenMinute, err = clockEnv("OPEN_AT", "09:00"); err != nil {
		return StudioConfig{}, err
	}
	if cfg.CloseMinute, err = clockEnv("CLOSE_AT", "22:00"); err != nil {
		return StudioConfig{}, err
	}
	if cfg.CloseMinute <= cfg.OpenMinute {
		return StudioConfig{}, fmt.Errorf("invalid CLOSE_AT: must be after OPEN_AT")
	}
	if cfg.MaxDurationMinutes < cfg.MinDurationMinutes {
		return StudioConfig{}, fmt.Errorf("invalid MAX_DURATION_MINUTES: below MIN_DURATION_MINUTES")
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return v, nil
}

// clockEnv parses HH:MM into minutes after midnight.
func clockEnv(key, def string) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		s = def
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
