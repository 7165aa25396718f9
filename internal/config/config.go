package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Scheduler   SchedulerConfig
	Dispatch    DispatchConfig
	Attachments AttachmentsConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	SweepInterval time.Duration
	BatchSize     int
}

type DispatchConfig struct {
	WebhookURL   string
	MaxAttempts  int
	RetryBackoff time.Duration
}

type AttachmentsConfig struct {
	Dir string
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	webhookURL, err := requireEnv("WEBHOOK_URL")
	if err != nil {
		errs = append(errs, err)
	}

	sweepInterval, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}
	batchSize, err := getEnvInt("SWEEP_BATCH_SIZE", 25)
	if err != nil {
		errs = append(errs, err)
	}
	maxAttempts, err := getEnvInt("DISPATCH_MAX_ATTEMPTS", 5)
	if err != nil {
		errs = append(errs, err)
	}
	retryBackoff, err := getEnvInt("DISPATCH_RETRY_BACKOFF_SECONDS", 300)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Dispatch: DispatchConfig{
			WebhookURL:   webhookURL,
			MaxAttempts:  maxAttempts,
			RetryBackoff: time.Duration(retryBackoff) * time.Second,
		},
		Scheduler: SchedulerConfig{
			SweepInterval: time.Duration(sweepInterval) * time.Second,
			BatchSize:     batchSize,
		},
		Attachments: AttachmentsConfig{
			Dir: getEnv("ATTACH_DIR", "data/attachments"),
		},
		Redis: redisCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Dispatch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("DISPATCH_MAX_ATTEMPTS must be > 0"))
	}
	if cfg.Dispatch.RetryBackoff < 0 {
		errs = append(errs, errors.New("DISPATCH_RETRY_BACKOFF_SECONDS must be >= 0"))
	}
	if cfg.Attachments.Dir == "" {
		errs = append(errs, errors.New("ATTACH_DIR must not be empty"))
	}

	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
