package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const minSecretLen = 10

type Config struct {
	Env           string
	Port          int
	ValidatorPort int
	DBURL         string
	JWTSecret     string
	HashWorkers   int
	RedisAddr     string
	OTLPEndpoint  string

	// optional initial admin seeded at startup
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load reads the process environment. A missing or short signing secret is a
// hard error: starting without one would silently mint unverifiable tokens.
func Load() (Config, error) {
	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		DBURL:         getEnv("DATABASE_URL", buildDBURL()),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
	}

	var err error

	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return Config{}, err
	}

	if cfg.ValidatorPort, err = getEnvInt("VALIDATOR_PORT", 50051); err != nil {
		return Config{}, err
	}

	if cfg.HashWorkers, err = getEnvInt("HASH_WORKERS", 4); err != nil {
		return Config{}, err
	}

	if len(cfg.JWTSecret) < minSecretLen {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen)
	}

	if cfg.DBURL == "" {
		return Config{}, errors.New("database URL is empty")
	}

	return cfg, nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "authhub")
	pass := getEnv("DB_PASSWORD", "authhub")
	name := getEnv("DB_NAME", "authhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)

	if v == "" {
		return fallback, nil
	}

	num, err := strconv.Atoi(v)

	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return num, nil
}
