package config

import (
	"os"
	"strconv"
)

// Config collects everything the server reads from the environment.
// Defaults match the local docker-compose setup.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
}

func Load() Config {
	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=rentlinedb port=5432 sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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
