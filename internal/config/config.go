package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	BranchCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminEmail        string
	ControlQueryTimeoutMS int
	BranchQueryTimeoutMS  int
	DefaultClosingHour    int
	ForceMock             bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL := positiveInt("BRANCH_CACHE_TTL_SECONDS", 300)
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	controlTimeout := positiveInt("CONTROL_QUERY_TIMEOUT_MS", 5000)
	branchTimeout := positiveInt("BRANCH_QUERY_TIMEOUT_MS", 15000)

	closingHour, err := strconv.Atoi(getEnv("DEFAULT_CLOSING_HOUR", "6"))
	if err != nil || closingHour < 0 || closingHour > 23 {
		closingHour = 6
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		BranchCacheTTLSeconds: cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SeedAdminEmail:        strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))),
		ControlQueryTimeoutMS: controlTimeout,
		BranchQueryTimeoutMS:  branchTimeout,
		DefaultClosingHour:    closingHour,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ControlQueryTimeout() time.Duration {
	return time.Duration(c.ControlQueryTimeoutMS) * time.Millisecond
}

func (c Config) BranchQueryTimeout() time.Duration {
	return time.Duration(c.BranchQueryTimeoutMS) * time.Millisecond
}

func (c Config) BranchCacheTTL() time.Duration {
	return time.Duration(c.BranchCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
