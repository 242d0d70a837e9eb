package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

// config is the process configuration, read from the environment.
type config struct {
	Port           int
	DBPath         string
	DatabaseURL    string
	AutoMigrate    bool
	DBDebug        bool
	RedisAddr      string
	CachePrefix    string
	CacheTTL       time.Duration
	JWTSecret      string
	ChatRate       float64
	ChatBurst      int
	HistoryLimit   int
	AllowedOrigins string
	StaticDir      string
	APIRateLimit   int
}

func loadConfig() config {
	return config{
		Port:           getEnvInt("PORT", 3001),
		DBPath:         getEnv("DB_PATH", "world.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AutoMigrate:    getEnvBool("AUTO_MIGRATE", true),
		DBDebug:        getEnvBool("DB_DEBUG", false),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		CachePrefix:    getEnv("CACHE_PREFIX", "world:"),
		CacheTTL:       getEnvDuration("CACHE_TTL", time.Hour),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ChatRate:       getEnvFloat("CHAT_RATE", 10),
		ChatBurst:      getEnvInt("CHAT_BURST", 20),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 50),
		AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		StaticDir:      getEnv("STATIC_DIR", ""),
		APIRateLimit:   getEnvInt("API_RATE_LIMIT", 120),
	}
}

// databaseName is reported by /api/health.
func (c config) databaseName() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid float value for %s: %s, using default: %g", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
