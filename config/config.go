package config

import (
	"os"
	"strconv"
	"time"

	"github.com/apex/log"
)

type Config struct {
	// Database
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBTimeout  time.Duration

	// Security
	JWTSecret string
	TokenTTL  time.Duration

	// Server
	Port string

	// Lifecycle
	ReportTTL      time.Duration
	VotesThreshold int
	SweepInterval  time.Duration
}

func Load() *Config {
	return &Config{
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     getEnv("DB_PASSWORD", "password"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBName:         getEnv("DB_NAME", "roadalert"),
		DBTimeout:      getDuration("DB_TIMEOUT", 5*time.Second),
		JWTSecret:      getEnv("JWT_SECRET", "roadalert_super_secret_key"),
		TokenTTL:       time.Duration(getInt("JWT_EXPIRES_DAYS", 7)) * 24 * time.Hour,
		Port:           getEnv("PORT", "5000"),
		ReportTTL:      getDuration("REPORT_TTL", 4*time.Hour),
		VotesThreshold: getInt("VOTES_THRESHOLD", 3),
		SweepInterval:  getDuration("SWEEP_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid %s value %q: %v", key, value, err)
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid %s value %q: %v", key, value, err)
	}
	return d
}
