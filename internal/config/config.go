package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	ModelDir      string // artifact bundle: backbone, head checkpoint, label map
	HistoryDBPath string
	MaxUploadMB   int64
	LogLevel      string
}

// Load reads a .env file if one exists and builds the configuration from
// environment variables with defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		ModelDir:      getEnv("MODEL_DIR", filepath.Join(".", "models", "plant_disease")),
		HistoryDBPath: getEnv("HISTORY_DB_PATH", filepath.Join(".", "predictions.db")),
		MaxUploadMB:   getEnvAsInt64("MAX_UPLOAD_MB", 10),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
