package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Editor limits. These are product constants, not deployment knobs, but the
// env overrides exist for load testing.
const (
	DefaultMaxImages     = 10
	DefaultMaxFileSizeMB = 5
)

type Config struct {
	ServerAddress    string
	UpstreamBaseURL  string
	MongoURI         string
	MongoDatabase    string
	DataDir          string
	StagingDir       string
	UploadDir        string
	StorageBucket    string
	MaxImages        int
	MaxFileSizeMB    int64
	SessionTTL       time.Duration
	SuccessCloseWait time.Duration
}

func Load() *Config {
	// .env is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress:    getEnv("SERVER_ADDRESS", ":8080"),
		UpstreamBaseURL:  getEnv("UPSTREAM_API_URL", "http://localhost:9000"),
		MongoURI:         os.Getenv("MONGODB_URI"),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "listhub"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		StagingDir:       getEnv("STAGING_DIR", "./staging"),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		StorageBucket:    os.Getenv("STORAGE_BUCKET"),
		MaxImages:        getEnvInt("MAX_IMAGES", DefaultMaxImages),
		MaxFileSizeMB:    int64(getEnvInt("MAX_FILE_SIZE_MB", DefaultMaxFileSizeMB)),
		SessionTTL:       getEnvDuration("SESSION_TTL", 30*time.Minute),
		SuccessCloseWait: 1200 * time.Millisecond,
	}

	if cfg.StorageBucket == "" {
		log.Println("WARNING: STORAGE_BUCKET not set - image uploads will use local disk storage")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
