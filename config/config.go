package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string
	Env  string

	MongoURI     string
	DatabaseName string

	JWTSecret string
	JWTIssuer string

	// Upload limits.
	MaxFileSize int64

	// Role-based quota defaults; a non-zero per-user override on the user
	// record takes precedence over these.
	BaseStorageLimit      int64
	ElevatedStorageLimit  int64
	BaseDocumentLimit     int64
	ElevatedDocumentLimit int64

	// How long blob store operations wait for the backend to become ready
	// before failing with a backend-unavailable error.
	BlobReadyTimeout time.Duration

	AllowedOrigins []string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("DATABASE_NAME", "grantvault"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "grantvault"),

		MaxFileSize: parseInt64(getEnv("MAX_FILE_SIZE", "5242880")), // 5 MiB

		BaseStorageLimit:      parseInt64(getEnv("BASE_STORAGE_LIMIT", "536870912")),      // 512 MiB
		ElevatedStorageLimit:  parseInt64(getEnv("ELEVATED_STORAGE_LIMIT", "5368709120")), // 5 GiB
		BaseDocumentLimit:     parseInt64(getEnv("BASE_DOCUMENT_LIMIT", "1000")),
		ElevatedDocumentLimit: parseInt64(getEnv("ELEVATED_DOCUMENT_LIMIT", "10000")),

		BlobReadyTimeout: parseDuration(getEnv("BLOB_READY_TIMEOUT", "15s")),

		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	cfg.validate()
	return cfg
}

func (c *Config) validate() {
	var missing []string

	required := map[string]string{
		"MONGO_URI":  c.MongoURI,
		"JWT_SECRET": c.JWTSecret,
	}
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		log.Fatalf("missing required environment variables: %v", missing)
	}
	if c.MaxFileSize <= 0 {
		log.Fatal("MAX_FILE_SIZE must be positive")
	}
}

// MaskedMongoURI returns the connection string safe for logging.
func (c *Config) MaskedMongoURI() string {
	uri := c.MongoURI
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
	}
	return uri
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt64(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("failed to parse int64: %s", s)
	}
	return i
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("failed to parse duration: %s", s)
	}
	return d
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func CreateContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
