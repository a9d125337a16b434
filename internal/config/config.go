package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is assembled from the environment, with an optional .env file for
// local runs. DatabaseURL empty means the SQLite backend is used.
type Config struct {
	Env        string
	ListenAddr string

	DatabaseURL string
	SQLitePath  string

	UploadDir      string
	MaxUploadBytes int64
	AllowedTypes   []string

	// RedisAddr switches the queue transport to asynq when set; otherwise
	// the job queue lives in the same database as the job records.
	RedisAddr string

	Workers           int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	SweepInterval     time.Duration
	SweepAfter        time.Duration

	Engine        string // tesseract | stub
	OCRLanguages  []string
	PlatePatterns []string
	MaxPageSize   int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		var out int64
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:        getenv("APP_ENV", "development"),
		ListenAddr: getenv("LISTEN_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "platescan.db"),

		UploadDir:      getenv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getenvInt64("MAX_UPLOAD_BYTES", 10<<20),
		AllowedTypes:   getenvList("ALLOWED_CONTENT_TYPES", []string{"image/jpeg", "image/png", "image/webp"}),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		Workers:           getenvInt("RECOGNITION_WORKERS", 2),
		PollInterval:      getenvDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		VisibilityTimeout: getenvDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
		SweepInterval:     getenvDuration("SWEEP_INTERVAL", time.Minute),
		SweepAfter:        getenvDuration("SWEEP_AFTER", 5*time.Minute),

		Engine:        getenv("RECOGNITION_ENGINE", "tesseract"),
		OCRLanguages:  getenvList("OCR_LANGUAGES", []string{"eng"}),
		PlatePatterns: getenvList("PLATE_PATTERNS", []string{"BR_OLD", "BR_MERCOSUL"}),
		MaxPageSize:   getenvInt("MAX_PAGE_SIZE", 100),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("MAX_PAGE_SIZE must be at least 1")
	}
	switch c.Engine {
	case "tesseract", "stub":
	default:
		return fmt.Errorf("unknown RECOGNITION_ENGINE %q", c.Engine)
	}
	return nil
}
