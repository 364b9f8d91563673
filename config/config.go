package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"youbble/core/rules"
	"youbble/logger"
	"youbble/model"

	"github.com/joho/godotenv"
)

// Ledger and storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendLocal  = "local"
	BackendMinio  = "minio"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr  string
	WebAppDir string // built front end served at /
	DataDir   string // catalog snapshots and JSON stores
	UploadDir string // root of audio/ and consents/

	LedgerBackend string // json, sqlite or mysql
	LedgerFile    string
	SQLitePath    string
	InboxBackend  string // json or mysql

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	UploadBackend  string // local or minio
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	IntentTTL     time.Duration

	// 比赛规则
	SubmissionDeadline time.Time // zero: never closes
	MaxAudioBytes      int64
	AudioTypes         []string
	AudioExtensions    []string
	CategoryFees       rules.FeeSchedule

	// 支付
	StripeSecretKey         string
	PaymentAllowPlaceholder bool
	PaymentCurrency         string

	Log logger.Config
}

// Policy returns the validation policy derived from the configuration.
func (c *Config) Policy() rules.Policy {
	return rules.Policy{
		Deadline:        c.SubmissionDeadline,
		MaxAudioBytes:   c.MaxAudioBytes,
		AudioTypes:      c.AudioTypes,
		AudioExtensions: c.AudioExtensions,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// env collects parse failures so Load can report all of them at once.
type env struct {
	errs []string
}

func (e *env) int(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return n
}

func (e *env) int64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		e.errs = append(e.errs, fmt.Sprintf("%s: must be a positive integer", key))
		return fallback
	}
	return n
}

func (e *env) bool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}

func (e *env) deadline(key string) time.Time {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: expected an ISO-8601 instant such as 2025-12-31T23:59:59Z", key))
		return time.Time{}
	}
	return t.UTC()
}

func (e *env) fees(key string) rules.FeeSchedule {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return rules.DefaultFees()
	}
	fees, err := ParseFees(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return rules.DefaultFees()
	}
	return fees
}

func (e *env) oneOf(key, fallback string, allowed ...string) string {
	value := strings.ToLower(getEnv(key, fallback))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	e.errs = append(e.errs, fmt.Sprintf("%s: %q is not one of %s", key, value, strings.Join(allowed, ", ")))
	return fallback
}

// ParseFees parses a fee schedule of the form "Open:20,Teen:15". Categories
// not mentioned keep their default fee.
func ParseFees(s string) (rules.FeeSchedule, error) {
	fees := rules.DefaultFees()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, amount, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed fee %q, expected Category:amount", part)
		}
		c := model.Category(strings.TrimSpace(name))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid fee for %s: %q", c, amount)
		}
		fees[c] = n
	}
	return fees, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() (*Config, error) {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	e := &env{}
	dataDir := getEnv("DATA_DIR", "data")
	policy := rules.DefaultPolicy()

	cfg := &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		WebAppDir: getEnv("WEB_APP_DIR", filepath.Join("web", "dist")),
		DataDir:   dataDir,
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),

		LedgerBackend: e.oneOf("LEDGER_BACKEND", BackendJSON, BackendJSON, BackendSQLite, BackendMySQL),
		LedgerFile:    getEnv("LEDGER_FILE", filepath.Join(dataDir, "entries.json")),
		SQLitePath:    getEnv("SQLITE_PATH", filepath.Join(dataDir, "youbble.db")),
		InboxBackend:  e.oneOf("INBOX_BACKEND", BackendJSON, BackendJSON, BackendMySQL),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "youbble"),

		UploadBackend:  e.oneOf("UPLOAD_BACKEND", BackendLocal, BackendLocal, BackendMinio),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "youbble"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    e.bool("MINIO_USE_SSL", false),

		RedisEnabled:  e.bool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),
		IntentTTL:     e.duration("INTENT_TTL", 24*time.Hour),

		SubmissionDeadline: e.deadline("COMPETITION_DEADLINE"),
		MaxAudioBytes:      e.int64("MAX_AUDIO_BYTES", policy.MaxAudioBytes),
		AudioTypes:         policy.AudioTypes,
		AudioExtensions:    policy.AudioExtensions,
		CategoryFees:       e.fees("CATEGORY_FEES"),

		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		PaymentAllowPlaceholder: e.bool("PAYMENT_ALLOW_PLACEHOLDER", true),
		PaymentCurrency:         strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),

		Log: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			OutputPath: os.Getenv("LOG_FILE"),
			MaxSize:    e.int("LOG_MAX_SIZE_MB", 100),
			MaxBackups: e.int("LOG_MAX_BACKUPS", 5),
			MaxAge:     e.int("LOG_MAX_AGE_DAYS", 30),
			Compress:   e.bool("LOG_COMPRESS", true),
		},
	}

	if v := os.Getenv("ACCEPTED_AUDIO_TYPES"); v != "" {
		cfg.AudioTypes = splitList(v)
	}
	if v := os.Getenv("ACCEPTED_AUDIO_EXTENSIONS"); v != "" {
		cfg.AudioExtensions = splitList(v)
	}

	if len(e.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(e.errs, "; "))
	}
	return cfg, nil
}
