package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Lecture  LectureConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	RunPurgeWorker     bool   // run the purge worker in-process next to the HTTP server
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/lecturelink?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the lecture documents bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	DocumentsBucket      string
	PresignExpireMinutes int
}

// LectureConfig holds limits for lectures and their Q&A.
type LectureConfig struct {
	MaxTextLength   int
	MaxUploadMB     int
	CodeCacheTTL    time.Duration
	CodeGenAttempts int

	// UnansweredRebuild is how often a read rebuilds the unanswered set from stored questions.
	UnansweredRebuild time.Duration
}

// SyncConfig holds the client polling cadence used by lecturectl.
type SyncConfig struct {
	InstructorQAInterval time.Duration
	StudentQAInterval    time.Duration
	PollInterval         time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			RunPurgeWorker:     getEnvBool("RUN_PURGE_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lecturelink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			DocumentsBucket:      getEnv("AWS_S3_DOCUMENTS_BUCKET", "lecturelink-documents"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Lecture: LectureConfig{
			MaxTextLength:     getEnvInt("LECTURE_MAX_TEXT_LENGTH", 500),
			MaxUploadMB:       getEnvInt("LECTURE_MAX_UPLOAD_MB", 50),
			CodeCacheTTL:      getEnvDuration("LECTURE_CODE_CACHE_TTL", 10*time.Minute),
			CodeGenAttempts:   getEnvInt("LECTURE_CODE_ATTEMPTS", 5),
			UnansweredRebuild: getEnvDuration("LECTURE_UNANSWERED_REBUILD", 30*time.Second),
		},
		Sync: SyncConfig{
			InstructorQAInterval: getEnvDuration("SYNC_INSTRUCTOR_QA_INTERVAL", 2*time.Second),
			StudentQAInterval:    getEnvDuration("SYNC_STUDENT_QA_INTERVAL", 3*time.Second),
			PollInterval:         getEnvDuration("SYNC_POLL_INTERVAL", time.Second),
		},
	}
	if cfg.Lecture.MaxTextLength <= 0 {
		return nil, fmt.Errorf("LECTURE_MAX_TEXT_LENGTH must be positive, got %d", cfg.Lecture.MaxTextLength)
	}
	if cfg.Sync.PollInterval <= 0 {
		return nil, fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
