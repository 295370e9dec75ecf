// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string

	// CORS
	CORSAllowedOrigin string

	// Upload
	UploadDir          string
	UploadMaxVideoSize int64
	UploadMaxImageSize int64

	// Transcript
	TranscriptAPIURL       string
	TranscriptAPIKey       string
	TranscriptTimeout      time.Duration
	TranscriptAllowPrivate bool

	// Mail
	SendGridAPIKey string
	MailFrom       string

	// Certificate
	PlatformName string

	// Rate Limit
	RateLimitGeneral int

	// Worker
	ReconcileSchedule string
}

// LoadDotEnv は.envファイルの内容を環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTTTL = getEnvDuration("JWT_TTL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "./uploads")
	cfg.UploadMaxVideoSize = getEnvInt64("UPLOAD_MAX_VIDEO_SIZE", 100<<20)
	cfg.UploadMaxImageSize = getEnvInt64("UPLOAD_MAX_IMAGE_SIZE", 10<<20)
	cfg.TranscriptAPIURL = getEnvString("TRANSCRIPT_API_URL", "")
	cfg.TranscriptAPIKey = getEnvString("TRANSCRIPT_API_KEY", "")
	cfg.TranscriptTimeout = getEnvDuration("TRANSCRIPT_TIMEOUT", 30*time.Second)
	cfg.TranscriptAllowPrivate = getEnvBool("TRANSCRIPT_ALLOW_PRIVATE", false)
	cfg.SendGridAPIKey = getEnvString("SENDGRID_API_KEY", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "no-reply@microcourse.local")
	cfg.PlatformName = getEnvString("PLATFORM_NAME", "MicroCourse Learning Platform")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ReconcileSchedule = getEnvString("RECONCILE_SCHEDULE", "@daily")

	return cfg, nil
}

// HTTPS はBASE_URLがhttpsかどうかを返す。
// trueの場合、APIレスポンスにHSTSヘッダーを付与する。
func (c *Config) HTTPS() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
