package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Transcription provider
	GladiaAPIKey string

	// Files
	FeedsFile   string
	StatusFile  string
	EpisodesDir string

	// Fetch
	FetchTimeout    time.Duration
	FetchMaxSize    int64
	DownloadTimeout time.Duration

	// Transcription job
	PollInterval      time.Duration
	PollTimeout       time.Duration
	MaxConcurrentJobs int
	MinFreeDiskBytes  uint64

	// Task registry
	TaskRetention     time.Duration
	TaskSweepInterval time.Duration

	// Rate Limit
	RateLimitGeneral    int
	RateLimitTranscribe int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.GladiaAPIKey = os.Getenv("GLADIA_API_KEY")
	if cfg.GladiaAPIKey == "" {
		missing = append(missing, "GLADIA_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FeedsFile = getEnvString("FEEDS_FILE", "feeds.json")
	cfg.StatusFile = getEnvString("STATUS_FILE", "status.json")
	cfg.EpisodesDir = getEnvString("EPISODES_DIR", "episodes")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.DownloadTimeout = getEnvDuration("DOWNLOAD_TIMEOUT", 10*time.Minute)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 10*time.Second)
	cfg.PollTimeout = getEnvDuration("POLL_TIMEOUT", 2*time.Hour)
	cfg.MaxConcurrentJobs = getEnvInt("MAX_CONCURRENT_JOBS", 4)
	cfg.MinFreeDiskBytes = uint64(getEnvInt64("MIN_FREE_DISK_BYTES", 50*1024*1024))
	cfg.TaskRetention = getEnvDuration("TASK_RETENTION", time.Hour)
	cfg.TaskSweepInterval = getEnvDuration("TASK_SWEEP_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTranscribe = getEnvInt("RATE_LIMIT_TRANSCRIBE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
