package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity API
	APIBaseURL string
	Timeout    time.Duration
	UserAgent  string

	// State
	StateDir string

	// Locale
	DefaultLanguage string

	// News
	NewsFeedURL  string
	NewsTimeout  time.Duration
	NewsMaxSize  int64
	NewsMaxItems int

	// Predict
	PredictBaseURL string
	UploadMaxSize  int64

	// Metrics（空のときはリスナーを起動しない）
	MetricsAddr string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("CROPID_API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "CROPID_API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Timeout = getEnvDuration("CROPID_HTTP_TIMEOUT", 10*time.Second)
	cfg.UserAgent = getEnvString("CROPID_USER_AGENT", "cropid/1.0")
	cfg.StateDir = getEnvString("CROPID_STATE_DIR", defaultStateDir())
	cfg.DefaultLanguage = getEnvString("CROPID_LANG_DEFAULT", "en")
	cfg.NewsFeedURL = getEnvString("CROPID_NEWS_FEED_URL", "")
	cfg.NewsTimeout = getEnvDuration("CROPID_NEWS_TIMEOUT", 10*time.Second)
	cfg.NewsMaxSize = getEnvInt64("CROPID_NEWS_MAX_SIZE", 2097152)
	cfg.NewsMaxItems = getEnvInt("CROPID_NEWS_MAX_ITEMS", 10)
	cfg.PredictBaseURL = getEnvString("CROPID_PREDICT_BASE_URL", cfg.APIBaseURL)
	cfg.UploadMaxSize = getEnvInt64("CROPID_UPLOAD_MAX_SIZE", 10485760)
	cfg.MetricsAddr = getEnvString("CROPID_METRICS_ADDR", "")

	return cfg, nil
}

// defaultStateDir はセッション・言語設定の既定の保存先を返す。
// ユーザー設定ディレクトリが解決できない環境ではカレント配下に倒す。
func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".cropid"
	}
	return filepath.Join(base, "cropid")
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
