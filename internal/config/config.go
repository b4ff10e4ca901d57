package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Selectors struct {
	Table       string
	Row         string
	ViewButton  string
	Dialog      string
	CloseButton string
	Overlay     string
	Frame       string
	FrameImages string
}

type Config struct {
	OutputDir string
	LogLevel  string

	CDPURL     string
	ChromePath string
	Headless   bool
	TargetURL  string

	SettleTimeout time.Duration
	CloseSettle   time.Duration
	PollInterval  time.Duration
	RowPacing     time.Duration

	MaxImages      int
	ThumbMaxWidth  int
	ThumbMaxHeight int
	JPEGQuality    int

	ProxyURL            string
	ProxyTimeout        time.Duration
	ProxyMaxBytes       int64
	ProxyRateLimitRPS   int
	ProxyAddr           string
	ProxyAllowedOrigins []string

	Selectors Selectors
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		CDPURL:     getEnv("CDP_URL", ""),
		ChromePath: getEnv("CHROME_PATH", ""),
		Headless:   getEnvBool("HEADLESS", false),
		TargetURL:  getEnv("TARGET_URL", ""),

		SettleTimeout: getEnvMillis("SETTLE_TIMEOUT_MS", 2000),
		CloseSettle:   getEnvMillis("CLOSE_SETTLE_MS", 500),
		PollInterval:  getEnvMillis("POLL_INTERVAL_MS", 100),
		RowPacing:     getEnvMillis("ROW_PACING_MS", 500),

		MaxImages:      getEnvInt("MAX_IMAGES", 5),
		ThumbMaxWidth:  getEnvInt("THUMB_MAX_WIDTH", 400),
		ThumbMaxHeight: getEnvInt("THUMB_MAX_HEIGHT", 300),
		JPEGQuality:    getEnvInt("JPEG_QUALITY", 80),

		ProxyURL:            getEnv("PROXY_URL", ""),
		ProxyTimeout:        getEnvMillis("PROXY_TIMEOUT_MS", 15000),
		ProxyMaxBytes:       int64(getEnvInt("PROXY_MAX_BYTES", 20<<20)),
		ProxyRateLimitRPS:   getEnvInt("PROXY_RATE_LIMIT_RPS", 0),
		ProxyAddr:           getEnv("PROXY_ADDR", "127.0.0.1:8787"),
		ProxyAllowedOrigins: getEnvList("PROXY_ALLOWED_ORIGINS", nil),

		Selectors: Selectors{
			Table:       getEnv("SEL_TABLE", ".claim-list table"),
			Row:         getEnv("SEL_ROW", "tbody > tr"),
			ViewButton:  getEnv("SEL_VIEW_BUTTON", ".view-btn"),
			Dialog:      getEnv("SEL_DIALOG", ".el-dialog__wrapper"),
			CloseButton: getEnv("SEL_CLOSE_BUTTON", ".el-dialog__headerbtn"),
			Overlay:     getEnv("SEL_OVERLAY", ".v-modal"),
			Frame:       getEnv("SEL_FRAME", "iframe.attachment-frame"),
			FrameImages: getEnv("SEL_FRAME_IMAGES", ".attachment-list img"),
		},
	}

	if cfg.MaxImages <= 0 || cfg.MaxImages > 5 {
		cfg.MaxImages = 5
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvMillis(key string, fallback int) time.Duration {
	ms := getEnvInt(key, fallback)
	if ms < 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
