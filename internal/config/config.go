package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API, the bot and supporting services.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	MySQLDSN string `env:"MYSQL_DSN"`

	DeepSeekAPIKey    string `env:"DEEPSEEK_API_KEY"`
	DeepSeekAPIKey2   string `env:"DEEPSEEK_API_KEY_2"`
	DeepSeekBaseURL   string `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	DeepSeekModel     string `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterAPIKey2 string `env:"OPENROUTER_API_KEY_2"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL" envDefault:"google/gemini-2.0-flash-001"`
	AppReferer        string `env:"APP_REFERER" envDefault:"https://t.me/smartcontenthelperbot"`
	AppTitle          string `env:"APP_TITLE" envDefault:"Smart Content Assistant"`

	UnsplashAccessKey string        `env:"UNSPLASH_ACCESS_KEY"`
	PexelsAPIKey      string        `env:"PEXELS_API_KEY"`
	ImageFetchTimeout time.Duration `env:"IMAGE_FETCH_TIMEOUT" envDefault:"15s"`
	ImageCacheTTL     time.Duration `env:"IMAGE_CACHE_TTL" envDefault:"6h"`
	RedisURL          string        `env:"REDIS_URL"`

	ScrapeBaseURL string        `env:"SCRAPE_BASE_URL" envDefault:"https://t.me"`
	ScrapeTimeout time.Duration `env:"SCRAPE_TIMEOUT" envDefault:"20s"`
	ScrapeLimit   int           `env:"SCRAPE_LIMIT" envDefault:"20"`

	APIListenAddr    string `env:"API_LISTEN_ADDR" envDefault:":8080"`
	AdminUsername    string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword    string `env:"ADMIN_PASSWORD" envDefault:"change-me"`
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin  int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	MiniAppURL       string `env:"MINI_APP_URL"`

	SubscriptionPriceStars int `env:"SUBSCRIPTION_PRICE_STARS" envDefault:"70"`
	SubscriptionDays       int `env:"SUBSCRIPTION_DAYS" envDefault:"30"`

	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle  bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3Prefix        string `env:"S3_PREFIX" envDefault:"images"`
}

// Load reads configuration from the environment, optionally seeded from an .env file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DeepSeekBaseURL = normalizeBaseURL(cfg.DeepSeekBaseURL)
	cfg.OpenRouterBaseURL = normalizeBaseURL(cfg.OpenRouterBaseURL)
	cfg.ScrapeBaseURL = normalizeBaseURL(cfg.ScrapeBaseURL)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.DeepSeekAPIKey == "" && c.DeepSeekAPIKey2 == "" && c.OpenRouterAPIKey == "" && c.OpenRouterAPIKey2 == "" {
		missing = append(missing, "DEEPSEEK_API_KEY or OPENROUTER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.SubscriptionDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_DAYS must be positive")
	}
	return nil
}

// S3Enabled reports whether image mirroring to object storage is configured.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.EqualFold(c.AppEnv, "dev") }

// normalizeBaseURL adds a missing scheme and drops trailing slashes so
// callers can append paths directly.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return strings.TrimRight(raw, "/")
		}
	}
	return strings.TrimRight(parsed.String(), "/")
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Deployments inject variables directly; a missing file is fine.
	return nil
}
