// File: internal/config/config.go
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
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      int           `yaml:"rate_limit"`  // requests per window per client IP on public POSTs
	RateWindow     time.Duration `yaml:"rate_window"` // e.g. 1m
	Language       string        `yaml:"language"`    // de | en, user-facing messages
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`      // file | sqlite | postgres | memory
	Path        string `yaml:"path"`         // file backend document
	SQLitePath  string `yaml:"sqlite_path"`  // sqlite backend database
	DatabaseURL string `yaml:"database_url"` // postgres backend DSN
	MaxConns    int32  `yaml:"max_conns"`
}

type LockConfig struct {
	Backend string        `yaml:"backend"` // local | redis
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CampaignConfig struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
}

type CRMConfig struct {
	APIKey   string        `yaml:"api_key"`
	ListID   string        `yaml:"list_id"`
	BaseURL  string        `yaml:"base_url"`
	Revision string        `yaml:"revision"`
	Event    string        `yaml:"event"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SheetsConfig struct {
	WebAppURL string        `yaml:"web_app_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MailConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	From    string        `yaml:"from"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

type AlertConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type AdminConfig struct {
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type WorkersConfig struct {
	Count         int           `yaml:"count"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock"`
	Redis    RedisConfig    `yaml:"redis"`
	Campaign CampaignConfig `yaml:"campaign"`
	CRM      CRMConfig      `yaml:"crm"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Mail     MailConfig     `yaml:"mail"`
	Alert    AlertConfig    `yaml:"alert"`
	Admin    AdminConfig    `yaml:"admin"`
	Workers  WorkersConfig  `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (skipped when path is empty), loads
// a .env file if present, applies environment overrides for secrets and
// fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.CRM.APIKey, "KLAVIYO_API_KEY")
	setStr(&cfg.CRM.ListID, "KLAVIYO_MAIN_LIST_ID")
	setStr(&cfg.Sheets.WebAppURL, "GOOGLE_SHEETS_WEB_APP_URL")
	setStr(&cfg.Mail.APIKey, "RESEND_API_KEY")
	setStr(&cfg.Store.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")
	setStr(&cfg.Admin.JWTSecret, "JWT_SECRET")
	setStr(&cfg.Alert.TelegramToken, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Alert.ChatID = id
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = 20
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.HTTP.Language == "" {
		cfg.HTTP.Language = "de"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/used-codes.json"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/redemptions.db"
	}
	if cfg.Store.MaxConns <= 0 {
		cfg.Store.MaxConns = 10
	}
	cfg.Lock.Backend = strings.ToLower(strings.TrimSpace(cfg.Lock.Backend))
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "local"
	}
	if cfg.Lock.TTL <= 0 {
		cfg.Lock.TTL = 10 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Campaign.Name == "" {
		cfg.Campaign.Name = "goldenticket_2025"
	}
	if cfg.Campaign.Website == "" {
		cfg.Campaign.Website = "goldenticket.sweetsausallerwelt.de"
	}
	if cfg.CRM.BaseURL == "" {
		cfg.CRM.BaseURL = "https://a.klaviyo.com/api"
	}
	if cfg.CRM.Revision == "" {
		cfg.CRM.Revision = "2024-10-15"
	}
	if cfg.CRM.Event == "" {
		cfg.CRM.Event = "Golden Ticket Redeemed"
	}
	if cfg.CRM.Timeout <= 0 {
		cfg.CRM.Timeout = 10 * time.Second
	}
	if cfg.Sheets.Timeout <= 0 {
		cfg.Sheets.Timeout = 8 * time.Second
	}
	if cfg.Mail.BaseURL == "" {
		cfg.Mail.BaseURL = "https://api.resend.com"
	}
	if cfg.Mail.Subject == "" {
		cfg.Mail.Subject = "Deine Golden-Ticket-Teilnahme"
	}
	if cfg.Mail.Timeout <= 0 {
		cfg.Mail.Timeout = 10 * time.Second
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Workers.StatsInterval <= 0 {
		cfg.Workers.StatsInterval = time.Minute
	}
}

// Validate performs minimal consistency checks on a defaulted config.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q not supported", c.Store.Backend)
	}
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for lock.backend=redis")
		}
	default:
		return fmt.Errorf("lock.backend %q not supported", c.Lock.Backend)
	}
	if c.Admin.PasswordHash != "" && c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when admin.password_hash is set")
	}
	if c.Mail.APIKey != "" && c.Mail.From == "" {
		return errors.New("mail.from is required when mail.api_key is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
