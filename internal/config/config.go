// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // update workers; updates of one chat always go to the same worker
	AdminIDs []int64 `yaml:"admin_ids"`
	Language string  `yaml:"language"`
	LockFile string  `yaml:"lock_file"` // single poller per host
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StateTTL time.Duration `yaml:"state_ttl"` // conversation lifetime
}

type HTTPConfig struct {
	Port          int    `yaml:"port"` // webhook listener
	PublicBaseURL string `yaml:"public_base_url"`
}

type YooKassaConfig struct {
	ShopID     string   `yaml:"shop_id"`
	SecretKey  string   `yaml:"secret_key"`
	ReturnURL  string   `yaml:"return_url"`
	AllowedIPs []string `yaml:"allowed_ips"`
	BaseURL    string   `yaml:"base_url"`
}

type CryptoBotConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

type HeleketConfig struct {
	MerchantID string `yaml:"merchant_id"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
}

type TonConnectConfig struct {
	ManifestURL   string        `yaml:"manifest_url"`
	BridgeURL     string        `yaml:"bridge_url"`
	UniversalURL  string        `yaml:"universal_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	ListenTimeout time.Duration `yaml:"listen_timeout"`
}

type PaymentConfig struct {
	YooKassa   YooKassaConfig   `yaml:"yookassa"`
	CryptoBot  CryptoBotConfig  `yaml:"cryptobot"`
	Heleket    HeleketConfig    `yaml:"heleket"`
	TonConnect TonConnectConfig `yaml:"tonconnect"`
}

type PanelConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
}

type RatesConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type SchedulerConfig struct {
	PendingExpiryCron string        `yaml:"pending_expiry_cron"`
	PendingTTL        time.Duration `yaml:"pending_ttl"`
	ReminderCron      string        `yaml:"reminder_cron"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Payment   PaymentConfig   `yaml:"payment"`
	Panel     PanelConfig     `yaml:"panel"`
	Rates     RatesConfig     `yaml:"rates"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev flags, loads .env if present and reads the YAML file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return Load(configPath, dev)
}

// Load reads and validates the config at path.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Bot.Token, "BOT_TOKEN")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Payment.YooKassa.SecretKey, "YOOKASSA_SECRET_KEY")
	override(&cfg.Payment.CryptoBot.Token, "CRYPTOBOT_TOKEN")
	override(&cfg.Payment.Heleket.APIKey, "HELEKET_API_KEY")
	override(&cfg.Payment.TonConnect.WebhookSecret, "TON_WEBHOOK_SECRET")
	override(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	override(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	override(&cfg.Storage.SecretKey, "S3_SECRET_KEY")
	override(&cfg.Events.AMQPURL, "AMQP_URL")
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "ru"
	}
	if cfg.Bot.LockFile == "" {
		cfg.Bot.LockFile = "/tmp/vpn-shop-bot.lock"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.Redis.StateTTL = normalizeTTL(cfg.Redis.StateTTL, 30*time.Minute)

	p := &cfg.Payment
	if p.YooKassa.BaseURL == "" {
		p.YooKassa.BaseURL = "https://api.yookassa.ru/v3"
	}
	if p.CryptoBot.BaseURL == "" {
		p.CryptoBot.BaseURL = "https://pay.crypt.bot/api"
	}
	if p.Heleket.BaseURL == "" {
		p.Heleket.BaseURL = "https://api.heleket.com/v1"
	}
	if p.TonConnect.BridgeURL == "" {
		p.TonConnect.BridgeURL = "https://bridge.tonapi.io/bridge"
	}
	if p.TonConnect.UniversalURL == "" {
		p.TonConnect.UniversalURL = "https://app.tonkeeper.com/ton-connect"
	}
	p.TonConnect.ListenTimeout = normalizeTTL(p.TonConnect.ListenTimeout, 120*time.Second)

	cfg.Panel.Timeout = normalizeTTL(cfg.Panel.Timeout, 15*time.Second)
	if cfg.Rates.BaseURL == "" {
		cfg.Rates.BaseURL = "https://api.binance.com/api/v3"
	}
	cfg.Rates.CacheTTL = normalizeTTL(cfg.Rates.CacheTTL, time.Minute)
	cfg.Rates.Timeout = normalizeTTL(cfg.Rates.Timeout, 10*time.Second)
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "vpnshop.events"
	}
	if cfg.Scheduler.PendingExpiryCron == "" {
		cfg.Scheduler.PendingExpiryCron = "@every 15m"
	}
	cfg.Scheduler.PendingTTL = normalizeTTL(cfg.Scheduler.PendingTTL, 24*time.Hour)
	if cfg.Scheduler.ReminderCron == "" {
		cfg.Scheduler.ReminderCron = "0 * * * *"
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	if cfg.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Storage.Enabled && cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	if k := cfg.Security.EncryptionKey; k != "" && len(k) != 16 && len(k) != 24 && len(k) != 32 {
		return errors.New("security.encryption_key must be 16, 24 or 32 bytes")
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
