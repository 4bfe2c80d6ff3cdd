package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// AffiliateConfig holds the partner network link templates.
type AffiliateConfig struct {
	RegisterURL string `yaml:"register_url" envconfig:"AFFILIATE_REGISTER_URL"`
	DepositURL  string `yaml:"deposit_url" envconfig:"AFFILIATE_DEPOSIT_URL"`
}

// PostbackConfig configures the HTTP listener that receives conversion
// callbacks from the affiliate network. An empty secret disables the
// shared-secret check (local development only).
type PostbackConfig struct {
	Listen string `yaml:"listen" envconfig:"POSTBACK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"POSTBACK_PORT"`
	Secret string `yaml:"secret" envconfig:"POSTBACK_SECRET"`
}

// StorageConfig selects the user record store backend.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
}

// SegmentsConfig selects the segment index backend.
type SegmentsConfig struct {
	Backend   string `yaml:"backend" envconfig:"SEGMENTS_BACKEND"`
	RedisAddr string `yaml:"redis_addr" envconfig:"SEGMENTS_REDIS_ADDR"`
	RedisDB   int    `yaml:"redis_db" envconfig:"SEGMENTS_REDIS_DB"`
}

// FunnelConfig tunes follow-up delays and content limits. All delays are
// wall-clock durations anchored at schedule time.
type FunnelConfig struct {
	LanguageTimeout   time.Duration `yaml:"language_timeout" envconfig:"FUNNEL_LANGUAGE_TIMEOUT"`
	ReminderShort     time.Duration `yaml:"reminder_short" envconfig:"FUNNEL_REMINDER_SHORT"`
	ReminderLong      time.Duration `yaml:"reminder_long" envconfig:"FUNNEL_REMINDER_LONG"`
	ReactivationDelay time.Duration `yaml:"reactivation_delay" envconfig:"FUNNEL_REACTIVATION_DELAY"`
	FallbackLanguage  string        `yaml:"fallback_language" envconfig:"FUNNEL_FALLBACK_LANGUAGE"`
	NicknameMaxLen    int           `yaml:"nickname_max_len" envconfig:"FUNNEL_NICKNAME_MAX_LEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// StorageMemory keeps user records in process memory.
	StorageMemory = "memory"
	// StoragePostgres persists user records via the database pool.
	StoragePostgres = "postgres"
)

const (
	// SegmentsMemory keeps segment sets in process memory.
	SegmentsMemory = "memory"
	// SegmentsRedis keeps one redis set per funnel stage.
	SegmentsRedis = "redis"
)

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Affiliate AffiliateConfig `yaml:"affiliate"`
	Postback  PostbackConfig  `yaml:"postback"`
	Storage   StorageConfig   `yaml:"storage"`
	Segments  SegmentsConfig  `yaml:"segments"`
	Funnel    FunnelConfig    `yaml:"funnel"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Affiliate.RegisterURL) == "" {
		return fmt.Errorf("affiliate.register_url is required")
	}
	if strings.TrimSpace(cfg.Affiliate.DepositURL) == "" {
		return fmt.Errorf("affiliate.deposit_url is required")
	}

	if strings.TrimSpace(cfg.Postback.Listen) == "" {
		cfg.Postback.Listen = "0.0.0.0"
	}
	if cfg.Postback.Port == 0 {
		cfg.Postback.Port = 3000
	}
	if cfg.Postback.Port < 0 {
		return fmt.Errorf("postback.port must be > 0")
	}

	sb := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if sb == "" {
		sb = StorageMemory
	}
	switch sb {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: memory, postgres", cfg.Storage.Backend)
	}
	cfg.Storage.Backend = sb

	gb := strings.ToLower(strings.TrimSpace(cfg.Segments.Backend))
	if gb == "" {
		gb = SegmentsMemory
	}
	switch gb {
	case SegmentsMemory:
	case SegmentsRedis:
		if strings.TrimSpace(cfg.Segments.RedisAddr) == "" {
			return fmt.Errorf("segments.redis_addr is required when segments.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid segments.backend %q; allowed: memory, redis", cfg.Segments.Backend)
	}
	cfg.Segments.Backend = gb

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	normalizeFunnel(&cfg.Funnel)
	return nil
}

func normalizeFunnel(f *FunnelConfig) {
	if f.LanguageTimeout <= 0 {
		f.LanguageTimeout = 60 * time.Second
	}
	if f.ReminderShort <= 0 {
		f.ReminderShort = 30 * time.Minute
	}
	if f.ReminderLong <= 0 {
		f.ReminderLong = 24 * time.Hour
	}
	if f.ReactivationDelay <= 0 {
		f.ReactivationDelay = 48 * time.Hour
	}
	if strings.TrimSpace(f.FallbackLanguage) == "" {
		f.FallbackLanguage = "en"
	}
	f.FallbackLanguage = strings.ToLower(strings.TrimSpace(f.FallbackLanguage))
	if f.NicknameMaxLen <= 0 {
		f.NicknameMaxLen = 32
	}
}
