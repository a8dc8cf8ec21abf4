package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"price-move-alerts/internal/logging"
)

// ErrInvalid marks configuration that must stop the process at startup.
var ErrInvalid = errors.New("invalid configuration")

const (
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"
)

// Config materialises application configuration.
//
// The top-level keys mirror the original flat JSON file; everything else lives in sections.
type Config struct {
	Key        string  `mapstructure:"key"`
	Secret     string  `mapstructure:"secret"`
	Passphrase string  `mapstructure:"pass"`
	Webhook    string  `mapstructure:"webhook"`
	TimeWindow uint    `mapstructure:"time_window"`
	Delta      float64 `mapstructure:"delta"`
	Symbol     string  `mapstructure:"symbol"`

	Logging  logging.Config `mapstructure:"logging"`
	Poll     PollConfig     `mapstructure:"poll"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
}

// PollConfig governs the sampling cadence.
type PollConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	TickOnFailure  bool          `mapstructure:"tick_on_failure"`
}

// ExchangeConfig covers the KuCoin Futures REST endpoint.
type ExchangeConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	KeyVersion string `mapstructure:"key_version"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// JournalConfig controls the per-detection JSON artifacts.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLock    bool          `mapstructure:"advisory_lock"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PRICEMOVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}

	cfg.Alerting.Channels = normalizeChannels(cfg.Alerting.Channels)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: read config: %v", ErrInvalid, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("key", "")
	v.SetDefault("secret", "")
	v.SetDefault("pass", "")
	v.SetDefault("webhook", "")
	v.SetDefault("symbol", "")
	v.SetDefault("time_window", 60)
	v.SetDefault("delta", 0.05)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("poll.interval", "900ms")
	v.SetDefault("poll.request_timeout", "5s")
	v.SetDefault("poll.max_backoff", "30s")
	v.SetDefault("poll.startup_delay", "0s")
	v.SetDefault("poll.tick_on_failure", false)

	v.SetDefault("exchange.base_url", "https://api-futures.kucoin.com")
	v.SetDefault("exchange.key_version", "2")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{ChannelWebhook})
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dir", "logs")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock", true)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func normalizeChannels(channels []string) []string {
	cleaned := lo.Map(channels, func(item string, _ int) string {
		return strings.ToLower(strings.TrimSpace(item))
	})
	return lo.Uniq(lo.Compact(cleaned))
}

// Validate performs sanity checks; every failure wraps ErrInvalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalid)
	}
	if c.TimeWindow == 0 {
		return fmt.Errorf("%w: time_window must be greater than zero", ErrInvalid)
	}
	if c.Delta <= 0 || c.Delta >= 1 {
		return fmt.Errorf("%w: delta must be within (0, 1)", ErrInvalid)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("%w: poll.interval must be greater than zero", ErrInvalid)
	}
	if c.Poll.RequestTimeout < 0 {
		return fmt.Errorf("%w: poll.request_timeout cannot be negative", ErrInvalid)
	}

	creds := lo.Compact([]string{c.Key, c.Secret, c.Passphrase})
	if len(creds) != 0 && len(creds) != 3 {
		return fmt.Errorf("%w: key, secret and pass must be set together", ErrInvalid)
	}

	if c.Alerting.Enabled {
		for _, ch := range c.Alerting.Channels {
			switch ch {
			case ChannelWebhook:
				if c.Webhook == "" {
					return fmt.Errorf("%w: webhook is required for the webhook channel", ErrInvalid)
				}
			case ChannelTelegram:
				if !c.Alerting.Telegram.Enabled {
					return fmt.Errorf("%w: telegram channel listed but alerting.telegram.enabled is false", ErrInvalid)
				}
			default:
				return fmt.Errorf("%w: unknown alerting channel %q", ErrInvalid, ch)
			}
		}
		if c.Alerting.Telegram.Enabled && !lo.Contains(c.Alerting.Channels, ChannelTelegram) {
			return fmt.Errorf("%w: alerting.telegram.enabled is set but telegram is not in alerting.channels", ErrInvalid)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("%w: alerting.telegram.bot_token is required", ErrInvalid)
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("%w: alerting.telegram.chat_id is required", ErrInvalid)
		}
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("%w: journal.dir is required when the journal is enabled", ErrInvalid)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("%w: export.max_data_points must be greater than zero", ErrInvalid)
	}
	return nil
}

// HasCredentials reports whether requests to the exchange should be signed.
func (c *Config) HasCredentials() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
