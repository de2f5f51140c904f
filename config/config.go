// Package config loads process configuration: defaults, optional YAML file,
// environment overrides (GAMENIGHT_*), and a .env file for local runs. The
// log level is the one hot-reloadable setting.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Log struct {
	// Level: debug, info, warn, error. Reloaded on config file change.
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
	// AdminDSN runs migrations with DDL rights; the runtime DSN is a
	// non-superuser role so row-level security applies.
	AdminDSN string `mapstructure:"admin_dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type Redis struct {
	DSN string `mapstructure:"dsn"`
}

type AMQP struct {
	URI string `mapstructure:"uri"`
}

type Chat struct {
	BaseURL  string  `mapstructure:"base_url"`
	BotToken string  `mapstructure:"bot_token"`
	RPS      float64 `mapstructure:"rps"`
	// PublicKey is the hex ed25519 key verifying interaction webhooks.
	PublicKey string `mapstructure:"public_key"`
}

type Daemon struct {
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
	StatusInterval   time.Duration `mapstructure:"status_interval"`
	Batch            int           `mapstructure:"batch"`
	DrainInterval    time.Duration `mapstructure:"drain_interval"`
	DrainMaxBatch    int           `mapstructure:"drain_max_batch"`
}

type Config struct {
	Log      Log      `mapstructure:"log"`
	HTTP     HTTP     `mapstructure:"http"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	AMQP     AMQP     `mapstructure:"amqp"`
	Chat     Chat     `mapstructure:"chat"`
	Daemon   Daemon   `mapstructure:"daemon"`

	v *viper.Viper
}

func defaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.max_conns", 16)
	v.SetDefault("chat.base_url", "https://discord.com/api/v10")
	v.SetDefault("chat.rps", 25)
	v.SetDefault("daemon.reminder_interval", 30*time.Second)
	v.SetDefault("daemon.status_interval", 30*time.Second)
	v.SetDefault("daemon.batch", 100)
	v.SetDefault("daemon.drain_interval", 900*time.Second)
	v.SetDefault("daemon.drain_max_batch", 500)
}

// Load reads the optional config file at path (empty means env-only).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("GAMENIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, and
	// Unmarshal walks known keys. The secret-bearing keys have no default
	// and usually no file entry, so bind them explicitly or an env-only
	// deployment never sees them.
	for _, key := range []string{
		"postgres.dsn", "postgres.admin_dsn", "redis.dsn", "amqp.uri",
		"chat.bot_token", "chat.public_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("config: postgres.dsn is required")
	}
	return cfg, nil
}

// SlogLevel parses the configured level, defaulting noisy input to info.
func (c *Config) SlogLevel() slog.Level {
	return parseLevel(c.Log.Level)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WatchLogLevel re-reads the file on change and retargets the level var.
// Only the level is hot; everything else needs a restart.
func (c *Config) WatchLogLevel(level *slog.LevelVar, logger *slog.Logger) {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		next := parseLevel(c.v.GetString("log.level"))
		if next != level.Level() {
			logger.Info("LOG_LEVEL_CHANGED", slog.String("level", next.String()))
			level.Set(next)
		}
	})
	c.v.WatchConfig()
}
