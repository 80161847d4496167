package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Rooms    RoomsConfig    `mapstructure:"rooms"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Tokens   TokensConfig   `mapstructure:"tokens"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	JoinRate JoinRateConfig `mapstructure:"join_rate"`
	Signal   SignalConfig   `mapstructure:"signal"`

	// ICEServersJSON is a JSON list of {urls, username, credential}.
	ICEServersJSON string             `mapstructure:"ice_servers"`
	ICEServers     []webrtc.ICEServer `mapstructure:"-"`

	Projects []ProjectConfig `mapstructure:"projects"`
}

type RoomsConfig struct {
	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
	DefaultTTL             time.Duration `mapstructure:"default_ttl"`
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TokensConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type QuotaConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type JoinRateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type SignalConfig struct {
	NotifyUnavailablePeer bool `mapstructure:"notify_unavailable_peer"`
	// Backpressure is "kick" (close slow connections) or "drop" (discard
	// the frames they cannot take).
	Backpressure string        `mapstructure:"backpressure"`
	CloseRetries int           `mapstructure:"close_retries"`
	CloseBackoff time.Duration `mapstructure:"close_backoff"`
}

// ProjectConfig declares a project for the in-memory storage driver.
type ProjectConfig struct {
	ID             string   `mapstructure:"id"`
	UserID         string   `mapstructure:"user_id"`
	APIKey         string   `mapstructure:"api_key"`
	Plan           string   `mapstructure:"plan"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rooms.default_max_participants", 2)
	v.SetDefault("rooms.default_ttl", "60m")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.timeout", "3s")
	v.SetDefault("tokens.backend", "memory")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "buzz:")
	v.SetDefault("quota.timeout", "2s")
	v.SetDefault("join_rate.limit", 10)
	v.SetDefault("join_rate.interval", "1m")
	v.SetDefault("signal.notify_unavailable_peer", false)
	v.SetDefault("signal.backpressure", "kick")
	v.SetDefault("signal.close_retries", 5)
	v.SetDefault("signal.close_backoff", "200ms")
	v.SetDefault("ice_servers", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml; BUZZ_* environment variables
// override file values (BUZZ_STORAGE_DSN for storage.dsn).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("BUZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(cfg.ICEServersJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("ice_servers: %w", err)
		}
		cfg.ICEServers = servers
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("storage", cfg.Storage.Driver).Str("tokens", cfg.Tokens.Backend).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Tokens.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown tokens.backend %q", c.Tokens.Backend)
	}
	if c.Rooms.DefaultMaxParticipants < 1 {
		return fmt.Errorf("rooms.default_max_participants must be at least 1")
	}
	if c.Storage.Timeout <= 0 || c.Quota.Timeout <= 0 {
		return fmt.Errorf("storage.timeout and quota.timeout must be positive")
	}
	switch c.Signal.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown signal.backpressure %q", c.Signal.Backpressure)
	}
	if c.Signal.CloseRetries < 1 || c.Signal.CloseBackoff <= 0 {
		return fmt.Errorf("signal.close_retries and signal.close_backoff must be positive")
	}
	if c.JoinRate.Limit < 1 || c.JoinRate.Interval <= 0 {
		return fmt.Errorf("join_rate.limit and join_rate.interval must be positive")
	}
	return nil
}
