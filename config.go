package main

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// SourceConfig is one transit operator and the feed endpoints published for it.
type SourceConfig struct {
	Region    string   `mapstructure:"region" validate:"required"`
	Endpoints []string `mapstructure:"endpoints" validate:"required,min=1,dive,required"`
	Format    string   `mapstructure:"format" validate:"omitempty,oneof=gtfsrt siri_json siri_xml"`
}

type FeedConfig struct {
	BaseURL      string         `mapstructure:"base_url" validate:"required,url"`
	Timeout      time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	Concurrency  int            `mapstructure:"concurrency" validate:"gt=0"`
	MaxBodyBytes int64          `mapstructure:"max_body_bytes" validate:"gt=0"`
	Sources      []SourceConfig `mapstructure:"sources" validate:"required,min=1,unique=Region,dive"`
}

type StoreConfig struct {
	Path  string `mapstructure:"path" validate:"required"`
	Table string `mapstructure:"table" validate:"required,sqlident"`
}

type FreshnessConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age" validate:"gt=0"`
	FutureTolerance time.Duration `mapstructure:"future_tolerance" validate:"gte=0"`
}

type PollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=1s"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type DisplayConfig struct {
	Timezone      string `mapstructure:"timezone" validate:"required,timezone"`
	PrimaryRegion string `mapstructure:"primary_region"`
}

// Config is the resolved configuration handed to every component at startup.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Store     StoreConfig     `mapstructure:"store"`
	Freshness FreshnessConfig `mapstructure:"freshness"`
	Poll      PollConfig      `mapstructure:"poll"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Display   DisplayConfig   `mapstructure:"display"`
}

var sqlIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("feed.base_url", "https://api.data.gov.my/gtfs-realtime/vehicle-position/")
	v.SetDefault("feed.timeout", 10*time.Second)
	v.SetDefault("feed.concurrency", 8)
	v.SetDefault("feed.max_body_bytes", defaultMaxBodyBytes)
	v.SetDefault("store.path", "transit.db")
	v.SetDefault("store.table", "live_buses")
	v.SetDefault("freshness.max_age", 3600*time.Second)
	v.SetDefault("freshness.future_tolerance", 300*time.Second)
	v.SetDefault("poll.enabled", true)
	v.SetDefault("poll.interval", 20*time.Second)
	v.SetDefault("redis.ttl", 60*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("display.timezone", "Asia/Kuala_Lumpur")
}

// LoadConfig reads configPath (or config.yml in . and ./configs when empty),
// applies TRANSIT_* environment overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix("TRANSIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	for i := range cfg.Feed.Sources {
		if cfg.Feed.Sources[i].Format == "" {
			cfg.Feed.Sources[i].Format = formatGTFSRT
		}
	}
	if cfg.Display.PrimaryRegion == "" && len(cfg.Feed.Sources) > 0 {
		cfg.Display.PrimaryRegion = cfg.Feed.Sources[0].Region
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentRe.MatchString(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Window returns the freshness window used by the record filter.
func (c FreshnessConfig) Window() FreshnessWindow {
	return FreshnessWindow{MaxAge: c.MaxAge, FutureTolerance: c.FutureTolerance}
}
