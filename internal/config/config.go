package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "PARLEY"

type Config struct {
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath      string        `mapstructure:"static_path"`
	ReadLimit       int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod      time.Duration `mapstructure:"ping_period" validate:"min=1s"`
	Secret          string        `mapstructure:"secret" validate:"required"`
	DefaultLanguage string        `mapstructure:"default_language" validate:"required"`
	SendBuffer      int           `mapstructure:"send_buffer" validate:"min=1"`

	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Fanout     FanoutConfig     `mapstructure:"fanout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RateLimitConfig bounds chat sends per connection; Messages <= 0 disables it.
type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type EnrichmentConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CacheByLanguage bool          `mapstructure:"cache_by_language"`
}

type TranslatorConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Key      string `mapstructure:"key"`
	Region   string `mapstructure:"region"`
}

type SentimentConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Key      string `mapstructure:"key"`
}

type FanoutConfig struct {
	Parallel   bool `mapstructure:"parallel"`
	MaxWorkers int  `mapstructure:"max_workers" validate:"min=1"`
	KickSlow   bool `mapstructure:"kick_slow"`
	OutboxSize int  `mapstructure:"outbox_size" validate:"min=1"`
}

// Flags declares the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	set := pflag.NewFlagSet("parley", pflag.ContinueOnError)
	set.String("config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	set.String("env-file", ".env", "dotenv file with vendor credentials")
	set.Int("port", 8080, "listen port")
	set.String("mode", "release", "gin mode: debug, release or test")
	set.String("log.level", "info", "zerolog level")
	return set
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "parley-dev-secret")
	v.SetDefault("default_language", "en")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("enrichment.timeout", "10s")
	v.SetDefault("enrichment.cache_by_language", true)
	v.SetDefault("translator.endpoint", "")
	v.SetDefault("translator.key", "")
	v.SetDefault("translator.region", "")
	v.SetDefault("sentiment.endpoint", "")
	v.SetDefault("sentiment.key", "")
	v.SetDefault("fanout.parallel", true)
	v.SetDefault("fanout.max_workers", 16)
	v.SetDefault("fanout.kick_slow", false)
	v.SetDefault("fanout.outbox_size", 64)
}

// Load resolves the configuration from defaults, the config file, PARLEY_*
// environment variables (a .env file included) and flags, in rising priority.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if flags == nil {
		flags = Flags()
	}

	envFile, _ := flags.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		log.Info().Str("module", "config").Str("file", envFile).Msg("loaded env file")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	fileName, _ := flags.GetString("config")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"port", "mode", "log.level"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Bool("translator", cfg.Translator.Key != "").
		Bool("sentiment", cfg.Sentiment.Key != "").
		Msg("config ready")
	return &cfg, nil
}
