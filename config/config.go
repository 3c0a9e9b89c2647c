// Package config loads the settings of the kryptorates command.
//
// Values are layered, lowest first: defaults, an optional config file, the environment
// (KRYPTO_RATES_* variables, including those of an optional .env file), and flags set on
// the command line.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-krypto-rates/graphql"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "KRYPTO_RATES"

// Defaults.
const (
	DefaultURL      = "http://localhost:4010"
	DefaultLogLevel = "info"
	DefaultEnvFile  = ".env"
)

// Config of the kryptorates command.
type Config struct {
	URL       string            `mapstructure:"url" validate:"required,url"`
	Timeout   time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	TTL       time.Duration     `mapstructure:"ttl" validate:"gte=0"`
	RateLimit float64           `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int               `mapstructure:"burst" validate:"gte=0"`
	UserAgent string            `mapstructure:"user_agent"`
	LogLevel  string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Headers   map[string]string `mapstructure:"headers"`
}

// flag name for each key that has one
var flags = map[string]string{
	"url":        "url",
	"timeout":    "timeout",
	"ttl":        "ttl",
	"rate_limit": "rate-limit",
	"burst":      "burst",
	"user_agent": "user-agent",
	"log_level":  "log-level",
	"headers":    "header",
}

// Register adds the configuration flags to fs.
func Register(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("env-file", DefaultEnvFile, "dotenv file loaded into the environment when present")
	fs.String("url", DefaultURL, "krypto-rates GraphQL endpoint")
	fs.Duration("timeout", graphql.DefaultTimeout, "HTTP request timeout")
	fs.Duration("ttl", 0, "maximum age of live rates, 0 for the service default")
	fs.Float64("rate-limit", 0, "requests per second sent to the service, 0 for unlimited")
	fs.Int("burst", 1, "requests allowed above the rate limit")
	fs.String("user-agent", graphql.DefaultUserAgent, "User-Agent header")
	fs.String("log-level", DefaultLogLevel, "debug, info, warn or error")
	fs.StringToString("header", nil, "extra request header, repeatable (name=value)")
}

// Load reads the configuration. fs holds the flags added by Register and may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("url", DefaultURL)
	v.SetDefault("timeout", graphql.DefaultTimeout)
	v.SetDefault("ttl", time.Duration(0))
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("burst", 1)
	v.SetDefault("user_agent", graphql.DefaultUserAgent)
	v.SetDefault("log_level", DefaultLogLevel)

	envFile, configFile := DefaultEnvFile, ""
	if fs != nil {
		envFile, _ = fs.GetString("env-file")
		configFile, _ = fs.GetString("config")
	}

	// .env entries never override variables already in the environment
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flags {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the field constraints of c.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
