// Package config resolves client settings from defaults, an optional config
// file, LOQUAX_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOQUAX"

// Keys double as flag names.
const (
	KeyURL      = "url"
	KeyEndpoint = "endpoint"
	KeyTimeout  = "timeout"
	KeyDB       = "db"
	KeyLogLevel = "log_level"
	KeyLogFile  = "log_file"
)

type Config struct {
	URL      string        `mapstructure:"url" json:"url"`
	Endpoint string        `mapstructure:"endpoint" json:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
	DB       string        `mapstructure:"db" json:"db"`
	LogLevel string        `mapstructure:"log_level" json:"log_level"`
	LogFile  string        `mapstructure:"log_file" json:"log_file"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyURL, "http://localhost:5000")
	v.SetDefault(KeyEndpoint, "/")
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyDB, "./data/loquax.db")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs whose name matches a config key.
// Flag names use dashes ("log-level") for the underscored keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range []string{KeyURL, KeyEndpoint, KeyTimeout, KeyDB, KeyLogLevel, KeyLogFile} {
		f := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}
	return nil
}

// Load reads path when non-empty and decodes the merged settings.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
