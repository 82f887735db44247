// Package config defines configuration for the cmd/example program. It is
// not consumed by the protocol engine itself: the core takes credentials
// and URLs as explicit arguments, never from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the example program. Maps
// directly onto the YAML file structure, with MT4_* env var overrides for
// the sensitive fields.
type Config struct {
	Account   AccountConfig   `mapstructure:"account"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AccountConfig holds the MT4 login credentials.
type AccountConfig struct {
	Login       string `mapstructure:"login"`
	Password    string `mapstructure:"password"`
	TradeServer string `mapstructure:"trade_server"`
}

// BootstrapConfig points at the HTTP bootstrap endpoint.
type BootstrapConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MT4_LOGIN, MT4_PASSWORD, MT4_TRADE_SERVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MT4")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if login := os.Getenv("MT4_LOGIN"); login != "" {
		cfg.Account.Login = login
	}
	if password := os.Getenv("MT4_PASSWORD"); password != "" {
		cfg.Account.Password = password
	}
	if server := os.Getenv("MT4_TRADE_SERVER"); server != "" {
		cfg.Account.TradeServer = server
	}

	return &cfg, nil
}

// Validate checks all required fields.
func (c *Config) Validate() error {
	if c.Account.Login == "" {
		return fmt.Errorf("account.login is required (set MT4_LOGIN)")
	}
	if c.Account.Password == "" {
		return fmt.Errorf("account.password is required (set MT4_PASSWORD)")
	}
	if c.Account.TradeServer == "" {
		return fmt.Errorf("account.trade_server is required (set MT4_TRADE_SERVER)")
	}
	if c.Bootstrap.BaseURL == "" {
		return fmt.Errorf("bootstrap.base_url is required")
	}
	if c.Bootstrap.Timeout <= 0 {
		return fmt.Errorf("bootstrap.timeout must be > 0")
	}
	return nil
}
