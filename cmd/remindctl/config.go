package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the remindctl configuration, read from remindctl.yaml, the
// REMINDCTL_* environment and command line flags (highest precedence).
type Config struct {
	AppName       string `mapstructure:"app_name"`
	UserID        string `mapstructure:"user_id"`
	UserName      string `mapstructure:"user_name"`
	SessionID     string `mapstructure:"session_id"`
	Database      string `mapstructure:"database"`
	CacheSize     int    `mapstructure:"cache_size"`
	Provider      string `mapstructure:"provider"`
	Model         string `mapstructure:"model"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	MaxModelCalls int    `mapstructure:"max_model_calls"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	Verbose       bool   `mapstructure:"verbose"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("remindctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/remindctl")
	v.SetEnvPrefix("REMINDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", "Memory Agent")
	v.SetDefault("user_id", "user")
	v.SetDefault("user_name", "")
	v.SetDefault("database", "./my_agent_data.db")
	v.SetDefault("cache_size", 64)
	v.SetDefault("provider", "openai")
	v.SetDefault("max_parallel", 4)
	v.SetDefault("max_model_calls", 20)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	return v
}

// loadConfig reads the config file (optional unless file is explicit) and
// decodes the merged settings.
func loadConfig(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.AppName == "" || c.UserID == "":
		return errors.New("config: app_name and user_id are required")
	case c.Database == "":
		return errors.New("config: database is required")
	}
	switch c.Provider {
	case "openai", "anthropic", "scripted":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	return nil
}
