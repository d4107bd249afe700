package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MAILBROWSE_ACCOUNT_HOST.
const EnvPrefix = "MAILBROWSE"

// AccountConfig identifies the IMAP account. The password is never stored
// here; see the credential package.
type AccountConfig struct {
	// Host may carry a ":port" suffix.
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	UseSSL   bool   `mapstructure:"use_ssl" yaml:"use_ssl"`

	// Mechanism selects the login method: "LOGIN" or "PLAIN".
	Mechanism string `mapstructure:"mechanism" yaml:"mechanism"`
}

// SessionConfig tunes the protocol session.
type SessionConfig struct {
	// UseUID addresses messages by UID instead of sequence number.
	UseUID            bool `mapstructure:"use_uid" yaml:"use_uid"`
	DialTimeoutSec    int  `mapstructure:"dial_timeout_sec" yaml:"dial_timeout_sec"`
	CommandTimeoutSec int  `mapstructure:"command_timeout_sec" yaml:"command_timeout_sec"`
	LiteralTimeoutSec int  `mapstructure:"literal_timeout_sec" yaml:"literal_timeout_sec"`
}

// DialTimeout returns DialTimeoutSec as a duration.
func (c SessionConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSec) * time.Second
}

// CommandTimeout returns CommandTimeoutSec as a duration.
func (c SessionConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

// LiteralTimeout returns LiteralTimeoutSec as a duration.
func (c SessionConfig) LiteralTimeout() time.Duration {
	return time.Duration(c.LiteralTimeoutSec) * time.Second
}

// BrowseConfig holds list view preferences.
type BrowseConfig struct {
	PageSize    int    `mapstructure:"page_size" yaml:"page_size"`
	Criterion   string `mapstructure:"criterion" yaml:"criterion"`
	FetchStatus bool   `mapstructure:"fetch_status" yaml:"fetch_status"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File receives log output. Empty means stderr for the command line
	// and no output for the terminal UI.
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Browse  BrowseConfig  `mapstructure:"browse" yaml:"browse"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns ~/.config/mailbrowse/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailbrowse", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account.host", "")
	v.SetDefault("account.port", 0)
	v.SetDefault("account.username", "")
	v.SetDefault("account.use_ssl", true)
	v.SetDefault("account.mechanism", "LOGIN")
	v.SetDefault("session.use_uid", true)
	v.SetDefault("session.dial_timeout_sec", 30)
	v.SetDefault("session.command_timeout_sec", 45)
	v.SetDefault("session.literal_timeout_sec", 300)
	v.SetDefault("browse.page_size", 10)
	v.SetDefault("browse.criterion", "UNDELETED")
	v.SetDefault("browse.fetch_status", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// LoadConfig reads configuration from the given YAML file path using Viper
// and applies MAILBROWSE_* environment overrides. If the file does not
// exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Browse.PageSize <= 0 {
		cfg.Browse.PageSize = 10
	}
	cfg.Account.Mechanism = strings.ToUpper(cfg.Account.Mechanism)

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("account", cfg.Account)
	v.Set("session", cfg.Session)
	v.Set("browse", cfg.Browse)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
