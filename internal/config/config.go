// Package config loads skm settings from defaults, a YAML config file,
// SKM_* environment variables and command line flags, in increasing order of
// precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SKM"

// Config is the effective configuration.
type Config struct {
	SSHDir          string   `mapstructure:"ssh_dir" yaml:"ssh_dir"`
	ExportDir       string   `mapstructure:"export_dir" yaml:"export_dir"`
	HistoryPath     string   `mapstructure:"history" yaml:"history"`
	DefaultStrategy string   `mapstructure:"strategy" yaml:"strategy"`
	LogLevel        string   `mapstructure:"log_level" yaml:"log_level"`
	S3              S3Config `mapstructure:"s3" yaml:"s3"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// S3Config configures remote archive storage.
type S3Config struct {
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"ssh-dir":   "ssh_dir",
	"log-level": "log_level",
}

// DefaultPath returns $XDG_CONFIG_HOME/skm/config.yaml, falling back to the
// platform user config directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
	}
	return filepath.Join(dir, "skm", "config.yaml"), nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("ssh_dir", filepath.Join(home, ".ssh"))
	v.SetDefault("export_dir", filepath.Join(home, ".skm"))
	v.SetDefault("history", filepath.Join(home, ".skm", "history.db"))
	v.SetDefault("strategy", "skip")
	v.SetDefault("log_level", "warn")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
}

// Load builds the effective configuration. configFile overrides the default
// location; a missing default file is not an error, a missing explicit file
// is. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, home)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	explicit := configFile != ""
	if !explicit {
		if configFile, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		cfg.File = configFile
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SSHDir = expandHome(cfg.SSHDir, home)
	cfg.ExportDir = expandHome(cfg.ExportDir, home)
	cfg.HistoryPath = expandHome(cfg.HistoryPath, home)
	return cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// EnsureSSHDir creates the key directory with mode 0700 if it is missing.
func (c *Config) EnsureSSHDir() error {
	if err := os.MkdirAll(c.SSHDir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.SSHDir, err)
	}
	return nil
}

// YAML renders the configuration as a config file.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
