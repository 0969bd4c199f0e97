// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package config resolves settings from flags, environment, .env files and
// the optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bonial-oss/exploit-reconciler/internal/logging"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "EXPLOIT_RECONCILER"

// ConfigName is the config file name searched in the home and working
// directories, without extension.
const ConfigName = ".exploit-reconciler"

// Keys understood by the config file and environment.
const (
	KeyPoC          = "inputs.poc"
	KeyXDB          = "inputs.xdb"
	KeyKEV          = "inputs.kev"
	KeyExploits     = "inputs.exploits"
	KeyOutput       = "output"
	KeyFormat       = "format"
	KeyAudit        = "audit"
	KeyCacheDir     = "cache_dir"
	KeyCacheTTL     = "cache_ttl"
	KeySkipDBUpdate = "skip_db_update"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
	KeyLogOutput    = "log.output"
)

// DefaultCacheTTL is how long downloaded feeds are considered fresh.
const DefaultCacheTTL = 24 * time.Hour

// Inputs names the table files a run reads.
type Inputs struct {
	PoC      string
	XDB      string
	KEV      string
	Exploits string
}

// Config is the resolved configuration for one invocation.
type Config struct {
	Inputs       Inputs
	Output       string
	Format       string
	Audit        string
	CacheDir     string
	CacheTTL     time.Duration
	SkipDBUpdate bool
	Log          logging.Config

	// File is the config file that was read, if any.
	File string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := logging.DefaultConfig()
	v.SetDefault(KeyCacheTTL, DefaultCacheTTL)
	v.SetDefault(KeyLogLevel, def.Level)
	v.SetDefault(KeyLogFormat, def.Format)
	v.SetDefault(KeyLogOutput, def.Output)
	return v
}

// LoadEnvFiles loads .env files into the process environment. Missing files
// are skipped and variables already set are kept.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ReadFile reads the config file. An explicit path must exist; otherwise the
// home and working directories are searched and a missing file is fine.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	v.SetConfigName(ConfigName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// FromViper builds a Config from v, filling in the default cache directory.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Inputs: Inputs{
			PoC:      v.GetString(KeyPoC),
			XDB:      v.GetString(KeyXDB),
			KEV:      v.GetString(KeyKEV),
			Exploits: v.GetString(KeyExploits),
		},
		Output:       v.GetString(KeyOutput),
		Format:       v.GetString(KeyFormat),
		Audit:        v.GetString(KeyAudit),
		CacheDir:     v.GetString(KeyCacheDir),
		CacheTTL:     v.GetDuration(KeyCacheTTL),
		SkipDBUpdate: v.GetBool(KeySkipDBUpdate),
		Log: logging.Config{
			Level:   v.GetString(KeyLogLevel),
			Format:  v.GetString(KeyLogFormat),
			Output:  v.GetString(KeyLogOutput),
			NoColor: os.Getenv("NO_COLOR") != "",
		},
		File: v.ConfigFileUsed(),
	}

	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyCacheTTL, cfg.CacheTTL)
	}

	if cfg.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		cfg.CacheDir = dir
	}
	return cfg, nil
}

// DefaultCacheDir returns $XDG_DATA_HOME/exploit-reconciler, or
// ~/.exploit-reconciler when XDG_DATA_HOME is unset.
func DefaultCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "exploit-reconciler"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".exploit-reconciler"), nil
}
