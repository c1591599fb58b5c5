// Package config handles global configuration and environment loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/medrec/config.yml.
type GlobalConfig struct {
	Email     string         `yaml:"email,omitempty"`      // Crossref polite-pool contact
	MinFuzzy  float64        `yaml:"min_fuzzy,omitempty"`  // fuzzy title match floor
	CachePath string         `yaml:"cache_path,omitempty"` // lookup cache database
	Gates     map[string]int `yaml:"gates,omitempty"`      // audit metric ceilings
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "medrec"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/medrec/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.CachePath != "" {
		cfg.CachePath = ExpandPath(cfg.CachePath)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// GetEmail returns the Crossref contact email: CROSSREF_EMAIL from the
// environment first, then the global config.
func GetEmail() string {
	if email := os.Getenv("CROSSREF_EMAIL"); email != "" {
		return email
	}
	cfg, _ := LoadGlobalConfig()
	return cfg.Email
}

// GetMinFuzzy returns the configured fuzzy match floor, 0 when unset.
func GetMinFuzzy() float64 {
	cfg, _ := LoadGlobalConfig()
	return cfg.MinFuzzy
}

// GetGates returns the configured audit ceilings, nil when unset.
func GetGates() map[string]int {
	cfg, _ := LoadGlobalConfig()
	return cfg.Gates
}

// GetCachePath returns the lookup cache location, defaulting to
// ~/.cache/medrec/lookups.db.
func GetCachePath() string {
	cfg, _ := LoadGlobalConfig()
	if cfg.CachePath != "" {
		return cfg.CachePath
	}
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "lookups.db"
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, GlobalConfigDir, "lookups.db")
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
