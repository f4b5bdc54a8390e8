package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BenDodCod/projectorsclient-sub001/src/internal/semver"
	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

const defaultAppName = "projectorsclient"

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	setDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *models.Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = defaultAppName
	}

	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = "https://api.github.com"
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	if cfg.Check == nil {
		cfg.Check = &models.CheckConfig{
			Enabled:       true,
			IntervalHours: 24,
		}
	}

	if cfg.Download.MaxRetries == 0 {
		cfg.Download.MaxRetries = 3
	}
	if cfg.Download.RetentionDays == 0 {
		cfg.Download.RetentionDays = 7
	}
	if cfg.Download.WorkDir == "" {
		cfg.Download.WorkDir = defaultWorkDir(cfg.App.Name)
	}

	if cfg.Settings.Path == "" {
		cfg.Settings.Path = defaultSettingsPath(cfg.App.Name)
	}
}

// validate validates the configuration
func validate(cfg *models.Config) error {
	if cfg.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}
	if cfg.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}

	if cfg.App.CurrentVersion == "" {
		return fmt.Errorf("app.current_version is required")
	}
	if _, err := semver.Parse(cfg.App.CurrentVersion); err != nil {
		return fmt.Errorf("app.current_version: %w", err)
	}

	if cfg.Check.IntervalHours < 0 {
		return fmt.Errorf("check.interval_hours must not be negative")
	}
	if cfg.Download.MaxRetries < 1 {
		return fmt.Errorf("download.max_retries must be at least 1")
	}
	return nil
}

func defaultWorkDir(appName string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, appName, "updates")
}

func defaultSettingsPath(appName string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, appName, "settings.json")
}
