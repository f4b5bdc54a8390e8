package models

// Config represents the main configuration for the update subsystem
type Config struct {
	App      AppConfig      `yaml:"app"`
	GitHub   GitHubConfig   `yaml:"github"`
	Check    *CheckConfig   `yaml:"check,omitempty"`
	Download DownloadConfig `yaml:"download"`
	Settings SettingsConfig `yaml:"settings"`
}

// AppConfig identifies the host application being updated
type AppConfig struct {
	Name           string `yaml:"name"`
	CurrentVersion string `yaml:"current_version"`
}

// GitHubConfig contains the release repository configuration
type GitHubConfig struct {
	APIBase string `yaml:"api_base"`
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Token   string `yaml:"token,omitempty"`
}

// CheckConfig contains update check scheduling configuration
type CheckConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"interval_hours"`
}

// DownloadConfig contains installer download configuration
type DownloadConfig struct {
	WorkDir       string `yaml:"work_dir"`
	MaxRetries    int    `yaml:"max_retries"`
	Resume        bool   `yaml:"resume"`
	SkipIfExists  bool   `yaml:"skip_if_exists"`
	RetentionDays int    `yaml:"retention_days"`
}

// SettingsConfig locates the persisted key-value settings store
type SettingsConfig struct {
	Path string `yaml:"path"`
}
