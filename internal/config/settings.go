package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"worktally/internal/core/model"
	"worktally/internal/core/tracker"
)

// AppName names the config directory, the single instance lock and the tray.
const AppName = "WorkTally"

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "WORKTALLY"
)

// Keys understood by Load.
const (
	KeySubject          = "subject"
	KeyWatchDir         = "watch_dir"
	KeyDataDir          = "data_dir"
	KeyIdleThreshold    = "idle_threshold"
	KeyAutoStart        = "auto_start"
	KeyTickInterval     = "tick_interval"
	KeyIdlePollInterval = "idle_poll_interval"
	KeyLogLevel         = "log_level"
	KeyLaunchAtLogin    = "launch_at_login"
)

// Settings is the application configuration.
type Settings struct {
	Subject          string
	WatchDir         string
	DataDir          string
	IdleThreshold    time.Duration
	AutoStart        bool
	TickInterval     time.Duration
	IdlePollInterval time.Duration
	LogLevel         string
	LaunchAtLogin    bool
}

// DefaultSettings returns defaults rooted at the working directory and the
// user config directory.
func DefaultSettings() Settings {
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}
	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = filepath.Join(workDir, "."+strings.ToLower(AppName))
	}
	return Settings{
		Subject:          filepath.Base(workDir),
		WatchDir:         workDir,
		DataDir:          dataDir,
		IdleThreshold:    model.DefaultIdleThreshold,
		AutoStart:        model.DefaultAutoStart,
		TickInterval:     time.Second,
		IdlePollInterval: time.Second,
		LogLevel:         "info",
		LaunchAtLogin:    false,
	}
}

// DefaultDataDir returns <user config dir>/WorkTally.
func DefaultDataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

// NewViper builds a viper instance with defaults, WORKTALLY_* environment
// overrides and the config file. An explicit configFile must exist; the
// default one is optional.
func NewViper(configFile string) (*viper.Viper, error) {
	defaults := DefaultSettings()
	v := viper.New()
	v.SetDefault(KeySubject, defaults.Subject)
	v.SetDefault(KeyWatchDir, defaults.WatchDir)
	v.SetDefault(KeyDataDir, defaults.DataDir)
	v.SetDefault(KeyIdleThreshold, defaults.IdleThreshold)
	v.SetDefault(KeyAutoStart, defaults.AutoStart)
	v.SetDefault(KeyTickInterval, defaults.TickInterval)
	v.SetDefault(KeyIdlePollInterval, defaults.IdlePollInterval)
	v.SetDefault(KeyLogLevel, defaults.LogLevel)
	v.SetDefault(KeyLaunchAtLogin, defaults.LaunchAtLogin)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(defaults.DataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads Settings from v and clamps invalid values.
func Load(v *viper.Viper) Settings {
	settings := Settings{
		Subject:          strings.TrimSpace(v.GetString(KeySubject)),
		WatchDir:         v.GetString(KeyWatchDir),
		DataDir:          v.GetString(KeyDataDir),
		IdleThreshold:    v.GetDuration(KeyIdleThreshold),
		AutoStart:        v.GetBool(KeyAutoStart),
		TickInterval:     v.GetDuration(KeyTickInterval),
		IdlePollInterval: v.GetDuration(KeyIdlePollInterval),
		LogLevel:         v.GetString(KeyLogLevel),
		LaunchAtLogin:    v.GetBool(KeyLaunchAtLogin),
	}
	settings.Validate()
	return settings
}

// Validate clamps values to usable ranges.
func (settings *Settings) Validate() {
	defaults := DefaultSettings()
	if settings.Subject == "" {
		settings.Subject = defaults.Subject
	}
	if settings.WatchDir == "" {
		settings.WatchDir = defaults.WatchDir
	}
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	if settings.IdleThreshold <= 0 {
		settings.IdleThreshold = defaults.IdleThreshold
	}
	if settings.TickInterval <= 0 {
		settings.TickInterval = defaults.TickInterval
	}
	if settings.IdlePollInterval <= 0 {
		settings.IdlePollInterval = defaults.IdlePollInterval
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
}

// SubjectDefaults seeds subjects that have no stored record.
func (settings Settings) SubjectDefaults() model.SubjectState {
	return model.SubjectState{
		IdleThreshold:       settings.IdleThreshold,
		AutoStartOnActivity: settings.AutoStart,
	}
}

// TrackerConfig converts settings to tracker options.
func (settings Settings) TrackerConfig() tracker.Config {
	return tracker.Config{
		TickInterval: settings.TickInterval,
		Defaults:     settings.SubjectDefaults(),
	}
}

// SaveLaunchAtLogin records the autostart preference in the config file.
func SaveLaunchAtLogin(v *viper.Viper, enabled bool) error {
	v.Set(KeyLaunchAtLogin, enabled)
	if path := v.ConfigFileUsed(); path != "" {
		if err := v.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		return nil
	}

	dataDir := v.GetString(KeyDataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(filepath.Join(dataDir, configFileName+"."+configFileType)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
