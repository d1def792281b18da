package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yourusername/axolutly-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.axolutly")
		v.AddConfigPath("/etc/axolutly")
	}

	// Read environment variables
	v.SetEnvPrefix("AXOLUTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal into config struct. Lists from the file replace the default
	// lists instead of being merged into them.
	if err := v.Unmarshal(config, viper.DecoderConfigOption(func(c *mapstructure.DecoderConfig) {
		c.ZeroFields = true
	})); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.OutputDir = expandPath(config.Download.OutputDir)
	config.Download.TempDir = expandPath(config.Download.TempDir)
	config.Auth.ProfilesDir = expandPath(config.Auth.ProfilesDir)
	config.Cookies.KeyFile = expandPath(config.Cookies.KeyFile)
	config.Storage.DatabasePath = expandPath(config.Storage.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand environment variables
	path = os.ExpandEnv(path)

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Replace $HOME
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.OutputDir == "" {
		return fmt.Errorf("download output directory not configured")
	}

	if _, err := domain.ParseQuality(config.Download.DefaultQuality); err != nil {
		return fmt.Errorf("invalid default quality: %w", err)
	}

	if config.Download.AudioFormat == "" {
		return fmt.Errorf("audio format not configured")
	}

	if config.Download.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}

	if config.Download.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Download.Retries < 0 {
		return fmt.Errorf("download retries must not be negative")
	}

	if config.Download.EventBuffer < 1 {
		config.Download.EventBuffer = 64
	}

	if config.Auth.Timeout <= 0 {
		return fmt.Errorf("auth timeout must be positive")
	}

	if config.Cookies.RetentionDays < 1 {
		return fmt.Errorf("cookie retention must be at least one day")
	}

	if config.Cookies.EvictInterval <= 0 {
		config.Cookies.EvictInterval = time.Hour
	}

	if config.Storage.DatabasePath == "" {
		return fmt.Errorf("database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set leaf keys so the file uses the mapstructure names LoadConfig reads
	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)

	v.Set("download.output_dir", config.Download.OutputDir)
	v.Set("download.default_quality", config.Download.DefaultQuality)
	v.Set("download.audio_format", config.Download.AudioFormat)
	v.Set("download.ytdlp_binary", config.Download.YTDLPBinary)
	v.Set("download.confirm_timeout", config.Download.ConfirmTimeout.String())
	v.Set("download.concurrent_limit", config.Download.ConcurrentLimit)
	v.Set("download.event_buffer", config.Download.EventBuffer)
	v.Set("download.retries", config.Download.Retries)
	v.Set("download.temp_dir", config.Download.TempDir)

	v.Set("auth.browser_preference", config.Auth.BrowserPreference)
	v.Set("auth.timeout", config.Auth.Timeout.String())
	v.Set("auth.profiles_dir", config.Auth.ProfilesDir)

	v.Set("cookies.retention_days", config.Cookies.RetentionDays)
	v.Set("cookies.keyring_service", config.Cookies.KeyringService)
	v.Set("cookies.key_file", config.Cookies.KeyFile)
	v.Set("cookies.evict_interval", config.Cookies.EvictInterval.String())

	v.Set("storage.database_path", config.Storage.DatabasePath)

	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.sound", config.Notification.Sound)
	v.Set("notification.method", config.Notification.Method)

	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)
	v.Set("logging.logs_dir", config.Logging.LogsDir)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
