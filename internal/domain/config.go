package domain

import (
	"runtime"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Cookies      CookiesConfig      `mapstructure:"cookies"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	OutputDir       string        `mapstructure:"output_dir"`
	DefaultQuality  string        `mapstructure:"default_quality"`
	AudioFormat     string        `mapstructure:"audio_format"`
	YTDLPBinary     string        `mapstructure:"ytdlp_binary"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	ConcurrentLimit int           `mapstructure:"concurrent_limit"` // per platform
	EventBuffer     int           `mapstructure:"event_buffer"`
	Retries         int           `mapstructure:"retries"`  // engine-side retries per download
	TempDir         string        `mapstructure:"temp_dir"` // decrypted cookie jars
}

// AuthConfig contains browser sign-in configuration
type AuthConfig struct {
	BrowserPreference []string      `mapstructure:"browser_preference"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ProfilesDir       string        `mapstructure:"profiles_dir"`
}

// CookiesConfig contains credential store configuration
type CookiesConfig struct {
	RetentionDays  int    `mapstructure:"retention_days"`
	KeyringService string `mapstructure:"keyring_service"`
	KeyFile        string `mapstructure:"key_file"` // salt file used when no keyring is available
	// EvictInterval is how often a running server sweeps expired records
	EvictInterval time.Duration `mapstructure:"evict_interval"`
}

// Retention returns the cookie retention window
func (c CookiesConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// StorageConfig contains database configuration
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send, etc.
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // per-category JSON logs, empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8470,
		},
		Download: DownloadConfig{
			OutputDir:       "$HOME/Downloads/axolutly",
			DefaultQuality:  "1080p",
			AudioFormat:     "m4a",
			YTDLPBinary:     "yt-dlp",
			ConfirmTimeout:  60 * time.Second,
			ConcurrentLimit: 2,
			EventBuffer:     64,
			Retries:         3,
			TempDir:         "",
		},
		Auth: AuthConfig{
			BrowserPreference: []string{"brave", "chrome", "firefox", "edge"},
			Timeout:           300 * time.Second,
			ProfilesDir:       "$HOME/.axolutly/profiles",
		},
		Cookies: CookiesConfig{
			RetentionDays:  7,
			KeyringService: "axolutly",
			KeyFile:        "$HOME/.axolutly/cookie.salt",
			EvictInterval:  time.Hour,
		},
		Storage: StorageConfig{
			DatabasePath: "$HOME/.axolutly/axolutly.db",
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   false,
			Method:  defaultNotificationMethod(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.axolutly/logs",
		},
	}
}

func defaultNotificationMethod() string {
	switch runtime.GOOS {
	case "darwin":
		return "osascript"
	case "windows":
		return "none"
	default:
		return "notify-send"
	}
}
