// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for filestore. Values are layered:
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Journal JournalConfig `toml:"journal"`
	Watch   WatchConfig   `toml:"watch"`
}

// ServerConfig identifies the storage service and the default bucket.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Bucket  string `toml:"bucket"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// LoggingConfig controls log output behavior: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// JournalConfig controls the local transfer history database.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty = <data dir>/journal.db
}

// WatchConfig controls the directory watcher.
type WatchConfig struct {
	Debounce     string `toml:"debounce"`
	SkipDotfiles bool   `toml:"skip_dotfiles"`
	MaxFileSize  string `toml:"max_file_size"` // "0" or empty = unlimited
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Bucket     string // --bucket
}
