package config

// Default values for configuration options. These are the first layer of
// the override chain and work without any config file.
const (
	defaultTimeout      = "60s"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultDebounce     = "2s"
	defaultMaxFileSize  = "0"
	defaultJournalState = true
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Timeout: defaultTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Journal: JournalConfig{
			Enabled: defaultJournalState,
		},
		Watch: WatchConfig{
			Debounce:    defaultDebounce,
			MaxFileSize: defaultMaxFileSize,
		},
	}
}
