package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Resolved is the effective configuration after all override layers, with
// duration and size strings already parsed.
type Resolved struct {
	Config

	ConfigPath  string
	Timeout     time.Duration
	Debounce    time.Duration
	MaxFileSize uint64 // 0 = unlimited
	JournalPath string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.BaseURL != "" {
		cfg.Server.BaseURL = env.BaseURL
	}

	if env.APIKey != "" {
		cfg.Server.APIKey = env.APIKey
	}

	if env.Bucket != "" {
		cfg.Server.Bucket = env.Bucket
	}

	if cli.Bucket != "" {
		cfg.Server.Bucket = cli.Bucket
	}

	resolved, err := resolve(cfg, cfgPath)
	if err != nil {
		return nil, err
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve parses the string-typed fields of an already validated Config.
func resolve(cfg *Config, path string) (*Resolved, error) {
	timeout, err := time.ParseDuration(cfg.Network.Timeout)
	if err != nil {
		return nil, fmt.Errorf("network.timeout: %w", err)
	}

	debounce, err := time.ParseDuration(cfg.Watch.Debounce)
	if err != nil {
		return nil, fmt.Errorf("watch.debounce: %w", err)
	}

	maxSize, err := parseSize(cfg.Watch.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("watch.max_file_size: %w", err)
	}

	journalPath := cfg.Journal.Path
	if journalPath == "" {
		journalPath = DefaultJournalPath()
	}

	return &Resolved{
		Config:      *cfg,
		ConfigPath:  path,
		Timeout:     timeout,
		Debounce:    debounce,
		MaxFileSize: maxSize,
		JournalPath: journalPath,
	}, nil
}

// parseSize converts a human-readable size ("50MB", "1GiB") to bytes.
// Empty string and "0" mean no limit.
func parseSize(s string) (uint64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return n, nil
}
