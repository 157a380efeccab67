package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minTimeout  = 1 * time.Second
	maxTimeout  = 1 * time.Hour
	minDebounce = 100 * time.Millisecond
	maxDebounce = 5 * time.Minute
)

// Validate checks all configuration values and returns all errors found.
// Every error is accumulated so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints on the final merged result, after
// environment variables and CLI flags have been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateServer(&r.Server)...)

	if r.JournalPath != "" && !filepath.IsAbs(r.JournalPath) {
		errs = append(errs, fmt.Errorf("journal.path: must be absolute, got %q", r.JournalPath))
	}

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	if s.BaseURL == "" {
		return nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return []error{fmt.Errorf("server.base_url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("server.base_url: scheme must be http or https, got %q", s.BaseURL)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("server.base_url: missing host in %q", s.BaseURL)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	return validateDurationRange("network.timeout", n.Timeout, minTimeout, maxTimeout)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of %s; got %q",
			oneOf(validLogLevels), l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of %s; got %q",
			oneOf(validLogFormats), l.LogFormat))
	}

	return errs
}

func validateWatch(w *WatchConfig) []error {
	errs := validateDurationRange("watch.debounce", w.Debounce, minDebounce, maxDebounce)

	if _, err := parseSize(w.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("watch.max_file_size: %w", err))
	}

	return errs
}

func validateDurationRange(field, value string, lo, hi time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < lo || d > hi {
		return []error{fmt.Errorf("%s: must be between %s and %s, got %s", field, lo, hi, d)}
	}

	return nil
}

// oneOf lists the keys of a set in sorted order for error messages.
func oneOf(set map[string]bool) string {
	return strings.Join(sortedKeys(set), ", ")
}
