package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show". The API key is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	source := r.ConfigPath
	if source == "" {
		source = "(defaults)"
	}

	ew.printf("# Effective configuration (file: %s)\n\n", source)

	apiKey := ""
	if r.Server.APIKey != "" {
		apiKey = redacted
	}

	ew.printf("[server]\n")
	ew.printf("  base_url = %q\n", r.Server.BaseURL)
	ew.printf("  api_key  = %q\n", apiKey)
	ew.printf("  bucket   = %q\n", r.Server.Bucket)
	ew.printf("\n")

	ew.printf("[network]\n")
	ew.printf("  timeout    = %q\n", r.Network.Timeout)

	if r.Network.UserAgent != "" {
		ew.printf("  user_agent = %q\n", r.Network.UserAgent)
	}

	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)
	ew.printf("\n")

	ew.printf("[journal]\n")
	ew.printf("  enabled = %t\n", r.Journal.Enabled)
	ew.printf("  path    = %q\n", r.JournalPath)
	ew.printf("\n")

	ew.printf("[watch]\n")
	ew.printf("  debounce      = %q\n", r.Watch.Debounce)
	ew.printf("  skip_dotfiles = %t\n", r.Watch.SkipDotfiles)
	ew.printf("  max_file_size = %q\n", r.Watch.MaxFileSize)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
