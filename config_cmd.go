package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/toosmart/filestore-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configShowOutput is the JSON schema for `config show --json`.
type configShowOutput struct {
	ConfigPath   string `json:"config_path,omitempty"`
	BaseURL      string `json:"base_url"`
	APIKeySet    bool   `json:"api_key_set"`
	Bucket       string `json:"bucket,omitempty"`
	Timeout      string `json:"timeout"`
	UserAgent    string `json:"user_agent,omitempty"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	Journal      bool   `json:"journal_enabled"`
	JournalPath  string `json:"journal_path"`
	Debounce     string `json:"watch_debounce"`
	SkipDotfiles bool   `json:"watch_skip_dotfiles"`
	MaxFileSize  uint64 `json:"watch_max_file_size"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	w := cmd.OutOrStdout()

	if !flagJSON {
		return config.RenderEffective(resolvedCfg, w)
	}

	r := resolvedCfg

	return printJSON(w, configShowOutput{
		ConfigPath:   r.ConfigPath,
		BaseURL:      r.Server.BaseURL,
		APIKeySet:    r.Server.APIKey != "",
		Bucket:       r.Server.Bucket,
		Timeout:      r.Timeout.String(),
		UserAgent:    r.Network.UserAgent,
		LogLevel:     r.Logging.LogLevel,
		LogFormat:    r.Logging.LogFormat,
		Journal:      r.Journal.Enabled,
		JournalPath:  r.JournalPath,
		Debounce:     r.Debounce.String(),
		SkipDotfiles: r.Watch.SkipDotfiles,
		MaxFileSize:  r.MaxFileSize,
	})
}
