package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toosmart/filestore-go/internal/journal"
)

const defaultHistoryLimit = 20

var flagHistoryLimit int

var errJournalDisabled = errors.New("the transfer journal is disabled (journal.enabled = false)")

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads and downloads",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", defaultHistoryLimit, "number of transfers to show")

	return cmd
}

// historyEntry is the JSON schema for one transfer in `history --json`.
type historyEntry struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Direction  string    `json:"direction"`
	Bucket     string    `json:"bucket,omitempty"`
	RemotePath string    `json:"remote_path"`
	LocalPath  string    `json:"local_path,omitempty"`
	Bytes      int64     `json:"bytes"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// historyTotals is the JSON schema for the totals block of `history --json`.
type historyTotals struct {
	Uploads       int   `json:"uploads"`
	UploadBytes   int64 `json:"upload_bytes"`
	Downloads     int   `json:"downloads"`
	DownloadBytes int64 `json:"download_bytes"`
}

// historyOutput is the JSON schema for `history --json`.
type historyOutput struct {
	Transfers []historyEntry `json:"transfers"`
	Totals    historyTotals  `json:"totals"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	if resolvedCfg == nil || !resolvedCfg.Journal.Enabled {
		return errJournalDisabled
	}

	if flagHistoryLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", flagHistoryLimit)
	}

	j, err := journal.Open(ctx, resolvedCfg.JournalPath, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(ctx, flagHistoryLimit)
	if err != nil {
		return err
	}

	totals, err := j.Totals(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		out := historyOutput{
			Transfers: make([]historyEntry, 0, len(entries)),
			Totals:    historyTotals(totals),
		}

		for _, e := range entries {
			out.Transfers = append(out.Transfers, historyEntry{
				ID:         e.ID,
				Time:       e.Time,
				Direction:  string(e.Direction),
				Bucket:     e.Bucket,
				RemotePath: e.RemotePath,
				LocalPath:  e.LocalPath,
				Bytes:      e.Bytes,
				Status:     string(e.Status),
				Error:      e.Error,
			})
		}

		return printJSON(w, out)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No transfers recorded.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := string(e.Status)
		if e.Error != "" {
			status += ": " + e.Error
		}

		rows = append(rows, []string{
			formatTime(e.Time),
			string(e.Direction),
			e.Bucket,
			e.RemotePath,
			formatSize(e.Bytes),
			status,
		})
	}

	printTable(w, []string{"TIME", "DIRECTION", "BUCKET", "REMOTE PATH", "SIZE", "STATUS"}, rows)

	fmt.Fprintf(w, "\n%d uploads (%s), %d downloads (%s)\n",
		totals.Uploads, formatSize(totals.UploadBytes),
		totals.Downloads, formatSize(totals.DownloadBytes))

	return nil
}
