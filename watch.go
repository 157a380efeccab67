package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/toosmart/filestore-go/internal/config"
	"github.com/toosmart/filestore-go/internal/filestore"
	"github.com/toosmart/filestore-go/internal/journal"
	"github.com/toosmart/filestore-go/internal/watch"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <local-dir> [remote-prefix]",
		Short: "Upload files from a directory as they change",
		Long: `Watch a local directory and upload each new or modified file once it has
been quiet for watch.debounce. Files keep their path relative to the directory,
placed under remote-prefix in the selected bucket.

Only one watch runs at a time. Press Ctrl-C to stop; press it again to force
an exit while an upload is in flight.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}

	cleanup, err := writePIDFile(filepath.Join(config.DefaultDataDir(), watchPIDFileName))
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := newCLISession(logger)
	if err != nil {
		return err
	}

	if s.client.Bucket() == "" {
		return filestore.ErrNoBucketSelected
	}

	ctx := shutdownContext(cmd.Context(), logger)

	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}

	s.persist()

	j := openJournal(ctx, logger)
	defer j.Close()

	w := watch.New(watch.Options{
		Root:         root,
		RemotePrefix: prefix,
		Debounce:     resolvedCfg.Debounce,
		SkipDotfiles: resolvedCfg.Watch.SkipDotfiles,
		MaxFileSize:  resolvedCfg.MaxFileSize,
	}, watchUploader(s, j, logger), logger)

	statusf("Watching %s (Ctrl-C to stop)\n", root)

	stats, err := w.Run(ctx)
	if err != nil {
		return err
	}

	statusf("Stopped: %d uploaded, %d failed, %d skipped\n", stats.Uploaded, stats.Failed, stats.Skipped)

	return nil
}

// watchUploader sends each settled file as a single-part upload, records it
// in the journal and saves the credential if a re-login replaced it.
func watchUploader(s *cliSession, j *journal.Journal, logger *slog.Logger) watch.Uploader {
	return watch.UploaderFunc(func(ctx context.Context, localPath, remotePath string) error {
		var size int64
		if info, err := os.Stat(localPath); err == nil {
			size = info.Size()
		}

		_, err := s.client.UploadContentList(ctx, remotePath,
			[]filestore.ContentDescriptor{filestore.FileContent(localPath)},
			filestore.UploadOptions{})

		recordTransfer(ctx, j, logger, journal.Entry{
			Direction:  journal.Upload,
			Bucket:     s.client.Bucket(),
			RemotePath: remotePath,
			LocalPath:  localPath,
			Bytes:      size,
		}, err)

		if err != nil {
			return err
		}

		s.persist()
		statusf("Uploaded %s -> %s (%s)\n", localPath, remotePath, formatSize(size))

		return nil
	})
}
