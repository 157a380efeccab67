package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/toosmart/filestore-go/internal/filestore"
	"github.com/toosmart/filestore-go/internal/journal"
)

// Flags for get and put, bound in their constructors.
var (
	flagGetForce  bool
	flagPutTo     string
	flagPutPaths  []string
	flagPutHTML   []string
	flagPutType   string
	flagPutGetURL bool
	flagPutRaw    bool
)

// stdoutIsTerminal is swapped in tests.
var stdoutIsTerminal = func() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var errTerminalOutput = errors.New("refusing to write file content to a terminal, pass a local path or --force")

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file from the bucket",
		Long: `Download a file from the selected bucket.

Without a local path the content is written to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}

	cmd.Flags().BoolVar(&flagGetForce, "force", false, "write to stdout even when it is a terminal")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [local-file...] --to <remote-path>",
		Short: "Upload files, server-side paths and HTML content in one request",
		Long: `Upload content to the selected bucket as one multipart request.

Each local file becomes a file part. --path references content already on the
server and --html sends inline HTML; both may be repeated and mixed with files.`,
		RunE: runPut,
	}

	cmd.Flags().StringVar(&flagPutTo, "to", "", "target path in the bucket (a trailing / appends the file name)")
	cmd.Flags().StringArrayVar(&flagPutPaths, "path", nil, "server-side path to include (repeatable)")
	cmd.Flags().StringArrayVar(&flagPutHTML, "html", nil, "inline HTML content to include (repeatable)")
	cmd.Flags().StringVar(&flagPutType, "type", "", "MIME type to declare for the upload")
	cmd.Flags().BoolVar(&flagPutGetURL, "url", false, "ask the server for a URL to the uploaded content")
	cmd.Flags().BoolVar(&flagPutRaw, "raw", false, "print the raw server response instead of decoding it")

	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	remotePath := args[0]
	logger := buildLogger()

	toStdout := len(args) == 1
	if toStdout && !flagGetForce && stdoutIsTerminal() {
		return errTerminalOutput
	}

	s, err := newCLISession(logger)
	if err != nil {
		return err
	}

	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}
	defer s.persist()

	j := openJournal(ctx, logger)
	defer j.Close()

	entry := journal.Entry{
		Direction:  journal.Download,
		Bucket:     s.client.Bucket(),
		RemotePath: remotePath,
	}

	logger.Debug("get", "remote_path", remotePath)

	if toStdout {
		n, err := s.client.DownloadTo(ctx, remotePath, cmd.OutOrStdout())
		entry.Bytes = n
		recordTransfer(ctx, j, logger, entry, err)

		return err
	}

	localPath := args[1]
	if info, statErr := os.Stat(localPath); statErr == nil && info.IsDir() {
		localPath = filepath.Join(localPath, path.Base(remotePath))
	}

	entry.LocalPath = localPath

	n, err := downloadToFile(cmd, s.client, remotePath, localPath)
	entry.Bytes = n
	recordTransfer(ctx, j, logger, entry, err)

	if err != nil {
		return err
	}

	logger.Debug("download complete", "local_path", localPath, "bytes", n)
	statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

// downloadToFile streams into localPath.partial and renames on success so an
// interrupted download never leaves a truncated file at localPath.
func downloadToFile(cmd *cobra.Command, client *filestore.Client, remotePath, localPath string) (int64, error) {
	partialPath := localPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partialPath, err)
	}

	n, err := client.DownloadTo(cmd.Context(), remotePath, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", partialPath, closeErr)
	}

	if err != nil {
		os.Remove(partialPath)
		return n, err
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		os.Remove(partialPath)
		return n, fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	return n, nil
}

// putOutput is the JSON schema for `put --json`.
type putOutput struct {
	Target     string `json:"target"`
	StatusCode int    `json:"status_code"`
	URL        string `json:"url,omitempty"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	descs, localBytes, err := buildDescriptors(args, flagPutPaths, flagPutHTML)
	if err != nil {
		return err
	}

	target := putTarget(flagPutTo, args)

	s, err := newCLISession(logger)
	if err != nil {
		return err
	}

	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}
	defer s.persist()

	j := openJournal(ctx, logger)
	defer j.Close()

	logger.Debug("put", "target", target, "parts", len(descs))

	res, err := s.client.UploadContentList(ctx, target, descs, filestore.UploadOptions{
		MimeType:    flagPutType,
		RequestURL:  flagPutGetURL,
		RawResponse: flagPutRaw,
	})

	recordTransfer(ctx, j, logger, journal.Entry{
		Direction:  journal.Upload,
		Bucket:     s.client.Bucket(),
		RemotePath: target,
		LocalPath:  strings.Join(args, ","),
		Bytes:      localBytes,
	}, err)

	if err != nil {
		return err
	}

	return printPutResult(cmd.OutOrStdout(), target, res)
}

// buildDescriptors turns CLI arguments into upload descriptors in a fixed
// order: files, then server paths, then HTML. It also sums the local file
// sizes for the journal. Missing files are reported before any request.
func buildDescriptors(files, paths, html []string) ([]filestore.ContentDescriptor, int64, error) {
	if len(files)+len(paths)+len(html) == 0 {
		return nil, 0, errors.New("nothing to upload: pass local files, --path or --html")
	}

	descs := make([]filestore.ContentDescriptor, 0, len(files)+len(paths)+len(html))

	var total int64

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, 0, err
		}

		if info.IsDir() {
			return nil, 0, fmt.Errorf("%s is a directory (use 'filestore watch' for trees)", f)
		}

		total += info.Size()
		descs = append(descs, filestore.FileContent(f))
	}

	for _, p := range paths {
		descs = append(descs, filestore.PathContent(p))
	}

	for _, h := range html {
		descs = append(descs, filestore.HTMLContent(h))
	}

	return descs, total, nil
}

// putTarget appends the file name when --to ends in "/" and exactly one local
// file is uploaded.
func putTarget(to string, files []string) string {
	if strings.HasSuffix(to, "/") && len(files) == 1 {
		return to + filepath.Base(files[0])
	}

	return to
}

func printPutResult(w io.Writer, target string, res *filestore.UploadResult) error {
	out := putOutput{Target: target, StatusCode: res.StatusCode}

	if res.Response != nil {
		out.URL = res.Response.URL
		out.Path = res.Response.Path
		out.Message = res.Response.Message
	} else {
		out.Raw = string(res.Body)
	}

	if flagJSON {
		return printJSON(w, out)
	}

	if res.Response == nil {
		_, err := fmt.Fprintln(w, out.Raw)
		return err
	}

	statusf("Uploaded %s (HTTP %d)\n", target, res.StatusCode)

	if out.URL != "" {
		if _, err := fmt.Fprintln(w, out.URL); err != nil {
			return err
		}
	}

	return nil
}
