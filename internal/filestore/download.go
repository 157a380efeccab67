package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// rawAccept asks the server for the stored bytes as-is.
var rawAccept = http.Header{"Accept": {"*/*"}}

// GetFile downloads path from the selected bucket and returns the raw bytes.
// The body is never interpreted as JSON.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, error) {
	bucket, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	c.logger.Info("downloading file",
		slog.String("bucket", bucket),
		slog.String("path", path),
	)

	resp, err := c.execute(ctx, http.MethodGet, remotePath(bucket, path), requestOptions{
		header: rawAccept,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("download complete",
		slog.String("path", path),
		slog.Int("bytes", len(resp.Body)),
	)

	return resp.Body, nil
}

// DownloadTo streams path from the selected bucket into w and returns the
// number of bytes written. Only the request/response exchange takes part in
// the re-login retry; a failure while streaming is returned as-is.
func (c *Client) DownloadTo(ctx context.Context, path string, w io.Writer) (int64, error) {
	bucket, err := c.requireSession()
	if err != nil {
		return 0, err
	}

	c.logger.Info("streaming file",
		slog.String("bucket", bucket),
		slog.String("path", path),
	)

	resp, err := c.do(ctx, http.MethodGet, remotePath(bucket, path), requestOptions{
		header: rawAccept,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("filestore: streaming download content: %w", err)
	}

	return n, nil
}
