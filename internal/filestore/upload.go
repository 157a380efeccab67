package filestore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// jsonAccept asks the server for a JSON reply.
var jsonAccept = http.Header{"Accept": {"application/json"}}

// UploadOptions tunes UploadContentList.
type UploadOptions struct {
	// MimeType is sent as the "type" field when non-empty.
	MimeType string
	// RequestURL sets get_url=true so the response carries a link to the file.
	RequestURL bool
	// RawResponse skips JSON decoding of the reply.
	RawResponse bool
}

// UploadResponse is the JSON reply of the upload endpoint. Fields the server
// omits stay empty; the full body is always available in UploadResult.Body.
type UploadResponse struct {
	URL     string `json:"url,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// UploadResult carries the reply of an upload. Response is nil when
// RawResponse was requested or when the reply is valid JSON of another shape
// (an array, a scalar, or fields of unexpected types); Body always holds it.
type UploadResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Response   *UploadResponse
}

// UploadContentList uploads descs to targetPath in the selected bucket as one
// multipart PUT. Multiple parts of mixed types may be sent together; no check
// is made that exactly one is present.
func (c *Client) UploadContentList(
	ctx context.Context, targetPath string, descs []ContentDescriptor, opts UploadOptions,
) (*UploadResult, error) {
	bucket, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	body := BuildMultipart(descs, opts.MimeType, opts.RequestURL, c.logger)

	c.logger.Info("uploading content",
		slog.String("bucket", bucket),
		slog.String("path", targetPath),
		slog.Int("parts", body.Len()),
		slog.Bool("get_url", opts.RequestURL),
	)

	var decoded *UploadResponse

	ro := requestOptions{
		header: jsonAccept,
		body: func() (io.Reader, string, error) {
			return body.Open()
		},
		decodeJSON: !opts.RawResponse,
	}

	if !opts.RawResponse {
		decoded = &UploadResponse{}
		ro.out = decoded
	}

	resp, err := c.execute(ctx, http.MethodPut, remotePath(bucket, targetPath), ro)
	if err != nil {
		return nil, err
	}

	if !resp.Decoded {
		decoded = nil
	}

	c.logger.Debug("upload complete",
		slog.String("path", targetPath),
		slog.Int("status", resp.StatusCode),
	)

	return &UploadResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Response:   decoded,
	}, nil
}
