package filestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
)

// ContentType tags a ContentDescriptor.
type ContentType string

// Known content types.
const (
	ContentFile ContentType = "file"
	ContentPath ContentType = "path"
	ContentHTML ContentType = "html"
)

// Multipart field names understood by the upload endpoint.
const (
	fieldContentFile = "content_file"
	fieldContentPath = "content_path"
	fieldContentHTML = "content_html"
	fieldMimeType    = "type"
	fieldGetURL      = "get_url"
)

// errBodyNotReplayable is returned when a retry needs to resend a reader that
// was already consumed and cannot seek.
var errBodyNotReplayable = errors.New("filestore: upload source cannot be re-read for retry")

// ContentDescriptor is one unit of upload content.
//
//   - ContentFile: bytes of a local file at Value, or of Reader when set.
//     The part filename is Filename, defaulting to the base name of Value.
//   - ContentPath: Value is a path the server already knows.
//   - ContentHTML: Value is inline markup.
type ContentDescriptor struct {
	Type     ContentType
	Value    string
	Reader   io.Reader
	Filename string
}

// FileContent uploads the local file at path.
func FileContent(path string) ContentDescriptor {
	return ContentDescriptor{Type: ContentFile, Value: path}
}

// FileReaderContent uploads the bytes of r under filename. If r is an
// io.Seeker it can be resent after a re-login.
func FileReaderContent(r io.Reader, filename string) ContentDescriptor {
	return ContentDescriptor{Type: ContentFile, Reader: r, Filename: filename}
}

// PathContent references a file already stored server-side.
func PathContent(path string) ContentDescriptor {
	return ContentDescriptor{Type: ContentPath, Value: path}
}

// HTMLContent uploads inline markup.
func HTMLContent(markup string) ContentDescriptor {
	return ContentDescriptor{Type: ContentHTML, Value: markup}
}

// partFilename is the filename sent for a file part.
func (d ContentDescriptor) partFilename() string {
	if d.Filename != "" {
		return d.Filename
	}

	return filepath.Base(d.Value)
}

// MultipartBody is a replayable multipart/form-data payload. Each Open call
// produces a fresh stream with the same boundary.
type MultipartBody struct {
	parts    []ContentDescriptor
	mimeType string
	getURL   bool
	boundary string
	opened   int

	// prev and prevDone belong to the last stream handed out; a replay waits
	// for its encoder to exit before rewinding shared readers.
	prev     *io.PipeReader
	prevDone chan struct{}
}

// BuildMultipart assembles the upload body. Parts keep input order; the
// optional type and get_url fields follow all content parts. Descriptors
// with an unknown Type are dropped.
func BuildMultipart(descs []ContentDescriptor, mimeType string, requestURL bool, logger *slog.Logger) *MultipartBody {
	if logger == nil {
		logger = slog.Default()
	}

	parts := make([]ContentDescriptor, 0, len(descs))

	for i, d := range descs {
		switch d.Type {
		case ContentFile, ContentPath, ContentHTML:
			parts = append(parts, d)
		default:
			logger.Debug("skipping content descriptor with unknown type",
				slog.Int("index", i),
				slog.String("type", string(d.Type)),
			)
		}
	}

	return &MultipartBody{
		parts:    parts,
		mimeType: mimeType,
		getURL:   requestURL,
		boundary: multipart.NewWriter(io.Discard).Boundary(),
	}
}

// Len returns the number of content parts that will be sent.
func (b *MultipartBody) Len() int {
	return len(b.parts)
}

// Open returns a reader over the encoded body and its Content-Type. Local
// files are opened before the stream starts, so a missing file is reported
// here rather than mid-request. Closing the returned reader stops the encoder.
func (b *MultipartBody) Open() (io.ReadCloser, string, error) {
	if b.prev != nil {
		b.prev.Close()
		<-b.prevDone
		b.prev, b.prevDone = nil, nil
	}

	sources, owned, err := b.openSources()
	if err != nil {
		return nil, "", err
	}

	b.opened++

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	if err := mw.SetBoundary(b.boundary); err != nil {
		closeFiles(owned)
		pw.Close()

		return nil, "", fmt.Errorf("filestore: setting multipart boundary: %w", err)
	}

	done := make(chan struct{})
	b.prev, b.prevDone = pr, done

	go func() {
		defer close(done)
		defer closeFiles(owned)

		werr := b.writeParts(mw, sources)
		if werr == nil {
			werr = mw.Close()
		}

		pw.CloseWithError(werr)
	}()

	return pr, mw.FormDataContentType(), nil
}

// openSources resolves the byte source of every file part, indexed like
// b.parts, and returns the files it opened itself. Caller-supplied readers
// are rewound on replays and never closed here.
func (b *MultipartBody) openSources() ([]io.Reader, []*os.File, error) {
	sources := make([]io.Reader, len(b.parts))

	var owned []*os.File

	for i, d := range b.parts {
		if d.Type != ContentFile {
			continue
		}

		if d.Reader != nil {
			if b.opened > 0 {
				seeker, ok := d.Reader.(io.Seeker)
				if !ok {
					closeFiles(owned)
					return nil, nil, errBodyNotReplayable
				}

				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					closeFiles(owned)
					return nil, nil, fmt.Errorf("filestore: rewinding %s: %w", d.partFilename(), err)
				}
			}

			sources[i] = d.Reader

			continue
		}

		f, err := os.Open(d.Value)
		if err != nil {
			closeFiles(owned)
			return nil, nil, fmt.Errorf("filestore: opening upload source: %w", err)
		}

		sources[i] = f
		owned = append(owned, f)
	}

	return sources, owned, nil
}

// writeParts encodes content parts followed by the optional fields.
func (b *MultipartBody) writeParts(mw *multipart.Writer, sources []io.Reader) error {
	for i, d := range b.parts {
		switch d.Type {
		case ContentFile:
			w, err := mw.CreateFormFile(fieldContentFile, d.partFilename())
			if err != nil {
				return fmt.Errorf("creating %s part: %w", fieldContentFile, err)
			}

			if _, err := io.Copy(w, sources[i]); err != nil {
				return fmt.Errorf("copying %s: %w", d.partFilename(), err)
			}
		case ContentPath:
			if err := mw.WriteField(fieldContentPath, d.Value); err != nil {
				return fmt.Errorf("writing %s part: %w", fieldContentPath, err)
			}
		case ContentHTML:
			if err := mw.WriteField(fieldContentHTML, d.Value); err != nil {
				return fmt.Errorf("writing %s part: %w", fieldContentHTML, err)
			}
		}
	}

	if b.mimeType != "" {
		if err := mw.WriteField(fieldMimeType, b.mimeType); err != nil {
			return fmt.Errorf("writing %s field: %w", fieldMimeType, err)
		}
	}

	if b.getURL {
		if err := mw.WriteField(fieldGetURL, "true"); err != nil {
			return fmt.Errorf("writing %s field: %w", fieldGetURL, err)
		}
	}

	return nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
