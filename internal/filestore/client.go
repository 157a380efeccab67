package filestore

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// filePathPrefix is the API prefix for bucket-scoped file operations.
const filePathPrefix = "/api/v2/file"

// Client is the file store API client. It owns one Session (cookie jar and
// bearer credential) and the selected bucket. All network methods block until
// the transport returns.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
	userAgent  string
	logger     *slog.Logger

	mu     sync.RWMutex
	bucket string
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for the API at baseURL, authenticating with the
// static apiKey. A nil httpClient gets DefaultTimeout; a client without a
// cookie jar is copied and given one, since login depends on cookies.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: prepareHTTPClient(httpClient),
		userAgent:  DefaultUserAgent,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.session = newSession(c.baseURL, apiKey, c.httpClient, c.userAgent, logger)

	return c
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session exposes the client's session, e.g. to restore a saved credential.
func (c *Client) Session() *Session {
	return c.session
}

// SetBucket selects the bucket used by file operations. No validation is
// done here; an empty name fails later with ErrNoBucketSelected.
func (c *Client) SetBucket(name string) {
	c.mu.Lock()
	c.bucket = name
	c.mu.Unlock()
}

// Bucket returns the selected bucket name.
func (c *Client) Bucket() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.bucket
}

// requireSession checks the preconditions of every bucket-scoped call and
// returns the bucket to use. It never touches the network.
func (c *Client) requireSession() (string, error) {
	if !c.session.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}

	bucket := c.Bucket()
	if bucket == "" {
		return "", ErrNoBucketSelected
	}

	return bucket, nil
}

// remotePath builds /api/v2/file/{bucket}/{path}. Each segment is NFC
// normalized and escaped; slashes inside path are kept as separators.
func remotePath(bucket, path string) string {
	var b strings.Builder

	b.WriteString(filePathPrefix)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(norm.NFC.String(bucket)))

	for _, seg := range strings.Split(strings.TrimLeft(path, "/"), "/") {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(norm.NFC.String(seg)))
	}

	return b.String()
}

// Login performs the session handshake and returns the new bearer credential.
func (c *Client) Login(ctx context.Context) (string, error) {
	return c.session.Login(ctx)
}
