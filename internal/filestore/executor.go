package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxAuthRetries is how many re-logins one logical call may perform. A 401
// after the re-login is terminal.
const maxAuthRetries = 1

// Response is the outcome of one successful authenticated call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Decoded reports whether the body was decoded into requestOptions.out.
	// A valid JSON body of another shape leaves it false without an error.
	Decoded bool
}

// bodyFunc produces a fresh request body and its content type. It is called
// once per attempt so a retried request resends the full payload.
type bodyFunc func() (io.Reader, string, error)

// requestOptions describes one authenticated call.
type requestOptions struct {
	header     http.Header
	body       bodyFunc
	decodeJSON bool
	out        any  // decoded into when decodeJSON is set and out is non-nil
	noRetry    bool // disables the re-login on 401
}

// execute runs an authenticated request through do, reads the full body and,
// when requested, validates and decodes it as JSON.
func (c *Client) execute(ctx context.Context, method, path string, opts requestOptions) (*Response, error) {
	resp, err := c.do(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("reading response body: %w", err)}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}

	if !opts.decodeJSON {
		return out, nil
	}

	decoded, err := decodeJSONBody(data, opts.out)
	if err != nil {
		c.logger.Error("success response is not valid JSON",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, err
	}

	if !decoded && opts.out != nil {
		c.logger.Debug("success response has an unexpected JSON shape, returning body only",
			slog.String("method", method),
			slog.String("path", path),
		)
	}

	out.Decoded = decoded

	return out, nil
}

// decodeJSONBody validates data as JSON and decodes it into out when out is
// non-nil. Only a body that is not JSON at all is an error; valid JSON that
// does not fit out reports decoded=false. An empty body counts as decoded and
// leaves out untouched.
func decodeJSONBody(data []byte, out any) (decoded bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return true, nil
	}

	if !json.Valid(trimmed) {
		return false, fmt.Errorf("%w: %q", ErrMalformedResponse, snippet(trimmed))
	}

	if out == nil {
		return false, nil
	}

	return json.Unmarshal(trimmed, out) == nil, nil
}

// do sends the request and classifies the response. On 401 it logs in again
// and retries exactly once; a 401 for a credential that another call has
// already replaced is retried with the new one instead of logging in again.
// Every other failure is returned immediately.
// On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, path string, opts requestOptions) (*http.Response, error) {
	relogins := 0
	if opts.noRetry {
		relogins = maxAuthRetries
	}

	for {
		resp, sent, err := c.doOnce(ctx, method, path, opts)
		if err != nil {
			return nil, err
		}

		if isSuccess(resp.StatusCode) {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if resp.StatusCode == http.StatusUnauthorized && relogins < maxAuthRetries {
			relogins++

			// Another call already replaced the credential this attempt carried.
			if current := c.session.Credential(); current != "" && current != sent {
				c.logger.Debug("credential replaced since request was sent, retrying",
					slog.String("method", method),
					slog.String("path", path),
				)

				continue
			}

			c.logger.Warn("credential rejected, logging in again",
				slog.String("method", method),
				slog.String("path", path),
			)

			if _, loginErr := c.session.Login(ctx); loginErr != nil {
				return nil, fmt.Errorf("filestore: re-login after 401 on %s %s: %w", method, path, loginErr)
			}

			continue
		}

		apiErr := newAPIError(resp.StatusCode, resp.Header.Get("X-Request-Id"), errBody)

		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("relogins", relogins),
		)

		return nil, apiErr
	}
}

// doOnce executes a single HTTP attempt with the current credential attached
// and returns that credential alongside the response.
func (c *Client) doOnce(ctx context.Context, method, path string, opts requestOptions) (*http.Response, string, error) {
	var (
		body        io.Reader = http.NoBody
		contentType string
	)

	if opts.body != nil {
		b, ct, err := opts.body()
		if err != nil {
			return nil, "", fmt.Errorf("filestore: preparing request body: %w", err)
		}

		body, contentType = b, ct
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}

		return nil, "", fmt.Errorf("filestore: creating request: %w", err)
	}

	for k, vs := range opts.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	cred := c.session.Credential()
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	req.Header.Set("User-Agent", c.userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("transport failure",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, "", &TransportError{Method: method, Path: path, Err: err}
	}

	return resp, cred, nil
}

// snippet shortens b for inclusion in an error message.
func snippet(b []byte) string {
	const maxSnippet = 120
	if len(b) > maxSnippet {
		return string(b[:maxSnippet]) + "..."
	}

	return string(b)
}
