package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Wire constants of the login handshake.
const (
	csrfPath          = "/api/auth/csrf"
	credentialsPath   = "/api/auth/callback/credentials"
	CredentialCookie  = "jwt_token"
	loginFlightKey    = "login"
	maxHandshakeBytes = 64 * 1024
)

// csrfResponse is the body of GET /api/auth/csrf.
// A missing or null csrfToken fails the handshake; an empty string is passed
// through to the credential exchange.
type csrfResponse struct {
	CSRFToken *string `json:"csrfToken"`
}

// Session owns the login handshake and the bearer credential it yields.
// Concurrent Login calls share one handshake; readers of the credential never
// observe a half-replaced value.
type Session struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	mu         sync.RWMutex
	credential string

	flight singleflight.Group
}

func newSession(baseURL, apiKey string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Session {
	return &Session{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Credential returns the current bearer credential, or "" before login.
func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.credential
}

// IsAuthenticated reports whether a credential is held.
func (s *Session) IsAuthenticated() bool {
	return s.Credential() != ""
}

// Restore seeds a previously obtained credential, e.g. one loaded from disk.
// A later 401 still triggers the normal re-login.
func (s *Session) Restore(credential string) {
	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()
}

// Login runs the CSRF + credential-exchange handshake and stores the
// credential carried by the jwt_token cookie. Callers racing on Login share
// the result of a single handshake. The shared handshake is detached from
// any one caller's cancellation (the HTTP client timeout still bounds it);
// a canceled caller stops waiting and gets ctx.Err() wrapped in
// ErrLoginRequestFailed while the others keep theirs.
func (s *Session) Login(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginRequestFailed, err)
	}

	ch := s.flight.DoChan(loginFlightKey, func() (any, error) {
		return s.login(context.WithoutCancel(ctx))
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrLoginRequestFailed, ctx.Err())
	}

	if res.Err != nil {
		return "", res.Err
	}

	if res.Shared {
		s.logger.Debug("joined in-flight login")
	}

	cred, ok := res.Val.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected handshake result", ErrLoginRequestFailed)
	}

	return cred, nil
}

func (s *Session) login(ctx context.Context) (string, error) {
	s.logger.Info("logging in", slog.String("base_url", s.baseURL))

	csrf, err := s.fetchCSRFToken(ctx)
	if err != nil {
		return "", err
	}

	if err := s.exchangeCredentials(ctx, csrf); err != nil {
		return "", err
	}

	cred, err := s.credentialFromJar()
	if err != nil {
		s.logger.Error("login handshake finished without credential cookie",
			slog.String("cookie", CredentialCookie),
		)

		return "", err
	}

	s.mu.Lock()
	s.credential = cred
	s.mu.Unlock()

	s.logger.Info("login successful")

	return cred, nil
}

// fetchCSRFToken performs step one of the handshake.
func (s *Session) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+csrfPath, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", ErrCSRFFetchFailed, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCSRFFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHandshakeBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrCSRFFetchFailed, err)
	}

	var cr csrfResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: decoding response (HTTP %d): %w", ErrCSRFFetchFailed, resp.StatusCode, err)
	}

	if cr.CSRFToken == nil {
		return "", fmt.Errorf("%w: csrfToken missing from response (HTTP %d)", ErrCSRFFetchFailed, resp.StatusCode)
	}

	s.logger.Debug("csrf token received", slog.Int("status", resp.StatusCode))

	return *cr.CSRFToken, nil
}

// exchangeCredentials posts the CSRF token and API key. Success is decided by
// the presence of the credential cookie, not by the status code.
func (s *Session) exchangeCredentials(ctx context.Context, csrf string) error {
	form := url.Values{
		"csrfToken": {csrf},
		"token":     {s.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+credentialsPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrLoginRequestFailed, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginRequestFailed, err)
	}
	defer resp.Body.Close()

	// Drain body to reuse connection.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHandshakeBytes)) //nolint:errcheck // best-effort drain

	if !isSuccess(resp.StatusCode) {
		s.logger.Warn("credential exchange returned non-2xx status",
			slog.Int("status", resp.StatusCode),
		)
	}

	return nil
}

// jarProbePaths are the request paths whose cookies are searched for the
// credential. A cookie scoped below "/" is only visible under its own path.
var jarProbePaths = []string{"/", credentialsPath, filePathPrefix + "/"}

// credentialFromJar returns the first jwt_token cookie the jar holds for the
// base URL.
func (s *Session) credentialFromJar() (string, error) {
	if s.httpClient.Jar == nil {
		return "", ErrCredentialCookieMissing
	}

	for _, p := range jarProbePaths {
		u, err := url.Parse(s.baseURL + p)
		if err != nil {
			return "", fmt.Errorf("%w: parsing base URL: %w", ErrCredentialCookieMissing, err)
		}

		for _, c := range s.httpClient.Jar.Cookies(u) {
			if c.Name == CredentialCookie && c.Value != "" {
				return c.Value, nil
			}
		}
	}

	return "", ErrCredentialCookieMissing
}
