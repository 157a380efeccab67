package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/toosmart/filestore-go/internal/config"
	"github.com/toosmart/filestore-go/internal/filestore"
	"github.com/toosmart/filestore-go/internal/journal"
	"github.com/toosmart/filestore-go/internal/tokenfile"
)

var (
	errNoBaseURL = errors.New("server.base_url is not set (config file or " + config.EnvBaseURL + ")")
	errNoAPIKey  = errors.New("server.api_key is not set (config file or " + config.EnvAPIKey + ")")
)

// cliSession wires a filestore.Client to the saved credential file. Commands
// build one, run their operation, then call persist so a credential obtained
// by login or by the automatic re-login is reused next time.
type cliSession struct {
	client   *filestore.Client
	logger   *slog.Logger
	credPath string
	saved    string // credential currently on disk
}

// credentialPath is where the session credential is persisted.
func credentialPath() string {
	return tokenfile.Path(config.DefaultDataDir())
}

// newCLISession builds a client from resolvedCfg and restores a usable saved
// credential into it.
func newCLISession(logger *slog.Logger) (*cliSession, error) {
	cfg := resolvedCfg
	if cfg == nil || cfg.Server.BaseURL == "" {
		return nil, errNoBaseURL
	}

	var opts []filestore.Option
	if cfg.Network.UserAgent != "" {
		opts = append(opts, filestore.WithUserAgent(cfg.Network.UserAgent))
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	client := filestore.NewClient(cfg.Server.BaseURL, cfg.Server.APIKey, hc, logger, opts...)

	s := &cliSession{
		client:   client,
		logger:   logger,
		credPath: credentialPath(),
	}

	saved, err := tokenfile.Load(s.credPath)
	if err != nil {
		logger.Warn("ignoring unreadable credential file", slog.String("error", err.Error()))
	}

	if saved.Usable(client.BaseURL()) {
		client.Session().Restore(saved.Token.AccessToken)
		s.saved = saved.Token.AccessToken

		logger.Debug("restored saved credential", slog.Time("saved_at", saved.SavedAt))
	}

	bucket := cfg.Server.Bucket
	if bucket == "" && saved != nil && saved.BaseURL == client.BaseURL() {
		bucket = saved.Bucket
	}

	if bucket != "" {
		client.SetBucket(bucket)
	}

	return s, nil
}

// login performs the handshake unconditionally.
func (s *cliSession) login(ctx context.Context) (string, error) {
	if resolvedCfg.Server.APIKey == "" {
		return "", errNoAPIKey
	}

	return s.client.Login(ctx)
}

// ensureLoggedIn logs in only when no credential was restored.
func (s *cliSession) ensureLoggedIn(ctx context.Context) error {
	if s.client.Session().IsAuthenticated() {
		return nil
	}

	_, err := s.login(ctx)

	return err
}

// persist saves the current credential when it differs from the one on disk.
// Failures are logged; the operation itself already succeeded.
func (s *cliSession) persist() {
	cred := s.client.Session().Credential()
	if cred == "" || cred == s.saved {
		return
	}

	var expiry time.Time
	if claims, ok := filestore.InspectCredential(cred); ok {
		expiry = claims.ExpiresAt
	}

	err := tokenfile.Save(s.credPath, &tokenfile.Saved{
		Token:   tokenfile.NewToken(cred, expiry),
		BaseURL: s.client.BaseURL(),
		Bucket:  s.client.Bucket(),
	})
	if err != nil {
		s.logger.Warn("saving credential failed", slog.String("error", err.Error()))
		return
	}

	s.saved = cred
}

// openJournal opens the transfer journal, or returns nil when it is disabled
// or cannot be opened. The journal is best-effort and never fails a command.
func openJournal(ctx context.Context, logger *slog.Logger) *journal.Journal {
	if resolvedCfg == nil || !resolvedCfg.Journal.Enabled || resolvedCfg.JournalPath == "" {
		return nil
	}

	j, err := journal.Open(ctx, resolvedCfg.JournalPath, logger)
	if err != nil {
		logger.Warn("transfer journal unavailable", slog.String("error", err.Error()))
		return nil
	}

	return j
}

// recordTransfer writes e to j, logging instead of failing on error.
func recordTransfer(ctx context.Context, j *journal.Journal, logger *slog.Logger, e journal.Entry, opErr error) {
	if j == nil {
		return
	}

	e.Status = journal.StatusOK
	if opErr != nil {
		e.Status = journal.StatusFailed
		e.Error = opErr.Error()
	}

	if _, err := j.Record(ctx, e); err != nil {
		logger.Warn("recording transfer failed", slog.String("error", err.Error()))
	}
}
