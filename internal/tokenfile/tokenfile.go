// Package tokenfile persists the session credential between CLI runs. The
// credential is stored as an oauth2.Token (bearer type, expiry from the JWT
// claims when available) plus the server and bucket it was issued for.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// FileName is the credential file name inside the data directory.
const FileName = "credential.json"

// Meta keys.
const (
	metaBaseURL = "base_url"
	metaBucket  = "bucket"
	metaSavedAt = "saved_at"
)

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Saved is a credential restored from disk.
type Saved struct {
	Token   *oauth2.Token
	BaseURL string
	Bucket  string
	SavedAt time.Time
}

// NewToken wraps a session credential as a bearer oauth2.Token. A zero expiry
// means the expiry is unknown and the token is treated as non-expiring.
func NewToken(credential string, expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
}

// Path returns the credential file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Usable reports whether the saved credential may be restored into a session
// talking to baseURL: it must be non-empty, unexpired and issued for the same
// server.
func (s *Saved) Usable(baseURL string) bool {
	if s == nil || s.Token == nil || !s.Token.Valid() {
		return false
	}

	return s.BaseURL == baseURL
}

// Load reads a saved credential from disk. Returns (nil, nil) if the file
// does not exist.
func Load(path string) (*Saved, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no credential (login required)", path)
	}

	saved := &Saved{
		Token:   tf.Token,
		BaseURL: tf.Meta[metaBaseURL],
		Bucket:  tf.Meta[metaBucket],
	}

	if ts := tf.Meta[metaSavedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			saved.SavedAt = t
		}
	}

	return saved, nil
}

// Save writes the credential to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs credential values.
func Save(path string, s *Saved) error {
	if s == nil || s.Token == nil {
		return errors.New("tokenfile: nothing to save")
	}

	savedAt := s.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	meta := map[string]string{
		metaBaseURL: s.BaseURL,
		metaSavedAt: savedAt.UTC().Format(time.RFC3339),
	}

	if s.Bucket != "" {
		meta[metaBucket] = s.Bucket
	}

	data, err := json.MarshalIndent(File{Token: s.Token, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return writeAtomic(path, data)
}

// Remove deletes the credential file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a partial file at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
