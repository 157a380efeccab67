package main

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toosmart/filestore-go/internal/config"
)

const (
	testAPIKey     = "cli-api-key"
	testCredential = "cli-token"
)

// fakeFileStore is an in-memory server speaking the login handshake and the
// bucket file API. Uploads store the first content_file part.
type fakeFileStore struct {
	srv    *httptest.Server
	logins atomic.Int32
	calls  atomic.Int32

	mu    sync.Mutex
	files map[string][]byte // "bucket/path" -> content
	forms []map[string][]string
}

func newFakeFileStore(t *testing.T) *fakeFileStore {
	t.Helper()

	f := &fakeFileStore{files: make(map[string][]byte)}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"csrfToken":"csrf-1"}`))
	})

	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)

		if err := r.ParseForm(); err != nil || r.PostForm.Get("token") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "jwt_token", Value: testCredential, Path: "/"})
		_, _ = w.Write([]byte(`{"url":"/"}`))
	})

	mux.HandleFunc("GET /api/v2/file/{bucket}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)

		if r.Header.Get("Authorization") != "Bearer "+testCredential {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		f.mu.Lock()
		data, ok := f.files[r.PathValue("bucket")+"/"+r.PathValue("path")]
		f.mu.Unlock()

		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}

		_, _ = w.Write(data)
	})

	mux.HandleFunc("PUT /api/v2/file/{bucket}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)

		if r.Header.Get("Authorization") != "Bearer "+testCredential {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := r.PathValue("bucket") + "/" + r.PathValue("path")

		var content []byte
		if fhs := r.MultipartForm.File["content_file"]; len(fhs) > 0 {
			content = readFileHeader(fhs[0])
		}

		f.mu.Lock()
		f.files[key] = content
		f.forms = append(f.forms, r.MultipartForm.Value)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"` + f.srv.URL + `/s/` + r.PathValue("path") + `","path":"` + r.PathValue("path") + `"}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func readFileHeader(fh *multipart.FileHeader) []byte {
	r, err := fh.Open()
	if err != nil {
		return nil
	}
	defer r.Close()

	data, _ := io.ReadAll(r)

	return data
}

func (f *fakeFileStore) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[key] = data
}

func (f *fakeFileStore) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[key]

	return data, ok
}

// setupCLIEnv isolates config and data directories and points the CLI at
// baseURL with bucket "docs". Returns the temp root.
func setupCLIEnv(t *testing.T, baseURL string) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir+"/config")
	t.Setenv("XDG_DATA_HOME", dir+"/data")
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvBaseURL, baseURL)
	t.Setenv(config.EnvAPIKey, testAPIKey)
	t.Setenv(config.EnvBucket, "docs")

	oldCfg := resolvedCfg
	oldLog := logOutput
	oldTTY := stdoutIsTerminal

	logOutput = io.Discard
	stdoutIsTerminal = func() bool { return false }

	t.Cleanup(func() {
		resolvedCfg = oldCfg
		logOutput = oldLog
		stdoutIsTerminal = oldTTY
	})

	return dir
}

// runCLI executes the root command with args and returns what it wrote to
// stdout. --quiet keeps status lines off the test output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--quiet"}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()

	out, err := runCLI(t, args...)
	require.NoError(t, err, "filestore %s", strings.Join(args, " "))

	return out
}
