package filestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ReturnsCookieCredential(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "abc", r.PostForm.Get("csrfToken"))
		assert.Equal(t, testAPIKey, r.PostForm.Get("token"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		http.SetCookie(w, &http.Cookie{Name: "other", Value: "ignored", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "xyz", Path: "/"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	assert.False(t, client.Session().IsAuthenticated())

	cred, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz", cred)
	assert.True(t, client.Session().IsAuthenticated())
	assert.Equal(t, "xyz", client.Session().Credential())
}

func TestLogin_CredentialCookieMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background())
	assert.ErrorIs(t, err, ErrCredentialCookieMissing)
	assert.False(t, client.Session().IsAuthenticated())
}

func TestLogin_CSRFFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>login</html>"},
		{"missing field", `{"token":"abc"}`},
		{"null token", `{"csrfToken":null}`},
		{"array", `["abc"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exchanges atomic.Int32

			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
				exchanges.Add(1)
			})

			srv := httptest.NewServer(mux)
			defer srv.Close()

			client := newTestClient(t, srv.URL)

			_, err := client.Login(context.Background())
			assert.ErrorIs(t, err, ErrCSRFFetchFailed)
			assert.Equal(t, int32(0), exchanges.Load())
		})
	}
}

func TestLogin_EmptyCSRFTokenIsForwarded(t *testing.T) {
	var gotCSRF atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"csrfToken":""}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotCSRF.Store(r.PostForm["csrfToken"])
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "tok", Path: "/"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	cred, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", cred)
	assert.Equal(t, []string{""}, gotCSRF.Load())
}

func TestLogin_CSRFTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)

	_, err := client.Login(context.Background())
	assert.ErrorIs(t, err, ErrCSRFFetchFailed)
}

func TestLogin_ExchangeTransportFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)

		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginRequestFailed)
}

func TestLogin_NonSuccessExchangeStillUsesCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "from-redirect", Path: "/"})
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	cred, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-redirect", cred)
}

func TestLogin_CookieScopedBelowRoot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "scoped", Path: "/api"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	cred, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scoped", cred)
}

func TestLogin_ConcurrentCallersShareHandshake(t *testing.T) {
	auth := &fakeAuth{tokens: []string{"tok-1", "tok-2"}}
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		auth.csrfCalls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		auth.loginCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "shared", Path: "/"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	const callers = 5

	var wg sync.WaitGroup

	results := make([]string, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Login(context.Background())
		}(i)
	}

	// Give every goroutine time to join the in-flight handshake.
	require.Eventually(t, func() bool { return auth.csrfCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}

	assert.Equal(t, int32(1), auth.csrfCalls.Load())
	assert.Equal(t, int32(1), auth.loginCalls.Load())
}

func TestSession_Restore(t *testing.T) {
	client := NewClient("http://localhost", "k", nil, nil)

	client.Session().Restore("saved")
	assert.True(t, client.Session().IsAuthenticated())
	assert.Equal(t, "saved", client.Session().Credential())

	client.Session().Restore("")
	assert.False(t, client.Session().IsAuthenticated())
}

func TestLogin_CanceledCallerDoesNotFailOthers(t *testing.T) {
	var csrfCalls atomic.Int32

	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, _ *http.Request) {
		csrfCalls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"csrfToken":"abc"}`))
	})
	mux.HandleFunc("POST /api/auth/callback/credentials", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: CredentialCookie, Value: "shared", Path: "/"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)

	go func() {
		_, err := client.Login(leaderCtx)
		leaderErr <- err
	}()

	require.Eventually(t, func() bool { return csrfCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	followerCred := make(chan string, 1)
	followerErr := make(chan error, 1)

	go func() {
		cred, err := client.Login(context.Background())
		followerCred <- cred
		followerErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrLoginRequestFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting for the handshake")
	}

	close(release)

	require.NoError(t, <-followerErr)
	assert.Equal(t, "shared", <-followerCred)
	assert.Equal(t, int32(1), csrfCalls.Load())
	assert.Equal(t, "shared", client.Session().Credential())
}
