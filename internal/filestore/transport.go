package filestore

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds every HTTP call made by a client built without an
// explicit *http.Client.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "filestore-go/0.1"

// newCookieJar returns a jar that honors public-suffix domain rules, so the
// session cookie set by the login endpoint is replayed on later requests.
func newCookieJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New only fails on invalid options; ours are static.
		panic("filestore: creating cookie jar: " + err.Error())
	}

	return jar
}

// prepareHTTPClient returns the client used for all requests. A nil client
// becomes a fresh one with DefaultTimeout. A client without a cookie jar is
// copied and given one; the caller's value is never mutated.
func prepareHTTPClient(hc *http.Client) *http.Client {
	if hc == nil {
		return &http.Client{
			Timeout: DefaultTimeout,
			Jar:     newCookieJar(),
		}
	}

	if hc.Jar != nil {
		return hc
	}

	clone := *hc
	clone.Jar = newCookieJar()

	return &clone
}
