package main

import (
	"errors"

	"github.com/toosmart/filestore-go/internal/filestore"
)

// errorHints maps client sentinels to the advice shown in front of the raw
// error. The first match wins, so more specific sentinels come first.
var errorHints = []struct {
	target error
	hint   string
}{
	{filestore.ErrNotAuthenticated, "not logged in, run 'filestore login' first"},
	{filestore.ErrNoBucketSelected, "no bucket selected, set server.bucket or pass --bucket"},
	{filestore.ErrCredentialCookieMissing, "login failed, the server did not issue a credential (check server.api_key)"},
	{filestore.ErrCSRFFetchFailed, "login failed, could not start the handshake"},
	{filestore.ErrLoginRequestFailed, "login failed"},
	{filestore.ErrUnauthorized, "the server rejected the credential"},
	{filestore.ErrForbidden, "access denied"},
	{filestore.ErrNotFound, "not found"},
	{filestore.ErrPayloadTooLarge, "upload too large for the server"},
	{filestore.ErrThrottled, "the server is rate limiting requests, try again later"},
	{filestore.ErrServerError, "the server failed to handle the request"},
	{filestore.ErrTransport, "cannot reach the server"},
}

// formatError turns an error into the single line printed by main.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	for _, h := range errorHints {
		if errors.Is(err, h.target) {
			return h.hint + ": " + err.Error()
		}
	}

	return err.Error()
}
