package filestore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims is what can be read from a bearer credential without the
// server's signing key.
type CredentialClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectCredential decodes the JWT claims of a credential without verifying
// its signature. The server stays the authority on validity; this only feeds
// display and the local decision whether a saved credential is worth reusing.
// ok is false when the credential is not a parseable JWT.
func InspectCredential(credential string) (CredentialClaims, bool) {
	var claims jwt.RegisteredClaims

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(credential, &claims); err != nil {
		return CredentialClaims{}, false
	}

	out := CredentialClaims{Subject: claims.Subject}

	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}

	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, true
}
