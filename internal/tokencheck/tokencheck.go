// Package tokencheck decodes bearer tokens issued by the identity provider and
// decides whether they are still usable. Signatures are not verified: the
// token was received over TLS straight from the provider, and every API that
// accepts it verifies it again server-side.
package tokencheck

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of ID/access token claims this module reads.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// parser is shared; ParseUnverified never touches its validation options.
var parser = jwt.NewParser()

// Decode returns the token's claims without verifying its signature.
// ok is false if the token is not a structurally valid JWT.
func Decode(token string) (*Claims, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}

	return claims, true
}

// Expiry returns the token's exp claim. ok is false if the token cannot be
// decoded or carries no expiry.
func Expiry(token string) (time.Time, bool) {
	claims, ok := Decode(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// Valid reports whether token decodes, has an exp claim, and expires strictly
// after now. No clock skew is applied.
func Valid(token string, now time.Time) bool {
	exp, ok := Expiry(token)
	if !ok {
		return false
	}

	return exp.After(now)
}

// IsValid is Valid against the wall clock.
func IsValid(token string) bool {
	return Valid(token, time.Now())
}

// Email returns the email claim of an ID token, or "" if the token cannot be
// decoded or has no email.
func Email(token string) string {
	claims, ok := Decode(token)
	if !ok {
		return ""
	}

	return claims.Email
}
