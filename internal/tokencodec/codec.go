// Package tokencodec reads the claims out of a compact JWS token without
// verifying its signature or expiry. The gateway only ever feeds it tokens
// obtained over the TLS-authenticated exchange with the identity provider,
// or uses the result as a store lookup key; it must never back an
// authorization decision on a user-supplied token.
package tokencodec

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeClaims splits the token into header.payload.signature, base64url
// decodes the payload and JSON decodes it. It is total: any malformed input
// (empty string, wrong segment count, bad base64, truncated JSON) yields an
// empty map, never an error.
func DecodeClaims(token string) map[string]any {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return map[string]any{}
	}

	return claims
}

// StringClaim returns the named claim as a string, or "" when absent or not
// a string.
func StringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// BoolClaim returns the named claim as a bool. JSON booleans and the strings
// "true"/"false" are both accepted, since some provider rules stringify
// app-metadata values.
func BoolClaim(claims map[string]any, name string) bool {
	switch v := claims[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// TimeClaim reads the named claim as an epoch-seconds timestamp (the JSON
// number form used by exp, iat and friends). ok is false when the claim is
// absent or not numeric.
func TimeClaim(claims map[string]any, name string) (time.Time, bool) {
	switch v := claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}
