package auth

type TokenResponse = tokenResponse

// TokenIDForSID exposes the sid derivation for testing purposes.
func TokenIDForSID(sid string) string {
	return tokenIDForSID(sid)
}
