package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/bcc-code/auth-gateway/internal/auth"
)

const testClaimsNamespace = "https://login.example.org/claims/"

func mintIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return token
}

func defaultTestClaims(sid string, expiry time.Time) map[string]any {
	return map[string]any{
		"sub":   "auth0|person-42",
		"sid":   sid,
		"email": "kari@example.org",
		"name":  "Kari Nordmann",
		"exp":   expiry.Unix(),
		"iat":   time.Now().Unix(),

		testClaimsNamespace + "personId":      "person-42",
		testClaimsNamespace + "churchName":    "Oslo",
		testClaimsNamespace + "hasMembership": true,
		testClaimsNamespace + "birthdate":     "1990-04-01",
	}
}

func StartProviderServer(t *testing.T, idToken string, fail bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Invalid authorization code"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(auth.TokenResponse{
			AccessToken: "access-token",
			IDToken:     idToken,
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		})
	})

	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "invalid_token"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "auth0|person-42",
			"email": "kari@example.org",
			"name":  "Kari Nordmann",
		})
	})

	return httptest.NewServer(mux)
}

func StartAuditServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
}
