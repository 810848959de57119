package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/bcc-code/auth-gateway/internal/auth"
	"github.com/bcc-code/auth-gateway/internal/config"
	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/store"
	storememory "github.com/bcc-code/auth-gateway/internal/store/memory"
	"github.com/bcc-code/auth-gateway/internal/users"
	usersmock "github.com/bcc-code/auth-gateway/internal/users/mock"
	"github.com/bcc-code/auth-gateway/pkg/gate"
)

const (
	testClientID    = "my-client-id"
	testRedirectURI = "https://www.example.org/auth/callback"
	testLandingURL  = "https://www.example.org/"
)

func newTestManager(t *testing.T, providerURL string, repo *store.Repository, dir *usersmock.Directory) *auth.Manager {
	t.Helper()

	auditServer := StartAuditServer(t)
	t.Cleanup(auditServer.Close)

	auditLogger, err := otlpaudit.NewLogger(&commoncfg.Audit{Endpoint: auditServer.URL})
	require.NoError(t, err)

	resolver := users.NewResolver(dir, users.ResolverConfig{
		CreateMissing: true,
		MemberLogin:   "member",
		YouthLogin:    "youth",
	})

	m, err := auth.NewManager(
		&config.Provider{
			AuthorizationEndpoint: "https://idp.example.org/authorize",
			TokenEndpoint:         providerURL + "/oauth/token",
			UserinfoEndpoint:      providerURL + "/userinfo",
			Audience:              "https://api.example.org",
			Scope:                 "openid email profile church",
			ClaimsNamespace:       testClaimsNamespace,
		},
		&config.Auth{
			ClientID:          commoncfg.SourceRef{Source: "embedded", Value: testClientID},
			ClientSecret:      commoncfg.SourceRef{Source: "embedded", Value: "my-client-secret"},
			RedirectURI:       testRedirectURI,
			DefaultLandingURL: testLandingURL,
			StateTTL:          time.Minute,
		},
		repo,
		resolver,
		auditLogger,
		http.DefaultClient,
	)
	require.NoError(t, err)

	return m
}

func TestManager_MakeAuthURI(t *testing.T) {
	// Arrange
	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, "https://idp.example.org", repo, usersmock.NewInMemDirectory())

	// Act
	got, err := m.MakeAuthURI(t.Context(), "https://www.example.org/news")

	// Assert
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err, "parsing location")

	assert.Equal(t, "idp.example.org", u.Hostname())
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "https://api.example.org", q.Get("audience"))

	// Check the scopes on the URL string to ensure we don't have
	// something like scope=openid&scope=email... but one space-joined value.
	scopeValues := url.Values{"scope": {"openid email profile church"}}
	assert.Contains(t, got, scopeValues.Encode())

	state := q.Get("state")
	assert.NotEmpty(t, state, "State is zero")

	// The state is stored and consumable exactly once.
	authState, err := repo.TakeAuthState(t.Context(), state)
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.org/news", authState.ReturnURL)

	// A second login attempt gets its own state.
	again, err := m.MakeAuthURI(t.Context(), "")
	require.NoError(t, err)
	u2, err := url.Parse(again)
	require.NoError(t, err)
	assert.NotEqual(t, state, u2.Query().Get("state"))
}

func TestManager_FinalizeLogin(t *testing.T) {
	const (
		state = "test-state"
		sid   = "provider-session-1"
	)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		name        string
		claims      map[string]any
		serverFail  bool
		storedState string
		returnURL   string

		wantErr       bool
		wantErrIs     error
		wantLevel     gate.Level
		wantReturnURL string
		wantTokenID   string
	}{
		{
			name:          "Success",
			claims:        defaultTestClaims(sid, expiry),
			storedState:   state,
			returnURL:     "https://www.example.org/members-only",
			wantLevel:     gate.LevelMember,
			wantReturnURL: "https://www.example.org/members-only",
			wantTokenID:   auth.TokenIDForSID(sid),
		},
		{
			name:          "Empty return URL falls back to the landing URL",
			claims:        defaultTestClaims(sid, expiry),
			storedState:   state,
			wantLevel:     gate.LevelMember,
			wantReturnURL: testLandingURL,
			wantTokenID:   auth.TokenIDForSID(sid),
		},
		{
			name:        "Unknown state",
			claims:      defaultTestClaims(sid, expiry),
			storedState: "some-other-state",
			wantErr:     true,
			wantErrIs:   serviceerr.ErrStateExpired,
		},
		{
			name:        "Token exchange rejected",
			claims:      defaultTestClaims(sid, expiry),
			serverFail:  true,
			storedState: state,
			wantErr:     true,
		},
		{
			name: "Missing expiry claim",
			claims: func() map[string]any {
				c := defaultTestClaims(sid, expiry)
				delete(c, "exp")
				return c
			}(),
			storedState: state,
			wantErr:     true,
		},
		{
			name: "No membership",
			claims: func() map[string]any {
				c := defaultTestClaims(sid, expiry)
				c[testClaimsNamespace+"hasMembership"] = false
				c[testClaimsNamespace+"personId"] = "person-77"
				c["email"] = "visitor@example.org"
				return c
			}(),
			storedState: state,
			wantErr:     true,
			wantErrIs:   serviceerr.ErrNotPermitted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			idToken := mintIDToken(t, tc.claims)
			providerServer := StartProviderServer(t, idToken, tc.serverFail)
			defer providerServer.Close()

			repo := store.NewRepository(storememory.New())
			m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

			require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{
				State:     tc.storedState,
				ReturnURL: tc.returnURL,
			}, time.Minute))

			// Act
			result, err := m.FinalizeLogin(t.Context(), state, "auth-code")

			// Assert
			if tc.wantErr {
				require.Error(t, err)
				if tc.wantErrIs != nil {
					assert.ErrorIs(t, err, tc.wantErrIs)
				}
				assert.False(t, m.SessionValid(t.Context(), auth.TokenIDForSID(sid)), "failed login must not leave a session behind")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantTokenID, result.TokenID)
			assert.Equal(t, tc.wantReturnURL, result.ReturnURL)
			assert.Equal(t, tc.wantLevel, result.Level)
			assert.WithinDuration(t, expiry, result.Expiry, time.Second)
			assert.Equal(t, "person-42", result.User.PersonUID)

			assert.True(t, m.SessionValid(t.Context(), result.TokenID))

			accessToken, err := repo.AccessTokenForSession(t.Context(), result.TokenID)
			require.NoError(t, err)
			assert.Equal(t, "access-token", accessToken)

			storedIDToken, err := repo.IDTokenForSession(t.Context(), result.TokenID)
			require.NoError(t, err)
			assert.Equal(t, idToken, storedIDToken)

			tokenID, err := repo.TokenIDByState(t.Context(), state)
			require.NoError(t, err)
			assert.Equal(t, result.TokenID, tokenID)

			// A replayed callback with the same state must not mint
			// another session.
			_, err = m.FinalizeLogin(t.Context(), state, "auth-code")
			assert.ErrorIs(t, err, serviceerr.ErrStateExpired)
		})
	}
}

func TestManager_FinalizeLoginProviderOutage(t *testing.T) {
	// Arrange
	providerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>Internal Server Error</html>"))
	}))
	defer providerServer.Close()

	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

	require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{State: "test-state"}, time.Minute))

	// Act
	_, err := m.FinalizeLogin(t.Context(), "test-state", "auth-code")

	// Assert
	require.Error(t, err)
	assert.NotErrorIs(t, err, serviceerr.ErrStateExpired)

	// A provider outage must not leave partial session state behind.
	_, err = repo.TokenIDByState(t.Context(), "test-state")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	assert.False(t, m.SessionValid(t.Context(), auth.TokenIDForSID("provider-session-1")))
}

func TestManager_FinalizeLoginWithoutSID(t *testing.T) {
	// Arrange
	claims := defaultTestClaims("", time.Now().Add(time.Hour))
	delete(claims, "sid")

	providerServer := StartProviderServer(t, mintIDToken(t, claims), false)
	defer providerServer.Close()

	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

	require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{State: "test-state"}, time.Minute))

	// Act
	result, err := m.FinalizeLogin(t.Context(), "test-state", "auth-code")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, result.TokenID)
	assert.NotEqual(t, auth.TokenIDForSID(""), result.TokenID, "token id must not be derived from an absent sid")
	assert.True(t, m.SessionValid(t.Context(), result.TokenID))
}

func TestManager_Logout(t *testing.T) {
	// Arrange
	providerServer := StartProviderServer(t, mintIDToken(t, defaultTestClaims("sid-1", time.Now().Add(time.Hour))), false)
	defer providerServer.Close()

	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

	require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{State: "test-state"}, time.Minute))
	result, err := m.FinalizeLogin(t.Context(), "test-state", "auth-code")
	require.NoError(t, err)
	require.True(t, m.SessionValid(t.Context(), result.TokenID))

	// Act
	require.NoError(t, m.Logout(t.Context(), result.TokenID))

	// Assert
	assert.False(t, m.SessionValid(t.Context(), result.TokenID))

	_, err = repo.AccessTokenForSession(t.Context(), result.TokenID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	_, err = repo.TokenIDByState(t.Context(), "test-state")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	// Logging out twice, or with no session at all, is a no-op.
	assert.NoError(t, m.Logout(t.Context(), result.TokenID))
	assert.NoError(t, m.Logout(t.Context(), ""))
}

func TestManager_GateAccessors(t *testing.T) {
	// Arrange
	providerServer := StartProviderServer(t, mintIDToken(t, defaultTestClaims("sid-2", time.Now().Add(time.Hour))), false)
	defer providerServer.Close()

	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

	require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{State: "test-state"}, time.Minute))
	result, err := m.FinalizeLogin(t.Context(), "test-state", "auth-code")
	require.NoError(t, err)

	// Act + Assert
	assert.Equal(t, gate.LevelMember, m.CurrentLevel(t.Context(), result.TokenID))

	personUID, ok := m.CurrentPersonUID(t.Context(), result.TokenID)
	assert.True(t, ok)
	assert.Equal(t, "person-42", personUID)

	// The anonymous case is well-defined, never an error.
	assert.Equal(t, gate.LevelAnonymous, m.CurrentLevel(t.Context(), ""))
	assert.Equal(t, gate.LevelAnonymous, m.CurrentLevel(t.Context(), "unknown-token-id"))

	_, ok = m.CurrentPersonUID(t.Context(), "")
	assert.False(t, ok)
	_, ok = m.CurrentPersonUID(t.Context(), "unknown-token-id")
	assert.False(t, ok)
}

func TestManager_Userinfo(t *testing.T) {
	// Arrange
	providerServer := StartProviderServer(t, mintIDToken(t, defaultTestClaims("sid-3", time.Now().Add(time.Hour))), false)
	defer providerServer.Close()

	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, providerServer.URL, repo, usersmock.NewInMemDirectory())

	require.NoError(t, repo.StoreAuthState(t.Context(), store.AuthState{State: "test-state"}, time.Minute))
	result, err := m.FinalizeLogin(t.Context(), "test-state", "auth-code")
	require.NoError(t, err)

	// Act
	info, err := m.Userinfo(t.Context(), result.TokenID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "kari@example.org", info["email"])
	assert.Equal(t, "Kari Nordmann", info["name"])

	// Without a session the stored access token is unreachable.
	_, err = m.Userinfo(t.Context(), "")
	assert.ErrorIs(t, err, serviceerr.ErrUnauthorized)
	_, err = m.Userinfo(t.Context(), "unknown-token-id")
	assert.ErrorIs(t, err, serviceerr.ErrUnauthorized)

	// A logged-out session no longer reaches the provider either.
	require.NoError(t, m.Logout(t.Context(), result.TokenID))
	_, err = m.Userinfo(t.Context(), result.TokenID)
	assert.ErrorIs(t, err, serviceerr.ErrUnauthorized)
}

func TestManager_MakeLogoutURI(t *testing.T) {
	// Arrange
	repo := store.NewRepository(storememory.New())
	m := newTestManager(t, "https://idp.example.org", repo, usersmock.NewInMemDirectory())

	// Assert: no end-session endpoint configured falls back to the landing URL.
	assert.Equal(t, testLandingURL, m.MakeLogoutURI())

	// With an end-session endpoint the provider session is ended too.
	withEndSession, err := auth.NewManager(
		&config.Provider{
			AuthorizationEndpoint: "https://idp.example.org/authorize",
			TokenEndpoint:         "https://idp.example.org/oauth/token",
			EndSessionEndpoint:    "https://idp.example.org/oidc/logout",
		},
		&config.Auth{
			ClientID:          commoncfg.SourceRef{Source: "embedded", Value: testClientID},
			ClientSecret:      commoncfg.SourceRef{Source: "embedded", Value: "my-client-secret"},
			DefaultLandingURL: testLandingURL,
		},
		repo,
		users.NewResolver(usersmock.NewInMemDirectory(), users.ResolverConfig{}),
		nil,
		http.DefaultClient,
	)
	require.NoError(t, err)

	got, err := url.Parse(withEndSession.MakeLogoutURI())
	require.NoError(t, err)
	assert.Equal(t, "/oidc/logout", got.Path)
	assert.Equal(t, testClientID, got.Query().Get("client_id"))
	assert.Equal(t, testLandingURL, got.Query().Get("post_logout_redirect_uri"))
}
