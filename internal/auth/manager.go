package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/config"
	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/store"
	"github.com/bcc-code/auth-gateway/internal/tokencodec"
	"github.com/bcc-code/auth-gateway/internal/users"
	"github.com/bcc-code/auth-gateway/pkg/gate"
)

const birthdateLayout = "2006-01-02"

type Manager struct {
	store        *store.Repository
	users        *users.Resolver
	audit        *otlpaudit.AuditLogger
	secureClient *http.Client

	authorizationEndpoint *url.URL
	tokenEndpoint         string
	userinfoEndpoint      string
	endSessionEndpoint    string

	audience        string
	scope           string
	claimsNamespace string

	clientID     string
	clientSecret string

	redirectURI       string
	defaultLandingURL string
	stateTTL          time.Duration
}

var _ = gate.Gate(&Manager{})

func NewManager(
	provider *config.Provider,
	cfg *config.Auth,
	sessions *store.Repository,
	resolver *users.Resolver,
	auditLogger *otlpaudit.AuditLogger,
	httpClient *http.Client,
) (*Manager, error) {
	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("loading client id from source ref: %w", err)
	}

	clientSecret, err := commoncfg.LoadValueFromSourceRef(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("loading client secret from source ref: %w", err)
	}

	authorizationEndpoint, err := url.Parse(provider.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing authorization endpoint URL: %w", err)
	}

	return &Manager{
		store:        sessions,
		users:        resolver,
		audit:        auditLogger,
		secureClient: httpClient,

		authorizationEndpoint: authorizationEndpoint,
		tokenEndpoint:         provider.TokenEndpoint,
		userinfoEndpoint:      provider.UserinfoEndpoint,
		endSessionEndpoint:    provider.EndSessionEndpoint,

		audience:        provider.Audience,
		scope:           provider.Scope,
		claimsNamespace: provider.ClaimsNamespace,

		clientID:     string(clientID),
		clientSecret: string(clientSecret),

		redirectURI:       cfg.RedirectURI,
		defaultLandingURL: cfg.DefaultLandingURL,
		stateTTL:          cfg.StateTTL,
	}, nil
}

// MakeAuthURI stores a fresh single-use state and returns the provider
// authorization URI to redirect the visitor to.
func (m *Manager) MakeAuthURI(ctx context.Context, returnURL string) (string, error) {
	state := newState()

	if err := m.store.StoreAuthState(ctx, store.AuthState{
		State:     state,
		ReturnURL: returnURL,
	}, m.stateTTL); err != nil {
		return "", fmt.Errorf("storing auth state: %w", err)
	}

	u := *m.authorizationEndpoint
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("scope", m.scope)
	q.Set("client_id", m.clientID)
	q.Set("state", state)
	q.Set("redirect_uri", m.redirectURI)
	if m.audience != "" {
		q.Set("audience", m.audience)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FinalizeLogin consumes the state, exchanges the code for tokens, resolves
// the local user and stores the session.
func (m *Manager) FinalizeLogin(ctx context.Context, state, code string) (LoginResult, error) {
	correlationID := uuid.NewString()
	metadata, err := otlpaudit.NewEventMetadata("auth gateway", m.clientID, correlationID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("creating audit metadata: %w", err)
	}

	authState, err := m.store.TakeAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			m.sendUserLoginFailureAudit(ctx, metadata, state, "state expired or already used")
			return LoginResult{}, serviceerr.ErrStateExpired
		}

		return LoginResult{}, fmt.Errorf("taking auth state: %w", err)
	}

	tokens, err := m.exchangeCode(ctx, code)
	if err != nil {
		m.sendUserLoginFailureAudit(ctx, metadata, state, "failed to exchange code for tokens")
		return LoginResult{}, fmt.Errorf("exchanging code for tokens: %w", err)
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")

	claims := m.trustedClaims(tokens)
	if claims.Expiry.IsZero() || !claims.Expiry.After(time.Now()) {
		m.sendUserLoginFailureAudit(ctx, metadata, state, "id token missing a usable expiry")
		return LoginResult{}, &serviceerr.Error{Err: serviceerr.CodeInvalidGrant, Description: "id token missing a usable expiry"}
	}

	user, err := m.users.Resolve(ctx, claims.Profile())
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotPermitted) {
			m.sendUserLoginFailureAudit(ctx, metadata, state, "visitor has no membership")
			return LoginResult{}, serviceerr.ErrNotPermitted
		}

		m.sendUserLoginFailureAudit(ctx, metadata, state, "failed to resolve local user")
		return LoginResult{}, fmt.Errorf("resolving local user: %w", err)
	}

	tokenID := newTokenID()
	if claims.SessionID != "" {
		tokenID = tokenIDForSID(claims.SessionID)
	}

	if err := m.store.StoreSession(ctx, store.SessionRecord{
		TokenID:     tokenID,
		State:       state,
		AccessToken: tokens.AccessToken,
		IDToken:     tokens.IDToken,
		Expiry:      claims.Expiry,
	}); err != nil {
		m.sendUserLoginFailureAudit(ctx, metadata, state, "failed to store session")
		return LoginResult{}, fmt.Errorf("storing session: %w", err)
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, user.ID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, user.Login)
	if err != nil {
		slogctx.Error(ctx, "creating audit log for user login success", "error", err)
	} else if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login success", "error", err)
	}

	returnURL := authState.ReturnURL
	if returnURL == "" {
		returnURL = m.defaultLandingURL
	}

	level := gate.LevelSubscriber
	if claims.HasMembership {
		level = gate.LevelMember
	}

	return LoginResult{
		TokenID:   tokenID,
		ReturnURL: returnURL,
		Expiry:    claims.Expiry,
		User:      user,
		Level:     level,
	}, nil
}

// Logout removes every store entry of the session. Unknown token ids are a
// no-op so repeated logouts stay idempotent.
func (m *Manager) Logout(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}

	state, err := m.store.StateForToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("loading state for token: %w", err)
	}

	if err := m.store.DeleteSession(ctx, tokenID, state); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// MakeLogoutURI returns the URL the browser is sent to after a local logout.
// With an end-session endpoint configured the provider session is terminated
// too (RP-initiated logout), otherwise this is just the landing URL.
func (m *Manager) MakeLogoutURI() string {
	if m.endSessionEndpoint == "" {
		return m.defaultLandingURL
	}

	query := url.Values{}
	query.Set("client_id", m.clientID)
	query.Set("post_logout_redirect_uri", m.defaultLandingURL)

	return m.endSessionEndpoint + "?" + query.Encode()
}

// Userinfo fetches the provider userinfo document with the access token
// stored for the session.
func (m *Manager) Userinfo(ctx context.Context, tokenID string) (map[string]any, error) {
	if m.userinfoEndpoint == "" {
		return nil, serviceerr.ErrNotFound
	}

	if tokenID == "" {
		return nil, serviceerr.ErrUnauthorized
	}

	accessToken, err := m.store.AccessTokenForSession(ctx, tokenID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return nil, serviceerr.ErrUnauthorized
		}

		return nil, fmt.Errorf("loading access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating the userinfo request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.secureClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &serviceerr.Error{
			Err:         serviceerr.CodeServerError,
			Description: fmt.Sprintf("userinfo endpoint answered %d", resp.StatusCode),
		}
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding the userinfo response: %w", err)
	}

	return info, nil
}

// SessionValid reports whether the session's anchor entry still exists. A
// backchannel logout removes the anchor, so this is also how the gateway
// notices remote invalidation.
func (m *Manager) SessionValid(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}

	_, err := m.store.StateForToken(ctx, tokenID)

	return err == nil
}

// CurrentLevel returns the access level of the session, LevelAnonymous when
// no valid session exists.
func (m *Manager) CurrentLevel(ctx context.Context, tokenID string) gate.Level {
	claims, ok := m.sessionClaims(ctx, tokenID)
	if !ok {
		return gate.LevelAnonymous
	}

	if tokencodec.BoolClaim(claims, m.claimsNamespace+"hasMembership") {
		return gate.LevelMember
	}

	return gate.LevelSubscriber
}

// CurrentPersonUID returns the person identifier of the session, false when
// no valid session exists or the provider asserted none.
func (m *Manager) CurrentPersonUID(ctx context.Context, tokenID string) (string, bool) {
	claims, ok := m.sessionClaims(ctx, tokenID)
	if !ok {
		return "", false
	}

	personUID := tokencodec.StringClaim(claims, m.claimsNamespace+"personId")

	return personUID, personUID != ""
}

func (m *Manager) sessionClaims(ctx context.Context, tokenID string) (map[string]any, bool) {
	if tokenID == "" {
		return nil, false
	}

	idToken, err := m.store.IDTokenForSession(ctx, tokenID)
	if err != nil {
		return nil, false
	}

	return tokencodec.DecodeClaims(idToken), true
}

// trustedClaims distills the identity claims out of a token response. Taking
// the whole response keeps the TrustedClaims constructor reachable only from
// the code-exchange path.
func (m *Manager) trustedClaims(tokens tokenResponse) TrustedClaims {
	claims := tokencodec.DecodeClaims(tokens.IDToken)

	trusted := TrustedClaims{
		PersonUID:     tokencodec.StringClaim(claims, m.claimsNamespace+"personId"),
		Email:         tokencodec.StringClaim(claims, "email"),
		Name:          tokencodec.StringClaim(claims, "name"),
		ChurchName:    tokencodec.StringClaim(claims, m.claimsNamespace+"churchName"),
		HasMembership: tokencodec.BoolClaim(claims, m.claimsNamespace+"hasMembership"),
		SessionID:     tokencodec.StringClaim(claims, "sid"),
	}

	if birthdate := tokencodec.StringClaim(claims, m.claimsNamespace+"birthdate"); birthdate != "" {
		if parsed, err := time.Parse(birthdateLayout, birthdate); err == nil {
			trusted.Birthdate = parsed
		}
	}

	if expiry, ok := tokencodec.TimeClaim(claims, "exp"); ok {
		trusted.Expiry = expiry
	}

	return trusted
}

func (m *Manager) exchangeCode(ctx context.Context, code string) (tokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", m.redirectURI)
	data.Set("client_id", m.clientID)
	data.Set("client_secret", m.clientSecret)
	data.Set("scope", m.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.secureClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return tokenResponse{}, fmt.Errorf("decoding response with status %d: %w", resp.StatusCode, err)
	}

	if tokens.Error != "" {
		return tokenResponse{}, &serviceerr.Error{Err: serviceerr.Code(tokens.Error), Description: tokens.ErrorDescription}
	}

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("token exchange failed with status: %d", resp.StatusCode)
	}

	if tokens.IDToken == "" {
		return tokenResponse{}, &serviceerr.Error{Err: serviceerr.CodeInvalidGrant, Description: "token response carries no id token"}
	}

	return tokens, nil
}

// sendUserLoginFailureAudit creates the user-login-failure audit event and sends it.
// The function logs any errors encountered while creating or sending the event but
// does not propagate them to the caller.
func (m *Manager) sendUserLoginFailureAudit(ctx context.Context, metadata otlpaudit.EventMetadata, objectID, reason string) {
	if m.audit == nil {
		slogctx.Warn(ctx, "audit logger is nil; skipping user login failure event")
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, objectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), objectID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login failure", "error", err)
	}
	slogctx.Debug(ctx, "sent audit log for user login failure")
}
