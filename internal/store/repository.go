package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

type ObjectType string

const (
	objectTypeAuthState   ObjectType = "auth_state"
	objectTypeState       ObjectType = "state"
	objectTypeTokenID     ObjectType = "token_id"
	objectTypeAccessToken ObjectType = "access_token"
	objectTypeIDToken     ObjectType = "id_token"
)

var (
	ErrGetAuthState   = errors.New("getting auth state from store")
	ErrStoreAuthState = errors.New("setting auth state into storage")
	ErrStoreSession   = errors.New("setting session into storage")
	ErrGetState       = errors.New("getting state from store")
	ErrGetTokenID     = errors.New("getting token id by state from store")
	ErrGetAccessToken = errors.New("getting access token from store")
	ErrGetIDToken     = errors.New("getting id token from store")
)

// AuthState is a single in-flight login attempt, keyed by its opaque state
// correlator. It lives for the state TTL whether or not it is consumed.
type AuthState struct {
	State     string `json:"state"`
	ReturnURL string `json:"return_url"`
}

// SessionRecord is the authoritative server-side copy of an authenticated
// session. The browser only ever holds TokenID.
type SessionRecord struct {
	TokenID     string    `json:"token_id"`
	State       string    `json:"state"`
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token"`
	Expiry      time.Time `json:"expiry"`
}

// Repository is the typed session store. It owns the backing key layout:
//
//	oidc_auth_state_{state}      -> AuthState (state TTL)
//	oidc_state_{token_id}        -> state     (session TTL)
//	oidc_token_id_{state}        -> token_id  (session TTL)
//	oidc_access_token_{token_id} -> raw access token (session TTL)
//	oidc_id_token_{token_id}     -> raw id token     (session TTL)
//
// oidc_state_{token_id} is the anchor entry: its presence is what makes a
// session valid, and oidc_token_id_{state} is the reverse mapping the
// legacy backchannel-logout path resolves through.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

func objectKey(t ObjectType, id string) string {
	return fmt.Sprintf("oidc_%s_%s", t, id)
}

func (r *Repository) StoreAuthState(ctx context.Context, state AuthState, ttl time.Duration) error {
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling auth state: %w", err)
	}

	if err := r.kv.Set(ctx, objectKey(objectTypeAuthState, state.State), bytes, ttl); err != nil {
		return errors.Join(ErrStoreAuthState, err)
	}

	return nil
}

// TakeAuthState consumes the auth state for the given state value. The
// read-and-delete is atomic, so a replayed callback with the same state can
// never observe it a second time.
func (r *Repository) TakeAuthState(ctx context.Context, state string) (AuthState, error) {
	bytes, err := r.kv.Take(ctx, objectKey(objectTypeAuthState, state))
	if err != nil {
		return AuthState{}, errors.Join(ErrGetAuthState, err)
	}

	var s AuthState
	if err := json.Unmarshal(bytes, &s); err != nil {
		return AuthState{}, fmt.Errorf("unmarshaling auth state: %w", err)
	}

	return s, nil
}

// StoreSession writes all four session entries sharing the record's TTL.
// On a partial failure the already-written entries are rolled back so a
// half-session is never left behind.
func (r *Repository) StoreSession(ctx context.Context, rec SessionRecord) error {
	ttl := time.Until(rec.Expiry)
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", ErrStoreSession)
	}

	entries := map[string][]byte{
		objectKey(objectTypeState, rec.TokenID):       []byte(rec.State),
		objectKey(objectTypeTokenID, rec.State):       []byte(rec.TokenID),
		objectKey(objectTypeAccessToken, rec.TokenID): []byte(rec.AccessToken),
		objectKey(objectTypeIDToken, rec.TokenID):     []byte(rec.IDToken),
	}

	var errs []error
	for key, value := range entries {
		if err := r.kv.Set(ctx, key, value, ttl); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		if err := r.DeleteSession(ctx, rec.TokenID, rec.State); err != nil {
			slogctx.Error(ctx, "couldn't delete session during rollback", "error", err)
			return err
		}
		return errors.Join(append([]error{ErrStoreSession}, errs...)...)
	}

	return nil
}

// StateForToken returns the state value anchored to the session, which also
// doubles as the session liveness check.
func (r *Repository) StateForToken(ctx context.Context, tokenID string) (string, error) {
	bytes, err := r.kv.Get(ctx, objectKey(objectTypeState, tokenID))
	if err != nil {
		return "", errors.Join(ErrGetState, err)
	}

	return string(bytes), nil
}

// TokenIDByState resolves the reverse mapping used by the legacy
// backchannel-logout correlation path.
func (r *Repository) TokenIDByState(ctx context.Context, state string) (string, error) {
	bytes, err := r.kv.Get(ctx, objectKey(objectTypeTokenID, state))
	if err != nil {
		return "", errors.Join(ErrGetTokenID, err)
	}

	return string(bytes), nil
}

func (r *Repository) AccessTokenForSession(ctx context.Context, tokenID string) (string, error) {
	bytes, err := r.kv.Get(ctx, objectKey(objectTypeAccessToken, tokenID))
	if err != nil {
		return "", errors.Join(ErrGetAccessToken, err)
	}

	return string(bytes), nil
}

func (r *Repository) IDTokenForSession(ctx context.Context, tokenID string) (string, error) {
	bytes, err := r.kv.Get(ctx, objectKey(objectTypeIDToken, tokenID))
	if err != nil {
		return "", errors.Join(ErrGetIDToken, err)
	}

	return string(bytes), nil
}

// DeleteSession removes every entry belonging to the session. Idempotent:
// deleting an already-gone session is a no-op.
func (r *Repository) DeleteSession(ctx context.Context, tokenID, state string) error {
	keys := []string{
		objectKey(objectTypeState, tokenID),
		objectKey(objectTypeAccessToken, tokenID),
		objectKey(objectTypeIDToken, tokenID),
	}
	if state != "" {
		keys = append(keys, objectKey(objectTypeTokenID, state))
	}

	for _, key := range keys {
		if err := r.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting session entry %s: %w", key, err)
		}
	}

	return nil
}

// SweepOrphans deletes token and reverse-mapping entries whose anchor
// oidc_state_{token_id} entry is gone. TTLs converge on the same outcome
// eventually; the sweep tidies leftovers of partial deletes promptly.
func (r *Repository) SweepOrphans(ctx context.Context) (int, error) {
	removed := 0

	for _, t := range []ObjectType{objectTypeAccessToken, objectTypeIDToken} {
		keys, err := r.kv.Keys(ctx, objectKey(t, "*"))
		if err != nil {
			return removed, fmt.Errorf("listing %s keys: %w", t, err)
		}

		prefix := objectKey(t, "")
		for _, key := range keys {
			tokenID := key[len(prefix):]
			if _, err := r.StateForToken(ctx, tokenID); err == nil {
				continue
			}
			if err := r.kv.Delete(ctx, key); err != nil {
				return removed, fmt.Errorf("deleting orphaned entry %s: %w", key, err)
			}
			removed++
		}
	}

	keys, err := r.kv.Keys(ctx, objectKey(objectTypeTokenID, "*"))
	if err != nil {
		return removed, fmt.Errorf("listing reverse mapping keys: %w", err)
	}

	for _, key := range keys {
		tokenID, err := r.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		if _, err := r.StateForToken(ctx, string(tokenID)); err == nil {
			continue
		}
		if err := r.kv.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("deleting orphaned reverse mapping %s: %w", key, err)
		}
		removed++
	}

	return removed, nil
}
