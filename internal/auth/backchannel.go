package auth

import (
	"context"
	"errors"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/tokencodec"
)

// BackchannelLogout terminates the session named by a provider-initiated
// logout request. The logout token is only a lookup hint; its sid claim is
// hashed into the token id, so an attacker-minted token can at worst log a
// session out, never authenticate one. The legacy path correlates through
// the state value instead. Lookup misses are no-ops.
func (m *Manager) BackchannelLogout(ctx context.Context, logoutToken, state string) error {
	tokenID, err := m.resolveTokenID(ctx, logoutToken, state)
	if err != nil {
		return err
	}
	if tokenID == "" {
		slogctx.Debug(ctx, "Backchannel logout matched no session")
		return nil
	}

	sessionState, err := m.store.StateForToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			// Anchor already gone; the reverse mapping may still linger.
			sessionState = state
		} else {
			return fmt.Errorf("loading state for token: %w", err)
		}
	}

	if err := m.store.DeleteSession(ctx, tokenID, sessionState); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	slogctx.Info(ctx, "Terminated session via backchannel logout")

	return nil
}

func (m *Manager) resolveTokenID(ctx context.Context, logoutToken, state string) (string, error) {
	if logoutToken != "" {
		if sid := tokencodec.StringClaim(tokencodec.DecodeClaims(logoutToken), "sid"); sid != "" {
			return tokenIDForSID(sid), nil
		}
	}

	if state == "" {
		return "", nil
	}

	tokenID, err := m.store.TokenIDByState(ctx, state)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("resolving token id by state: %w", err)
	}

	return tokenID, nil
}
