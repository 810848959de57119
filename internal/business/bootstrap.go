package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/config"
	"github.com/bcc-code/auth-gateway/internal/lock"
	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/users"
)

const bootstrapLockTTL = time.Minute

// ensureSharedAccounts creates the shared fallback accounts the resolver
// maps member logins onto. The try-lock keeps concurrently starting replicas
// from racing on the insert; losing the race means another replica is
// already doing the work.
func ensureSharedAccounts(ctx context.Context, locker lock.Locker, directory users.Directory, cfg *config.Users) error {
	acquired, release, err := locker.TryAcquire(ctx, "bootstrap_shared_accounts", bootstrapLockTTL)
	if err != nil {
		return fmt.Errorf("acquiring bootstrap lock: %w", err)
	}
	if !acquired {
		slogctx.Info(ctx, "Another replica is bootstrapping the shared accounts; skipping")
		return nil
	}
	defer release()

	for _, login := range []string{cfg.MemberLogin, cfg.YouthLogin} {
		if login == "" {
			continue
		}

		_, err := directory.FindByLogin(ctx, login)
		if err == nil {
			continue
		}
		if !errors.Is(err, serviceerr.ErrNotFound) {
			return fmt.Errorf("looking up shared account %q: %w", login, err)
		}

		if _, err := directory.Create(ctx, users.User{Login: login, Shared: true}); err != nil {
			// Conflict means a replica without the lock got there first.
			if errors.Is(err, serviceerr.ErrConflict) {
				continue
			}

			return fmt.Errorf("creating shared account %q: %w", login, err)
		}

		slogctx.Info(ctx, "Created shared account", "login", login)
	}

	return nil
}
