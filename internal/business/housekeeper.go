package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/config"
)

// HousekeeperMain starts the house keeping jobs
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	repo, _, closeFn, err := initStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session store: %w", err)
	}
	defer closeFn()

	// Start the housekeeper loop
	c := time.Tick(cfg.Housekeeper.TriggerInterval)
	for {
		removed, err := repo.SweepOrphans(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during session store sweep", "error", err)
		} else if removed > 0 {
			slogctx.Info(ctx, "Swept orphaned session entries", "removed", removed)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
