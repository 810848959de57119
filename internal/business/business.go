package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/auth"
	"github.com/bcc-code/auth-gateway/internal/business/server"
	"github.com/bcc-code/auth-gateway/internal/config"
	"github.com/bcc-code/auth-gateway/internal/lock"
	"github.com/bcc-code/auth-gateway/internal/store"
	storememory "github.com/bcc-code/auth-gateway/internal/store/memory"
	"github.com/bcc-code/auth-gateway/internal/store/sealed"
	storevalkey "github.com/bcc-code/auth-gateway/internal/store/valkey"
	"github.com/bcc-code/auth-gateway/internal/users"
	userssql "github.com/bcc-code/auth-gateway/internal/users/sql"
)

// Main starts the public authentication API server.
func Main(ctx context.Context, cfg *config.Config) error {
	gw, closeFn, err := initAuthenticator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the authenticator: %w", err)
	}
	defer closeFn()

	if err := ensureSharedAccounts(ctx, gw.locker, gw.directory, &cfg.Users); err != nil {
		return fmt.Errorf("bootstrapping shared accounts: %w", err)
	}

	return server.StartHTTPServer(ctx, cfg, gw.manager)
}

// authenticator bundles the wired components so jobs and servers can share
// the same initialisation.
type authenticator struct {
	manager   *auth.Manager
	store     *store.Repository
	directory users.Directory
	locker    lock.Locker
}

func initAuthenticator(ctx context.Context, cfg *config.Config) (_ *authenticator, closeFn func(), _ error) {
	repo, locker, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising the session store: %w", err)
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("making dsn from config: %w", err)
	}

	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	if err := userssql.EnsureSchema(ctx, db); err != nil {
		db.Close()
		closeStore()
		return nil, nil, fmt.Errorf("ensuring users schema: %w", err)
	}

	directory := userssql.NewDirectory(db)
	resolver := users.NewResolver(directory, users.ResolverConfig{
		CreateMissing:   cfg.Users.CreateMissing,
		LocalChurchName: cfg.Users.LocalChurchName,
		YouthAgeLimit:   cfg.Users.YouthAgeLimit,
		MemberLogin:     cfg.Users.MemberLogin,
		YouthLogin:      cfg.Users.YouthLogin,
	})

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		db.Close()
		closeStore()
		return nil, nil, fmt.Errorf("creating audit logger: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Auth.ExchangeTimeout}

	manager, err := auth.NewManager(&cfg.Provider, &cfg.Auth, repo, resolver, auditLogger, httpClient)
	if err != nil {
		db.Close()
		closeStore()
		return nil, nil, fmt.Errorf("creating auth manager: %w", err)
	}

	return &authenticator{
			manager:   manager,
			store:     repo,
			directory: directory,
			locker:    locker,
		}, func() {
			db.Close()
			closeStore()
		}, nil
}

// initStore wires the TTL key/value backend: Valkey when configured, an
// in-process store otherwise, optionally sealed with the encryption key.
func initStore(ctx context.Context, cfg *config.Config) (*store.Repository, lock.Locker, func(), error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading valkey host: %w", err)
	}

	var kv store.KV
	var locker lock.Locker
	closeFn := func() {}

	if len(valkeyHost) == 0 {
		// No Valkey configured: single-replica development setup.
		slogctx.Warn(ctx, "No Valkey host configured; using the in-process session store")
		kv = storememory.New()
		locker = lock.NewMemoryLocker()
	} else {
		valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading valkey username: %w", err)
		}

		valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading valkey password: %w", err)
		}

		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{string(valkeyHost)},
			Username:    string(valkeyUsername),
			Password:    string(valkeyPassword),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		kv = storevalkey.New(valkeyClient, cfg.ValKey.Prefix)
		locker = lock.NewValkeyLocker(valkeyClient, cfg.ValKey.Prefix)
		closeFn = valkeyClient.Close
	}

	if cfg.Auth.EncryptionKey.Source != "" {
		secret, err := commoncfg.LoadValueFromSourceRef(cfg.Auth.EncryptionKey)
		if err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("loading store encryption key: %w", err)
		}

		kv, err = sealed.New(kv, secret)
		if err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("sealing the session store: %w", err)
		}

		slogctx.Info(ctx, "Session store encryption enabled")
	}

	return store.NewRepository(kv), locker, closeFn, nil
}
