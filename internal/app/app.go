// Package app wires configuration, storage and the access core into a Manager shared
// by the server and the command line client.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orgscope/internal/access"
	"orgscope/internal/audit"
	auditrepo "orgscope/internal/audit/repository"
	"orgscope/internal/config"
	"orgscope/internal/db"
	"orgscope/internal/guard"
	membershiprepo "orgscope/internal/membership/repository"
	orgrepo "orgscope/internal/organization/repository"
	"orgscope/internal/policy/engine"
	policyrepo "orgscope/internal/policy/repository"
	rolerepo "orgscope/internal/role/repository"
	"orgscope/internal/security"
	"orgscope/internal/selection"
	"orgscope/internal/server/interceptors"
	telemetry "orgscope/internal/telemetry/otel"
	userrepo "orgscope/internal/user/repository"
)

// Options adjust what New builds.
type Options struct {
	// Telemetry creates OTLP providers and installs them globally.
	Telemetry bool
	// StoreKind overrides the configured selection store.
	StoreKind selection.Kind
	// Observers are added to every guard chain after the decision logger.
	Observers []guard.Observer
}

// App holds the long-lived dependencies of a process.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	DB         *sql.DB
	Redis      *redis.Client
	Tokens     *security.TokenProvider
	Roles      *rolerepo.CachedRepository
	Restrictor *engine.OPARestrictor
	Audit      *audit.Logger
	Store      selection.Store
	Manager    *access.Manager
	Telemetry  *telemetry.Providers

	closers []func(context.Context) error
}

// New builds an App. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}
	if err := a.init(ctx, opts); err != nil {
		if cerr := a.Close(context.Background()); cerr != nil {
			log.Warn("app: close after failed setup", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) (err error) {
	cfg, log := a.Config, a.Log

	var observers []guard.Observer
	if opts.Telemetry {
		a.Telemetry, err = telemetry.NewProviders(ctx, telemetry.Config{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: cfg.OTELServiceName,
			Insecure:    cfg.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		a.closers = append(a.closers, a.Telemetry.Shutdown)
		a.Telemetry.SetGlobal()
		observers = append(observers, telemetry.NewDecisionLogger(a.Telemetry.LoggerProvider))
	}
	observers = append(observers, opts.Observers...)

	a.DB, err = db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolOptions)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.DB.Close() })

	signer, pub, err := security.LoadKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("jwt keys: %w", err)
	}
	a.Tokens = security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	kind := opts.StoreKind
	if kind == "" {
		kind = cfg.SelectionKind()
	}
	if a.Store, err = a.openStore(ctx, kind); err != nil {
		return fmt.Errorf("selection store: %w", err)
	}

	scope := cfg.Scope()
	a.Roles = rolerepo.NewCachedRepository(rolerepo.NewPostgresRepository(a.DB, scope, log), scope, cfg.RoleCacheSize, cfg.RoleCacheTTL)
	a.Restrictor = engine.NewOPARestrictor(policyrepo.NewPostgresRepository(a.DB), log, engine.WithCacheSize(cfg.PolicyCacheSize))
	a.Audit = audit.NewLogger(auditrepo.NewPostgresRepository(a.DB), interceptors.ClientIP, log)

	orgs := orgrepo.NewPostgresRepository(a.DB)
	a.Manager = access.NewManager(access.Deps{
		Memberships: membershiprepo.NewPostgresRepository(a.DB),
		Orgs:        orgs,
		Roles:       a.Roles,
		Restrictor:  a.Restrictor,
		Tokens:      a.Tokens,
		Users:       userrepo.NewPostgresRepository(a.DB),
		Store:       a.Store,
		Audit:       a.Audit,
		Logger:      log,
	}, access.Config{
		FetchTimeout:   cfg.FetchTimeout,
		RoleScope:      scope,
		SwitchOnCreate: cfg.SwitchOnCreate,
		LoginPath:      cfg.LoginPath,
		OrgCreatePath:  cfg.OrgCreatePath,
		AwaitTimeout:   cfg.AccessAwaitTimeout,
		Observers:      observers,
	})
	return nil
}

func (a *App) openStore(ctx context.Context, kind selection.Kind) (selection.Store, error) {
	switch kind {
	case selection.KindRedis:
		client, err := selection.NewRedisClient(ctx, a.Config.Redis())
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return selection.NewRedisStore(client, a.Config.SelectionTTL), nil
	case selection.KindMemory:
		return selection.NewMemoryStore(), nil
	default:
		return selection.NewFileStore(a.Config.SelectionFile)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
