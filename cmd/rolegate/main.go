package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/valinor-ai/rolegate/internal/audit"
	"github.com/valinor-ai/rolegate/internal/auth"
	"github.com/valinor-ai/rolegate/internal/org"
	"github.com/valinor-ai/rolegate/internal/platform/config"
	"github.com/valinor-ai/rolegate/internal/platform/database"
	"github.com/valinor-ai/rolegate/internal/platform/server"
	"github.com/valinor-ai/rolegate/internal/platform/telemetry"
	"github.com/valinor-ai/rolegate/internal/rbac"
	"github.com/valinor-ai/rolegate/internal/staff"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("rolegate starting", "version", version, "port", cfg.Server.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(gctx)
	})
	if a.broadcaster != nil {
		g.Go(func() error {
			return a.broadcaster.Run(gctx)
		})
	}

	slog.Info("server ready", "addr", cfg.Server.Addr(), "dev_mode", cfg.Auth.DevMode, "broadcast", a.broadcaster != nil)
	return g.Wait()
}

// app is the wired service. Close releases everything newApp opened.
type app struct {
	server      *server.Server
	store       *staff.Store
	engine      *rbac.Engine
	broadcaster *rbac.RedisBroadcaster

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	catalog, err := rbac.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("loading permission catalog: %w", err)
	}

	var pool *database.Pool
	if cfg.Database.URL != "" {
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("migrations complete")

		pool, err = database.Connect(ctx, cfg.Database.URL, poolOptions(cfg.Database))
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
	} else {
		slog.Warn("no database configured, roles and assignments are kept in memory")
	}
	repo, dir := buildRepository(pool)
	provisioned, err := org.Seed(ctx, dir, orgSeeds(cfg.Org))
	if err != nil {
		return nil, fmt.Errorf("provisioning org units: %w", err)
	}
	if provisioned > 0 {
		slog.Info("org units provisioned", "inserted", provisioned)
	}

	cache, err := rbac.NewViewCache(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("creating view cache: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := rbac.NewMetrics(registry)

	auditLogger := buildAuditLogger(pool, cfg.Audit)
	a.closers = append(a.closers, func() { _ = auditLogger.Close() })

	notifiers := rbac.Notifiers{cache, metrics, audit.NewChangeNotifier(auditLogger)}
	if cfg.Redis.URL != "" {
		b, closeRedis, err := buildBroadcaster(cfg.Redis, cache)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeRedis)
		a.broadcaster = b
		notifiers = append(notifiers, b)
	}

	a.store = staff.NewStore(repo, catalog, dir, staff.WithNotifier(notifiers))
	seeded, err := a.store.SeedSystemRoles(ctx, catalog)
	if err != nil {
		return nil, fmt.Errorf("seeding system roles: %w", err)
	}
	slog.Info("system roles provisioned", "inserted", seeded)

	a.engine = rbac.NewEngine(a.store, catalog,
		rbac.WithCache(cache),
		rbac.WithMetrics(metrics),
		rbac.WithSignInURL(cfg.Guard.SignInURL),
		rbac.WithFallbackURL(cfg.Guard.FallbackURL),
	)

	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)

	var devIdentity *auth.Identity
	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode, 'Bearer dev' authenticates as the dev employee", "employee_id", cfg.Auth.DevEmployeeID)
		devIdentity = &auth.Identity{EmployeeID: cfg.Auth.DevEmployeeID, DisplayName: "Developer", TokenType: "access"}
		if err := grantDevAdmin(ctx, a.store, cfg.Auth.DevEmployeeID); err != nil {
			return nil, err
		}
	}

	var auditHandler *audit.Handler
	if pool != nil {
		auditHandler = audit.NewHandler(pool)
	}

	var appHandler http.Handler
	if cfg.Server.StaticDir != "" {
		appHandler = http.StripPrefix("/app/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	a.server = server.New(cfg.Server.Addr(), server.Dependencies{
		Ready:              a.store,
		Auth:               tokenSvc,
		AuthHandler:        auth.NewHandler(tokenSvc, devIdentity),
		Engine:             a.engine,
		PermissionHandler:  rbac.NewHandler(a.engine, catalog),
		StaffHandler:       staff.NewHandler(a.store),
		OrgHandler:         org.NewHandler(dir),
		AuditHandler:       auditHandler,
		GuardAuditLogger:   audit.NewGuardLogger(auditLogger),
		Gatherer:           registry,
		App:                appHandler,
		DevMode:            cfg.Auth.DevMode,
		DevIdentity:        devIdentity,
		Logger:             telemetry.Component(logger, "http"),
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	return a, nil
}

func buildRepository(pool *database.Pool) (staff.Repository, org.Store) {
	if pool == nil {
		return staff.NewMemoryRepository(), org.NewMemoryDirectory()
	}
	return staff.NewPostgresRepository(pool), org.NewPostgresDirectory(pool)
}

func poolOptions(cfg config.DatabaseConfig) database.PoolOptions {
	return database.PoolOptions{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnIdleTime:   time.Duration(cfg.MaxConnIdleSeconds) * time.Second,
		HealthCheckPeriod: time.Duration(cfg.HealthCheckSeconds) * time.Second,
	}
}

func orgSeeds(cfg config.OrgConfig) []org.DepartmentSeed {
	seeds := make([]org.DepartmentSeed, 0, len(cfg.Departments))
	for _, d := range cfg.Departments {
		seed := org.DepartmentSeed{ID: d.ID, Name: d.Name}
		for _, p := range d.Programs {
			seed.Programs = append(seed.Programs, org.ProgramSeed{ID: p.ID, Name: p.Name})
		}
		seeds = append(seeds, seed)
	}
	return seeds
}

func buildAuditLogger(pool *database.Pool, cfg config.AuditConfig) audit.Logger {
	if pool == nil || !cfg.Enabled {
		return audit.NopLogger{}
	}
	slog.Info("audit logger started", "batch_size", cfg.BatchSize)
	return audit.NewAsyncLogger(pool, audit.NewStore(), audit.LoggerConfig{
		BufferSize:    cfg.BufferSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
	})
}

// buildBroadcaster connects to Redis. Events from other instances only
// invalidate the local cache.
func buildBroadcaster(cfg config.RedisConfig, local rbac.Notifier) (*rbac.RedisBroadcaster, func(), error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return rbac.NewRedisBroadcaster(client, cfg.Channel, local), func() { _ = client.Close() }, nil
}

// grantDevAdmin gives the dev employee the SUPER_ADMIN role unless they
// already hold an assignment.
func grantDevAdmin(ctx context.Context, store *staff.Store, employeeID string) error {
	existing, err := store.GetEmployeeAssignments(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("reading dev assignments: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	roles, err := store.ListRoles(ctx, staff.RoleFilter{Search: "SUPER_ADMIN"})
	if err != nil {
		return fmt.Errorf("finding super admin role: %w", err)
	}
	for _, r := range roles {
		if r.Code != "SUPER_ADMIN" {
			continue
		}
		_, err := store.AssignRole(ctx, staff.AssignmentInput{
			EmployeeID: employeeID,
			RoleID:     r.ID,
			IsPrimary:  true,
			IsActive:   true,
			Notes:      "dev mode bootstrap",
		})
		if err != nil {
			return fmt.Errorf("granting dev admin: %w", err)
		}
		return nil
	}
	return fmt.Errorf("super admin role not provisioned")
}
