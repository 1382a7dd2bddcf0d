// Package app wires SOLVEREIGN's collaborators together and runs the API
// or worker process, per spec 4.12's request pipeline: auth -> RBAC ->
// tenant binding -> idempotency -> handler.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/config"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/internal/platform"
	"github.com/solvereign/solvereign/internal/telemetry"
	"github.com/solvereign/solvereign/internal/version"
	"github.com/solvereign/solvereign/pkg/approval"
	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/evidence"
	"github.com/solvereign/solvereign/pkg/identity"
	"github.com/solvereign/solvereign/pkg/idempotency"
	"github.com/solvereign/solvereign/pkg/killswitch"
	"github.com/solvereign/solvereign/pkg/lock"
	"github.com/solvereign/solvereign/pkg/notify"
	"github.com/solvereign/solvereign/pkg/plan"
	"github.com/solvereign/solvereign/pkg/repair"
	"github.com/solvereign/solvereign/pkg/resolver"
	"github.com/solvereign/solvereign/pkg/solver"
	"github.com/solvereign/solvereign/pkg/tenant"
	"github.com/solvereign/solvereign/pkg/violations"
)

// Run is the main application entry point: it reads config, connects to
// infrastructure, and starts the selected mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting solvereign", "mode", cfg.Mode, "listen", cfg.ListenAddr(), "version", version.Version)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	// --- C1/C2: identity, tenants, sessions ---
	tenants := tenant.NewStore(db)
	users := identity.NewStore(db)
	sessions := auth.NewSessionStore(db)
	sessionMgr := auth.NewManager(sessions, users, cfg.CookieName(), cfg.SessionTTL())

	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		var err error
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC authentication disabled (OIDC_ISSUER_URL not set)")
	}

	rateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)
	loginHandler := auth.NewLoginHandler(sessionMgr, users, rateLimiter, logger, oidcAuth != nil, cfg.IsProduction())

	// --- C3: master-data resolver ---
	resolverStore := resolver.NewStore(db)
	res := resolver.NewResolver(resolverStore)
	resolverHandler := resolver.NewHandler(res, logger)

	// --- C4: idempotency + advisory locks ---
	idempotencyStore := idempotency.NewStore(db)
	locker := lock.NewLocker(db)

	// --- C10: kill switch ---
	killGate := killswitch.NewGate(tenants, rdb, cfg.KillSwitchCacheTTL())

	// --- C11: audit log ---
	auditStore := auditlog.NewStore(db)
	auditLogger := auditlog.NewLogger(auditStore)
	auditHandler := auditlog.NewHandler(auditStore, logger)

	// --- C8: approval policy engine ---
	approvalStore := approval.NewStore(db)
	approvalSvc := approval.NewService(approvalStore, auditLogger, cfg.EmergencyReviewWindow())
	approvalHandler := approval.NewHandler(approvalSvc, logger)

	// --- C5: plan lifecycle manager ---
	rules := violations.DefaultPolicy
	policyProfile, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshaling violation policy profile: %w", err)
	}
	policyHash := hashBytes(policyProfile)

	planStore := plan.NewStore(db)
	planPolicy := plan.Policy{
		ReasonMinLen:   cfg.PublishReasonMinLen,
		FreezeDuration: cfg.FreezeDuration(),
		LockTimeout:    cfg.AdvisoryLockTimeout(),
		RuleSet:        rules,
		PolicyHash:     policyHash,
		PolicyProfile:  policyProfile,
	}
	planManager := plan.NewManager(planStore, locker, killGate, solver.NewReferenceSolver(), auditLogger, approvalSvc, planPolicy)
	planHandler := plan.NewHandler(planManager, logger)

	// --- C9: evidence pack reader ---
	evidenceHandler := evidence.NewHandler(planStore, logger)

	// --- C6: repair session engine ---
	repairStore := repair.NewStore(db)
	repairEngine := repair.NewEngine(repairStore, planStore, locker, auditLogger, cfg.RepairSessionTTL(), cfg.AdvisoryLockTimeout(), rules)
	repairHandler := repair.NewHandler(repairEngine, logger)

	// --- Governance notifications (publish/lock/emergency-override only) ---
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack governance notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack governance notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	// --- Public, pre-authentication routes ---
	srv.Router.Post("/auth/login", loginHandler.HandleLogin)
	srv.Router.Get("/auth/config", loginHandler.HandleAuthConfig)
	srv.Router.With(auth.OptionalMiddleware(sessionMgr)).Get("/auth/me", loginHandler.HandleMe)
	srv.Router.With(auth.OptionalMiddleware(sessionMgr)).Post("/auth/logout", loginHandler.HandleLogout)

	if oidcAuth != nil && cfg.OIDCClientSecret != "" {
		oauth2Cfg := &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OIDCIssuerURL + "/authorize",
				TokenURL: cfg.OIDCIssuerURL + "/oauth/token",
			},
		}
		oidcFlow := auth.NewOIDCFlowHandler(oauth2Cfg, oidcAuth, sessionMgr, tenants, users, rdb, logger, cfg.IsProduction(), cfg.OIDCRedirectURL)
		srv.Router.Get("/auth/oidc/login", oidcFlow.HandleLogin)
		srv.Router.Get("/auth/oidc/callback", oidcFlow.HandleCallback)
		logger.Info("OIDC authorization code flow enabled", "redirect_url", cfg.OIDCRedirectURL)
	}

	// --- Authenticated API surface (spec 6) ---
	srv.APIRouter.Use(auth.Middleware(sessionMgr, logger))
	srv.APIRouter.Use(tenant.Middleware(db, sessionTenantResolver{}, logger))

	srv.APIRouter.Mount("/plans", planHandler.Routes())
	srv.APIRouter.With(idempotency.Middleware(idempotencyStore, logger, cfg.IdempotencyTTL(), "plan.publish")).
		Post("/snapshots/publish", planHandler.PublishHandler())

	srv.APIRouter.Mount("/repairs/sessions", repairHandler.Routes())
	srv.APIRouter.Mount("/evidence", evidenceHandler.Routes())
	srv.APIRouter.Mount("/audit", auditHandler.Routes())
	srv.APIRouter.Mount("/resolve", resolverHandler.Routes())
	srv.APIRouter.Mount("/approvals", approvalHandler.Routes())

	_ = notifier // constructed only so its enabled/disabled state is logged at startup; no plan, repair or approval path calls it

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker sweeps time-based housekeeping: expired idempotency records and
// (via the repair engine's own lazy expiry check) nothing else needs a
// background loop, since repair session TTL enforcement happens on read.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	idempotencyStore := idempotency.NewStore(db)
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			n, err := idempotencyStore.DeleteExpired(ctx)
			if err != nil {
				logger.Error("worker: deleting expired idempotency records", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("worker: swept expired idempotency records", "count", n)
			}
		}
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// sessionTenantResolver adapts the already-authenticated SessionContext
// (internal/auth) into tenant.Middleware's Resolver, so the Postgres
// row-level-security binding is always derived from the verified session,
// never from request headers or body fields.
type sessionTenantResolver struct{}

func (sessionTenantResolver) Resolve(r *http.Request) (*tenant.Info, error) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		return nil, fmt.Errorf("no tenant bound to session")
	}
	return &tenant.Info{ID: *sc.TenantID}, nil
}
