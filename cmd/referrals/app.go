package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/adapters/configadapter"
	"github.com/goliatone/go-featuregate/resolver"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	referrals "github.com/goliatone/go-referrals"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/adapter/securelink"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/groups"
	"github.com/goliatone/go-referrals/handler"
	"github.com/goliatone/go-referrals/identity"
	"github.com/goliatone/go-referrals/membership"
	"github.com/goliatone/go-referrals/migrations"
	"github.com/goliatone/go-referrals/notify"
	"github.com/goliatone/go-referrals/pkg/authctx"
	"github.com/goliatone/go-referrals/profile"
	"github.com/goliatone/go-referrals/referral"
	"github.com/goliatone/go-referrals/tokens"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// App carries the runtime shared by the CLI commands.
type App struct {
	config    *gconfig.Container[*BaseConfig]
	logger    *glog.BaseLogger
	bunDB     *bun.DB
	dialect   string
	outbox    *notify.Outbox
	groups    *groups.Repository
	referrals *referral.Repository
	activity  *activity.Repository
	service   *referrals.Service
	srv       router.Server[*fiber.App]
}

func newLogger(debug bool) *glog.BaseLogger {
	level := glog.Info
	if debug {
		level = glog.Trace
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("referrals"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

// newApp loads configuration and returns an App without side effects on the
// database.
func newApp(ctx context.Context, debug bool) (*App, error) {
	lgr := newLogger(debug)
	cfg := gconfig.New(defaultConfig()).WithLogger(lgr.GetLogger("config"))
	if err := cfg.Load(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Raw().Validate(); err != nil {
		return nil, err
	}
	return &App{config: cfg, logger: lgr}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *BaseConfig {
	return a.config.Raw()
}

// GetLogger returns a named sub-logger.
func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

// Close releases the database handle.
func (a *App) Close() error {
	if a.bunDB == nil {
		return nil
	}
	return a.bunDB.Close()
}

func openDatabase(cfg persistence.Config) (*sql.DB, schema.Dialect, string, error) {
	dsn := cfg.GetServer()
	switch strings.ToLower(strings.TrimSpace(cfg.GetDriver())) {
	case "postgres", "postgresql", "pg":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New(), "postgres", nil
	default:
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		db, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, "", err
		}
		return db, sqlitedialect.New(), "sqlite", nil
	}
}

// WithPersistence opens the database, registers models and, when migrate is
// true, applies the embedded migrations and validates the resulting schema.
func WithPersistence(ctx context.Context, app *App, migrate bool) error {
	cfg := app.Config().GetPersistence()
	db, dialect, name, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	persistence.RegisterModel((*identity.Record)(nil))
	persistence.RegisterModel((*profile.Record)(nil))
	persistence.RegisterModel((*groups.Record)(nil))
	persistence.RegisterModel((*referral.Record)(nil))
	persistence.RegisterModel((*membership.Record)(nil))
	persistence.RegisterModel((*tokens.Record)(nil))
	persistence.RegisterModel((*notify.Record)(nil))
	persistence.RegisterModel((*activity.LogEntry)(nil))

	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		return err
	}
	client.SetLogger(app.GetLogger("persistence"))
	app.bunDB = client.DB()
	app.dialect = name

	if !migrate {
		return nil
	}
	for _, source := range migrations.Sources() {
		app.GetLogger("persistence").Debug("registering migrations", "source", source.Name)
		client.RegisterDialectMigrations(
			source.FS,
			persistence.WithDialectSourceLabel("."),
			persistence.WithValidationTargets("postgres", "sqlite"),
		)
	}
	if err := client.ValidateDialects(ctx); err != nil {
		app.GetLogger("persistence").Warn("dialect validation failed", "error", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return err
	}
	if report := client.Report(); report != nil && !report.IsZero() {
		app.GetLogger("persistence").Info("migrations applied", "report", report.String())
	}
	return migrations.ValidateSchema(ctx, app.bunDB.DB, name)
}

// WithReferralService wires repositories, securelinks and the outbox into the
// referral service.
func WithReferralService(ctx context.Context, app *App) error {
	cfg := app.Config()
	db := app.bunDB

	identities, err := identity.NewRepository(identity.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	profiles, err := profile.NewRepository(profile.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	groupRepo, err := groups.NewRepository(groups.RepositoryConfig{DB: db}, groups.WithCache(cfg.Referrals.GroupCache))
	if err != nil {
		return err
	}
	referralRepo, err := referral.NewRepository(referral.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	memberships, err := membership.NewRepository(membership.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	tokenRepo, err := tokens.NewRepository(tokens.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	outbox, err := notify.NewOutbox(notify.OutboxConfig{DB: db})
	if err != nil {
		return err
	}
	activityRepo, err := activity.NewRepository(activity.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	links, err := securelink.NewManager(cfg.SecureLink)
	if err != nil {
		return fmt.Errorf("securelink: %w", err)
	}

	svc := referrals.New(referrals.Config{
		IdentityDirectory:        identities,
		ProfileRepository:        profiles,
		GroupRepository:          groupRepo,
		ReferralRepository:       referralRepo,
		MembershipRepository:     memberships,
		TokenRepository:          tokenRepo,
		SecureLinks:              links,
		Notifier:                 outbox,
		ActivitySink:             activityRepo,
		ActivityRepository:       activityRepo,
		FeatureGate:              newFeatureGate(cfg.Referrals.Features),
		VerificationRedirectURL:  cfg.Referrals.VerificationRedirectURL,
		DedupePendingMemberships: cfg.Referrals.DedupePendingMemberships,
		PhoneScanLimit:           cfg.Referrals.PhoneScanLimit,
		Logger:                   &loggerAdapter{app.GetLogger("referrals")},
	})
	if err := svc.HealthCheck(ctx); err != nil {
		return err
	}
	app.outbox = outbox
	app.groups = groupRepo
	app.referrals = referralRepo
	app.activity = activityRepo
	app.service = svc
	return nil
}

// WithHTTPServer builds the fiber-backed router and mounts the referral and
// admin routes.
func WithHTTPServer(_ context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: false,
			StrictRouting:     false,
		})
	})
	srv.Router().WithLogger(app.GetLogger("router"))

	cmds := app.service.Commands()
	queries := app.service.Queries()
	logger := &loggerAdapter{app.GetLogger("http")}
	membershipCfg := handler.MembershipHandlerConfig{
		Decide: cmds.MembershipDecision,
		List:   queries.Memberships,
		Actor:  authctx.ActorOrAnonymous,
		Logger: logger,
	}
	if queries.ActivityStats != nil {
		membershipCfg.Stats = queries.ActivityStats
	}
	handlers := handler.Handlers{
		Referrals: handler.NewReferralHandler(handler.ReferralHandlerConfig{
			Provision: cmds.ReferralProvision,
			List:      queries.Referrals,
			Actor:     authctx.ActorOrAnonymous,
			Logger:    logger,
		}),
		Memberships: handler.NewMembershipHandler(membershipCfg),
	}
	if cmds.VerificationVerify != nil {
		handlers.Verification = handler.NewVerificationHandler(cmds.VerificationVerify, logger)
	}
	handler.RegisterRoutes(srv.Router(), handlers)
	srv.Router().Get("/healthz", func(c router.Context) error {
		if err := app.service.HealthCheck(c.Context()); err != nil {
			return c.JSON(fiber.StatusServiceUnavailable, handler.ErrorResponse{OK: false, Error: err.Error()})
		}
		return c.JSON(fiber.StatusOK, map[string]any{"ok": true})
	})

	RegisterAdminRoutes(app, srv.Router().Group("/admin"))
	app.srv = srv
	return nil
}

// newFeatureGate resolves gate keys from the features config section. The
// referral keys default to enabled so a missing entry keeps them on.
func newFeatureGate(features map[string]bool) *resolver.Gate {
	defaults := map[string]bool{
		command.FeatureReferralsProvision:  true,
		command.FeatureReferralsMembership: true,
	}
	for key, enabled := range features {
		if key = strings.ToLower(strings.TrimSpace(key)); key != "" {
			defaults[key] = enabled
		}
	}
	return resolver.New(resolver.WithDefaults(configadapter.NewDefaultsFromBools(defaults)))
}

// loggerAdapter adapts glog.Logger to types.Logger.
type loggerAdapter struct {
	l glog.Logger
}

func (a *loggerAdapter) Debug(msg string, args ...any) {
	a.l.Debug(msg, args...)
}

func (a *loggerAdapter) Info(msg string, args ...any) {
	a.l.Info(msg, args...)
}

func (a *loggerAdapter) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{"error", err}, args...)
	}
	a.l.Error(msg, args...)
}
