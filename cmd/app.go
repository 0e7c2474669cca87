package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/slotclaim/internal/browser"
	"github.com/example/slotclaim/internal/claim"
	"github.com/example/slotclaim/internal/config"
	"github.com/example/slotclaim/internal/db"
	"github.com/example/slotclaim/internal/logging"
	"github.com/example/slotclaim/internal/migrate"
	"github.com/example/slotclaim/internal/runs"
	"github.com/example/slotclaim/internal/session"
)

// lookup reads the environment, falling back to the --config file.
func lookup(cmd *cobra.Command) (config.Lookup, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Env, nil
	}
	file, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	return config.Chain(config.Env, file), nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	get, err := lookup(cmd)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(get)
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// app is the wired process: one browser, one keeper, one orchestrator.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	browser *browser.Browser
	db      *db.DB
	store   runs.Store
	keeper  *session.Keeper
	orch    *claim.Orchestrator
}

// migrateFlag reports whether --migrate asks for migrations on startup.
func migrateFlag(cmd *cobra.Command) bool {
	f := cmd.Flag("migrate")
	return f == nil || f.Value.String() != "false"
}

func setup(ctx context.Context, cfg config.Config, migrateUp bool) (*app, error) {
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat, uuid.NewString())
	a := &app{cfg: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		d, err := openStore(ctx, cfg.DatabaseURL, migrateUp)
		if err != nil {
			return nil, err
		}
		a.db = d
		a.store = runs.NewRepo(d)
	} else {
		a.store = &runs.Memory{}
	}

	opts := browser.Options{
		Headless: cfg.Headless,
		Timeout:  cfg.BrowserTimeout,
		Logger:   logger,
	}
	if cfg.StateFile != "" {
		opts.State = browser.NewStateStore(cfg.StateFile, cfg.StateHashKey, cfg.StateBlockKey)
	}
	b, err := browser.Launch(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.browser = b

	a.keeper = &session.Keeper{
		Browser:     b,
		Credentials: session.Credentials{Username: cfg.Username, Password: cfg.Password},
		Logger:      logger.With("workflow", "prelogin"),
	}
	a.orch = &claim.Orchestrator{
		Browser:        b,
		URL:            cfg.SignupURL,
		Candidates:     cfg.TryGroups,
		Selectors:      claim.DefaultSelectors(cfg.Locale),
		DefaultToFirst: cfg.DefaultToFirstGroup,
		Logger:         logger.With("workflow", "signup"),
	}
	return a, nil
}

func openStore(ctx context.Context, url string, migrateUp bool) (*db.DB, error) {
	d, err := db.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func (a *app) login(ctx context.Context) error { return a.keeper.Ensure(ctx) }

func (a *app) claim(dryRun bool) func(context.Context) error {
	return func(ctx context.Context) error { return a.orch.Claim(ctx, dryRun) }
}

// Close releases the browser and the database, best effort.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("close browser", "err", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
