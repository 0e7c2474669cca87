package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/slotclaim/internal/auth"
	"github.com/example/slotclaim/internal/scheduler"
	"github.com/example/slotclaim/internal/web"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in on schedule and claim a group when signup opens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}

			preSched, err := scheduler.FromConfig(cfg.Prelogin.Schedule)
			if err != nil {
				return fmt.Errorf("prelogin schedule: %w", err)
			}
			signupSched, err := scheduler.FromConfig(cfg.Signup.Schedule)
			if err != nil {
				return fmt.Errorf("signup schedule: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := setup(ctx, cfg, migrateFlag(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			s := &scheduler.Scheduler{Recorder: a.store, Logger: a.logger}

			if cfg.DryRun {
				a.logger.Info("dry run: one login and one claim pass, nothing is submitted")
				return s.Rehearse(ctx, a.login, a.claim(true))
			}

			prelogin := scheduler.Trigger{
				Name:     "prelogin",
				Schedule: preSched,
				Retry:    cfg.Prelogin.Retry,
				Workflow: a.login,
			}
			s.Triggers = []scheduler.Trigger{prelogin, {
				Name:     "signup",
				Schedule: signupSched,
				Retry:    cfg.Signup.Retry,
				Workflow: a.claim(false),
			}}

			// log in once up front; the scheduled prelogin retries later
			if out := s.Fire(ctx, prelogin); !out.OK {
				a.logger.Warn("startup login failed, continuing with schedule")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return s.Run(gctx) })
			if cfg.StatusAddr != "" {
				ws := &web.Server{
					Auth: auth.Basic{User: cfg.StatusUser, PasswordHash: cfg.StatusPasswordHash},
					Runs: a.store,
				}
				g.Go(func() error { return web.Start(gctx, cfg.StatusAddr, ws.Routes(), a.logger) })
			}
			err = g.Wait()
			a.logger.Info("shutting down")
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log in and walk the candidates once without submitting, then exit")
	return cmd
}
