package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/slotclaim/internal/scheduler"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log the browser session in now (with retries)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, "prelogin", false)
		},
	}
}

func newClaimCmd() *cobra.Command {
	var dryRun bool
	c := &cobra.Command{
		Use:   "claim",
		Short: "Log in, then try the candidate groups now (with retries)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, "signup", dryRun)
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "stop before submitting the registration")
	return c
}

func runOnce(cmd *cobra.Command, workflow string, dryRun bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, cfg, migrateFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	s := &scheduler.Scheduler{Recorder: a.store, Logger: a.logger}
	t := scheduler.Trigger{Name: "prelogin", Retry: cfg.Prelogin.Retry, Workflow: a.login}
	out := s.Fire(ctx, t)
	if workflow == "signup" && out.OK {
		t = scheduler.Trigger{Name: "signup", Retry: cfg.Signup.Retry, Workflow: a.claim(dryRun || cfg.DryRun)}
		out = s.Fire(ctx, t)
	}
	return out.Err()
}
