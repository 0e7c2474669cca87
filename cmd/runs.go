package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/slotclaim/internal/runs"
)

func newRunsCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "runs",
		Short: "List recent workflow runs from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			get, err := lookup(cmd)
			if err != nil {
				return err
			}
			url := get("DATABASE_URL")
			if url == "" {
				return errors.New("DATABASE_URL is required to read run history")
			}

			ctx := context.Background()
			d, err := openStore(ctx, url, migrateFlag(cmd))
			if err != nil {
				return err
			}
			defer d.Close()

			rs, err := runs.NewRepo(d).Recent(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range rs {
				status := "ok"
				if !r.OK {
					status = "failed"
				}
				fmt.Fprintf(out, "%s workflow=%s status=%s attempts=%d dry_run=%t took=%s",
					r.StartedAt.Format(time.RFC3339), r.Workflow, status, r.Attempts, r.DryRun, r.Duration().Round(time.Millisecond))
				if r.Detail != "" {
					fmt.Fprintf(out, " detail=%q", r.Detail)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return c
}
