package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/sungazer/internal/adapter/driving/http"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

func newFetchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one polling cycle and print its summary as JSON (do not run alongside serve)",
		Long:  `Run one polling cycle against the configured database and print its
summary as JSON.

fetch builds its own scheduler and vendor rate limiters. It does not share the
cycle lock or the request pacing of a running "sungazer serve", so running both
against the same database and vendor accounts can overlap cycles and exceed
vendor quotas. While serve is running, trigger a cycle with
POST /api/v1/fetch instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.scheduler.RunNow(ctx, model.TriggerManual)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(httphandler.ToCycleSummaryResponse(summary), "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
