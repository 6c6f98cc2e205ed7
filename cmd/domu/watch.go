package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"domu/internal/amqp"
	"domu/internal/cli"
)

func watchCmd(rt *runtime) *cobra.Command {
	var sweep time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes made by other domu clients",
		Long: `Follow the change events other domu clients publish to AMQP_URL.
Every event refreshes the affected collection and is printed. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: rt.guarded("/expenses", func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			parent, stop := context.WithCancel(cmd.Context())
			defer stop()
			ctx, done := cli.GracefulShutdown(parent, rt.logger, 5*time.Second, func() {
				rt.app.Janitor.Sweep()
			})

			fmt.Fprintln(out, "Watching for changes, press Ctrl+C to stop.")
			err := rt.app.Watch(ctx, sweep, func(ev *amqp.ChangeEvent) {
				fmt.Fprintf(out, "%s  %s %s #%d\n",
					ev.Timestamp.Local().Format(time.DateTime), ev.Resource, ev.Kind, ev.ID)
			})
			interrupted := ctx.Err() != nil
			stop()
			cli.WaitForShutdown(ctx, done)
			if err != nil && !interrupted {
				return userError(err)
			}
			return nil
		}),
	}
	cmd.Flags().DurationVar(&sweep, "sweep-interval", time.Minute, "how often expired cached summaries are dropped")
	return cmd
}
