package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"domu/internal/core"
)

func summaryCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "summary",
		Aliases: []string{"home", "dashboard"},
		Short:   "Show the monthly spending overview",
		Args:    cobra.NoArgs,
		RunE: rt.guarded("/", func(cmd *cobra.Command, _ []string) error {
			d, err := rt.app.LoadDashboard(cmd.Context())
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			home := d.Home

			fmt.Fprintf(out, "%s\n\n", home.PeriodLabel)
			fmt.Fprintf(out, "This month:     %s\n", home.CurrentMonthTotal)
			if home.PreviousMonthTotal != nil {
				fmt.Fprintf(out, "Previous month: %s\n", *home.PreviousMonthTotal)
			}
			pct, trend := home.MonthChange()
			switch {
			case trend == core.TrendUnknown:
			case home.PreviousMonthTotal.Cents > 0:
				fmt.Fprintf(out, "Change:         %+.1f%% (%s)\n", pct, trend)
			default:
				fmt.Fprintf(out, "Change:         %s\n", trend)
			}
			if top := home.TopCategory; top != nil {
				fmt.Fprintf(out, "Top category:   %s (%s)\n", top.Name, top.Total)
			}

			if len(d.Series) > 0 {
				fmt.Fprintln(out, "\nBy category:")
				tw := newTable(out)
				for _, p := range d.Series {
					fmt.Fprintf(tw, "  %s\t%s\n", p.Name, p.Total)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if len(home.RecentExpenses) > 0 {
				fmt.Fprintln(out, "\nRecent expenses:")
				tw := newTable(out)
				for _, e := range home.RecentExpenses {
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Date, e.Amount, e.CategoryName, e.Description)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "\n%d expenses in %d categories\n", len(d.Expenses), len(d.Categories))
			return nil
		}),
	}
}
