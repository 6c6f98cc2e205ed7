package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func exportCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export expenses to external tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sheets",
		Short: "Write all expenses to the configured Google spreadsheet",
		Long: `Write all expenses to the spreadsheet named by GOOGLE_SPREADSHEET_ID,
replacing the previous export. Without a spreadsheet the export is kept in
memory, which is only useful to check what would be written.`,
		Args: cobra.NoArgs,
		RunE: rt.guarded("/export", func(cmd *cobra.Command, _ []string) error {
			ref, n, err := rt.app.Export(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d expenses to %s\n", n, ref)
			return nil
		}),
	})
	return cmd
}
