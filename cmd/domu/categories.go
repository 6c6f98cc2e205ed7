package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"domu/internal/form"
)

func categoriesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "List and manage expense categories",
	}
	cmd.AddCommand(categoriesListCmd(rt))
	cmd.AddCommand(categoriesAddCmd(rt))
	cmd.AddCommand(categoriesEditCmd(rt))
	cmd.AddCommand(categoriesRemoveCmd(rt))
	return cmd
}

func categoriesListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories",
		Args:    cobra.NoArgs,
		RunE: rt.guarded("/categories", func(cmd *cobra.Command, _ []string) error {
			cats, err := rt.app.Categories.FetchAll(cmd.Context())
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			if len(cats) == 0 {
				fmt.Fprintln(out, "No categories.")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, c := range cats {
				fmt.Fprintf(tw, "%d\t%s\n", c.ID, c.Name)
			}
			return tw.Flush()
		}),
	}
}

func categoriesAddCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: rt.guarded("/categories", func(cmd *cobra.Command, args []string) error {
			fc := rt.app.CategoryForm()
			fc.Set(form.FieldName, args[0])
			created, err := fc.Submit(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created category %d: %s\n", created.ID, created.Name)
			return nil
		}),
	}
}

func categoriesEditCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: rt.guarded("/categories", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := rt.app.Categories.FetchAll(cmd.Context()); err != nil {
				return userError(err)
			}
			current, ok := rt.app.Categories.Get(id)
			if !ok {
				return fmt.Errorf("category %d not found", id)
			}

			fc := rt.app.CategoryForm()
			fc.Edit(current)
			fc.Set(form.FieldName, args[1])
			updated, err := fc.Submit(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated category %d: %s\n", updated.ID, updated.Name)
			return nil
		}),
	}
}

func categoriesRemoveCmd(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a category",
		Long:    "Delete a category. Expenses referring to it are shown as uncategorized.",
		Args:    cobra.ExactArgs(1),
		RunE: rt.guarded("/categories", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.app.Categories.Remove(cmd.Context(), id, confirmer(cmd, yes)); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %d\n", id)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking for confirmation")
	return cmd
}
