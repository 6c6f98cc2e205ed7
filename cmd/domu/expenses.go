package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"domu/internal/form"
)

func expensesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"expense", "exp"},
		Short:   "List and manage expenses",
	}
	cmd.AddCommand(expensesListCmd(rt))
	cmd.AddCommand(expensesAddCmd(rt))
	cmd.AddCommand(expensesEditCmd(rt))
	cmd.AddCommand(expensesRemoveCmd(rt))
	return cmd
}

func expensesListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expenses, newest first as served",
		Args:    cobra.NoArgs,
		RunE: rt.guarded("/expenses", func(cmd *cobra.Command, _ []string) error {
			lines, err := rt.app.ListExpenses(cmd.Context())
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			if len(lines) == 0 {
				fmt.Fprintln(out, "No expenses.")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION")
			for _, l := range lines {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.ID, l.Date, l.Amount, l.CategoryName, l.Description)
			}
			return tw.Flush()
		}),
	}
}

type expenseFlags struct {
	description string
	amount      string
	date        string
	category    string
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, form.FieldDescription, "d", "", "what the expense was for")
	cmd.Flags().StringVarP(&f.amount, form.FieldAmount, "a", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.date, form.FieldDate, "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&f.category, form.FieldCategory, "c", "", "category id")
}

// changed returns the values of the flags given on the command line.
func (f *expenseFlags) changed(cmd *cobra.Command) map[string]string {
	all := map[string]string{
		form.FieldDescription: f.description,
		form.FieldAmount:      f.amount,
		form.FieldDate:        f.date,
		form.FieldCategory:    f.category,
	}
	values := make(map[string]string)
	for name, v := range all {
		if cmd.Flags().Changed(name) {
			values[name] = v
		}
	}
	return values
}

func expensesAddCmd(rt *runtime) *cobra.Command {
	var flags expenseFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Args:  cobra.NoArgs,
		RunE: rt.guarded("/expenses/new", func(cmd *cobra.Command, _ []string) error {
			fc := rt.app.ExpenseForm()
			fc.SetAll(flags.changed(cmd))
			created, err := fc.Submit(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created expense %d: %s %s\n", created.ID, created.Amount, created.Description)
			return nil
		}),
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired(form.FieldDescription)
	_ = cmd.MarkFlagRequired(form.FieldAmount)
	return cmd
}

func expensesEditCmd(rt *runtime) *cobra.Command {
	var flags expenseFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an existing expense",
		Long:  "Change an existing expense. Fields not given keep their current value.",
		Args:  cobra.ExactArgs(1),
		RunE: rt.guarded("/expenses", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := rt.app.Expenses.FetchAll(cmd.Context()); err != nil {
				return userError(err)
			}
			current, ok := rt.app.Expenses.Get(id)
			if !ok {
				return fmt.Errorf("expense %d not found", id)
			}

			fc := rt.app.ExpenseForm()
			fc.Edit(current)
			fc.SetAll(flags.changed(cmd))
			updated, err := fc.Submit(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated expense %d: %s %s\n", updated.ID, updated.Amount, updated.Description)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func expensesRemoveCmd(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: rt.guarded("/expenses", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.app.Expenses.Remove(cmd.Context(), id, confirmer(cmd, yes)); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted expense %d\n", id)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking for confirmation")
	return cmd
}
