package main

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func loginCmd(rt *runtime) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Long: `Log in with username and password. Missing values are read from
standard input, one per line; the password is not echoed on a terminal. The session is kept in the credential store
until logout or until the server rejects it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if username == "" {
				if username, err = readLine(in, out, "Username: "); err != nil {
					return fmt.Errorf("read username: %w", err)
				}
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), in, out, "Password: "); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			if !rt.app.Session.Login(cmd.Context(), username, password) {
				return errors.New(rt.app.Session.Snapshot().LastError)
			}
			fmt.Fprintf(out, "Logged in as %s. Continue with %s\n", username, rt.app.Guard.ResumeTarget())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func logoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt.app.Session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func statusCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API:     %s\n", rt.app.Client.BaseURL())
			fmt.Fprintf(out, "Store:   %s\n", rt.cfg.CredentialBackend)
			if rt.app.Session.IsAuthenticated() {
				fmt.Fprintln(out, "Session: logged in")
			} else {
				fmt.Fprintln(out, "Session: logged out")
			}
			return nil
		},
	}
}
