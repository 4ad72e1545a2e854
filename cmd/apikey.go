package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cosmoz-server/internal/auth"
	"cosmoz-server/internal/migrate"
)

func newAPIKeyCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var token string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Create an API key and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(rt, func(conn *sql.DB) error {
				ctx := cmd.Context()
				if _, err := migrate.Run(ctx, conn, rt.logger); err != nil {
					return err
				}
				key, err := auth.NewChecker(conn, rt.logger).Issue(ctx, token, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&token, "access-token", "", "access token the key is bound to")
	issue.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "validity period")
	_ = issue.MarkFlagRequired("access-token")

	check := &cobra.Command{
		Use:   "check KEY",
		Short: "Report whether a key is accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(rt, func(conn *sql.DB) error {
				ok, reason := auth.NewChecker(conn, rt.logger).Check(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%v\t%s\n", ok, reason)
				return nil
			})
		},
	}

	cmd.AddCommand(issue, check)
	return cmd
}
