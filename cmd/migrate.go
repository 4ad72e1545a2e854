package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cosmoz-server/internal/db"
	"cosmoz-server/internal/migrate"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending document store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(rt, func(conn *sql.DB) error {
				n, err := migrate.Run(cmd.Context(), conn, rt.logger)
				if err != nil {
					return err
				}
				rt.logger.Info("migrations complete", "applied", n)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(rt, func(conn *sql.DB) error {
				all, err := migrate.Status(cmd.Context(), conn)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, m := range all {
					fmt.Fprintf(tw, "%s\t%s\t%v\n", m.Version, m.Name, m.Applied)
				}
				return tw.Flush()
			})
		},
	})
	return cmd
}

func withDB(rt *runtime, fn func(*sql.DB) error) error {
	conn, err := db.Open(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			rt.logger.Error("db close", "error", err)
		}
	}()
	return fn(conn)
}
