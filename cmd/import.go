package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"cosmoz-server/internal/migrate"
	"cosmoz-server/internal/modules/stations/repository"
	"cosmoz-server/internal/modules/stations/types"
)

// newImportCmd loads station or calibration documents from a JSON array file.
func newImportCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load station metadata documents into the document store",
	}
	cmd.AddCommand(
		importSubcommand(rt, "stations", func(ctx context.Context, repo repository.StationRepository, doc types.Document) error {
			return repo.PutStation(ctx, doc)
		}),
		importSubcommand(rt, "calibrations", func(ctx context.Context, repo repository.StationRepository, doc types.Document) error {
			_, err := repo.PutCalibration(ctx, doc)
			return err
		}),
	)
	return cmd
}

func importSubcommand(rt *runtime, name string, put func(context.Context, repository.StationRepository, types.Document) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " FILE",
		Short: "Upsert " + name + " from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(args[0])
			if err != nil {
				return err
			}
			return withDB(rt, func(conn *sql.DB) error {
				ctx := cmd.Context()
				if _, err := migrate.Run(ctx, conn, rt.logger); err != nil {
					return err
				}
				repo := repository.NewRepository(conn)
				for i, doc := range docs {
					if err := put(ctx, repo, doc); err != nil {
						return fmt.Errorf("%s[%d]: %w", name, i, err)
					}
				}
				rt.logger.Info("import complete", "collection", name, "documents", len(docs))
				return nil
			})
		},
	}
}

func readDocuments(path string) ([]types.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("%s: expected a JSON array of objects: %w", path, err)
	}
	out := make([]types.Document, 0, len(raws))
	for i, raw := range raws {
		doc, err := types.DecodeDocument(raw, "site_no")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
