package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"hitest/internal/app"
	"hitest/internal/config"
	"hitest/internal/infra/postgres"
)

// NewExportCmd writes one test's results CSV from the command line.
func NewExportCmd(configPath *string) *cobra.Command {
	var testID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a test's results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return runExport(cmd.Context(), *configPath, testID, w)
		},
	}
	cmd.Flags().StringVar(&testID, "test", "", "test id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

func runExport(ctx context.Context, configPath, testID string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	export, err := app.NewExportService(postgres.NewAnalyticsReader(pool)).Export(ctx, testID)
	if err != nil {
		return fmt.Errorf("export %s: %w", testID, err)
	}
	if _, err := w.Write(export.Data); err != nil {
		return err
	}
	log.Printf("exported %s (%d bytes)", export.Filename, len(export.Data))
	return nil
}
