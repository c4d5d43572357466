package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/engine/export"
)

func newExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <scan-id>",
		Short: "Export a stored scan to CSV or GeoJSON",
		Args:  cobra.ExactArgs(1),
		Example: `  rankgrid export 3f0c... --format csv
  rankgrid export 3f0c... --format geojson --output grid.geojson
  rankgrid export 3f0c... --output -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getAppContext(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(app.Config)
			if err != nil {
				return err
			}
			defer store.Close()

			scan, err := store.LoadScan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "-" {
				return export.Write(cmd.OutOrStdout(), format, scan)
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(app.Config.DBPath), scan.ID+export.Extension(format))
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			if err := export.Write(f, format, scan); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d cells to %s\n", len(scan.Cells), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or geojson")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: <db dir>/<scan id>.<ext>)")
	return cmd
}
