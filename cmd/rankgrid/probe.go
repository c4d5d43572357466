package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/oracle"
	"github.com/rendis/rankgrid/internal/engine/scanner"
)

func newProbeCmd() *cobra.Command {
	var (
		req    scanner.ProbeRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the rank at a single coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getAppContext(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cmd.Context(), app.Config, app.Logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			cell, err := eng.Scanner.Probe(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cell)
			}

			switch {
			case cell.Failed:
				fmt.Fprintf(out, "failed: %s\n", cell.ErrorKind)
			case cell.Ranked():
				fmt.Fprintf(out, "rank %d (%s)\n", cell.Rank, heatmap.Classify(cell))
			default:
				fmt.Fprintf(out, "not ranked in the top %d\n", oracle.WindowSize)
			}
			if len(cell.Competitors) > 0 {
				fmt.Fprintf(out, "competitors: %s\n", strings.Join(cell.Competitors, ", "))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Keyword, "keyword", "k", "", "search keyword (required)")
	f.StringVarP(&req.TargetID, "target", "t", "", "place id or CID of the tracked business (required)")
	f.Float64Var(&req.Lat, "lat", 0, "latitude (required)")
	f.Float64Var(&req.Lng, "lng", 0, "longitude (required)")
	f.BoolVar(&asJSON, "json", false, "print the cell as JSON")
	for _, name := range []string{"keyword", "target", "lat", "lng"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
