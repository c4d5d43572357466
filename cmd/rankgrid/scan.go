package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
)

type scanOptions struct {
	Keyword      string
	TargetID     string
	BusinessName string
	Address      string
	Lat          float64
	Lng          float64
	GridSize     int
	RadiusMiles  float64
	NoStore      bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a headless grid scan",
		Example: `  rankgrid scan --keyword dentist --target 0x357ca2:0x1a2b --lat 37.5665 --lng 126.978
  rankgrid scan --keyword "pizza near me" --target ChIJ... --address "Gran Via 1, Madrid" --grid 5 --radius 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Keyword, "keyword", "k", "", "search keyword (required)")
	f.StringVarP(&opts.TargetID, "target", "t", "", "place id or CID of the tracked business (required)")
	f.StringVar(&opts.BusinessName, "name", "", "business name, for display only")
	f.StringVar(&opts.Address, "address", "", "geocode this address for the center instead of --lat/--lng")
	f.Float64Var(&opts.Lat, "lat", 0, "center latitude")
	f.Float64Var(&opts.Lng, "lng", 0, "center longitude")
	f.IntVarP(&opts.GridSize, "grid", "g", 0, "grid size 3-7 (default from config)")
	f.Float64VarP(&opts.RadiusMiles, "radius", "r", 0, "radius in miles (default from config)")
	f.BoolVar(&opts.NoStore, "no-store", false, "do not save the scan to history")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("target")
	cmd.MarkFlagsMutuallyExclusive("address", "lat")
	cmd.MarkFlagsMutuallyExclusive("address", "lng")
	cmd.MarkFlagsRequiredTogether("lat", "lng")

	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	app, err := getAppContext(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	if opts.Address == "" && !cmd.Flags().Changed("lat") {
		return errors.New("either --address or --lat/--lng is required")
	}
	if opts.GridSize == 0 {
		opts.GridSize = cfg.DefaultGridSize
	}
	if opts.RadiusMiles == 0 {
		opts.RadiusMiles = cfg.DefaultRadiusMiles
	}

	logger, logPath, err := sessionLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	fmt.Fprintf(stderr, "Log: %s\n", logPath)

	eng, err := buildEngine(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	center := model.LatLng{Lat: opts.Lat, Lng: opts.Lng}
	if opts.Address != "" {
		place, err := eng.Geocoder.Geocode(ctx, opts.Address)
		if err != nil {
			return fmt.Errorf("geocoding %q: %w", opts.Address, err)
		}
		center = place.Center
		fmt.Fprintf(stderr, "Center: %s (%.6f, %.6f)\n", place.DisplayName, center.Lat, center.Lng)
	}

	req := scanner.ScanRequest{
		Keyword:      opts.Keyword,
		Center:       center,
		TargetID:     opts.TargetID,
		BusinessName: opts.BusinessName,
		GridSize:     opts.GridSize,
		RadiusMiles:  opts.RadiusMiles,
		Progress:     &scanner.Progress{},
	}
	req.OnCell = func(i int, cell model.CellResult) {
		snap := req.Progress.Snapshot()
		fmt.Fprintf(stderr, "\r  %d/%d cells  ranked=%d failed=%d", snap.Done, snap.Total, snap.Ranked, snap.Failed)
	}

	fmt.Fprintf(stderr, "Scanning %q: %dx%d grid, radius %.2f mi, up to %s\n",
		opts.Keyword, opts.GridSize, opts.GridSize, opts.RadiusMiles,
		eng.Scanner.Budget(opts.GridSize))

	scan, scanErr := eng.Scanner.Scan(ctx, req)
	fmt.Fprintln(stderr)
	if scanErr != nil && !errors.Is(scanErr, scanner.ErrScanCancelled) {
		return scanErr
	}
	if scanErr != nil {
		fmt.Fprintln(stderr, "Scan cancelled, keeping partial results")
	}

	if !opts.NoStore {
		store, err := eng.Store.Acquire(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		if err := store.SaveScan(context.WithoutCancel(ctx), scan); err != nil {
			return fmt.Errorf("saving scan: %w", err)
		}
		logger.Info("scan stored", logging.String("scan_id", scan.ID), logging.String("db", cfg.DBPath))
	}

	printScanReport(cmd.OutOrStdout(), scan, cfg.DBPath, !opts.NoStore)
	return nil
}

// printScanReport writes the heat grid and the summary banner.
func printScanReport(w io.Writer, scan *model.ScanResult, dbPath string, stored bool) {
	sum := heatmap.Summarize(scan, 5)

	fmt.Fprintf(w, "══════════════════════════════\n")
	fmt.Fprintf(w, "  Rank Grid %s\n", statusWord(scan))
	fmt.Fprintf(w, "══════════════════════════════\n")
	fmt.Fprintf(w, "  Keyword:    %s\n", scan.Keyword)
	if scan.BusinessName != "" {
		fmt.Fprintf(w, "  Business:   %s\n", scan.BusinessName)
	}
	fmt.Fprintf(w, "  Target:     %s\n", scan.TargetID)
	fmt.Fprintf(w, "  Center:     %.6f, %.6f\n", scan.Spec.Center.Lat, scan.Spec.Center.Lng)
	fmt.Fprintf(w, "  Grid:       %dx%d (r=%.2fmi)\n", scan.Spec.Size, scan.Spec.Size, scan.Spec.RadiusMiles)
	fmt.Fprintln(w)

	for _, row := range heatmap.Grid(scan) {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == nil {
				cells[i] = " · "
				continue
			}
			cells[i] = rankLabel(*c)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	}
	fmt.Fprintln(w)

	st := sum.Stats
	fmt.Fprintf(w, "  Ranked:     %d/%d\n", st.RankedCells, st.TotalCells)
	if avg, ok := st.Average(); ok {
		fmt.Fprintf(w, "  Average:    %.2f (best %d, worst %d)\n", avg, st.BestRank, st.WorstRank)
	} else {
		fmt.Fprintf(w, "  Average:    n/a\n")
	}
	fmt.Fprintf(w, "  Top 3:      %.0f%%\n", sum.Top3Share*100)
	fmt.Fprintf(w, "  Failed:     %d\n", st.FailedCells)
	for _, comp := range sum.TopCompetitors {
		fmt.Fprintf(w, "  Competitor: %s (%d cells)\n", comp.Name, comp.Cells)
	}
	fmt.Fprintf(w, "  Duration:   %s\n", scan.Duration().Round(time.Second))
	fmt.Fprintf(w, "  Scan ID:    %s\n", scan.ID)
	if stored {
		fmt.Fprintf(w, "  Database:   %s\n", dbPath)
	}
	fmt.Fprintf(w, "══════════════════════════════\n")
}

func statusWord(scan *model.ScanResult) string {
	if scan.Cancelled {
		return "Cancelled"
	}
	return "Complete"
}

// rankLabel is a fixed-width cell for plain-text grids.
func rankLabel(c model.HeatCell) string {
	switch {
	case c.Failed:
		return " ! "
	case !c.Ranked():
		return " - "
	case c.Rank > 99:
		return "99+"
	}
	return fmt.Sprintf("%3d", c.Rank)
}
