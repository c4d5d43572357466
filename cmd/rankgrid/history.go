package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/model"
)

func newHistoryCmd() *cobra.Command {
	var filter storage.ListFilter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored scans",
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

			scans, err := store.ListScans(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(scans) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No scans stored yet")
				return nil
			}
			return printHistory(cmd.OutOrStdout(), scans)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&filter.Keyword, "keyword", "k", "", "only scans whose keyword contains this text")
	f.StringVarP(&filter.TargetID, "target", "t", "", "only scans of this business")
	f.IntVarP(&filter.Limit, "limit", "n", 20, "maximum number of scans")
	f.IntVar(&filter.Offset, "offset", 0, "skip this many scans")

	cmd.AddCommand(newHistoryShowCmd(), newHistoryDeleteCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <scan-id>",
		Short: "Print a stored scan's heat grid and summary",
		Args:  cobra.ExactArgs(1),
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
			printScanReport(cmd.OutOrStdout(), scan, app.Config.DBPath, true)
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scan-id>...",
		Short: "Delete stored scans",
		Args:  cobra.MinimumNArgs(1),
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

			for _, id := range args {
				if err := store.DeleteScan(cmd.Context(), id); err != nil {
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func printHistory(w io.Writer, scans []model.ScanSummary) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "KEYWORD", "BUSINESS", "GRID", "RANKED", "STATUS")
	for _, s := range scans {
		business := s.BusinessName
		if business == "" {
			business = s.TargetID
		}
		status := "complete"
		if s.Cancelled {
			status = "cancelled"
		}
		t.Row(
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(s.Keyword, 28),
			truncate(business, 28),
			fmt.Sprintf("%dx%d", s.Spec.Size, s.Spec.Size),
			fmt.Sprintf("%d/%d", s.RankedCells, s.Spec.Cells()),
			status,
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
