package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/config"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/tui"
)

// rootOptions holds global CLI flags.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

// appContext carries what PersistentPreRunE initialized to the subcommands.
type appContext struct {
	Config *config.Config
	Logger logging.Logger
}

type appContextKey struct{}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rankgrid",
		Short: "Local search rank grid scanner",
		Long: "rankgrid checks where a business ranks in Google Maps for a keyword\n" +
			"at every point of a square grid around a center, and renders the result\n" +
			"as a heat map. Run without a subcommand to open the interactive TUI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: $RANKGRID_CONFIG)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newScanCmd(),
		newProbeCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newServeCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
			return err
		}
		cfg.LogLevel = opts.LogLevel
	}

	logger, err := logging.NewLogger(cfg.LogConfig("stderr"))
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, &appContext{Config: cfg, Logger: logger}))
	return nil
}

func getAppContext(cmd *cobra.Command) (*appContext, error) {
	if ctx := cmd.Context(); ctx != nil {
		if app, ok := ctx.Value(appContextKey{}).(*appContext); ok && app != nil {
			return app, nil
		}
	}
	return nil, errors.New("command context not initialized")
}

// sessionLogger logs to a per-session file next to the history database, and
// to stderr as well when alsoStderr is set.
func sessionLogger(cfg *config.Config, alsoStderr bool) (logging.Logger, string, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating data dir: %w", err)
	}
	logPath := filepath.Join(dir, fmt.Sprintf("rankgrid_%s.log", time.Now().Format("20060102_150405")))

	paths := []string{logPath}
	if alsoStderr {
		paths = append(paths, "stderr")
	}
	logger, err := logging.NewLogger(cfg.LogConfig(paths...))
	if err != nil {
		return nil, "", fmt.Errorf("opening session log: %w", err)
	}
	return logger, logPath, nil
}

func runTUI(cmd *cobra.Command) error {
	app, err := getAppContext(cmd)
	if err != nil {
		return err
	}

	// stderr belongs to the alt screen
	logger, _, err := sessionLogger(app.Config, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	deps, err := buildEngine(cmd.Context(), app.Config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	store, err := deps.Store.Acquire(cmd.Context())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	return tui.Run(cmd.Context(), tui.Deps{
		Scanner:            deps.Scanner,
		Store:              store,
		Geocoder:           deps.Geocoder,
		Logger:             logger,
		DefaultGridSize:    app.Config.DefaultGridSize,
		DefaultRadiusMiles: app.Config.DefaultRadiusMiles,
		Version:            version,
		ExportDir:          filepath.Dir(app.Config.DBPath),
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rankgrid %s (commit: %s)\n", version, commit)
		},
	}
}
