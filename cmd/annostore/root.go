package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annostore"
	"github.com/hupe1980/annostore/config"
	"github.com/hupe1980/annostore/indexmirror"
	"github.com/hupe1980/annostore/recordstore"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "annostore",
	Short: "Operational commands for the annotation store",
	Long: `Annostore keeps user annotations in a canonical SQLite store and
mirrors them into a search index. These commands cover the operational
side: rebuilding the index from the canonical store and retiring users.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
}

// openStore wires the engine from configuration. The caller must Close
// the returned store.
func openStore() (*annostore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	records, err := recordstore.NewSQLite(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	// The mirror is wired even in disabled mode: a rebuild runs with
	// the mode off so live traffic bypasses the index while the walk
	// writes to it.
	var mirror indexmirror.Mirror
	if cfg.Search.URL != "" && cfg.Search.Index != "" {
		mirror, err = indexmirror.NewElastic(cfg.Search.URL, cfg.Search.Index)
		if err != nil {
			records.Close() //nolint:errcheck
			return nil, fmt.Errorf("open index mirror: %w", err)
		}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	store, err := annostore.New(records, mirror,
		annostore.WithIndexDisabled(cfg.Search.Disabled),
		annostore.WithIndexTimeout(cfg.Search.Timeout),
		annostore.WithMaxNotesPerCourse(cfg.Limits.MaxNotesPerCourse),
		annostore.WithLogger(annostore.NewTextLogger(level)),
	)
	if err != nil {
		records.Close() //nolint:errcheck
		return nil, err
	}

	return store, nil
}
