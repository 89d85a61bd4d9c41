package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annostore"
)

var (
	rebuildFull    bool
	rebuildBatch   int
	rebuildWorkers int
	rebuildRate    float64
)

// Exit codes of the rebuild command.
const (
	exitRebuildPartial = 3
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the search index from the canonical store",
	Long: `Walks every note in the canonical store and re-indexes it, then prunes
index documents whose source note no longer exists. Idempotent and safe
to re-run after partial failure.

Run it with search disabled (ES_DISABLED=true or search.disabled in the
config) so live traffic bypasses the index during the walk.

Exit status: 0 on success, 3 if some documents failed, 1 if the run
aborted entirely.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fatal("rebuild", err)
		}
		defer store.Close() //nolint:errcheck

		stats, err := store.Rebuild(context.Background(), annostore.RebuildOptions{
			Full:          rebuildFull,
			BatchSize:     rebuildBatch,
			Workers:       rebuildWorkers,
			DocsPerSecond: rebuildRate,
		})
		if err != nil {
			fatal("rebuild", err)
		}

		fmt.Printf("indexed %d, failed %d, pruned %d\n", stats.Indexed, stats.Failed, stats.Pruned)
		if stats.Failed > 0 {
			os.Exit(exitRebuildPartial)
		}
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().BoolVar(&rebuildFull, "full", false, "Drop and recreate the index before rebuilding")
	rebuildCmd.Flags().IntVar(&rebuildBatch, "batch-size", annostore.DefaultRebuildBatchSize, "Notes per indexing batch")
	rebuildCmd.Flags().IntVar(&rebuildWorkers, "workers", annostore.DefaultRebuildWorkers, "Concurrent indexing workers")
	rebuildCmd.Flags().Float64Var(&rebuildRate, "rate", 0, "Max documents indexed per second (0 = unlimited)")
}
