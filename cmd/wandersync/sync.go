package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanderlog/wandersync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync pass now",
	Long: `Run one full sync pass against the remote backend.

The pass pulls remote changes since the last successful sync, resolves
conflicts last-writer-wins, and pushes queued local changes in batches.
Progress is printed per batch.

Flags:
  --retry         wrap the whole pass in the outer retry configuration
  --resolve-only  pull and resolve conflicts without pushing`,
	Run: func(cmd *cobra.Command, args []string) {
		withRetry, _ := cmd.Flags().GetBool("retry")
		resolveOnly, _ := cmd.Flags().GetBool("resolve-only")

		st := openStore()
		defer st.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		engine, _ := buildEngine(st, logger)

		engine.OnSyncProgress(func(p sync.Progress) {
			fmt.Printf("  batch %d/%d\n", p.CompletedBatches, p.TotalBatches)
		})

		start := time.Now()
		ctx := context.Background()

		var err error
		switch {
		case resolveOnly:
			err = engine.SyncAndResolveConflicts(ctx)
		case withRetry:
			err = engine.PerformSyncWithRetry(ctx)
		default:
			err = engine.PerformSync(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync complete in %v (%d changes still pending)\n",
			time.Since(start).Round(time.Millisecond), engine.PendingChangesCount())
	},
}

func init() {
	syncCmd.Flags().Bool("retry", false, "retry the whole pass on transient failure")
	syncCmd.Flags().Bool("resolve-only", false, "pull and resolve without pushing")
	rootCmd.AddCommand(syncCmd)
}
