package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List queued pending changes",
	Long: `List local changes queued for push to the remote backend.

Entries stay queued until a push is confirmed, surviving restarts. One
entry is kept per trip: later edits collapse into it.

With --process, a push-only pass runs first to flush the queue.`,
	Run: func(cmd *cobra.Command, args []string) {
		process, _ := cmd.Flags().GetBool("process")

		st := openStore()
		defer st.Close()

		if process {
			engine, _ := buildEngine(st, log.New(os.Stderr, "[sync] ", log.LstdFlags))
			if err := engine.ProcessPendingChanges(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Push failed: %v\n", err)
				os.Exit(1)
			}
		}

		pending, err := st.ListPending(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing pending changes: %v\n", err)
			os.Exit(1)
		}

		if len(pending) == 0 {
			fmt.Println("No pending changes, everything is synced.")
			return
		}

		fmt.Printf("\n%d pending change(s):\n\n", len(pending))
		for _, pc := range pending {
			fmt.Printf("  %-8s %s  (queued %s)\n",
				pc.Op, pc.TripID, pc.QueuedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	},
}

func init() {
	pendingCmd.Flags().Bool("process", false, "push the queue before listing")
	rootCmd.AddCommand(pendingCmd)
}
