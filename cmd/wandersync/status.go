package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Long: `Display the state of the local database and the sync queue.

Shows:
  - Database location and trip count
  - Number of queued pending changes
  - Last successful sync time`,
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore()
		defer st.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		engine, _ := buildEngine(st, logger)

		ctx := context.Background()
		trips, err := st.ListTrips(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nDatabase: %s\n", databasePath())
		fmt.Printf("Trips:    %d\n", len(trips))
		fmt.Printf("Pending:  %d change(s)\n", engine.PendingChangesCount())
		fmt.Printf("Network:  %s\n", engine.NetworkStatus())

		if last := engine.LastSyncDate(); last.IsZero() {
			fmt.Println("Last sync: never")
		} else {
			fmt.Printf("Last sync: %s\n", last.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
