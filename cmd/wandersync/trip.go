package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wanderlog/wandersync/internal/trip"
)

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Manage local trips",
	Long: `Create, list, and remove trips in the local database.

Every mutation queues a pending change that the next sync pass pushes to
the remote backend. Mutations work offline.`,
}

var tripAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a trip",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		destination, _ := cmd.Flags().GetString("destination")
		notes, _ := cmd.Flags().GetString("notes")
		startsStr, _ := cmd.Flags().GetString("starts")
		endsStr, _ := cmd.Flags().GetString("ends")
		protected, _ := cmd.Flags().GetBool("protected")

		now := time.Now().UTC()
		t := &trip.Trip{
			ID:          uuid.NewString(),
			Title:       args[0],
			Destination: destination,
			Notes:       notes,
			Protected:   protected,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if startsStr != "" {
			starts, err := time.Parse("2006-01-02", startsStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --starts date %q (want YYYY-MM-DD)\n", startsStr)
				os.Exit(1)
			}
			t.StartsOn = &starts
		}
		if endsStr != "" {
			ends, err := time.Parse("2006-01-02", endsStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --ends date %q (want YYYY-MM-DD)\n", endsStr)
				os.Exit(1)
			}
			t.EndsOn = &ends
		}

		st := openStore()
		defer st.Close()

		if err := st.UpsertTrip(context.Background(), t, uuid.NewString()); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trip: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created trip %s (%s)\n", t.Title, t.ID)
	},
}

var tripListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trips",
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore()
		defer st.Close()

		trips, err := st.ListTrips(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
			os.Exit(1)
		}

		if len(trips) == 0 {
			fmt.Println("No trips yet. Create one with 'wandersync trip add'.")
			return
		}

		fmt.Println()
		for _, t := range trips {
			dates := ""
			if t.StartsOn != nil {
				dates = t.StartsOn.Format("2006-01-02")
				if t.EndsOn != nil {
					dates += " to " + t.EndsOn.Format("2006-01-02")
				}
			}
			marker := " "
			if t.Protected {
				marker = "*"
			}
			fmt.Printf("  %s %-36s %-24s %s\n", marker, t.ID, t.Title, dates)
		}
		fmt.Println("\n  * = protected (excluded when protected-trip sync is off)")
	},
}

var tripRemoveCmd = &cobra.Command{
	Use:     "rm <trip-id>",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a trip",
	Long: `Delete a trip. The record is soft-deleted locally so the deletion can
propagate to other devices on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore()
		defer st.Close()

		if err := st.DeleteTrip(context.Background(), args[0], uuid.NewString()); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting trip: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted trip %s\n", args[0])
	},
}

func init() {
	tripAddCmd.Flags().String("destination", "", "where the trip goes")
	tripAddCmd.Flags().String("notes", "", "free-form notes")
	tripAddCmd.Flags().String("starts", "", "start date (YYYY-MM-DD)")
	tripAddCmd.Flags().String("ends", "", "end date (YYYY-MM-DD)")
	tripAddCmd.Flags().Bool("protected", false, "exclude from sync when protected-trip sync is off")

	tripCmd.AddCommand(tripAddCmd)
	tripCmd.AddCommand(tripListCmd)
	tripCmd.AddCommand(tripRemoveCmd)
	rootCmd.AddCommand(tripCmd)
}
