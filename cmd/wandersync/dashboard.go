package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wanderlog/wandersync/internal/daemon"
	"github.com/wanderlog/wandersync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server plus the sync daemon.

The dashboard broadcasts sync activity to connected clients:
- sync_progress: a push batch completed
- sync_complete: a sync pass reached a terminal state
- trip_update: a local trip mutation committed
- network_status: connectivity changed
- stats: engine snapshot (state, pending count, last sync)

Example usage:
  wandersync dashboard             # Start on default port 8080
  wandersync dashboard --port 9000

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		st := openStore()
		defer st.Close()

		engine, monitor := buildEngine(st, log.New(os.Stderr, "[sync] ", log.LstdFlags))

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		handler := dashboard.NewHandler(server, engine, log.New(os.Stderr, "[dashboard] ", log.LstdFlags))
		handler.Attach(monitor, st)

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		// Run the daemon alongside so there is activity to watch.
		d, err := daemon.New(st, engine, monitor, daemon.DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(dashboardCmd)
}
