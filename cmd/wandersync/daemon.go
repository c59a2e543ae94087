package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wanderlog/wandersync/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon:
  - triggers a sync pass when local mutations commit (debounced)
  - runs a periodic full sync to pick up remote-only changes
  - pushes the pending queue as soon as connectivity returns
  - imports attachment files dropped into the import directory,
    named <trip-id>__<filename>

Logs rotate in <data-dir>/daemon.log. Stop with Ctrl+C.`,
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore()
		defer st.Close()

		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(viper.GetString("data_dir"), "daemon.log"),
			MaxSize:    viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			Compress:   true,
		}
		defer logFile.Close()
		logger := log.New(io.MultiWriter(os.Stderr, logFile), "", log.LstdFlags)

		engine, monitor := buildEngine(st, log.New(logFile, "[sync] ", log.LstdFlags))

		cfg := daemon.DefaultConfig()
		cfg.SyncInterval = viper.GetDuration("daemon.sync_interval")
		cfg.DebounceInterval = viper.GetDuration("daemon.debounce_interval")
		cfg.ImportDir = viper.GetString("daemon.import_dir")
		cfg.Logger = log.New(io.MultiWriter(os.Stderr, logFile), "[daemon] ", log.LstdFlags)

		d, err := daemon.New(st, engine, monitor, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Printf("Daemon running, database %s", databasePath())
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
