package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wanderlog/wandersync/internal/remote"
	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/sync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wandersync",
	Short: "Multi-device sync for your trip plans",
	Long: `wandersync keeps a local trip database in sync with a remote backend.

Local edits are queued durably and pushed in batches; remote changes are
pulled and merged last-writer-wins. All commands work offline: changes
queue up and sync once connectivity returns.

Configuration is read from ~/.config/wandersync/wandersync.yaml (or the
file given with --config) and from WANDERSYNC_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/wandersync/wandersync.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the local database")
	rootCmd.PersistentFlags().String("remote-url", "", "base URL of the remote sync backend")
	rootCmd.PersistentFlags().String("env", "production", "configuration profile: production, development, test")
	rootCmd.PersistentFlags().Bool("offline", false, "treat the network as unavailable")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("remote.url", rootCmd.PersistentFlags().Lookup("remote-url"))
	_ = viper.BindPFlag("environment", rootCmd.PersistentFlags().Lookup("env"))
	_ = viper.BindPFlag("offline", rootCmd.PersistentFlags().Lookup("offline"))
}

// initConfig reads the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "wandersync"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("wandersync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WANDERSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("data_dir", defaultDataDir())
	viper.SetDefault("remote.url", "https://sync.wanderlog.example")
	viper.SetDefault("sync.protected_trips", true)
	viper.SetDefault("daemon.sync_interval", 5*time.Minute)
	viper.SetDefault("daemon.debounce_interval", 2*time.Second)
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, everything has a default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wandersync"
	}
	return filepath.Join(home, ".wandersync")
}

func databasePath() string {
	return filepath.Join(viper.GetString("data_dir"), "wandersync.db")
}

// openStore opens the local database, exiting on failure.
func openStore() *store.Store {
	st, err := store.Open(databasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

// environment maps the configured profile name onto an engine environment.
func environment() sync.Environment {
	switch viper.GetString("environment") {
	case "development":
		return sync.EnvDevelopment
	case "test":
		return sync.EnvTest
	default:
		return sync.EnvProduction
	}
}

// buildEngine assembles the engine and its collaborators from configuration.
func buildEngine(st *store.Store, logger *log.Logger) (*sync.Engine, *sync.NetworkMonitor) {
	client := remote.NewClient(viper.GetString("remote.url"))
	if token := viper.GetString("remote.token"); token != "" {
		client.Token = func(ctx context.Context) (string, error) {
			return token, nil
		}
	}

	initial := sync.StatusOnline
	if viper.GetBool("offline") {
		initial = sync.StatusOffline
	}
	monitor := sync.NewNetworkMonitor(initial)

	engine := sync.New(st, client, monitor, sync.ConfigForEnvironment(environment()), logger)
	engine.SetSyncProtectedTrips(viper.GetBool("sync.protected_trips"))
	return engine, monitor
}
