package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anthropic/dirwatch/internal/config"
	"github.com/anthropic/dirwatch/internal/daemon"
	"github.com/anthropic/dirwatch/internal/ipc"
	"github.com/anthropic/dirwatch/internal/report"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "dirwatch",
		Short: "Report files closed after writing in watched directories",
		Long:  "dirwatch watches directories for files that were written and closed, and journals every delivered event.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.dirwatch/config.yaml or config.json)")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(recentCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func startCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dirwatch daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			// Check if daemon is already running.
			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("daemon is already running")
				return nil
			}

			// Remove stale socket file (from a prior crash).
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				log.Println("removing stale socket file")
				_ = os.Remove(cfg.SocketPath)
			}

			// The daemon hands the store to the server once it is open.
			ipcServer := ipc.NewServer(nil, nil)
			d := daemon.New(cfg, ipcServer)
			ipcServer.SetDaemon(d)

			// Start blocks until signal or error.
			return d.Start()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the dirwatch daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}

			fmt.Println("daemon stopping")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err != nil {
				fmt.Println("daemon is not running")
				return err
			}

			fmt.Println("daemon is alive")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(status))
			} else {
				fmt.Print(report.FormatStatus(report.StyleFor(os.Stdout), status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func recentCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest events delivered by the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			events, err := client.Recent(limit)
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(events))
			} else {
				fmt.Print(report.FormatEvents(report.StyleFor(os.Stdout), events, time.Now()))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func journalCmd() *cobra.Command {
	var (
		dbPath     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarize the event journal",
		Long: `Summarize the event journal: runs, events per directory and the latest events.

Reads the SQLite database directly -- the daemon does not need to be running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Resolve DB path: flag > config default.
			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.DBPath
			}

			sum, err := report.Generate(dbPath, limit)
			if err != nil {
				return fmt.Errorf("generate journal summary: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(sum))
			} else {
				fmt.Print(report.FormatSummary(report.StyleFor(os.Stdout), sum, time.Now()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Override database path (default: from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent events to include")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
