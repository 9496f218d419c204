package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"isotope/internal/config"
	"isotope/internal/server"
	"isotope/internal/technitium"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "isotope",
		Short:         "Web console for a Technitium DNS server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the console (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Verify that the DNS server is reachable with the configured service token",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCheck(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Printf("WARNING: %s", w)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log.Println("=== Isotope: Technitium DNS console ===")
	log.Printf("Version: %s", version)
	log.Printf("DNS server: %s", cfg.Technitium.URL)
	if cfg.Database.DSN != "" {
		log.Println("Sessions stored in PostgreSQL")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx, cfg, version)
}

func runCheck(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Technitium.APIToken == "" {
		return fmt.Errorf("technitium.api_token is not set")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	ctx = technitium.ContextWithToken(ctx, cfg.Technitium.APIToken)

	client := server.NewClient(cfg.Technitium, nil)
	who, err := client.Session(ctx)
	if err != nil {
		return fmt.Errorf("token check against %s failed: %s", cfg.Technitium.URL, technitium.Message(err))
	}
	stats, err := client.Stats(ctx, technitium.StatsRanges[0])
	if err != nil {
		return fmt.Errorf("statistics request failed: %s", technitium.Message(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "DNS server: %s\n", cfg.Technitium.URL)
	fmt.Fprintf(out, "Token owner: %s\n", who.Username)
	fmt.Fprintf(out, "Zones: %d, queries in the last hour: %d\n", stats.Zones, stats.TotalQueries)
	return nil
}
