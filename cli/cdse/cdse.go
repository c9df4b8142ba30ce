package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/cdse/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	noColor    bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cdse",
		Short: "A client for the Copernicus Data Space Ecosystem",
		Long: `cdse searches the Copernicus Data Space Ecosystem catalogue and downloads
data products:
- CLI: search, opensearch, hits, deleted, download, subscriptions
- Library: filter expressions, OData search, verified concurrent downloads`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.NoColor = &noColor

	// Add subcommands
	cmd.AddCommand(
		cli.NewSearchCmd(),
		cli.NewOpenSearchCmd(),
		cli.NewHitsCmd(),
		cli.NewDeletedCmd(),
		cli.NewDownloadCmd(),
		cli.NewSubscriptionsCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
