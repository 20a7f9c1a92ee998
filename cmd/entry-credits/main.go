package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "entry-credits",
		Short:         "Turn paid order webhooks into competition entry credits",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML config file (defaults to $ENTRY_CREDITS_CONFIG)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "json", "log format (json, text)")
	flags.StringVar(&opts.driver, "db-driver", "", "database driver override (sqlite3, postgres)")
	flags.StringVar(&opts.dsn, "db-dsn", "", "database DSN override")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(dispatchOutboxCmd(opts))
	rootCmd.AddCommand(reviewCmd(opts))
	rootCmd.AddCommand(competitionCmd(opts))
	rootCmd.AddCommand(creditsCmd(opts))

	return rootCmd
}
