package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	debugLog bool

	rootCmd = &cobra.Command{
		Use:   "assure",
		Short: "Continuous Cloud Compliance Assessment",
		Long: `Assure - Continuous Cloud Compliance Assessment

Assure evaluates discovered cloud assets against compliance rules and
aggregates the outcomes into certification control fulfillment. Rules
are plain markdown documents with embedded conditions; certifications
are YAML catalogs mapping controls to rules.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			if debugLog {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Assure {{.Version}} - Continuous Cloud Compliance Assessment
`)
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
}
