package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "cvmatch",
	Short:         "Store a CV and score job descriptions against it",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	_, noColorEnv := os.LookupEnv("NO_COLOR")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", noColorEnv, "disable colored output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("cvmatch version %s\n", version))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(cvCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
