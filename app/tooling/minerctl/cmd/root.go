// Package cmd contains the commands for the minerctl tool.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var url string

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the miner node.")
}

var rootCmd = &cobra.Command{
	Use:   "minerctl",
	Short: "Control a running miner node",
}

// Execute runs the selected command.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
